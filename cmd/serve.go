package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentic-research/quire/internal/build"
	"github.com/agentic-research/quire/internal/nfsmount"
	"github.com/agentic-research/quire/internal/pipeline"
	"github.com/agentic-research/quire/internal/serve"
	"github.com/agentic-research/quire/internal/site"
	"github.com/agentic-research/quire/internal/watch"
)

var (
	serveListen string
	serveNFS    bool
	serveMount  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Watch the sources and serve the site live over HTTP",
	Long: `Serve watches every mount, pushes changes through the rule pipeline and
serves the published entries from memory. Pretty URLs resolve /a to
/a.html and /a/ to /a/index.html. With --nfs the same view is exported
read-only over NFSv3; --mount also mounts it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadSite()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("listen") {
			cfg.Serve.Listen = serveListen
		}
		if cmd.Flags().Changed("nfs") {
			cfg.Serve.NFS = serveNFS
		}
		s, err := site.New(cfg)
		if err != nil {
			return err
		}
		cache, err := build.NewCache(build.DefaultCacheSize)
		if err != nil {
			return err
		}
		procs, err := s.Processors(cache, logger)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		state := serve.NewState()
		p := pipeline.New(state, procs...)
		p.Logger = logger

		if cfg.Serve.NFS || serveMount != "" {
			unexport, err := exportNFS(state, serveMount)
			if err != nil {
				return err
			}
			defer unexport()
		}

		events := make(chan pipeline.Event, watch.DefaultQueue)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return watch.All(gctx, s.DirMaps(), events, logger) })
		g.Go(func() error { return p.Run(gctx, events) })
		g.Go(func() error { return serve.NewServer(cfg.Serve.Listen, state, logger).Serve(gctx) })

		err = g.Wait()
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil
		}
		return err
	},
}

// exportNFS starts a read-only NFS export of state and, when mountpoint is
// set, mounts it. The returned func undoes both.
func exportNFS(state *serve.State, mountpoint string) (func(), error) {
	srv, err := nfsmount.NewServer(nfsmount.NewSiteFS(state))
	if err != nil {
		return nil, err
	}
	logger.Info("nfs export listening", "port", srv.Port())
	if mountpoint == "" {
		return func() { _ = srv.Close() }, nil
	}
	if err := nfsmount.Mount(srv.Port(), mountpoint); err != nil {
		_ = srv.Close()
		return nil, err
	}
	logger.Info("mounted", "mountpoint", mountpoint)
	return func() {
		if err := nfsmount.Unmount(mountpoint); err != nil {
			logger.Warn("unmount failed", "mountpoint", mountpoint, "error", err)
		}
		_ = srv.Close()
	}, nil
}

func init() {
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "HTTP listen address (overrides the site file)")
	serveCmd.Flags().BoolVar(&serveNFS, "nfs", false, "Export the served tree read-only over NFS")
	serveCmd.Flags().StringVar(&serveMount, "mount", "", "Mount the NFS export here (requires sudo)")
	rootCmd.AddCommand(serveCmd)
}
