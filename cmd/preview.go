package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentic-research/quire/api"
	"github.com/agentic-research/quire/internal/publish"
	"github.com/agentic-research/quire/internal/serve"
)

var previewListen string

var previewCmd = &cobra.Command{
	Use:   "preview [bundle.db]",
	Short: "Serve a SQLite bundle written by build --bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := publish.ReadBundle(args[0])
		if err != nil {
			return err
		}
		state := serve.NewState()
		state.Replace(tree)
		logger.Info("bundle loaded", "bundle", args[0], "entries", state.Len())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve.NewServer(previewListen, state, logger).Serve(ctx)
	},
}

func init() {
	previewCmd.Flags().StringVarP(&previewListen, "listen", "l", api.DefaultListen, "HTTP listen address")
	rootCmd.AddCommand(previewCmd)
}
