package nfsmount

import (
	"errors"
	"fmt"
	"net"
	"os/exec"
	"runtime"
	"strings"

	billy "github.com/go-git/go-billy/v5"
	nfs "github.com/willscott/go-nfs"
	nfshelper "github.com/willscott/go-nfs/helpers"
)

// handleCacheSize bounds the file handles the export keeps resolvable.
const handleCacheSize = 4096

// mountOptions holds the read-only NFSv3 options per OS. %[1]d is the port,
// used for both nfsd and mountd since go-nfs serves them on one socket.
var mountOptions = map[string][]string{
	"darwin": {"port=%[1]d", "mountport=%[1]d", "vers=3", "tcp", "locallocks", "noresvport", "rdonly"},
	"linux":  {"port=%[1]d", "mountport=%[1]d", "vers=3", "tcp", "local_lock=all", "nolock", "ro"},
}

// Server is a read-only NFS export of a site filesystem on localhost.
type Server struct {
	ln   net.Listener
	done chan error
}

// NewServer exports fs on an ephemeral localhost port.
func NewServer(fs billy.Filesystem) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("nfs listen: %w", err)
	}
	s := &Server{ln: ln, done: make(chan error, 1)}
	h := nfshelper.NewCachingHandler(nfshelper.NewNullAuthHandler(fs), handleCacheSize)
	go func() { s.done <- nfs.Serve(ln, h) }()
	return s, nil
}

// Port is the TCP port of the export.
func (s *Server) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Close stops accepting connections and waits for the serve loop to exit.
func (s *Server) Close() error {
	err := s.ln.Close()
	if serr := <-s.done; serr != nil && !errors.Is(serr, net.ErrClosed) {
		return errors.Join(err, serr)
	}
	return err
}

// MountCommand returns the command that mounts the export on port at
// mountpoint, read-only.
func MountCommand(port int, mountpoint string) (*exec.Cmd, error) {
	opts, ok := mountOptions[runtime.GOOS]
	if !ok {
		return nil, fmt.Errorf("nfs mount unsupported on %s", runtime.GOOS)
	}
	joined := fmt.Sprintf(strings.Join(opts, ","), port)
	return exec.Command("sudo", "mount", "-t", "nfs", "-o", joined, "localhost:/", mountpoint), nil
}

// Mount runs MountCommand. Requires sudo.
func Mount(port int, mountpoint string) error {
	cmd, err := MountCommand(port, mountpoint)
	if err != nil {
		return err
	}
	return run(cmd, "mount")
}

// Unmount detaches mountpoint. On macOS diskutil is tried first since it
// needs no sudo for user mounts.
func Unmount(mountpoint string) error {
	if runtime.GOOS == "darwin" && exec.Command("diskutil", "unmount", mountpoint).Run() == nil {
		return nil
	}
	return run(exec.Command("sudo", "umount", mountpoint), "unmount")
}

func run(cmd *exec.Cmd, what string) error {
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w\n%s", what, cmd.Args[len(cmd.Args)-1], err, out)
	}
	return nil
}
