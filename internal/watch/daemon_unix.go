//go:build !windows

package watch

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

// DaemonOptions carries the watch settings forwarded to the daemon process.
type DaemonOptions struct {
	Dir      string
	Out      string
	Dataset  string
	Layer    string
	World    int
	Codec    string
	Window   time.Duration
	Evaluate bool
	Server   string
}

func daemonArgs(opts DaemonOptions) []string {
	args := []string{"watch", opts.Dir, "--foreground"}
	if opts.Out != "" {
		args = append(args, "--out", opts.Out)
	}
	if opts.Dataset != "" {
		args = append(args, "--dataset", opts.Dataset)
	}
	if opts.Layer != "" {
		args = append(args, "--layer", opts.Layer)
	}
	if opts.World > 0 {
		args = append(args, "--world", strconv.Itoa(opts.World))
	}
	if opts.Codec != "" {
		args = append(args, "--codec", opts.Codec)
	}
	if opts.Window > 0 {
		args = append(args, "--window", opts.Window.String())
	}
	if opts.Evaluate {
		args = append(args, "--evaluate")
	}
	if opts.Server != "" {
		args = append(args, "--server", opts.Server)
	}
	return args
}

// StartDaemon starts the watcher as a background daemon
func StartDaemon(opts DaemonOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}

	cmd := exec.Command(exe, daemonArgs(opts)...)

	// Unix-specific detachment
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    0,
	}

	logDir := StateDir()
	os.MkdirAll(logDir, 0755)

	logFile, err := os.OpenFile(
		filepath.Join(logDir, "daemon_startup.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND,
		0644,
	)
	if err == nil {
		cmd.Stdout = logFile
		cmd.Stderr = logFile
	}

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	go cmd.Wait()

	return cmd.Process.Pid, nil
}

// StopDaemon stops a watcher daemon by PID
func StopDaemon(pid int) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return process.Kill()
	}
	RemoveState(pid)
	return nil
}

// StopAllDaemons stops all running watcher daemons
func StopAllDaemons() (int, error) {
	states, err := ListStates()
	if err != nil {
		return 0, err
	}

	stopped := 0
	for _, state := range states {
		if err := StopDaemon(state.PID); err == nil {
			stopped++
		}
	}

	return stopped, nil
}

// isProcessRunning checks if a process is still running
func isProcessRunning(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil
}
