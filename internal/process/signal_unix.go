//go:build unix

package process

import (
	"os/exec"

	"golang.org/x/sys/unix"
)

// signalTerminate asks the process (or its whole group) to shut down.
func signalTerminate(cmd *exec.Cmd, group bool) error {
	return sendSignal(cmd, group, unix.SIGTERM)
}

// signalKill forcibly kills the process (or its whole group).
func signalKill(cmd *exec.Cmd, group bool) error {
	return sendSignal(cmd, group, unix.SIGKILL)
}

func sendSignal(cmd *exec.Cmd, group bool, sig unix.Signal) error {
	if group {
		// A negative pid addresses the process group led by the child.
		if err := unix.Kill(-cmd.Process.Pid, sig); err == nil {
			return nil
		}
	}
	return cmd.Process.Signal(sig)
}
