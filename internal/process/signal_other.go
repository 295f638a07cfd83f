//go:build !unix

package process

import "os/exec"

// signalTerminate kills the process outright: there is no portable graceful
// shutdown signal outside unix.
func signalTerminate(cmd *exec.Cmd, _ bool) error {
	return cmd.Process.Kill()
}

// signalKill forcibly kills the process.
func signalKill(cmd *exec.Cmd, _ bool) error {
	return cmd.Process.Kill()
}
