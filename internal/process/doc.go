// Package process launches and owns external child processes.
//
// Launch starts a command and returns a Handle; launch failures are
// classified into *LaunchError kinds. A Handle reports liveness without
// blocking, terminates with a SIGTERM-then-SIGKILL sequence, and waits for
// exit with a timeout. LogFiles captures a child's stdout and stderr.
package process
