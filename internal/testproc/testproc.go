// Package testproc turns a test binary into a configurable child process so
// supervision tests can launch real processes without external fixtures.
//
// A test package calls RunIfRequested first thing in TestMain. When the
// binary was started by Command, it runs the requested behavior and exits
// instead of running tests.
package testproc

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"
)

// Environment variables understood by the helper.
const (
	EnvMode   = "PROCENV_TEST_HELPER"
	EnvAddr   = "PROCENV_TEST_ADDR"
	EnvDelay  = "PROCENV_TEST_DELAY"
	EnvCode   = "PROCENV_TEST_EXIT_CODE"
	EnvLinger = "PROCENV_TEST_LINGER"
)

// Mode selects what the helper process does.
type Mode string

const (
	// Listen waits for the configured delay, binds the address and serves
	// until terminated, or until Linger has passed when it is set.
	Listen Mode = "listen"
	// Sleep never binds anything and runs until terminated.
	Sleep Mode = "sleep"
	// Exit exits immediately with the configured code.
	Exit Mode = "exit"
	// Stubborn ignores SIGTERM and never binds, so only SIGKILL stops it.
	Stubborn Mode = "stubborn"
)

// Behavior describes one helper invocation.
type Behavior struct {
	Mode     Mode
	Addr     string        // host:port for Listen
	Delay    time.Duration // before binding, for Listen
	Linger   time.Duration // for Listen; zero serves until terminated
	ExitCode int           // for Exit
}

// Command returns the executable and environment that start the helper
// described by b. The executable is the running test binary.
func Command(b Behavior) (string, []string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("resolve test executable: %w", err)
	}
	env := []string{
		EnvMode + "=" + string(b.Mode),
		EnvAddr + "=" + b.Addr,
		EnvDelay + "=" + b.Delay.String(),
		EnvLinger + "=" + b.Linger.String(),
		EnvCode + "=" + strconv.Itoa(b.ExitCode),
	}
	return exe, env, nil
}

// RunIfRequested runs the helper and exits the process when EnvMode is set.
// Otherwise it returns immediately.
func RunIfRequested() {
	mode := os.Getenv(EnvMode)
	if mode == "" {
		return
	}
	os.Exit(run(Mode(mode)))
}

func run(mode Mode) int {
	switch mode {
	case Listen:
		return listen()
	case Sleep:
		<-signalled()
		return 0
	case Exit:
		code, err := strconv.Atoi(os.Getenv(EnvCode))
		if err != nil {
			return 2
		}
		return code
	case Stubborn:
		signal.Ignore(syscall.SIGTERM)
		select {}
	default:
		fmt.Fprintf(os.Stderr, "testproc: unknown mode %q\n", mode)
		return 2
	}
}

func listen() int {
	if d, err := time.ParseDuration(os.Getenv(EnvDelay)); err == nil && d > 0 {
		time.Sleep(d)
	}
	l, err := net.Listen("tcp", os.Getenv(EnvAddr))
	if err != nil {
		fmt.Fprintf(os.Stderr, "testproc: listen: %v\n", err)
		return 1
	}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			_ = conn.Close()
		}
	}()
	if d, err := time.ParseDuration(os.Getenv(EnvLinger)); err == nil && d > 0 {
		select {
		case <-time.After(d):
		case <-signalled():
		}
	} else {
		<-signalled()
	}
	_ = l.Close()
	return 0
}

// signalled returns a channel that receives SIGTERM or an interrupt.
func signalled() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, os.Interrupt)
	return ch
}
