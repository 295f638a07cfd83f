// Package procenv supervises externally spawned services for tests and
// shell-driven orchestration.
//
// A Supervisor launches a child process and confirms that its listen address
// becomes bound; at teardown it terminates the child and confirms that the
// address is released. Confirmation is a plain TCP connect-then-close probe,
// repeated at a fixed interval on a small shared worker pool until the
// desired state is observed or a deadline passes.
//
// # Basic Usage
//
//	import "github.com/giantswarm/procenv"
//
//	ctx := context.Background()
//
//	sup := procenv.New(procenv.WithReadyTimeout(5 * time.Second))
//	defer sup.Close()
//
//	addr, _ := procenv.ParseAddress("127.0.0.1:9999")
//	proc, out, err := sup.StartAndConfirm(ctx, procenv.Service{
//	    Name:    "sidecar",
//	    Path:    "/usr/local/bin/sidecar",
//	    Args:    []string{"--mode=test", "-Xmx64m"},
//	    Address: addr,
//	})
//	if err != nil {
//	    // out.Attempts and out.Elapsed tell a slow start from a broken one.
//	    // proc is non-nil if the launch succeeded and only the poll failed.
//	    log.Fatal(err)
//	}
//
//	// Exercise the service...
//
//	if _, err := sup.StopAndConfirm(ctx, proc, addr, 0); err != nil {
//	    log.Fatal(err)
//	}
//
// # Negative Assertions
//
// Poll timeouts are always surfaced, so tests can assert that an address
// never becomes bound:
//
//	_, err := sup.AwaitBound(ctx, addr, time.Second)
//	if !errors.Is(err, procenv.ErrPollTimeout) {
//	    t.Fatalf("address unexpectedly bound: %v", err)
//	}
//
// # Parallel Test Binaries
//
// Test binaries that supervise services on the same fixed port can share a
// lock directory with WithAddressLockDir. Each listen address is then held
// by one Supervisor at a time, from launch until release is confirmed.
package procenv
