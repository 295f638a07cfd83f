package core

import (
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/giantswarm/procenv/internal/netutil"
	"github.com/giantswarm/procenv/internal/poll"
	"github.com/giantswarm/procenv/internal/process"
	"github.com/giantswarm/procenv/internal/testproc"
)

func newTestSupervisor(t *testing.T, modify func(c *SupervisorConfig)) *Supervisor {
	t.Helper()

	cfg := validConfig()
	cfg.PollInterval = 100 * time.Millisecond
	cfg.ReadyTimeout = 10 * time.Second
	cfg.ReleaseTimeout = 10 * time.Second
	cfg.TerminateGracePeriod = 2 * time.Second
	if modify != nil {
		modify(&cfg)
	}
	s := NewSupervisorWithConfig(cfg)
	t.Cleanup(s.Close)
	return s
}

// helperService returns a Service running the test binary in helper mode on
// a freshly allocated loopback address.
func helperService(t *testing.T, s *Supervisor, b testproc.Behavior) Service {
	t.Helper()

	addr, err := s.AllocateAddress()
	if err != nil {
		t.Fatalf("AllocateAddress: %v", err)
	}
	t.Cleanup(func() { s.ReleaseAddress(addr) })

	b.Addr = addr.String()
	path, env, err := testproc.Command(b)
	if err != nil {
		t.Fatalf("helper command: %v", err)
	}
	return Service{Name: "helper-" + string(b.Mode), Path: path, Env: env, Address: addr}
}

func TestStartAndConfirm_BindsThenStops(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, nil)
	svc := helperService(t, s, testproc.Behavior{Mode: testproc.Listen, Delay: 300 * time.Millisecond})

	h, out, err := s.StartAndConfirm(context.Background(), svc)
	if err != nil {
		t.Fatalf("StartAndConfirm: %v", err)
	}
	if !out.Succeeded {
		t.Fatalf("outcome = %+v, want success", out)
	}
	if out.Attempts < 2 {
		t.Errorf("attempts = %d; a delayed bind should need more than one probe", out.Attempts)
	}
	if !h.IsAlive() {
		t.Fatal("process should be alive after a confirmed start")
	}
	if res := s.Probe(context.Background(), svc.Address); res.State != netutil.StateBound {
		t.Errorf("Probe after start = %v, want bound", res.State)
	}

	stopOut, err := s.StopAndConfirm(context.Background(), h, svc.Address, 0)
	if err != nil {
		t.Fatalf("StopAndConfirm: %v", err)
	}
	if !stopOut.Succeeded || stopOut.Desired != netutil.StateUnbound {
		t.Errorf("stop outcome = %+v, want unbound success", stopOut)
	}
	if h.IsAlive() {
		t.Error("process should be gone after StopAndConfirm")
	}
}

func TestStartAndConfirm_NeverBinds(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, func(c *SupervisorConfig) { c.PollInterval = 200 * time.Millisecond })
	svc := helperService(t, s, testproc.Behavior{Mode: testproc.Sleep})
	svc.ReadyTimeout = time.Second

	h, out, err := s.StartAndConfirm(context.Background(), svc)
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("error = %v, want ErrPollTimeout", err)
	}
	var serr *SupervisionError
	if !errors.As(err, &serr) || serr.Op != OpStart || serr.Address != svc.Address {
		t.Fatalf("error %v is not a start SupervisionError for %s", err, svc.Address)
	}
	if h == nil {
		t.Fatal("handle must be returned when only the poll fails")
	}
	if out.Succeeded {
		t.Error("outcome must not report success")
	}
	if out.Attempts < 4 || out.Attempts > 6 {
		t.Errorf("attempts = %d, want about 5", out.Attempts)
	}
	for _, want := range []string{svc.Address.String(), "attempts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %q", err, want)
		}
	}

	if !h.IsAlive() {
		t.Fatal("a never-binding process is still running and must be terminable")
	}
	if err := h.Terminate(time.Second); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
}

func TestStartAndConfirm_LaunchFailureSkipsPoll(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, nil)
	svc := Service{
		Path:    "/nonexistent/procenv-test-binary",
		Address: netutil.Address{Host: "127.0.0.1", Port: 9},
	}

	start := time.Now()
	h, out, err := s.StartAndConfirm(context.Background(), svc)
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("error = %v, want ErrExecutableNotFound", err)
	}
	var lerr *process.LaunchError
	if !errors.As(err, &lerr) {
		t.Errorf("error %T should wrap a *process.LaunchError", err)
	}
	if h != nil {
		t.Error("handle must be nil when the launch fails")
	}
	if out.Attempts != 0 {
		t.Errorf("attempts = %d; no poll may run after a failed launch", out.Attempts)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("launch failure took %v", elapsed)
	}
	var serr *SupervisionError
	if errors.As(err, &serr) && serr.Name != "procenv-test-binary" {
		t.Errorf("service name = %q, want base name of path", serr.Name)
	}
}

func TestStartAndConfirm_InvalidService(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, nil)

	tests := map[string]Service{
		"empty path":       {Address: netutil.Address{Host: "127.0.0.1", Port: 9999}},
		"zero port":        {Path: "true", Address: netutil.Address{Host: "127.0.0.1"}},
		"negative timeout": {Path: "true", Address: netutil.Address{Host: "127.0.0.1", Port: 9999}, ReadyTimeout: -1},
		"missing work dir": {Path: "true", Address: netutil.Address{Host: "127.0.0.1", Port: 9999}, Dir: "/nonexistent/procenv-workdir"},
	}
	for name, svc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h, _, err := s.StartAndConfirm(context.Background(), svc)
			if !errors.Is(err, ErrInvalidService) {
				t.Fatalf("error = %v, want ErrInvalidService", err)
			}
			if h != nil {
				t.Error("no process may be launched for an invalid service")
			}
		})
	}
}

func TestStartAndConfirm_ProcessExitsEarly(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, nil)
	svc := helperService(t, s, testproc.Behavior{Mode: testproc.Exit, ExitCode: 4})

	start := time.Now()
	h, _, err := s.StartAndConfirm(context.Background(), svc)
	if !errors.Is(err, ErrProcessExited) {
		t.Fatalf("error = %v, want ErrProcessExited", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("exited process should abort the poll quickly, took %v", elapsed)
	}
	if code, err := h.WaitForExit(5 * time.Second); err != nil || code != 4 {
		t.Errorf("WaitForExit = (%d, %v), want (4, nil)", code, err)
	}
}

func TestStartAndConfirm_WithoutAbortOnExitPollsToDeadline(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, func(c *SupervisorConfig) { c.AbortOnExit = false })
	svc := helperService(t, s, testproc.Behavior{Mode: testproc.Exit})
	svc.ReadyTimeout = 500 * time.Millisecond

	_, _, err := s.StartAndConfirm(context.Background(), svc)
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("error = %v, want ErrPollTimeout", err)
	}
}

func TestStopAndConfirm_AlreadyExited(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, nil)
	svc := helperService(t, s, testproc.Behavior{Mode: testproc.Listen})

	h, _, err := s.StartAndConfirm(context.Background(), svc)
	if err != nil {
		t.Fatalf("StartAndConfirm: %v", err)
	}
	if err := h.Terminate(time.Second); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	out, err := s.StopAndConfirm(context.Background(), h, svc.Address, 5*time.Second)
	if err != nil {
		t.Fatalf("StopAndConfirm on exited process: %v", err)
	}
	if !out.Succeeded || out.Attempts < 1 {
		t.Errorf("outcome = %+v, want a successful unbound poll", out)
	}
}

func TestStopAndConfirm_StillBoundTimesOut(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	addr, err := netutil.ParseAddress(l.Addr().String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	s := newTestSupervisor(t, nil)
	out, err := s.StopAndConfirm(context.Background(), nil, addr, 300*time.Millisecond)
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("error = %v, want ErrPollTimeout", err)
	}
	var terr *poll.TimeoutError
	if !errors.As(err, &terr) || terr.Desired != netutil.StateUnbound {
		t.Errorf("error %v should carry the unbound TimeoutError", err)
	}
	if out.Succeeded {
		t.Error("outcome must not report success while the address is bound")
	}
}

func TestStartAllAndConfirm(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, nil)
	svcs := []Service{
		helperService(t, s, testproc.Behavior{Mode: testproc.Listen, Delay: 200 * time.Millisecond}),
		helperService(t, s, testproc.Behavior{Mode: testproc.Listen, Delay: 400 * time.Millisecond}),
	}
	svcs[0].Name, svcs[1].Name = "first", "second"

	results, err := s.StartAllAndConfirm(context.Background(), svcs)
	if err != nil {
		t.Fatalf("StartAllAndConfirm: %v", err)
	}
	if len(results) != len(svcs) {
		t.Fatalf("got %d results, want %d", len(results), len(svcs))
	}
	for i, r := range results {
		if r.Service.Name != svcs[i].Name {
			t.Errorf("result %d is for %q, want %q", i, r.Service.Name, svcs[i].Name)
		}
		if r.Err != nil || !r.Outcome.Succeeded || r.Handle == nil {
			t.Errorf("result %d = %+v, want success", i, r)
			continue
		}
		if _, err := s.StopAndConfirm(context.Background(), r.Handle, r.Service.Address, 0); err != nil {
			t.Errorf("StopAndConfirm %s: %v", r.Service.Name, err)
		}
	}
}

func TestStartAllAndConfirm_FailureReported(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, nil)
	good := helperService(t, s, testproc.Behavior{Mode: testproc.Listen})
	bad := Service{Name: "missing", Path: "/nonexistent/binary", Address: netutil.Address{Host: "127.0.0.1", Port: 9}}

	results, err := s.StartAllAndConfirm(context.Background(), []Service{good, bad})
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Fatalf("error = %v, want ErrExecutableNotFound", err)
	}
	if !errors.Is(results[1].Err, ErrExecutableNotFound) {
		t.Errorf("failed service result error = %v", results[1].Err)
	}
	// The good service either confirmed before the failure or was canceled;
	// its handle is returned in both cases.
	if results[0].Handle == nil {
		t.Fatal("launched service must return its handle")
	}
	if err := results[0].Handle.Terminate(time.Second); err != nil {
		t.Errorf("Terminate: %v", err)
	}
}

func TestSupervisor_AwaitBoundAndUnbound(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, nil)
	addr, err := s.AllocateAddress()
	if err != nil {
		t.Fatalf("AllocateAddress: %v", err)
	}
	t.Cleanup(func() { s.ReleaseAddress(addr) })

	out, err := s.AwaitUnbound(context.Background(), addr, time.Second)
	if err != nil || out.Attempts != 1 {
		t.Fatalf("AwaitUnbound on a free address = (%+v, %v), want one attempt", out, err)
	}

	go func() {
		time.Sleep(250 * time.Millisecond)
		l, err := net.Listen("tcp", addr.String())
		if err != nil {
			return
		}
		time.Sleep(time.Second)
		_ = l.Close()
	}()

	out, err = s.AwaitBound(context.Background(), addr, 5*time.Second)
	if err != nil {
		t.Fatalf("AwaitBound: %v", err)
	}
	if out.Attempts < 2 {
		t.Errorf("attempts = %d, want at least 2 for a late bind", out.Attempts)
	}

	if _, err := s.AwaitUnbound(context.Background(), addr, 5*time.Second); err != nil {
		t.Fatalf("AwaitUnbound after close: %v", err)
	}
}

func TestSupervisor_StartPoll(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, nil)
	addr, err := s.AllocateAddress()
	if err != nil {
		t.Fatalf("AllocateAddress: %v", err)
	}
	t.Cleanup(func() { s.ReleaseAddress(addr) })

	session := s.StartPoll(context.Background(), addr, netutil.StateBound, time.Minute)
	time.Sleep(150 * time.Millisecond)
	session.Cancel()

	out, err := session.Wait()
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if out.Succeeded {
		t.Error("canceled session must not report success")
	}
}

func TestSupervisor_CloseTerminatesUnstoppedProcesses(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.PollInterval = 100 * time.Millisecond
	cfg.TerminateGracePeriod = time.Second
	s := NewSupervisorWithConfig(cfg)

	svc := helperService(t, s, testproc.Behavior{Mode: testproc.Listen})
	h, _, err := s.StartAndConfirm(context.Background(), svc)
	if err != nil {
		s.Close()
		t.Fatalf("StartAndConfirm: %v", err)
	}

	s.Close()
	if h.IsAlive() {
		t.Error("Close should terminate processes the caller never stopped")
	}

	// Idempotent.
	s.Close()

	if _, _, err := s.StartAndConfirm(context.Background(), svc); !errors.Is(err, ErrSupervisorClosed) {
		t.Errorf("StartAndConfirm after Close = %v, want ErrSupervisorClosed", err)
	}
	if _, err := s.StopAndConfirm(context.Background(), h, svc.Address, 0); !errors.Is(err, ErrSupervisorClosed) {
		t.Errorf("StopAndConfirm after Close = %v, want ErrSupervisorClosed", err)
	}
	if _, err := s.AwaitBound(context.Background(), svc.Address, time.Second); !errors.Is(err, ErrSupervisorClosed) {
		t.Errorf("AwaitBound after Close = %v, want ErrSupervisorClosed", err)
	}
	if _, err := s.AllocateAddress(); !errors.Is(err, ErrSupervisorClosed) {
		t.Errorf("AllocateAddress after Close = %v, want ErrSupervisorClosed", err)
	}
	if _, err := s.StartPoll(context.Background(), svc.Address, netutil.StateUnbound, 0).Wait(); !errors.Is(err, ErrSupervisorClosed) {
		t.Errorf("StartPoll after Close = %v, want ErrSupervisorClosed", err)
	}
	if res := s.Probe(context.Background(), svc.Address); res.State != netutil.StateInconclusive || !errors.Is(res.Err, ErrSupervisorClosed) {
		t.Errorf("Probe after Close = %+v, want inconclusive with ErrSupervisorClosed", res)
	}
	s.ReleaseAddress(svc.Address)
}

func TestSupervisor_StartPollZeroTimeoutUsesDefault(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, nil)
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	addr, err := netutil.ParseAddress(l.Addr().String())
	if err != nil {
		t.Fatalf("parse address: %v", err)
	}

	out, err := s.StartPoll(context.Background(), addr, netutil.StateBound, 0).Wait()
	if err != nil {
		t.Fatalf("StartPoll with zero timeout: %v", err)
	}
	if !out.Succeeded {
		t.Errorf("outcome = %+v, want success", out)
	}
}

func TestStopAndConfirm_EscalatesForStubbornProcess(t *testing.T) {
	t.Parallel()

	s := newTestSupervisor(t, func(c *SupervisorConfig) { c.TerminateGracePeriod = 300 * time.Millisecond })
	svc := helperService(t, s, testproc.Behavior{Mode: testproc.Stubborn})
	svc.ReadyTimeout = 300 * time.Millisecond

	h, _, err := s.StartAndConfirm(context.Background(), svc)
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("error = %v, want ErrPollTimeout", err)
	}

	if _, err := s.StopAndConfirm(context.Background(), h, svc.Address, time.Second); err != nil {
		t.Fatalf("StopAndConfirm: %v", err)
	}
	if h.IsAlive() {
		t.Error("SIGTERM-ignoring process should be killed after the grace period")
	}
}
