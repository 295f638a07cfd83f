package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"sync"
)

// LoopbackHost is the host AllocateAddress uses when none is given.
const LoopbackHost = "127.0.0.1"

// maxPortRetries is the maximum number of attempts to find a port not already
// in the registry. This guards against pathological cases.
const maxPortRetries = 20

// PortRegistry tracks ports currently handed out by this process. The kernel
// may return a port again as soon as the probing listener is closed, so two
// concurrent AllocateAddress calls could otherwise receive the same port
// before either child process has bound it.
//
// A Supervisor owns one PortRegistry and passes it to whatever needs a free
// listen address for a supervised service.
type PortRegistry struct {
	mu    sync.Mutex
	ports map[int]struct{}
	log   *slog.Logger
}

// NewPortRegistry creates a new PortRegistry ready for use.
// If logger is nil, slog.Default() is used as a fallback.
func NewPortRegistry(logger *slog.Logger) *PortRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PortRegistry{
		ports: make(map[int]struct{}),
		log:   logger,
	}
}

// reserve attempts to register a port in the registry.
// Returns true if the port was successfully reserved, false if already taken.
func (r *PortRegistry) reserve(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ports[port]; ok {
		return false
	}
	r.ports[port] = struct{}{}
	return true
}

// Release removes a port from the registry, allowing it to be reused.
func (r *PortRegistry) Release(port int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ports, port)
}

// Reserved reports whether port is currently held by the registry.
func (r *PortRegistry) Reserved(port int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ports[port]
	return ok
}

// AllocateAddress asks the kernel for a free port on host, skipping ports
// already in the registry, and returns it as an Address. The probing listener
// is closed before returning, so the address is unbound and ready for a child
// process to take. Callers must Release the port when the service is gone.
// An empty host selects LoopbackHost.
func (r *PortRegistry) AllocateAddress(host string) (Address, error) {
	if host == "" {
		host = LoopbackHost
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return Address{}, fmt.Errorf("resolve tcp address: %w", err)
	}

	for range maxPortRetries {
		l, err := net.ListenTCP("tcp", tcpAddr)
		if err != nil {
			return Address{}, fmt.Errorf("listen on tcp address: %w", err)
		}
		bound, ok := l.Addr().(*net.TCPAddr)
		if !ok {
			_ = l.Close()
			return Address{}, fmt.Errorf("unexpected address type: %T", l.Addr())
		}
		if r.reserve(bound.Port) {
			if closeErr := l.Close(); closeErr != nil {
				r.log.Warn("close listener after port allocation", "port", bound.Port, "error", closeErr)
			}
			return Address{Host: host, Port: bound.Port}, nil
		}
		// Port already in registry, close and retry to get a different one.
		r.log.Debug("port already in registry, retrying", "port", bound.Port)
		_ = l.Close()
	}
	return Address{}, fmt.Errorf("allocate unique port: exhausted %d attempts", maxPortRetries)
}
