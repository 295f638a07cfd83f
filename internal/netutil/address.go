package netutil

import (
	"errors"
	"fmt"
	"net"
	"strconv"
)

// MaxPort is the highest valid TCP port number.
const MaxPort = 65535

// Address identifies a TCP listen endpoint. It is a plain value: copies are
// interchangeable and two Addresses are the same endpoint when they compare
// equal.
type Address struct {
	Host string
	Port int
}

// NewAddress returns a validated Address.
func NewAddress(host string, port int) (Address, error) {
	a := Address{Host: host, Port: port}
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	return a, nil
}

// ParseAddress parses "host:port" (IPv6 hosts in brackets) into an Address.
func ParseAddress(s string) (Address, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: invalid port %q", s, portStr)
	}
	a, err := NewAddress(host, port)
	if err != nil {
		return Address{}, fmt.Errorf("parse address %q: %w", s, err)
	}
	return a, nil
}

// Validate reports every problem with the address at once.
func (a Address) Validate() error {
	var errs []error
	if a.Host == "" {
		errs = append(errs, errors.New("host must not be empty"))
	}
	if a.Port < 1 || a.Port > MaxPort {
		errs = append(errs, fmt.Errorf("port must be in 1-%d, got %d", MaxPort, a.Port))
	}
	return errors.Join(errs...)
}

// String returns the address in dialable "host:port" form.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IsZero reports whether a is the zero Address.
func (a Address) IsZero() bool {
	return a == Address{}
}
