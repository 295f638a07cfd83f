// Package netutil provides the network primitives procenv supervises with.
//
// Address is the immutable host/port value identifying a listen endpoint.
// Prober performs the bind-state check: a TCP connect that is immediately
// closed reports StateBound, an actively refused connect reports
// StateUnbound, and any other failure is StateInconclusive. PortRegistry
// hands out free loopback ports and tracks reservations so concurrent
// callers never receive the same port.
package netutil
