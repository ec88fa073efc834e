// Package port implements port availability scanning for multi-node
// rendezvous.
//
// Every participant in a multi-node launch must agree on MASTER_PORT, and
// the master node must be able to bind it. The scanner asks the operating
// system directly (net.Listen) whether a port is free, which is more
// reliable than parsing /proc/net/* or relying on external commands like
// `lsof` or `ss` which may require elevated permissions.
package port

import (
	"fmt"
	"net"
)

// Scanner checks whether specific TCP ports are available on the host
// machine. Rendezvous endpoints are TCP, so no UDP path is needed.
//
// The struct is currently stateless, but is defined as a struct (rather
// than bare functions) so that future options (e.g., bind address) can be
// added without breaking the API. It also makes the Scanner injectable,
// which keeps the launch path testable.
type Scanner struct{}

// NewScanner creates a new Scanner instance.
func NewScanner() *Scanner {
	return &Scanner{}
}

// IsAvailable checks whether a TCP port is free on the host machine.
//
// It attempts net.Listen("tcp", ":port"); if the bind succeeds the port is
// available and the listener is immediately closed. We bind to all
// interfaces (":port" rather than "127.0.0.1:port") because rendezvous
// listeners bind 0.0.0.0, so the same address space must be checked to
// avoid false positives.
func (s *Scanner) IsAvailable(portNum int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", portNum))
	if err != nil {
		return false
	}
	// Close immediately: only availability was being tested, no
	// connections are accepted.
	defer func() { _ = listener.Close() }()
	return true
}

// FindAvailable scans [startPort, endPort] (inclusive) and returns the
// first TCP port that is available.
//
// The search is sequential from startPort upward. This deterministic
// ordering means the same free port will be suggested consistently, which
// helps with reproducibility when the result ends up in a launch command.
//
// Returns an error if no port in the range is free.
func (s *Scanner) FindAvailable(startPort, endPort int) (int, error) {
	for portNum := startPort; portNum <= endPort; portNum++ {
		if s.IsAvailable(portNum) {
			return portNum, nil
		}
	}
	return 0, fmt.Errorf("no available TCP port found in range %d-%d", startPort, endPort)
}
