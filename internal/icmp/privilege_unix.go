//go:build unix

package icmp

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrNotPrivileged is returned by CheckPrivileges when raw sockets are
// unlikely to be available.
var ErrNotPrivileged = errors.New("raw ICMP sockets require root or CAP_NET_RAW")

// CheckPrivileges returns ErrNotPrivileged when the process does not run as
// root. A non-root process may still hold CAP_NET_RAW, so callers use this
// only to annotate socket errors.
func CheckPrivileges() error {
	if unix.Geteuid() != 0 {
		return ErrNotPrivileged
	}
	return nil
}
