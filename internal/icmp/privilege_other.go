//go:build !unix

package icmp

import "errors"

// ErrNotPrivileged is returned by CheckPrivileges when raw sockets are
// unlikely to be available.
var ErrNotPrivileged = errors.New("raw ICMP sockets require administrator rights")

// CheckPrivileges always succeeds on platforms without a cheap check.
func CheckPrivileges() error {
	return nil
}
