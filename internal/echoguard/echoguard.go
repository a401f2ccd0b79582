// Package echoguard stops the kernel from answering ICMP echo requests while
// the receiver is running.
//
// Kernel echo replies carry the request's identifier and data, so the sender
// would see its own frame bounced back as a reply. Suppression is best effort:
// when the setting cannot be read or written the receiver runs without it.
package echoguard

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"
)

// DefaultPath is the procfs file behind net.ipv4.icmp_echo_ignore_all.
const DefaultPath = "/proc/sys/net/ipv4/icmp_echo_ignore_all"

// Restore puts the host setting back to the value it had before Suppress.
// It is safe to call more than once.
type Restore func() error

// Suppressor disables kernel echo replies.
type Suppressor interface {
	// Suppress records the current setting and turns kernel echo replies off.
	// On error the returned Restore is a no-op and the setting is unchanged.
	Suppress() (Restore, error)
}

func noopRestore() error { return nil }

// ProcSuppressor toggles the setting through a procfs file.
type ProcSuppressor struct {
	Path string
}

// NewProcSuppressor returns a ProcSuppressor for DefaultPath.
func NewProcSuppressor() *ProcSuppressor {
	return &ProcSuppressor{Path: DefaultPath}
}

// Suppress implements Suppressor.
func (s *ProcSuppressor) Suppress() (Restore, error) {
	prev, err := s.read()
	if err != nil {
		return noopRestore, err
	}

	if prev == "1" {
		// Already suppressed; leave it as the operator configured it
		return noopRestore, nil
	}

	if err := s.write("1"); err != nil {
		return noopRestore, err
	}

	var once sync.Once
	var restoreErr error
	return func() error {
		once.Do(func() {
			restoreErr = s.write(prev)
		})
		return restoreErr
	}, nil
}

// Current returns the current value of the setting.
func (s *ProcSuppressor) Current() (string, error) {
	return s.read()
}

func (s *ProcSuppressor) read() (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", s.Path, err)
	}

	val := string(bytes.TrimSpace(data))
	if val != "0" && val != "1" {
		return "", fmt.Errorf("unexpected value %q in %s", val, s.Path)
	}
	return val, nil
}

func (s *ProcSuppressor) write(val string) error {
	f, err := os.OpenFile(s.Path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.Path, err)
	}
	_, werr := f.WriteString(val + "\n")
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	return nil
}

// Nop is a Suppressor that does nothing. It is used when suppression is
// disabled in the configuration.
type Nop struct{}

// Suppress implements Suppressor.
func (Nop) Suppress() (Restore, error) {
	return noopRestore, nil
}
