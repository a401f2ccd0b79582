// Package sysinfo reports build and host information for the version
// command and the receiver's startup log.
package sysinfo

import (
	"net"
	"os"
	"runtime"
	"runtime/debug"
	"time"
)

var (
	// Version is the release version, set at build time via ldflags.
	// Example: go build -ldflags="-X github.com/postalsys/pingdrop/internal/sysinfo.Version=v1.0.0"
	Version = "dev"

	startTime = time.Now()
)

func init() {
	if Version == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok {
			Version = versionFromSettings(bi.Settings)
		}
	}
}

// Info describes the running binary and host.
type Info struct {
	Version     string
	GoVersion   string
	OS          string
	Arch        string
	Hostname    string
	StartTime   time.Time
	IPAddresses []string
}

// Collect gathers local build and host information.
func Collect() Info {
	hostname, _ := os.Hostname()

	return Info{
		Version:     Version,
		GoVersion:   runtime.Version(),
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		Hostname:    hostname,
		StartTime:   startTime,
		IPAddresses: GetLocalIPs(),
	}
}

// versionFromSettings builds dev-<commit>[-dirty] from VCS build settings,
// or returns "dev" when none are recorded.
func versionFromSettings(settings []debug.BuildSetting) string {
	var revision string
	var modified bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" {
		return "dev"
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	v := "dev-" + revision
	if modified {
		v += "-dirty"
	}
	return v
}

// GetLocalIPs returns non-loopback IPv4 addresses, the ones a sender can
// target.
func GetLocalIPs() []string {
	var ips []string

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ipv4 := ipNet.IP.To4(); ipv4 != nil {
			ips = append(ips, ipv4.String())
		}
	}

	if len(ips) > 10 {
		ips = ips[:10]
	}
	return ips
}

// Uptime returns the time since the process started.
func Uptime() time.Duration {
	return time.Since(startTime)
}
