package validate

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ValidationError represents a single validation error with context.
type ValidationError struct {
	Path    string // e.g., "nameservice.retry_intervals[2]"
	Message string // e.g., "must be positive"
	Hint    string // e.g., "use a Go duration such as 6s"
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s; %s", e.Path, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidateDirWritable validates that a directory exists and is writable.
func ValidateDirWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot access directory: %v", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory")
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte(""), 0644); err != nil {
		return fmt.Errorf("directory not writable: %v", err)
	}
	os.Remove(testFile)

	return nil
}

// ValidateHostPort validates a host:port address. An empty host means all
// addresses; IPv6 hosts must be bracketed.
func ValidateHostPort(hostPort string) error {
	_, port, err := net.SplitHostPort(hostPort)
	if err != nil {
		return fmt.Errorf("expected format host:port")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be a number between 1 and 65535; got %q", port)
	}

	return nil
}

// ValidatePort validates that a port number is in the valid range.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535; got %d", port)
	}
	return nil
}

// ValidateInterfaceMatch accepts "*", an IP literal, or an interface name.
func ValidateInterfaceMatch(match string) error {
	if match == "" {
		return fmt.Errorf("must not be empty")
	}
	if match == "*" || net.ParseIP(match) != nil {
		return nil
	}
	if strings.ContainsAny(match, " /\t") {
		return fmt.Errorf("%q is neither an interface name nor an IP address", match)
	}
	// IFNAMSIZ minus the terminator
	if len(match) > 15 {
		return fmt.Errorf("interface name %q longer than 15 bytes", match)
	}
	return nil
}

// ValidateRange checks lo <= v <= hi.
func ValidateRange(v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("must be between %d and %d; got %d", lo, hi, v)
	}
	return nil
}
