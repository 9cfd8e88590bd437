package common

import (
	"fmt"
	"net/url"
	"strings"
)

// HostOf extracts the host (without port) from an address that may or
// may not carry a scheme.
func HostOf(address string) (string, error) {
	raw := address
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", address, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid address %q: no host", address)
	}
	return u.Hostname(), nil
}

// JoinURL concatenates a base address and a path, normalizing slashes.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
