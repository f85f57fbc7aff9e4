// Package hostcheck restricts which hosts outbound tool calls may reach.
package hostcheck

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrHostNotAllowed indicates an outbound host failed the allow-list check.
var ErrHostNotAllowed = errors.New("host not allowed")

// blockedHostnames contains hostnames that are always blocked, even when no
// allow-list is configured.
var blockedHostnames = map[string]bool{
	"metadata.google.internal": true,
	"169.254.169.254":          true,
}

// dangerousSuffixes contains hostname suffixes that indicate internal resources.
var dangerousSuffixes = []string{
	".internal",
}

// Checker validates outbound hosts against a configured allow-list.
// An empty allow-list permits every host except the always-blocked set.
type Checker struct {
	allowed map[string]bool
}

// New creates a checker from the configured allow-list. Hostnames are
// compared case-insensitively.
func New(allowedHosts []string) *Checker {
	c := &Checker{}
	if len(allowedHosts) > 0 {
		c.allowed = make(map[string]bool, len(allowedHosts))
		for _, h := range allowedHosts {
			c.allowed[normalize(h)] = true
		}
	}
	return c
}

// CheckURL validates the host of a rendered tool URL.
func (c *Checker) CheckURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	return c.CheckHost(u.Hostname())
}

// CheckHost validates a bare hostname.
func (c *Checker) CheckHost(hostname string) error {
	host := normalize(hostname)
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrHostNotAllowed)
	}

	if blockedHostnames[host] {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	for _, suffix := range dangerousSuffixes {
		if strings.HasSuffix(host, suffix) {
			return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
		}
	}

	if c.allowed != nil && !c.allowed[host] {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	return nil
}

func normalize(hostname string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(hostname), "."))
}
