package hostcheck

import (
	"errors"
	"testing"
)

func TestCheckHost_EmptyAllowListPermitsPublicHosts(t *testing.T) {
	c := New(nil)

	if err := c.CheckHost("api.example.com"); err != nil {
		t.Errorf("expected allowed, got %v", err)
	}
}

func TestCheckHost_AlwaysBlocked(t *testing.T) {
	c := New(nil)

	for _, host := range []string{"metadata.google.internal", "169.254.169.254", "db.prod.internal"} {
		if err := c.CheckHost(host); !errors.Is(err, ErrHostNotAllowed) {
			t.Errorf("%s: expected ErrHostNotAllowed, got %v", host, err)
		}
	}
}

func TestCheckHost_AllowList(t *testing.T) {
	c := New([]string{"Finance-Data", "shop-data"})

	if err := c.CheckHost("finance-data"); err != nil {
		t.Errorf("allow-listed host rejected: %v", err)
	}
	if err := c.CheckHost("FINANCE-DATA"); err != nil {
		t.Errorf("allow-list should be case-insensitive: %v", err)
	}
	if err := c.CheckHost("evil.example.com"); !errors.Is(err, ErrHostNotAllowed) {
		t.Errorf("expected ErrHostNotAllowed, got %v", err)
	}
}

func TestCheckURL(t *testing.T) {
	c := New([]string{"finance-data"})

	if err := c.CheckURL("http://finance-data/api/v1/budget"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := c.CheckURL("http://other-host:8080/x"); !errors.Is(err, ErrHostNotAllowed) {
		t.Errorf("expected ErrHostNotAllowed, got %v", err)
	}
}

func TestCheckHost_Empty(t *testing.T) {
	c := New(nil)
	if err := c.CheckHost(""); !errors.Is(err, ErrHostNotAllowed) {
		t.Errorf("expected ErrHostNotAllowed for empty host, got %v", err)
	}
}
