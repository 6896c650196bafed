package pubsub

import (
	"testing"

	"github.com/angelmondragon/pullstream-backend/pkg/config"
)

func TestResourceName(t *testing.T) {
	cases := []struct {
		project, kind, name, want string
	}{
		{"proj", "topics", "ps-gig-events", "projects/proj/topics/ps-gig-events"},
		{"proj", "topics", " projects/other/topics/x ", "projects/other/topics/x"},
		{"proj", "subscriptions", "audit", "projects/proj/subscriptions/audit"},
		{"", "topics", "ps-gig-events", ""},
		{"proj", "topics", "  ", ""},
	}
	for _, tc := range cases {
		if got := resourceName(tc.project, tc.kind, tc.name); got != tc.want {
			t.Fatalf("resourceName(%q,%q,%q) = %q want %q", tc.project, tc.kind, tc.name, got, tc.want)
		}
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	if c.Publisher("x") != nil {
		t.Fatalf("nil client should not return a publisher")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("nil close should be a no-op: %v", err)
	}
}

func TestClientOptionsPrecedence(t *testing.T) {
	if got := clientOptions(config.GCPConfig{}); len(got) != 0 {
		t.Fatalf("expected no options without credentials, got %d", len(got))
	}
	if got := clientOptions(config.GCPConfig{CredentialsJSON: `{"type":"service_account"}`, ApplicationCredentials: "/tmp/key.json"}); len(got) != 1 {
		t.Fatalf("expected exactly one credentials option, got %d", len(got))
	}
	if got := clientOptions(config.GCPConfig{ApplicationCredentials: "/tmp/key.json"}); len(got) != 1 {
		t.Fatalf("expected key file option, got %d", len(got))
	}
}
