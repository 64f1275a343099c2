package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizedEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"user@example.com", "u***@*******.com"},
		{"a@b.io", "a@*.io"},
		{"not-an-email", "[invalid-email]"},
		{"a@b@c", "[invalid-email]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizedEmail(tt.in), tt.in)
	}
}

func TestSanitizeQueryString(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"", false},
		{"page=2&limit=50", false},
		{"action=account_suspend&riskLevel=high", false},
		{"userEmail=jane%40example.com", true},
		{"access_token=abc", true},
		{"page=1&%zz", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeQueryString(tt.query), tt.query)
	}
}

func TestRedactedAttr(t *testing.T) {
	assert.Equal(t, "[REDACTED]", RedactedAttr("ip", "1.2.3.4", "production").Value.String())
	assert.Equal(t, "1.2.3.4", RedactedAttr("ip", "1.2.3.4", "development").Value.String())
}
