package app

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"trims", "  Alice  ", 10, "Alice"},
		{"escapes", "<b>", 10, "&lt;b&gt;"},
		{"cuts between runes", "Nguy\u1ec5n V\u0103n", 6, "Nguy\u1ec5n"},
		{"never splits an entity", "ab&cd", 4, "ab"},
		{"entity that fits", "ab&cd", 7, "ab&amp;"},
		{"invalid bytes are replaced", "ok\xff", 10, "ok\ufffd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeString(tt.in, tt.maxLen)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestUserService_SyncKeepsLongNamesValid(t *testing.T) {
	h := newHarness(t)

	name := strings.Repeat("\u00e9", 300)
	u, err := h.users.SyncFromIdentity(context.Background(), "kc-long", "long@example.com", name)
	require.NoError(t, err)

	assert.True(t, utf8.ValidString(u.Name()))
	assert.Equal(t, 255, utf8.RuneCountInString(u.Name()))
}
