package entity

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{
			name: "https feed",
			url:  "https://example.com/feed.xml",
		},
		{
			name: "http feed",
			url:  "http://example.com/rss",
		},
		{
			name: "explicit port",
			url:  "https://example.com:8080/atom.xml",
		},
		{
			name: "query and fragment",
			url:  "https://example.com/feed?format=rss&lang=ja#latest",
		},
		{
			name:    "empty",
			url:     "",
			wantErr: true,
		},
		{
			name:    "ftp scheme",
			url:     "ftp://example.com/feed.xml",
			wantErr: true,
		},
		{
			name:    "file scheme",
			url:     "file:///etc/passwd",
			wantErr: true,
		},
		{
			name:    "javascript scheme",
			url:     "javascript:alert(1)",
			wantErr: true,
		},
		{
			name:    "scheme only",
			url:     "https://",
			wantErr: true,
		},
		{
			name:    "bare host without scheme",
			url:     "example.com/feed.xml",
			wantErr: true,
		},
		{
			name:    "malformed",
			url:     "ht!tp://example.com",
			wantErr: true,
		},
		{
			name:    "over length cap",
			url:     "https://example.com/" + strings.Repeat("a", maxURLLength),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateURL_ReturnsValidationError(t *testing.T) {
	for _, raw := range []string{
		"",
		"ftp://example.com/feed.xml",
		"https://",
		"https://example.com/" + strings.Repeat("a", maxURLLength),
	} {
		err := ValidateURL(raw)
		require.Error(t, err, "url %q", raw)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "url %q: got %T", raw, err)
		assert.Equal(t, "url", verr.Field)
	}
}

func TestValidateURL_AcceptsUnresolvableHosts(t *testing.T) {
	// Validation is syntactic only. Hosts that do not resolve, or resolve
	// to private addresses, are rejected at fetch time instead, so a stored
	// feed whose DNS flaps does not fail writes.
	assert.NoError(t, ValidateURL("http://feed.internal.invalid/rss"))
	assert.NoError(t, ValidateURL("http://10.0.0.1/feed.xml"))
}
