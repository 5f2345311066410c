package cachekey

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"sorted query", "http://h/p?b=2&a=1", "http://h/p?a=1&b=2"},
		{"scheme case", "HTTP://h/p?a=1&b=2", "http://h/p?a=1&b=2"},
		{"host case", "https://API.Example.com/v1", "https://api.example.com/v1"},
		{"trailing slash", "http://h/p/", "http://h/p"},
		{"root slash", "http://h/", "http://h"},
		{"empty query dropped", "http://h/p?", "http://h/p"},
		{"raw substrings", "http://h/p?q=a%20b&a=z", "http://h/p?a=z&q=a%20b"},
		{"fragment kept", "http://h/p?b=1&a=2#frag", "http://h/p?a=2&b=1#frag"},
		{"port kept", "http://h:8080/p/", "http://h:8080/p"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			again, err := Normalize(got)
			require.NoError(t, err)
			assert.Equal(t, got, again, "normalize must be idempotent")
		})
	}
}

func TestNormalizeIsOrderInsensitive(t *testing.T) {
	a, err := Normalize("http://h/p?b=2&a=1")
	require.NoError(t, err)
	b, err := Normalize("HTTP://h/p?a=1&b=2")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeIdempotentOnRepeatedSlashes(t *testing.T) {
	once, err := Normalize("http://h/p//")
	require.NoError(t, err)
	twice, err := Normalize(once)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestNormalizeKeepsEscapedSlash(t *testing.T) {
	got, err := Normalize("http://h/a%2Fb/")
	require.NoError(t, err)
	assert.Equal(t, "http://h/a%2Fb", got)
}

func TestHashIsStable(t *testing.T) {
	first := Hash("http://h/p?a=1")
	second := Hash("http://h/p?a=1")
	other := Hash("http://h/p?a=2")

	assert.Equal(t, first, second)
	assert.NotEqual(t, first, other)
	require.NoError(t, first.Validate())
	assert.Len(t, first.Encoded(), 64)
}

func TestFromRequest(t *testing.T) {
	req := httptest.NewRequest("GET", "http://API.example.com:8443/v1/items/?z=1&a=2", nil)

	key, err := FromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, "http://api.example.com:8443/v1/items?a=2&z=1", key.URI)
	assert.Equal(t, "api.example.com", key.Host)
	assert.Equal(t, Hash(key.URI), key.Hash)
	assert.Equal(t, key.Hash.Encoded(), key.Member())
}

func TestFromStringRejectsRelative(t *testing.T) {
	_, err := FromString("/v1/items")
	require.ErrorIs(t, err, ErrUnsupportedURI)
}
