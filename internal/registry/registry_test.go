package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/api-cache/internal/config"
)

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register("api.twitter.com", Options{
		ExpireIn: 10 * time.Minute,
		KeyName:  "twitter",
		Upstream: "https://api.twitter.com",
	}))

	for _, host := range []string{"api.twitter.com", "API.Twitter.com", "api.twitter.com:443", "api.twitter.com."} {
		policy, ok := r.Lookup(host)
		require.True(t, ok, "lookup %q", host)
		assert.Equal(t, "api.twitter.com", policy.Host)
		assert.Equal(t, 10*time.Minute, policy.ExpireIn)
		assert.Equal(t, "twitter", policy.KeyName)
		assert.Equal(t, "https://api.twitter.com", policy.UpstreamURL.String())
	}

	_, ok := r.Lookup("api.github.com")
	assert.False(t, ok)
	_, ok = r.Lookup("")
	assert.False(t, ok)
}

func TestRegisterValidatesOptions(t *testing.T) {
	r := New()

	err := r.Register("  ", Options{ExpireIn: time.Minute, KeyName: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must provide a host")

	err = r.Register("api.twitter.com", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expire_in, key_name")

	err = r.Register("api.twitter.com", Options{ExpireIn: time.Minute})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "key_name")

	err = r.Register("api.twitter.com", Options{ExpireIn: time.Minute, KeyName: "t", Upstream: "ftp://x"})
	require.Error(t, err)

	assert.Equal(t, 0, r.Len())
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	r := New()
	opts := Options{ExpireIn: time.Minute, KeyName: "twitter"}
	require.NoError(t, r.Register("api.twitter.com", opts))

	err := r.Register("API.TWITTER.COM", opts)
	assert.True(t, errors.Is(err, ErrHostExists), "got %v", err)
	assert.Panics(t, func() { r.MustRegister("api.twitter.com", opts) })
}

func TestListKeepsRegistrationOrder(t *testing.T) {
	r := New()
	assert.Nil(t, r.List())

	r.MustRegister("b.example.com", Options{ExpireIn: time.Minute, KeyName: "b"})
	r.MustRegister("a.example.com", Options{ExpireIn: time.Minute, KeyName: "a"})

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "b.example.com", list[0].Host)
	assert.Equal(t, "a.example.com", list[1].Host)
}

func TestLookupIsSafeForConcurrentReaders(t *testing.T) {
	r := New()
	r.MustRegister("api.twitter.com", Options{ExpireIn: time.Minute, KeyName: "twitter"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, ok := r.Lookup("api.twitter.com"); !ok {
					t.Error("lookup failed")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{CacheTTL: config.Duration(time.Hour)},
		Hosts: []config.HostConfig{
			{Host: "api.twitter.com", Upstream: "https://api.twitter.com", KeyName: "twitter"},
			{Host: "api.github.com", Upstream: "https://api.github.com", KeyName: "github", ExpireIn: config.Duration(time.Minute)},
		},
	}

	r, err := FromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	twitter, ok := r.Lookup("api.twitter.com")
	require.True(t, ok)
	assert.Equal(t, time.Hour, twitter.ExpireIn, "missing ExpireIn falls back to CacheTTL")

	github, ok := r.Lookup("api.github.com")
	require.True(t, ok)
	assert.Equal(t, time.Minute, github.ExpireIn)

	_, err = FromConfig(nil)
	assert.Error(t, err)
}

func TestNormalizeHost(t *testing.T) {
	cases := map[string]string{
		"API.Twitter.com":      "api.twitter.com",
		"api.twitter.com:8443": "api.twitter.com",
		"api.twitter.com.":     "api.twitter.com",
		" api.twitter.com ":    "api.twitter.com",
		"[::1]:5000":           "::1",
		"[::1]":                "::1",
		"::1":                  "::1",
		"":                     "",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeHost(in), "input %q", in)
	}
}
