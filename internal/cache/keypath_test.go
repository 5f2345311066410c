package cache

import "testing"

func TestKeyPathMapping(t *testing.T) {
	testCases := []struct {
		name string
		key  string
		want string
	}{
		{"query", "http://api.twitter.com/1/statuses/user_timeline.json?count=2&screen_name=foo", "api.twitter.com/1/statuses/user_timeline.json_count_2_screen_name_foo"},
		{"no query", "http://api.example.com/v1/items", "api.example.com/v1/items"},
		{"fragment", "http://h/a/b/c#frag", "h/a/b/c_frag"},
		{"query and fragment", "http://h/p?a=1#top", "h/p_a_1_top"},
		{"empty query marker", "http://h/p?", "h/p_"},
		{"host only", "http://h", "h/%root"},
		{"host with query", "http://h?q=1", "h/_q_1"},
		{"quotes and spaces", "http://h/p?q=a%20b,c%22d%22", "h/p_q_a-b-cd"},
		{"slash in query", "http://h/p?u=/x/y", "h/p_u_%2Fx%2Fy"},
		{"relative", "plain/key", "plain/key"},
		{"bare word", "token", "token"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := keyPath(tc.key)
			if err != nil {
				t.Fatalf("keyPath(%q) error: %v", tc.key, err)
			}
			if got != tc.want {
				t.Fatalf("keyPath(%q) = %q, want %q", tc.key, got, tc.want)
			}
		})
	}
}

func TestKeyPathDistinguishesQueries(t *testing.T) {
	a, err := keyPath("http://h/p?a=1&b=2")
	if err != nil {
		t.Fatalf("keyPath error: %v", err)
	}
	b, err := keyPath("http://h/p?a=1&b=3")
	if err != nil {
		t.Fatalf("keyPath error: %v", err)
	}
	if a == b {
		t.Fatalf("distinct queries mapped to the same path %q", a)
	}
}

func TestSanitizeFilename(t *testing.T) {
	if got := sanitizeFilename(`a?b#c=d&e%22f%20g,h`); got != "a_b_c_d_ef-g-h" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
}
