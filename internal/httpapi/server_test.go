package httpapi

import "testing"

func TestIsValidHTTPURL(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"https://example.com", true},
		{"http://EXAMPLE.com", true},
		{"ftp://x", false},
		{"", false},
		{"https://", false},
	}
	for _, c := range cases {
		if got := isValidHTTPURL(c.in); got != c.want {
			t.Fatalf("isValidHTTPURL(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestNormalizeHTTPURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://EXAMPLE.com/", "https://example.com"},
		{"http://example.com:80", "http://example.com"},
		{"https://example.com:443/", "https://example.com"},
		{"https://example.com:8443/health", "https://example.com:8443/health"},
		{"https://example.com/p/", "https://example.com/p/"},
	}
	for _, c := range cases {
		if got := normalizeHTTPURL(c.in); got != c.want {
			t.Fatalf("normalizeHTTPURL(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestParseDuration_Defaults(t *testing.T) {
	if d, err := parseDuration("interval", "", 0); err == nil {
		t.Fatalf("empty patch duration should fail, got %v", d)
	}
	if d, err := parseDuration("interval", "", 60e9); err != nil || d != 60e9 {
		t.Fatalf("want default, got %v %v", d, err)
	}
	if _, err := parseDuration("timeout", "soon", 0); err == nil {
		t.Fatal("garbage duration should fail")
	}
}
