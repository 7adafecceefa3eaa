package domain

import (
	"testing"
)

func TestGenerateCacheKey(t *testing.T) {
	cases := []struct {
		name string
		t    RRType
		c    RRClass
		want string
	}{
		{"example.com.", 1, 1, "example.com|1|1"},
		{"FOO.local.", 28, 255, "foo.local|28|255"},
		{"bar", 5, 1, "bar|5|1"},
	}
	for _, tc := range cases {
		got := GenerateCacheKey(tc.name, tc.t, tc.c)
		if got != tc.want {
			t.Errorf("GenerateCacheKey(%q, %d, %d) = %q, want %q", tc.name, tc.t, tc.c, got, tc.want)
		}
	}
}

func TestGenerateCacheKey_CaseInsensitive(t *testing.T) {
	a := GenerateCacheKey("Example.COM", RRTypeA, RRClassIN)
	b := GenerateCacheKey("example.com.", RRTypeA, RRClassIN)
	if a != b {
		t.Errorf("expected case/dot-insensitive keys to match: %q != %q", a, b)
	}
}
