package util

import "testing"

func TestMaskEmail(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"ana@example.com", "a…@e….com"},
		{"A.Lopez@Mail.Example.ORG", "a…@m….example.org"},
		{"x@y.com", "x@y.com"},
		{"", ""},
		{"abc", "***"},
		{"notanemail", "n…l"},
	}
	for _, c := range cases {
		if got := MaskEmail(c.in); got != c.want {
			t.Errorf("MaskEmail(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
