package secret

import "testing"

func TestMask(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"abc", "***"},
		{"abcdef", "a****f"},
		{"eyJhbGciOiJIUzI1NiJ9.payload", "eyJ************************d"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Fatalf("Mask(%q) = %q; want %q", tt.in, got, tt.want)
		}
	}
}
