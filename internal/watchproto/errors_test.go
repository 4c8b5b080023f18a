package watchproto

import "testing"

func TestIsKnownCode(t *testing.T) {
	cases := []struct {
		code string
		want bool
	}{
		{"", true},
		{E_PROTO_BAD_REQUEST, true},
		{E_BAD_REQUEST, true},
		{E_UNKNOWN_STEWARD, true},
		{E_BAD_AMOUNT, true},
		{E_INSUFFICIENT, true},
		{E_FORBIDDEN, true},
		{E_INTERNAL, true},
		{"E_NOT_DEFINED", false},
		{"e_bad_amount", false},
	}
	for _, c := range cases {
		if got := IsKnownCode(c.code); got != c.want {
			t.Errorf("IsKnownCode(%q) = %v, want %v", c.code, got, c.want)
		}
	}
}
