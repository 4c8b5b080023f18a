package watchproto

// Stable error codes. Admin HTTP responses and watch ERROR frames carry
// these; clients branch on the code, never on the message text.
const (
	E_PROTO_BAD_REQUEST = "E_PROTO_BAD_REQUEST"
	E_BAD_REQUEST       = "E_BAD_REQUEST"
	E_UNKNOWN_STEWARD   = "E_UNKNOWN_STEWARD"
	E_BAD_AMOUNT        = "E_BAD_AMOUNT"
	E_INSUFFICIENT      = "E_INSUFFICIENT"
	E_FORBIDDEN         = "E_FORBIDDEN"
	E_INTERNAL          = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	E_PROTO_BAD_REQUEST: {},
	E_BAD_REQUEST:       {},
	E_UNKNOWN_STEWARD:   {},
	E_BAD_AMOUNT:        {},
	E_INSUFFICIENT:      {},
	E_FORBIDDEN:         {},
	E_INTERNAL:          {},
}

// IsKnownCode reports whether code is a defined error code. The empty
// string is treated as known: it is the "no error" value in records.
func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
