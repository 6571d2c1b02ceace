package types

import "strings"

// MaskedValue replaces sensitive values in logged payloads.
const MaskedValue = "***"

var sensitiveKeys = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"api_key",
	"authorization",
	"email",
	"phone",
	"ssn",
	"accountnumber",
	"account_number",
	"creditcard",
	"credit_card",
	"cardnumber",
}

// IsSensitiveKey reports whether a map key names a field that must not be logged in clear.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// MaskSensitive returns a copy of v with sensitive fields replaced by MaskedValue.
// Maps and slices are walked recursively; the input is never mutated.
func MaskSensitive(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = MaskedValue
				continue
			}
			out[k] = MaskSensitive(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = MaskedValue
				continue
			}
			out[k] = val
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = MaskSensitive(val)
		}
		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = MaskSensitive(val)
		}
		return out
	default:
		return v
	}
}

// MaskMap is MaskSensitive specialised for the common payload shape.
func MaskMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return MaskSensitive(m).(map[string]any)
}
