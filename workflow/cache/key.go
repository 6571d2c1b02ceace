package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// KeyPrefix namespaces decision cache keys.
const KeyPrefix = "decision"

// GenerateKey derives a deterministic cache key for a decision call.
// Parameter order never affects the key.
func GenerateKey(service, method string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+canonical(params[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%s:%s:%s:%s", KeyPrefix, service, method, hex.EncodeToString(sum[:16]))
}

// canonical renders v as JSON; encoding/json sorts map keys, so nested maps
// are order independent too.
func canonical(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
