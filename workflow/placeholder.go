package workflow

import (
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$\{([^{}]+)\}`)

// ResolvePlaceholders replaces ${name} references in step input with values
// from vars. A string that is exactly one placeholder takes the value as-is,
// keeping its type; placeholders embedded in longer strings are formatted
// with %v. Unknown names stay verbatim. Nested maps and slices are walked.
func ResolvePlaceholders(input map[string]any, vars map[string]any) map[string]any {
	if input == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = resolveValue(v, vars)
	}
	return out
}

func resolveValue(v any, vars map[string]any) any {
	switch t := v.(type) {
	case string:
		return resolveString(t, vars)
	case map[string]any:
		return ResolvePlaceholders(t, vars)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = resolveValue(e, vars)
		}
		return out
	default:
		return v
	}
}

func resolveString(s string, vars map[string]any) any {
	if !strings.Contains(s, "${") {
		return s
	}
	if m := placeholderPattern.FindStringSubmatch(s); m != nil && m[0] == s {
		if val, ok := lookupVar(vars, strings.TrimSpace(m[1])); ok {
			return cloneValue(val)
		}
		return s
	}
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimSpace(match[2 : len(match)-1])
		if val, ok := lookupVar(vars, name); ok {
			return fmt.Sprint(val)
		}
		return match
	})
}

// lookupVar 先按完整键查找，再按 a.b.c 路径查找
func lookupVar(vars map[string]any, name string) (any, bool) {
	if v, ok := vars[name]; ok {
		return v, true
	}
	if !strings.Contains(name, ".") {
		return nil, false
	}
	var cur any = vars
	for _, part := range strings.Split(name, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// mergeVars overlays output on input into a fresh map.
func mergeVars(input, output map[string]any) map[string]any {
	vars := make(map[string]any, len(input)+len(output))
	for k, v := range input {
		vars[k] = v
	}
	for k, v := range output {
		vars[k] = v
	}
	return vars
}
