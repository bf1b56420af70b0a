package util

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/oliveagle/jsonpath"
)

var tokenPattern = regexp.MustCompile(`{(.*?)}`)

// ResolveConfig substitutes {$.path} placeholders in a task config with
// values looked up from the run data (subject payload plus request payload).
// Non-string values and strings without placeholders pass through untouched.
func ResolveConfig(data map[string]any, config map[string]any) map[string]any {
	output := make(map[string]any)
	resolveMap(data, config, output)
	return output
}

func resolveMap(data map[string]any, params map[string]any, output map[string]any) {
	for k, v := range params {
		switch val := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			output[k] = out
			resolveMap(data, val, out)
		case []any:
			output[k] = resolveList(data, val)
		case string:
			output[k] = resolveString(data, val)
		default:
			output[k] = v
		}
	}
}

func resolveList(data map[string]any, list []any) []any {
	output := make([]any, 0, len(list))
	for _, v := range list {
		switch val := v.(type) {
		case map[string]any:
			out := make(map[string]any)
			resolveMap(data, val, out)
			output = append(output, out)
		case []any:
			output = append(output, resolveList(data, val))
		case string:
			output = append(output, resolveString(data, val))
		default:
			output = append(output, v)
		}
	}
	return output
}

func resolveString(data map[string]any, s string) any {
	tokens := tokenPattern.FindAllString(s, -1)
	if len(tokens) == 0 {
		return s
	}
	// A value that is exactly one placeholder keeps the looked-up type.
	if len(tokens) == 1 && tokens[0] == s {
		expr := strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
		if strings.HasPrefix(expr, "$") {
			value, err := jsonpath.JsonPathLookup(data, expr)
			if err == nil {
				return value
			}
		}
		return s
	}
	newStr := s
	for _, token := range tokens {
		expr := strings.TrimSuffix(strings.TrimPrefix(token, "{"), "}")
		if !strings.HasPrefix(expr, "$") {
			continue
		}
		value, err := jsonpath.JsonPathLookup(data, expr)
		if err != nil {
			continue
		}
		newStr = strings.ReplaceAll(newStr, token, fmt.Sprintf("%v", value))
	}
	return newStr
}
