package suite

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Params maps placeholder names to explicit values.
type Params map[string]any

var placeholderRegex = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Placeholders lists the distinct placeholder names of a template in order of first use.
func Placeholders(template string) []string {
	seen := make(map[string]bool)
	var names []string

	matches := placeholderRegex.FindAllStringSubmatch(template, -1)
	for _, m := range matches {
		if len(m) > 1 && !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}

	return names
}

// render substitutes every placeholder whose value is known and returns the
// names left unresolved.
func render(template string, values map[string]any) (string, []string) {
	result := placeholderRegex.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderRegex.FindStringSubmatch(match)[1]
		if val, ok := values[key]; ok {
			return formatValue(val)
		}
		return match
	})

	return result, findMissingPlaceholders(result)
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case fmt.Stringer:
		return val.String()
	case []string:
		return strings.Join(val, ", ")
	case []any:
		strs := make([]string, len(val))
		for i, item := range val {
			strs[i] = formatValue(item)
		}
		return strings.Join(strs, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func findMissingPlaceholders(s string) []string {
	matches := placeholderRegex.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var missing []string
	for _, m := range matches {
		if len(m) > 1 && !seen[m[1]] {
			seen[m[1]] = true
			missing = append(missing, m[1])
		}
	}
	return missing
}
