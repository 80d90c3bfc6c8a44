// Package metadata converts typed records to and from the flat string maps
// blob stores keep as object metadata.
package metadata

import (
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const base64Prefix = "base64_"

// Record is a typed metadata record keyed by PascalCase names. Values are
// string, time.Time, int64 or float64; views may nest a Record. Encode also
// takes int, which Decode returns as int64, so only records built from the
// decoded types survive a round trip unchanged.
type Record map[string]any

// Encode flattens r into snake_case string pairs
func Encode(r Record) (map[string]string, error) {
	out := make(map[string]string, len(r))
	for _, key := range sortedKeys(r) {
		snake, err := storageKey(key)
		if err != nil {
			return nil, err
		}
		value := r[key]

		switch v := value.(type) {
		case string:
			if needsBase64(v) {
				out[base64Prefix+snake] = base64.StdEncoding.EncodeToString([]byte(v))
			} else {
				out[snake] = v
			}
		case time.Time:
			out[snake] = v.UTC().Format(time.RFC3339Nano)
		case int:
			out[snake] = strconv.Itoa(v)
		case int64:
			out[snake] = strconv.FormatInt(v, 10)
		case float64:
			s, err := formatFloat(v)
			if err != nil {
				return nil, fmt.Errorf("metadata key %s: %w", key, err)
			}
			out[snake] = s
		default:
			return nil, fmt.Errorf("metadata key %s: unsupported value type %T", key, value)
		}
	}
	return out, nil
}

// Decode rebuilds a Record from stored pairs
func Decode(m map[string]string) (Record, error) {
	r := make(Record, len(m))
	for key, raw := range m {
		var name string
		var value any

		if strings.HasPrefix(key, base64Prefix) {
			decoded, err := base64.StdEncoding.DecodeString(raw)
			if err != nil {
				return nil, fmt.Errorf("metadata key %s: invalid base64: %w", key, err)
			}
			name = pascalCase(strings.TrimPrefix(key, base64Prefix))
			value = string(decoded)
		} else {
			name = pascalCase(key)
			value = decodeScalar(raw)
		}

		if _, dup := r[name]; dup {
			return nil, fmt.Errorf("metadata key %s is stored twice", name)
		}
		r[name] = value
	}
	return r, nil
}

func decodeScalar(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return s
}

// needsBase64 reports whether s must be stored encoded to read back as the
// same string.
func needsBase64(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > unicode.MaxASCII {
			return true
		}
	}
	_, isString := decodeScalar(s).(string)
	return !isString
}

func formatFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite float %v", f)
	}
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		s += ".0"
	}
	return s, nil
}

// storageKey maps a PascalCase key to snake_case, rejecting keys that would
// not map back to themselves.
func storageKey(key string) (string, error) {
	for i := 0; i < len(key); i++ {
		c := key[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return "", fmt.Errorf("metadata key %q must be ASCII letters and digits", key)
		}
	}
	snake := snakeCase(key)
	if strings.HasPrefix(snake, base64Prefix) {
		return "", fmt.Errorf("metadata key %s collides with the encoded-string prefix", key)
	}
	if key == "" || pascalCase(snake) != key {
		return "", fmt.Errorf("metadata key %q is not PascalCase", key)
	}
	return snake, nil
}

func snakeCase(s string) string {
	var sb strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func pascalCase(s string) string {
	var sb strings.Builder
	for _, part := range strings.Split(s, "_") {
		if part == "" {
			continue
		}
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		sb.WriteString(string(runes))
	}
	return sb.String()
}

func sortedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
