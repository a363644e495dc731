package payos

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Canonical builds the string the gateway signs: non-empty fields of the data object,
// keys ascending, each key and value URL-encoded, joined as key=value with '&'.
func Canonical(data map[string]json.RawMessage) (string, error) {
	keys := make([]string, 0, len(data))
	values := make(map[string]string, len(data))
	for k, raw := range data {
		v, err := scalarString(raw)
		if err != nil {
			return "", fmt.Errorf("payos: canonical field %s: %w", k, err)
		}
		if v == "" {
			continue
		}
		keys = append(keys, k)
		values[k] = v
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(values[k]))
	}
	return b.String(), nil
}

// Sign returns the lowercase hex HMAC-SHA256 of the canonical data string.
func Sign(data map[string]json.RawMessage, checksumKey string) (string, error) {
	canonical, err := Canonical(data)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(checksumKey))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the signature and compares it in constant time.
func Verify(data map[string]json.RawMessage, checksumKey, signature string) (bool, error) {
	expected, err := Sign(data, checksumKey)
	if err != nil {
		return false, err
	}
	given, err := hex.DecodeString(strings.ToLower(strings.TrimSpace(signature)))
	if err != nil {
		return false, nil
	}
	want, _ := hex.DecodeString(expected)
	return hmac.Equal(want, given), nil
}

// scalarString renders a JSON value the way it appears in the canonical string: strings
// unquoted, numbers verbatim, booleans as true/false, null as empty. Objects and arrays
// are rendered as compact JSON.
func scalarString(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '{', '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return "", err
		}
		return buf.String(), nil
	default:
		if !json.Valid(raw) {
			return "", fmt.Errorf("invalid json value %q", raw)
		}
		return string(raw), nil
	}
}
