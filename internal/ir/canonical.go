package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical encodes v as RFC 8785 style canonical JSON. It is the
// only encoding state digests may be computed over.
//
// Compared with json.Marshal the output differs in four ways: object keys
// are ordered by UTF-16 code units, strings are NFC normalized, only
// quote, backslash and control characters are escaped, and floats take
// their shortest round-trip form (NaN and Inf are errors).
func MarshalCanonical(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal canonical: %w", err)
	}
	return Canonicalize(raw)
}

// Canonicalize re-encodes a single JSON document in canonical form.
func Canonicalize(data []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	if dec.More() {
		return nil, errors.New("canonicalize: trailing data after JSON value")
	}

	var e canonicalEncoder
	if err := e.value(tree); err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}
	return e.Bytes(), nil
}

type canonicalEncoder struct {
	bytes.Buffer
}

func (e *canonicalEncoder) value(v any) error {
	switch val := v.(type) {
	case nil:
		e.WriteString("null")
	case bool:
		e.WriteString(strconv.FormatBool(val))
	case string:
		e.str(val)
	case json.Number:
		n, err := canonicalNumber(val)
		if err != nil {
			return err
		}
		e.WriteString(n)
	case []any:
		e.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				e.WriteByte(',')
			}
			if err := e.value(elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		e.WriteByte(']')
	case map[string]any:
		return e.object(val)
	default:
		return fmt.Errorf("unsupported type %T", v)
	}
	return nil
}

func (e *canonicalEncoder) object(m map[string]any) error {
	// Keys are compared after normalization so that the order matches
	// the emitted text.
	type entry struct {
		key string
		val any
	}
	entries := make([]entry, 0, len(m))
	for k, v := range m {
		entries = append(entries, entry{norm.NFC.String(k), v})
	}
	slices.SortFunc(entries, func(a, b entry) int { return compareUTF16(a.key, b.key) })

	e.WriteByte('{')
	for i, en := range entries {
		if i > 0 {
			e.WriteByte(',')
		}
		e.str(en.key)
		e.WriteByte(':')
		if err := e.value(en.val); err != nil {
			return fmt.Errorf("%q: %w", en.key, err)
		}
	}
	e.WriteByte('}')
	return nil
}

const hexDigits = "0123456789abcdef"

// str writes s NFC normalized and quoted. Everything at or above U+0020
// other than quote and backslash is written literally, U+2028 and U+2029
// included.
func (e *canonicalEncoder) str(s string) {
	s = norm.NFC.String(s)
	e.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			e.WriteByte('\\')
			e.WriteByte(c)
		case c >= 0x20:
			e.WriteByte(c)
		case c == '\b':
			e.WriteString(`\b`)
		case c == '\f':
			e.WriteString(`\f`)
		case c == '\n':
			e.WriteString(`\n`)
		case c == '\r':
			e.WriteString(`\r`)
		case c == '\t':
			e.WriteString(`\t`)
		default:
			e.WriteString(`\u00`)
			e.WriteByte(hexDigits[c>>4])
			e.WriteByte(hexDigits[c&0xf])
		}
	}
	e.WriteByte('"')
}

// canonicalNumber keeps integer literals as written and reformats
// everything else through float64.
func canonicalNumber(n json.Number) (string, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if _, err := n.Int64(); err == nil {
			return s, nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return "", fmt.Errorf("invalid number %q: %w", s, err)
	}
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return "", fmt.Errorf("non-finite number %q", s)
	case f == math.Trunc(f) && math.Abs(f) < 1e21:
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	default:
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
}

// compareUTF16 orders strings by UTF-16 code units, which differs from
// Go's byte order for characters outside the BMP.
func compareUTF16(a, b string) int {
	return slices.Compare(utf16.Encode([]rune(a)), utf16.Encode([]rune(b)))
}
