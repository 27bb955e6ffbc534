// Package converters turns raw JSON values from a product dump into the
// typed values stored on a product.
package converters

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ValueConverter converts one raw JSON value. A nil result means NULL.
type ValueConverter func(raw json.RawMessage) (interface{}, error)

var errNotNumeric = errors.New("value is not numeric")

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// SanitizeText trims, drops control characters and NFC-normalizes s.
func SanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return norm.NFC.String(strings.TrimSpace(s))
}

// StringConverter accepts strings and numbers; empty text is NULL.
func StringConverter(raw json.RawMessage) (interface{}, error) {
	if isNull(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n json.Number
		if numErr := json.Unmarshal(raw, &n); numErr != nil {
			return nil, fmt.Errorf("expected string: %w", err)
		}
		s = n.String()
	}
	s = SanitizeText(s)
	if s == "" {
		return nil, nil
	}
	return s, nil
}

// IntConverter accepts JSON numbers and numeric strings. Fractions are
// truncated toward zero.
func IntConverter(raw json.RawMessage) (interface{}, error) {
	if isNull(raw) {
		return nil, nil
	}
	f, err := parseNumber(raw)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, nil
	}
	if *f > math.MaxInt32 || *f < math.MinInt32 {
		return nil, fmt.Errorf("value %v out of integer range", *f)
	}
	return int(*f), nil
}

// EpochConverter reads a Unix timestamp in seconds encoded as an integer or
// a numeric string. Zero is treated as absent.
func EpochConverter(raw json.RawMessage) (interface{}, error) {
	if isNull(raw) {
		return nil, nil
	}
	f, err := parseNumber(raw)
	if err != nil {
		return nil, err
	}
	if f == nil || *f == 0 {
		return nil, nil
	}
	return int64(*f), nil
}

// TagsConverter accepts an array of strings. Non-string and empty entries
// are dropped; an empty array stays an empty (not NULL) list.
func TagsConverter(raw json.RawMessage) (interface{}, error) {
	if isNull(raw) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("expected array: %w", err)
	}
	tags := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			continue
		}
		if s = SanitizeText(s); s != "" {
			tags = append(tags, s)
		}
	}
	return tags, nil
}

func parseNumber(raw json.RawMessage) (*float64, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, nil
		}
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, errNotNumeric
		}
		text = n.String()
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %q", errNotNumeric, text)
	}
	return &f, nil
}
