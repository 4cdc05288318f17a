package event

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// object is a JSON object with exact-key lookups.
// encoding/json struct decoding matches keys case-insensitively, which
// breaks letter-coded payloads where "p" and "P" are different fields.
type object map[string]json.RawMessage

var null = []byte("null")

func (o object) raw(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := o[k]; ok && len(v) > 0 && !bytes.Equal(v, null) {
			return v, true
		}
	}
	return nil, false
}

// str returns the first present key as text. Numbers and booleans are
// returned verbatim; objects and arrays are ignored.
func (o object) str(keys ...string) string {
	for _, k := range keys {
		v, ok := o.raw(k)
		if !ok {
			continue
		}
		if s, ok := scalarText(v); ok && s != "" {
			return s
		}
	}
	return ""
}

func (o object) decimal(keys ...string) (decimal.Decimal, bool) {
	s := o.str(keys...)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func (o object) decimalOrZero(keys ...string) decimal.Decimal {
	d, _ := o.decimal(keys...)
	return d
}

// float returns a finite float.
func (o object) float(keys ...string) (float64, bool) {
	s := o.str(keys...)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func (o object) int64(keys ...string) (int64, bool) {
	if n, err := strconv.ParseInt(o.str(keys...), 10, 64); err == nil {
		return n, true
	}
	f, ok := o.float(keys...)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func (o object) boolean(keys ...string) (value bool, ok bool) {
	switch strings.ToLower(o.str(keys...)) {
	case "true":
		return true, true
	case "false":
		return false, true
	default:
		return false, false
	}
}

func scalarText(v json.RawMessage) (string, bool) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 {
		return "", false
	}
	switch v[0] {
	case '"':
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	case '{', '[':
		return "", false
	default:
		return string(v), true
	}
}

// objects accepts either an array of objects or a single object.
// Array elements that are not objects are skipped.
func objects(raw json.RawMessage) []object {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		out := make([]object, 0, len(items))
		for _, it := range items {
			var o object
			if json.Unmarshal(it, &o) == nil && o != nil {
				out = append(out, o)
			}
		}
		return out
	case '{':
		var o object
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil
		}
		return []object{o}
	default:
		return nil
	}
}
