package inventory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

// KeyField is the business key used by update and delete.
const KeyField = "codigo2"

var (
	ErrNotFound = errors.New("not found")
	ErrBadInput = errors.New("bad input")

	// ErrNotObjects is a replace-all body that is an array but holds
	// something other than objects.
	ErrNotObjects = fmt.Errorf("%w: array of objects expected", ErrBadInput)
)

// Product is an open-ended record. No schema is enforced.
type Product map[string]any

// Collection is the ordered list of products held in the document.
type Collection []Product

// Key returns the textual form of the business key and whether it is present.
func (p Product) Key() (string, bool) {
	v, ok := p[KeyField]
	if !ok {
		return "", false
	}
	return keyText(v), true
}

func keyText(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case json.Number:
		f, err := strconv.ParseFloat(t.String(), 64)
		if err != nil && !math.IsInf(f, 0) {
			return t.String()
		}
		return numberText(f)
	case float64:
		return numberText(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// numberText spells f in its shortest form, using exponent notation only
// below 1e-6 and from 1e21 up. 1.0 and 1e2 are keyed as "1" and "100".
func numberText(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case f == 0:
		return "0"
	}

	if abs := math.Abs(f); abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}

	// 1e-07 -> 1e-7, 1e+21 stays as is
	mant, exp, _ := strings.Cut(strconv.FormatFloat(f, 'e', -1, 64), "e")
	digits := strings.TrimLeft(exp[1:], "0")
	return mant + "e" + exp[:1] + digits
}

func matchesKey(p Product, key string) bool {
	k, ok := p.Key()
	return ok && k == key
}

// Append adds p at the end of c.
func Append(c Collection, p Product) Collection {
	return append(c, p)
}

// ReplaceByKey merges partial into the first product whose key equals key.
// Fields in partial overwrite existing ones; other fields are kept.
func ReplaceByKey(c Collection, key string, partial Product) (Collection, Product, bool) {
	idx := slices.IndexFunc(c, func(p Product) bool { return matchesKey(p, key) })
	if idx == -1 {
		return c, nil, false
	}

	merged := make(Product, len(c[idx])+len(partial))
	for k, v := range c[idx] {
		merged[k] = v
	}
	for k, v := range partial {
		merged[k] = v
	}

	out := slices.Clone(c)
	out[idx] = merged
	return out, merged, true
}

// RemoveByKey drops every product whose key equals key. Unlike ReplaceByKey
// it does not stop at the first match.
func RemoveByKey(c Collection, key string) (Collection, int) {
	before := len(c)
	out := slices.DeleteFunc(slices.Clone(c), func(p Product) bool { return matchesKey(p, key) })
	if out == nil {
		out = Collection{}
	}
	return out, before - len(out)
}

// DecodeProduct parses a single JSON object.
func DecodeProduct(raw []byte) (Product, error) {
	if firstByte(raw) != '{' {
		return nil, fmt.Errorf("%w: object expected", ErrBadInput)
	}
	var p Product
	if err := decodeJSON(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
	}
	return p, nil
}

// DecodeCollection parses the body of a replace-all request.
func DecodeCollection(raw []byte) (Collection, error) {
	if firstByte(raw) != '[' {
		return nil, fmt.Errorf("%w: array expected", ErrBadInput)
	}
	var items []any
	if err := decodeJSON(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadInput, err)
	}

	c := make(Collection, 0, len(items))
	for i, item := range items {
		p, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: element %d is %s", ErrNotObjects, i, jsonKind(item))
		}
		c = append(c, Product(p))
	}
	return c, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "a boolean"
	case json.Number:
		return "a number"
	case string:
		return "a string"
	case []any:
		return "an array"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func decodeJSON(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("extra data after json value")
	}
	return nil
}

func firstByte(raw []byte) byte {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0
	}
	return raw[0]
}
