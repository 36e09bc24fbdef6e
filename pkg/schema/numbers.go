package schema

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// maxExactInt is the largest integer magnitude a float64 holds exactly.
const maxExactInt = 1 << 53

// UnmarshalJSON decodes data into v without rounding large integers. Numbers
// become float64 where that is lossless; integers beyond 2^53 stay
// json.Number so they encode back with every digit.
func UnmarshalJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	switch t := v.(type) {
	case *map[string]any:
		*t = ExactNumbers(*t).(map[string]any)
	case *[]any:
		*t = ExactNumbers(*t).([]any)
	case *any:
		*t = ExactNumbers(*t)
	case *FieldList:
		for i := range *t {
			f := &(*t)[i]
			f.Default = ExactNumbers(f.Default)
			for j, a := range f.AllowedValues {
				f.AllowedValues[j] = ExactNumbers(a)
			}
		}
	}
	return nil
}

// ExactNumbers walks a decoded JSON value and replaces each json.Number with
// a float64 unless the conversion would change its value.
func ExactNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		return exactNumber(t)
	case []any:
		for i, e := range t {
			t[i] = ExactNumbers(e)
		}
		return t
	case map[string]any:
		for k, e := range t {
			t[k] = ExactNumbers(e)
		}
		return t
	}
	return v
}

func exactNumber(n json.Number) any {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil || i > maxExactInt || i < -maxExactInt {
			return n
		}
		return float64(i)
	}
	f, err := n.Float64()
	if err != nil {
		return n
	}
	return f
}
