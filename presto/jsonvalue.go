package presto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dan-strohschein/presto-go-client/internal/valuefix"
)

// decodeOrderedValue decodes a single JSON value from raw, representing
// JSON objects as valuefix.OrderedMap rather than Go's order-losing
// map[string]interface{}, so that `map`-typed columns can satisfy
// spec.md §3's insertion-order invariant end to end.
func decodeOrderedValue(raw json.RawMessage) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	return v, nil
}

func decodeValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			return decodeObject(dec)
		case '[':
			return decodeArray(dec)
		default:
			return nil, fmt.Errorf("presto: unexpected JSON delimiter %q", t)
		}
	case json.Number:
		// Keep the original decimal text rather than rounding through
		// float64 here: a bigint near math.MaxInt64 loses precision (or
		// silently rounds) if converted before internal/valuefix.Fix gets
		// to parse it against the column's declared type signature.
		return t.String(), nil
	default:
		// string, bool, nil
		return tok, nil
	}
}

func decodeObject(dec *json.Decoder) (valuefix.OrderedMap, error) {
	var out valuefix.OrderedMap
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("presto: object key is not a string: %v", keyTok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, valuefix.KV{Key: key, Value: val})
	}
	// consume closing '}'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeArray(dec *json.Decoder) ([]interface{}, error) {
	out := []interface{}{}
	for dec.More() {
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	// consume closing ']'
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}
