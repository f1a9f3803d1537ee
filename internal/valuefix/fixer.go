// Package valuefix rewrites JSON-decoded Presto/Trino row values into typed
// native Go values, driven by a parsed type signature (spec.md §4.2).
package valuefix

import (
	"encoding/base64"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dan-strohschein/presto-go-client/internal/typesig"
)

// KV is one key/value pair of an OrderedMap.
type KV struct {
	Key   interface{}
	Value interface{}
}

// OrderedMap is an insertion-ordered mapping, used both as the preferred
// input representation for `map`-typed values (so that key order surviving
// the wire is not lost the way a plain Go map would lose it) and as the
// output representation for both `map` and `row` values.
type OrderedMap []KV

// Get returns the value for key and whether it was present.
func (m OrderedMap) Get(key string) (interface{}, bool) {
	for _, kv := range m {
		if s, ok := kv.Key.(string); ok && s == key {
			return kv.Value, true
		}
	}
	return nil, false
}

// Fix rewrites v into a typed native value per sig, recursing through
// array/map/row as needed. Nulls pass through for any signature.
func Fix(sig typesig.Signature, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch sig.Base {
	case typesig.BaseArray:
		return fixArray(sig, v)
	case typesig.BaseMap:
		return fixMap(sig, v)
	case typesig.BaseRow:
		return fixRow(sig, v)
	case "bigint", "integer", "smallint", "tinyint":
		return fixInt(sig, v)
	case "double", "real":
		return fixFloat(sig, v)
	case "boolean":
		return fixBool(sig, v)
	case typesig.BaseDecimal:
		return fixDecimal(sig, v)
	case "varchar", typesig.BaseChar, "json", "time", "time with time zone",
		"timestamp", "timestamp with time zone", "date",
		"interval year to month", "interval day to second":
		return fixString(sig, v)
	default:
		return fixUnknown(sig, v)
	}
}

func fixArray(sig typesig.Signature, v interface{}) (interface{}, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, coercionErr(sig, v, fmt.Errorf("array value must be a JSON list, got %T", v))
	}
	elemSig := sig.Params[0].Type

	out := make([]interface{}, len(list))
	for i, item := range list {
		fixed, err := Fix(elemSig, item)
		if err != nil {
			return nil, err
		}
		out[i] = fixed
	}
	return out, nil
}

func fixMap(sig typesig.Signature, v interface{}) (interface{}, error) {
	keySig := sig.Params[0].Type
	valSig := sig.Params[1].Type

	var pairs OrderedMap
	switch m := v.(type) {
	case OrderedMap:
		pairs = m
	case map[string]interface{}:
		pairs = make(OrderedMap, 0, len(m))
		for k, val := range m {
			pairs = append(pairs, KV{Key: k, Value: val})
		}
	default:
		return nil, coercionErr(sig, v, fmt.Errorf("map value must be a JSON object, got %T", v))
	}

	out := make(OrderedMap, len(pairs))
	for i, kv := range pairs {
		fixedKey, err := Fix(keySig, kv.Key)
		if err != nil {
			return nil, err
		}
		fixedVal, err := Fix(valSig, kv.Value)
		if err != nil {
			return nil, err
		}
		out[i] = KV{Key: fixedKey, Value: fixedVal}
	}
	return out, nil
}

func fixRow(sig typesig.Signature, v interface{}) (interface{}, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, coercionErr(sig, v, fmt.Errorf("row value must be a JSON list, got %T", v))
	}
	if len(list) != len(sig.Params) {
		return nil, coercionErr(sig, v, fmt.Errorf("row has %d fields, value has %d elements", len(sig.Params), len(list)))
	}

	out := make(OrderedMap, len(list))
	for i, param := range sig.Params {
		fixed, err := Fix(param.Type, list[i])
		if err != nil {
			return nil, err
		}
		out[i] = KV{Key: param.Name, Value: fixed}
	}
	return out, nil
}

func fixInt(sig typesig.Signature, v interface{}) (interface{}, error) {
	bits := intBits(sig.Base)

	switch n := v.(type) {
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, bits)
		if err != nil {
			return nil, coercionErr(sig, v, err)
		}
		return parsed, nil
	case float64:
		if n != math.Trunc(n) {
			return nil, coercionErr(sig, v, fmt.Errorf("%v is not an integer", n))
		}
		if !fitsBits(n, bits) {
			return nil, coercionErr(sig, v, fmt.Errorf("%v overflows %s", n, sig.Base))
		}
		return int64(n), nil
	case int64:
		if !fitsBits(float64(n), bits) {
			return nil, coercionErr(sig, v, fmt.Errorf("%v overflows %s", n, sig.Base))
		}
		return n, nil
	case int:
		return fixInt(sig, int64(n))
	default:
		return nil, coercionErr(sig, v, fmt.Errorf("cannot convert %T to %s", v, sig.Base))
	}
}

func intBits(base string) int {
	switch base {
	case "tinyint":
		return 8
	case "smallint":
		return 16
	case "integer":
		return 32
	default: // bigint
		return 64
	}
}

func fitsBits(v float64, bits int) bool {
	max := math.Exp2(float64(bits - 1))
	return v >= -max && v < max
}

func fixFloat(sig typesig.Signature, v interface{}) (interface{}, error) {
	switch n := v.(type) {
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return nil, coercionErr(sig, v, err)
		}
		return parsed, nil
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	case int:
		return float64(n), nil
	default:
		return nil, coercionErr(sig, v, fmt.Errorf("cannot convert %T to %s", v, sig.Base))
	}
}

func fixBool(sig typesig.Signature, v interface{}) (interface{}, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(b) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		default:
			return nil, coercionErr(sig, v, fmt.Errorf("%q is not a boolean literal", b))
		}
	default:
		return nil, coercionErr(sig, v, fmt.Errorf("cannot convert %T to boolean", v))
	}
}

func fixString(sig typesig.Signature, v interface{}) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return nil, coercionErr(sig, v, fmt.Errorf("%s requires a string value, got %T", sig.Base, v))
	}
	return s, nil
}

// fixDecimal validates the decimal is well-formed, then returns it unchanged
// as a string: decimals are string-only on the output side (spec.md §4.2),
// but a malformed value from the server should surface as a CoercionError
// rather than pass through silently.
func fixDecimal(sig typesig.Signature, v interface{}) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return nil, coercionErr(sig, v, fmt.Errorf("decimal requires a string value, got %T", v))
	}
	if _, err := decimal.NewFromString(s); err != nil {
		return nil, coercionErr(sig, v, err)
	}
	return s, nil
}

// fixUnknown handles bases with no declared rule: string inputs are treated
// as base64-encoded bytes, anything else passes through unchanged.
func fixUnknown(sig typesig.Signature, v interface{}) (interface{}, error) {
	s, ok := v.(string)
	if !ok {
		return v, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, coercionErr(sig, v, err)
	}
	return decoded, nil
}
