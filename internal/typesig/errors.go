package typesig

import "fmt"

// InvalidSignatureError reports a malformed type signature string: unbalanced
// parentheses, trailing input, or a parameter-kind mismatch for a base with
// known parameter rules (row/array/map).
type InvalidSignatureError struct {
	Raw    string
	Reason string
}

func (e *InvalidSignatureError) Error() string {
	return fmt.Sprintf("invalid type signature %q: %s", e.Raw, e.Reason)
}

var (
	errNotAllNamed = fmt.Errorf("row parameters must all be named fields")
	errArrayArity  = fmt.Errorf("array takes exactly one type parameter")
	errMapArity    = fmt.Errorf("map takes exactly two type parameters")
)
