package valuefix

import (
	"fmt"

	"github.com/dan-strohschein/presto-go-client/internal/typesig"
)

// CoercionError reports a JSON-decoded value that could not be coerced to
// its declared type signature.
type CoercionError struct {
	Signature typesig.Signature
	Value     interface{}
	Cause     error
}

func (e *CoercionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("cannot coerce %v (%T) to %s: %v", e.Value, e.Value, e.Signature.Format(), e.Cause)
	}
	return fmt.Sprintf("cannot coerce %v (%T) to %s", e.Value, e.Value, e.Signature.Format())
}

func (e *CoercionError) Unwrap() error { return e.Cause }

func coercionErr(sig typesig.Signature, v interface{}, cause error) error {
	return &CoercionError{Signature: sig, Value: v, Cause: cause}
}
