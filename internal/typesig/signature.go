// Package typesig parses Presto/Trino type signature strings such as
// "array(map(varchar,bigint))" or "row(\"a\" bigint,\"b\" varchar)" into a
// recursive tree, and renders that tree back to canonical text.
package typesig

import (
	"strconv"
	"strings"
)

// Base names that carry special parameter-kind rules.
const (
	BaseRow     = "row"
	BaseArray   = "array"
	BaseMap     = "map"
	BaseVarchar = "varchar"
	BaseChar    = "char"
	BaseDecimal = "decimal"
)

// Signature is a parsed type signature. A signature with no Params is a
// scalar type (e.g. "bigint"); one with Params is parameterized (e.g.
// "array(bigint)" or "row(\"a\" bigint)").
type Signature struct {
	Base   string
	Params []Parameter
}

// Parameter is one element of a parameterized signature's parameter list.
// Exactly one of the accessor-relevant fields is meaningful, selected by
// Kind.
type Parameter struct {
	Kind ParameterKind

	// Type is set when Kind is ParamType or ParamNamedType.
	Type Signature

	// Name is set when Kind is ParamNamedType (the row field name) or
	// ParamVariable (the type variable name).
	Name string

	// Long is set when Kind is ParamLong.
	Long int64
}

// ParameterKind discriminates the variants of Parameter.
type ParameterKind int

const (
	// ParamType is a bare nested signature, used by array/map element types.
	ParamType ParameterKind = iota
	// ParamNamedType is a quoted-name-prefixed signature, used by row fields.
	ParamNamedType
	// ParamLong is an integer literal, e.g. varchar(255).
	ParamLong
	// ParamVariable is an unresolved type variable name.
	ParamVariable
)

// IsScalar reports whether sig carries no parameters.
func (s Signature) IsScalar() bool {
	return len(s.Params) == 0
}

// Format renders sig back to canonical Presto type-signature text. For a
// signature produced by Parse with no redundant whitespace, Format(Parse(s))
// == s.
func (s Signature) Format() string {
	if s.IsScalar() {
		return s.Base
	}

	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.format()
	}
	var b strings.Builder
	b.WriteString(s.Base)
	b.WriteByte('(')
	b.WriteString(strings.Join(parts, ","))
	b.WriteByte(')')
	return b.String()
}

func (p Parameter) format() string {
	switch p.Kind {
	case ParamNamedType:
		return `"` + p.Name + `" ` + p.Type.Format()
	case ParamLong:
		return strconv.FormatInt(p.Long, 10)
	case ParamVariable:
		return p.Name
	default: // ParamType
		return p.Type.Format()
	}
}
