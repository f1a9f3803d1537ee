package valuefix

import (
	"reflect"
	"testing"

	"github.com/dan-strohschein/presto-go-client/internal/typesig"
)

func mustParse(t *testing.T, raw string) typesig.Signature {
	t.Helper()
	sig, err := typesig.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return sig
}

func TestFixBigintFromNumberAndString(t *testing.T) {
	sig := mustParse(t, "bigint")

	got, err := Fix(sig, float64(42))
	if err != nil || got != int64(42) {
		t.Fatalf("got %v, %v", got, err)
	}

	got, err = Fix(sig, "42")
	if err != nil || got != int64(42) {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestFixBigintPrecisionBeyondFloat64(t *testing.T) {
	sig := mustParse(t, "bigint")

	got, err := Fix(sig, "9223372036854775807") // math.MaxInt64
	if err != nil || got != int64(9223372036854775807) {
		t.Fatalf("got %v, %v", got, err)
	}

	got, err = Fix(sig, "9007199254740993") // beyond float64's exact-integer range (2^53+1)
	if err != nil || got != int64(9007199254740993) {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestFixTinyintOverflow(t *testing.T) {
	sig := mustParse(t, "tinyint")
	if _, err := Fix(sig, float64(1000)); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestFixDouble(t *testing.T) {
	sig := mustParse(t, "double")
	got, err := Fix(sig, "3.14")
	if err != nil || got != 3.14 {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestFixBoolean(t *testing.T) {
	sig := mustParse(t, "boolean")
	got, err := Fix(sig, "TRUE")
	if err != nil || got != true {
		t.Fatalf("got %v, %v", got, err)
	}
	if _, err := Fix(sig, "yes"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFixVarcharRejectsNonString(t *testing.T) {
	sig := mustParse(t, "varchar")
	if _, err := Fix(sig, 5.0); err == nil {
		t.Fatal("expected error")
	}
}

func TestFixVarcharIdempotent(t *testing.T) {
	sig := mustParse(t, "varchar")
	once, err := Fix(sig, "hello")
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Fix(sig, once)
	if err != nil {
		t.Fatal(err)
	}
	if once != twice {
		t.Fatalf("not idempotent: %v != %v", once, twice)
	}
}

func TestFixTimestampIdempotent(t *testing.T) {
	sig := mustParse(t, "timestamp")
	s := "2024-01-01 00:00:00.000"
	once, err := Fix(sig, s)
	if err != nil {
		t.Fatal(err)
	}
	twice, err := Fix(sig, once)
	if err != nil {
		t.Fatal(err)
	}
	if once != twice {
		t.Fatalf("not idempotent")
	}
}

func TestFixDecimalValidatesFormat(t *testing.T) {
	sig := mustParse(t, "decimal(10,2)")
	got, err := Fix(sig, "123.45")
	if err != nil || got != "123.45" {
		t.Fatalf("got %v, %v", got, err)
	}
	if _, err := Fix(sig, "not-a-number"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFixArray(t *testing.T) {
	sig := mustParse(t, "array(varchar)")
	got, err := Fix(sig, []interface{}{"x", "y"})
	if err != nil {
		t.Fatal(err)
	}
	want := []interface{}{"x", "y"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v, want %#v", got, want)
	}
}

func TestFixMapPreservesOrder(t *testing.T) {
	sig := mustParse(t, "map(varchar,bigint)")
	input := OrderedMap{{Key: "b", Value: float64(2)}, {Key: "a", Value: float64(1)}}
	got, err := Fix(sig, input)
	if err != nil {
		t.Fatal(err)
	}
	om, ok := got.(OrderedMap)
	if !ok || len(om) != 2 {
		t.Fatalf("got %#v", got)
	}
	if om[0].Key != "b" || om[1].Key != "a" {
		t.Fatalf("order not preserved: %#v", om)
	}
}

func TestFixRowTyped(t *testing.T) {
	sig := mustParse(t, `row("a" bigint,"b" array(varchar))`)
	input := []interface{}{float64(7), []interface{}{"x", "y"}}
	got, err := Fix(sig, input)
	if err != nil {
		t.Fatal(err)
	}
	om, ok := got.(OrderedMap)
	if !ok || len(om) != 2 {
		t.Fatalf("got %#v", got)
	}
	if om[0].Key != "a" || om[0].Value != int64(7) {
		t.Fatalf("got %#v", om[0])
	}
	bVal, ok := om[1].Value.([]interface{})
	if !ok || !reflect.DeepEqual(bVal, []interface{}{"x", "y"}) {
		t.Fatalf("got %#v", om[1].Value)
	}
}

func TestFixRowLengthMismatch(t *testing.T) {
	sig := mustParse(t, `row("a" bigint,"b" varchar)`)
	if _, err := Fix(sig, []interface{}{float64(1)}); err == nil {
		t.Fatal("expected error")
	}
}

func TestFixNullPassesThrough(t *testing.T) {
	sig := mustParse(t, "array(bigint)")
	got, err := Fix(sig, nil)
	if err != nil || got != nil {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestFixUnknownBaseBase64Decodes(t *testing.T) {
	sig := mustParse(t, "ipaddress")
	got, err := Fix(sig, "aGVsbG8=")
	if err != nil {
		t.Fatal(err)
	}
	b, ok := got.([]byte)
	if !ok || string(b) != "hello" {
		t.Fatalf("got %#v", got)
	}
}

func TestFixUnknownBasePassesThroughNonString(t *testing.T) {
	sig := mustParse(t, "ipaddress")
	got, err := Fix(sig, float64(5))
	if err != nil || got != float64(5) {
		t.Fatalf("got %v, %v", got, err)
	}
}
