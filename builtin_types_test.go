package xsd

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestBuiltinCanonicalRoundTrip(t *testing.T) {
	tests := []struct {
		typ  string
		text string
	}{
		{"string", " keep  spaces "},
		{"boolean", "true"},
		{"decimal", "12.5"},
		{"integer", "-123456789012345678"},
		{"int", "42"},
		{"unsignedLong", "18446744073709551615"},
		{"double", "1.5"},
		{"double", "INF"},
		{"float", "-INF"},
		{"dateTime", "2024-03-01T10:20:30Z"},
		{"dateTime", "2024-03-01T10:20:30.25+02:00"},
		{"dateTime", "2024-03-01T10:20:30"},
		{"date", "2024-01-02"},
		{"time", "08:15:00-05:00"},
		{"duration", "P1Y2M3DT4H5M6.5S"},
		{"hexBinary", "0FA0"},
		{"base64Binary", "aGVsbG8="},
		{"gYear", "2024"},
		{"gMonthDay", "--12-25"},
		{"language", "en-US"},
		{"token", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.text, func(t *testing.T) {
			typ := mustBuiltin(t, tt.typ).(SimpleValueType)
			v, err := typ.ParseValue(nil, tt.text)
			if err != nil {
				t.Fatalf("ParseValue: %v", err)
			}
			if _, isString := v.(string); isString && tt.typ != "string" && tt.typ != "token" &&
				tt.typ != "gYear" && tt.typ != "gMonthDay" && tt.typ != "language" {
				t.Errorf("ParseValue returned the raw text for %s", tt.typ)
			}
			got, err := typ.FormatValue(nil, v)
			if err != nil {
				t.Fatalf("FormatValue(%#v): %v", v, err)
			}
			if got != tt.text {
				t.Errorf("FormatValue = %q, want %q", got, tt.text)
			}
		})
	}
}

func TestBuiltinParseValue(t *testing.T) {
	tests := []struct {
		typ  string
		text string
		want any
	}{
		{"boolean", "1", true},
		{"boolean", " false ", false},
		{"int", "+7", int64(7)},
		{"long", "-9223372036854775808", int64(math.MinInt64)},
		{"positiveInteger", "3", uint64(3)},
		{"unsignedByte", "255", uint64(255)},
		{"hexBinary", "cafe", []byte{0xca, 0xfe}},
		{"base64Binary", "aGVs bG8=", []byte("hello")},
		{"NMTOKENS", " a  b ", []string{"a", "b"}},
		{"normalizedString", "a\tb\nc", "a b c"},
		{"token", "  a \n b ", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.text, func(t *testing.T) {
			got, err := mustBuiltin(t, tt.typ).(SimpleValueType).ParseValue(nil, tt.text)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseValue = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestBuiltinRejectsInvalidText(t *testing.T) {
	tests := []struct {
		typ  string
		text string
	}{
		{"boolean", "yes"},
		{"decimal", "1e5"},
		{"int", "2147483648"},
		{"byte", "-129"},
		{"nonNegativeInteger", "-1"},
		{"positiveInteger", "0"},
		{"integer", "1.0"},
		{"float", "infinity"},
		{"double", "0x1p3"},
		{"date", "2024-02-30"},
		{"dateTime", "2024-03-01 10:20:30"},
		{"time", "25:00:00"},
		{"duration", "P"},
		{"duration", "P1DT"},
		{"gMonth", "--13"},
		{"hexBinary", "ABC"},
		{"base64Binary", "!!"},
		{"NCName", "a:b"},
		{"Name", "1abc"},
		{"QName", "a:b:c"},
		{"language", "not a tag"},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.text, func(t *testing.T) {
			typ := mustBuiltin(t, tt.typ).(SimpleValueType)
			if v, err := typ.ParseValue(nil, tt.text); err == nil {
				t.Errorf("ParseValue accepted %q as %#v", tt.text, v)
			}
			if _, err := typ.FormatValue(nil, tt.text); err == nil {
				t.Errorf("FormatValue accepted %q", tt.text)
			}
		})
	}
}

func TestBuiltinFormatValue(t *testing.T) {
	tests := []struct {
		typ   string
		value any
		want  string
	}{
		{"boolean", 0, "false"},
		{"boolean", int64(1), "true"},
		{"int", int32(-5), "-5"},
		{"integer", decimal.NewFromInt(10), "10"},
		{"integer", 12.0, "12"},
		{"unsignedLong", uint64(math.MaxUint64), "18446744073709551615"},
		{"decimal", 0.25, "0.25"},
		{"decimal", "3.10", "3.10"},
		{"double", 1e21, "1E+21"},
		{"double", math.NaN(), "NaN"},
		{"date", time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), "2024-05-06Z"},
		{"dateTime", time.Date(2024, 5, 6, 7, 8, 9, 0, time.FixedZone("", -3600)), "2024-05-06T07:08:09-01:00"},
		{"duration", 90 * time.Minute, "PT1H30M"},
		{"string", 15, "15"},
		{"string", decimal.RequireFromString("1.50"), "1.5"},
		{"NMTOKENS", []string{"x", "y"}, "x y"},
		{"token", " a   b ", "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got, err := mustBuiltin(t, tt.typ).(SimpleValueType).FormatValue(nil, tt.value)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("FormatValue(%#v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestBuiltinFormatRejectsWrongGoType(t *testing.T) {
	tests := []struct {
		typ   string
		value any
	}{
		{"boolean", 2},
		{"decimal", true},
		{"integer", 1.5},
		{"hexBinary", 12},
		{"dateTime", 12},
		{"duration", 12},
	}
	for _, tt := range tests {
		if _, err := mustBuiltin(t, tt.typ).(SimpleValueType).FormatValue(nil, tt.value); err == nil {
			t.Errorf("%s accepted %#v", tt.typ, tt.value)
		}
	}
}

func TestBuiltinQNameUsesNamespaceScope(t *testing.T) {
	doc := parseXML(t, `<r xmlns:t="urn:t" xmlns="urn:default"/>`)
	root := doc.FirstChild()
	qn := mustBuiltin(t, "QName").(SimpleValueType)

	v, err := qn.ParseValue(root, "t:item")
	if err != nil {
		t.Fatal(err)
	}
	if want := (QName{Namespace: "urn:t", Local: "item"}); v != want {
		t.Errorf("ParseValue = %#v, want %#v", v, want)
	}
	v, err = qn.ParseValue(root, "plain")
	if err != nil {
		t.Fatal(err)
	}
	if want := (QName{Namespace: "urn:default", Local: "plain"}); v != want {
		t.Errorf("ParseValue = %#v, want %#v", v, want)
	}
	if _, err := qn.ParseValue(root, "missing:item"); err == nil {
		t.Error("Expected undeclared prefix to fail")
	}
}

func TestBuiltinRegistry(t *testing.T) {
	r := Builtins()
	if r != Builtins() {
		t.Error("Builtins should return a shared registry")
	}
	if _, ok := r.Lookup(QName{Namespace: XSDNamespace, Local: "anyType"}); !ok {
		t.Error("anyType missing")
	}
	if _, ok := r.Lookup(QName{Local: "string"}); ok {
		t.Error("Lookup should require the schema namespace")
	}
	names := r.Names()
	if len(names) < 45 {
		t.Errorf("Only %d builtin types registered", len(names))
	}
	for i := 1; i < len(names); i++ {
		if names[i-1].Local > names[i].Local {
			t.Fatalf("Names not sorted at %d: %s > %s", i, names[i-1].Local, names[i].Local)
		}
	}
}
