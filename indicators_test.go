package xsd

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fieldNames(t *testing.T, schema *Schema, typeName string) []string {
	t.Helper()
	typ, err := schema.GetType(QName{Local: typeName})
	if err != nil {
		t.Fatal(err)
	}
	ct, ok := typ.(*ComplexType)
	if !ok {
		t.Fatalf("%s is not a complex type", typeName)
	}
	return ct.FieldNames()
}

func TestChoiceGreedyMatch(t *testing.T) {
	schema := parseSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:complexType name="T">
    <xs:choice>
      <xs:sequence>
        <xs:element name="a" type="xs:string"/>
        <xs:element name="b" type="xs:string"/>
      </xs:sequence>
      <xs:element name="a" type="xs:string"/>
    </xs:choice>
  </xs:complexType>
  <xs:element name="root" type="T"/>
</xs:schema>`)

	if got := fieldNames(t, schema, "T"); !reflect.DeepEqual(got, []string{"a", "b", "a__1"}) {
		t.Fatalf("Unexpected field names %v", got)
	}

	tests := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			name:  "longest alternative wins",
			input: `<root><a>x</a><b>y</b></root>`,
			want:  map[string]any{"a": "x", "b": "y"},
		},
		{
			name:  "first alternative wins a tie",
			input: `<root><a>x</a></root>`,
			want:  map[string]any{"a": "x"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := decodeObject(t, schema, tt.input)
			if !ValuesEqual(obj, tt.want) {
				t.Errorf("Got %v, want %v", obj, tt.want)
			}
		})
	}
}

func TestChoiceSelect(t *testing.T) {
	schema := parseSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:complexType name="Shape">
    <xs:choice>
      <xs:sequence>
        <xs:element name="radius" type="xs:int"/>
      </xs:sequence>
      <xs:sequence>
        <xs:element name="width" type="xs:int"/>
        <xs:element name="height" type="xs:int"/>
      </xs:sequence>
    </xs:choice>
  </xs:complexType>
  <xs:element name="shape" type="Shape"/>
</xs:schema>`)

	typ, _ := schema.GetType(QName{Local: "Shape"})
	ct := typ.(*ComplexType)
	choice, ok := ct.Content().(*Choice)
	if !ok {
		t.Fatalf("Expected choice content, got %T", ct.Content())
	}

	xml := encode(t, schema, QName{Local: "shape"}, map[string]any{"width": 3, "height": 4})
	if xml != "<shape><width>3</width><height>4</height></shape>" {
		t.Errorf("Unexpected XML %s", xml)
	}
	parsed := decodeObject(t, schema, xml)
	if idx := choice.Select(parsed); idx != 1 {
		t.Errorf("Select(parsed) = %d, want 1", idx)
	}
	if idx := choice.Select(map[string]any{"radius": 2}); idx != 0 {
		t.Errorf("Select(radius) = %d, want 0", idx)
	}
	if idx := choice.Select(map[string]any{"width": 2}); idx != -1 {
		t.Errorf("Select(incomplete) = %d, want -1", idx)
	}

	_, err := schema.Encode(QName{Local: "shape"}, map[string]any{})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Code != "cvc-complex-type.2.4.b" {
		t.Errorf("Expected missing choice error, got %v", err)
	}
}

func TestRepeatedChoice(t *testing.T) {
	schema := parseSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:complexType name="Log">
    <xs:choice maxOccurs="unbounded">
      <xs:element name="info" type="xs:string"/>
      <xs:element name="error" type="xs:string"/>
    </xs:choice>
  </xs:complexType>
  <xs:element name="log" type="Log"/>
</xs:schema>`)

	if got := fieldNames(t, schema, "Log"); !reflect.DeepEqual(got, []string{"_value_1"}) {
		t.Fatalf("Unexpected field names %v", got)
	}
	input := `<log><info>a</info><error>b</error><info>c</info></log>`
	obj := decodeObject(t, schema, input)
	want := []any{
		map[string]any{"info": "a"},
		map[string]any{"error": "b"},
		map[string]any{"info": "c"},
	}
	if !ValuesEqual(obj.Get("_value_1"), want) {
		t.Fatalf("Got %v, want %v", obj.Get("_value_1"), want)
	}
	if got := encode(t, schema, QName{Local: "log"}, obj); got != input {
		t.Errorf("Round trip mismatch\n got  %s\n want %s", got, input)
	}
}

func TestAllAcceptsAnyOrder(t *testing.T) {
	schema := parseSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:complexType name="Point">
    <xs:all>
      <xs:element name="x" type="xs:int"/>
      <xs:element name="y" type="xs:int"/>
      <xs:element name="label" type="xs:string" minOccurs="0"/>
    </xs:all>
  </xs:complexType>
  <xs:element name="point" type="Point"/>
</xs:schema>`)

	obj := decodeObject(t, schema, `<point><y>2</y><x>1</x></point>`)
	if obj.Get("x") != int64(1) || obj.Get("y") != int64(2) || obj.Get("label") != nil {
		t.Errorf("Unexpected value %v", obj)
	}
	if got := encode(t, schema, QName{Local: "point"}, obj); got != "<point><x>1</x><y>2</y></point>" {
		t.Errorf("Expected declaration order on render, got %s", got)
	}
}

func TestAllLeftoversKeepDocumentOrder(t *testing.T) {
	const src = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="r">
    <xs:complexType>
      <xs:all>
        <xs:element name="a" type="xs:string"/>
        <xs:element name="b" type="xs:string"/>
      </xs:all>
    </xs:complexType>
  </xs:element>
</xs:schema>`

	strict := parseSchema(t, src)
	_, _, err := strict.Decode(parseXML(t, `<r><b>1</b><b>2</b><a>3</a><y/></r>`))
	var ue *UnexpectedElementError
	if !errors.As(err, &ue) {
		t.Fatalf("Expected *UnexpectedElementError, got %v", err)
	}
	if ue.Got != (QName{Local: "b"}) {
		t.Errorf("Expected the first leftover in document order, got %v", ue.Got)
	}

	settings := DefaultSettings()
	settings.Strict = false
	lenient := parseSchema(t, src, WithSettings(settings), WithLogger(quietLogger()))
	obj := decodeObject(t, lenient, `<r><b>1</b><x/><b>2</b><a>3</a><y/></r>`)
	if obj.Get("a") != "3" || obj.Get("b") != "1" {
		t.Errorf("Unexpected value %v", obj)
	}
	raw, _ := obj.Get(RawElementsField).([]*xmlnode.Node)
	var names []string
	for _, n := range raw {
		names = append(names, n.Name.Local)
	}
	if want := []string{"x", "b", "y"}; !reflect.DeepEqual(names, want) {
		t.Errorf("Expected leftovers %v, got %v", want, names)
	}
}

func TestGroupReference(t *testing.T) {
	schema := parseSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:group name="Audit">
    <xs:sequence>
      <xs:element name="createdBy" type="xs:string"/>
      <xs:element name="createdAt" type="xs:date" minOccurs="0"/>
    </xs:sequence>
  </xs:group>
  <xs:complexType name="Doc">
    <xs:sequence>
      <xs:element name="id" type="xs:string"/>
      <xs:group ref="Audit"/>
    </xs:sequence>
  </xs:complexType>
  <xs:element name="doc" type="Doc"/>
</xs:schema>`)

	if got := fieldNames(t, schema, "Doc"); !reflect.DeepEqual(got, []string{"id", "createdBy", "createdAt"}) {
		t.Fatalf("Unexpected field names %v", got)
	}
	group, err := schema.GetGroup(QName{Local: "Audit"})
	if err != nil {
		t.Fatal(err)
	}
	if sig := group.Signature(schema); sig != "Audit(createdBy: xsd:string, createdAt: xsd:date)" {
		t.Errorf("Unexpected group signature %q", sig)
	}

	input := `<doc><id>1</id><createdBy>ada</createdBy></doc>`
	obj := decodeObject(t, schema, input)
	if obj.Get("createdBy") != "ada" {
		t.Errorf("Expected group fields spliced into the parent, got %v", obj)
	}
	if got := encode(t, schema, QName{Local: "doc"}, obj); got != input {
		t.Errorf("Round trip mismatch %s", got)
	}
}

func TestRepeatedSequence(t *testing.T) {
	schema := parseSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:complexType name="Pairs">
    <xs:sequence maxOccurs="unbounded">
      <xs:element name="k" type="xs:string"/>
      <xs:element name="v" type="xs:int"/>
    </xs:sequence>
  </xs:complexType>
  <xs:element name="pairs" type="Pairs"/>
</xs:schema>`)

	input := `<pairs><k>a</k><v>1</v><k>b</k><v>2</v></pairs>`
	obj := decodeObject(t, schema, input)
	items, ok := obj.Get("_value_1").([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("Expected two occurrences, got %v", obj.Get("_value_1"))
	}
	second := items[1].(*Object)
	if second.Get("k") != "b" || second.Get("v") != int64(2) {
		t.Errorf("Unexpected second occurrence %v", second)
	}

	got := encode(t, schema, QName{Local: "pairs"}, map[string]any{
		"_value_1": []any{
			map[string]any{"k": "a", "v": 1},
			map[string]any{"k": "b", "v": 2},
		},
	})
	if got != input {
		t.Errorf("Unexpected XML %s", got)
	}
}

const optionalBlocksSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:group name="Note">
    <xs:sequence>
      <xs:element name="note" type="xs:string"/>
    </xs:sequence>
  </xs:group>
  <xs:element name="optionalSeq">
    <xs:complexType>
      <xs:sequence>
        <xs:sequence minOccurs="0">
          <xs:element name="x" type="xs:string"/>
        </xs:sequence>
        <xs:element name="y" type="xs:string"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
  <xs:element name="repeatedSeq">
    <xs:complexType>
      <xs:sequence>
        <xs:sequence maxOccurs="unbounded">
          <xs:element name="item" type="xs:string"/>
        </xs:sequence>
        <xs:element name="trailer" type="xs:string"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
  <xs:element name="pairSeq">
    <xs:complexType>
      <xs:sequence>
        <xs:sequence minOccurs="2" maxOccurs="2">
          <xs:element name="item" type="xs:string"/>
        </xs:sequence>
        <xs:element name="trailer" type="xs:string"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
  <xs:element name="optionalGroup">
    <xs:complexType>
      <xs:sequence>
        <xs:group ref="Note" minOccurs="0"/>
        <xs:element name="y" type="xs:string"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
  <xs:element name="repeatedGroup">
    <xs:complexType>
      <xs:sequence>
        <xs:group ref="Note" maxOccurs="unbounded"/>
        <xs:element name="trailer" type="xs:string"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func TestOptionalBlocksInStrictMode(t *testing.T) {
	schema := parseSchema(t, optionalBlocksSchema)
	if !DefaultSettings().Strict {
		t.Fatal("Expected strict parsing by default")
	}

	tests := []struct {
		name    string
		input   string
		field   string
		want    any
		repeats int
	}{
		{name: "absent optional sequence", input: `<optionalSeq><y>b</y></optionalSeq>`, field: "y", want: "b"},
		{name: "present optional sequence", input: `<optionalSeq><x>a</x><y>b</y></optionalSeq>`, field: "x", want: "a"},
		{name: "repeated sequence before trailer", input: `<repeatedSeq><item>a</item><item>b</item><trailer>z</trailer></repeatedSeq>`, field: "trailer", want: "z", repeats: 2},
		{name: "absent optional group", input: `<optionalGroup><y>b</y></optionalGroup>`, field: "y", want: "b"},
		{name: "repeated group before trailer", input: `<repeatedGroup><note>a</note><note>b</note><note>c</note><trailer>z</trailer></repeatedGroup>`, field: "trailer", want: "z", repeats: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := decodeObject(t, schema, tt.input)
			if got := obj.Get(tt.field); got != tt.want {
				t.Errorf("Expected %s=%v, got %v", tt.field, tt.want, obj)
			}
			if tt.repeats == 0 {
				return
			}
			items, ok := obj.Get("_value_1").([]any)
			if !ok || len(items) != tt.repeats {
				t.Errorf("Expected %d occurrences, got %v", tt.repeats, obj.Get("_value_1"))
			}
		})
	}

	obj := decodeObject(t, schema, `<optionalSeq><y>b</y></optionalSeq>`)
	if obj.Get("x") != nil {
		t.Errorf("Expected no value for the absent sequence, got %v", obj.Get("x"))
	}
}

func TestRequiredOccurrenceStillFails(t *testing.T) {
	schema := parseSchema(t, optionalBlocksSchema)

	_, _, err := schema.Decode(parseXML(t, `<pairSeq><item>a</item><trailer>z</trailer></pairSeq>`))
	var ue *UnexpectedElementError
	if !errors.As(err, &ue) {
		t.Fatalf("Expected *UnexpectedElementError, got %v", err)
	}
	if ue.Got != (QName{Local: "trailer"}) || ue.Expected != (QName{Local: "item"}) {
		t.Errorf("Unexpected error %v", ue)
	}

	obj := decodeObject(t, schema, `<pairSeq><item>a</item><item>b</item><trailer>z</trailer></pairSeq>`)
	if items, ok := obj.Get("_value_1").([]any); !ok || len(items) != 2 {
		t.Errorf("Expected two occurrences, got %v", obj)
	}
}

func TestDuplicateElementNames(t *testing.T) {
	schema := parseSchema(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:complexType name="Twice">
    <xs:sequence>
      <xs:element name="a" type="xs:string"/>
      <xs:element name="a" type="xs:int"/>
    </xs:sequence>
  </xs:complexType>
  <xs:element name="twice" type="Twice"/>
</xs:schema>`)

	if got := fieldNames(t, schema, "Twice"); !reflect.DeepEqual(got, []string{"a", "a__1"}) {
		t.Fatalf("Unexpected field names %v", got)
	}
	obj := decodeObject(t, schema, `<twice><a>x</a><a>2</a></twice>`)
	if obj.Get("a") != "x" || obj.Get("a__1") != int64(2) {
		t.Errorf("Unexpected value %v", obj)
	}
}

const strictnessSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:element name="r">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="a" type="xs:string"/>
        <xs:element name="b" type="xs:string"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func TestStrictParsing(t *testing.T) {
	schema := parseSchema(t, strictnessSchema)

	tests := []struct {
		name  string
		input string
		got   QName
	}{
		{name: "leftover child", input: `<r><a>1</a><b>2</b><c>3</c></r>`, got: QName{Local: "c"}},
		{name: "missing required child", input: `<r><b>2</b></r>`, got: QName{Local: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := schema.Decode(parseXML(t, tt.input))
			var ue *UnexpectedElementError
			if !errors.As(err, &ue) {
				t.Fatalf("Expected *UnexpectedElementError, got %v", err)
			}
			if ue.Got != tt.got {
				t.Errorf("Expected unexpected element %v, got %v", tt.got, ue.Got)
			}
			var pe *XMLParseError
			if !errors.As(err, &pe) {
				t.Errorf("Expected an *XMLParseError, got %T", err)
			}
		})
	}
}

func TestNonStrictParsing(t *testing.T) {
	settings := DefaultSettings()
	settings.Strict = false
	schema := parseSchema(t, strictnessSchema, WithSettings(settings), WithLogger(quietLogger()))

	obj := decodeObject(t, schema, `<r><a>1</a><b>2</b><c>3</c></r>`)
	raw, ok := obj.Get(RawElementsField).([]*xmlnode.Node)
	if !ok || len(raw) != 1 || raw[0].Name.Local != "c" {
		t.Fatalf("Expected the leftover element under %s, got %#v", RawElementsField, obj.Get(RawElementsField))
	}
	if got := encode(t, schema, QName{Local: "r"}, obj); got != "<r><a>1</a><b>2</b><c>3</c></r>" {
		t.Errorf("Expected raw elements to render back, got %s", got)
	}

	obj = decodeObject(t, schema, `<r><b>2</b></r>`)
	if obj.Get("a") != nil || obj.Get("b") != "2" {
		t.Errorf("Expected the unmatched member to be skipped, got %v", obj)
	}
}

func TestIgnoreSequenceOrder(t *testing.T) {
	settings := DefaultSettings()
	settings.IgnoreSequenceOrder = true
	schema := parseSchema(t, strictnessSchema, WithSettings(settings), WithLogger(quietLogger()))

	obj := decodeObject(t, schema, `<r><b>2</b><a>1</a></r>`)
	if obj.Get("a") != "1" || obj.Get("b") != "2" {
		t.Errorf("Unexpected value %v", obj)
	}
}

func TestLenientNamespaces(t *testing.T) {
	src := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="urn:q" elementFormDefault="qualified">
  <xs:element name="r">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="a" type="xs:string"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`
	input := `<q:r xmlns:q="urn:q"><a>1</a></q:r>`

	schema := parseSchema(t, src, WithLogger(quietLogger()))
	obj := decodeObject(t, schema, input)
	if obj.Get("a") != "1" {
		t.Errorf("Expected unqualified child to match by local name, got %v", obj)
	}

	settings := DefaultSettings()
	settings.LenientNamespaces = false
	schema = parseSchema(t, src, WithSettings(settings))
	if _, _, err := schema.Decode(parseXML(t, input)); err == nil {
		t.Error("Expected a namespace mismatch to fail without lenient matching")
	}
}
