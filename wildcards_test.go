package xsd

import (
	"errors"
	"reflect"
	"testing"

	"github.com/agentflare-ai/go-xsdbind/xmlnode"
)

const envelopeSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="urn:env"
           xmlns:e="urn:env"
           elementFormDefault="qualified">
  <xs:element name="payload" type="xs:string"/>
  <xs:element name="envelope">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="id" type="xs:int"/>
        <xs:any namespace="##any" processContents="lax" minOccurs="0" maxOccurs="unbounded"/>
      </xs:sequence>
      <xs:anyAttribute namespace="##other" processContents="skip"/>
    </xs:complexType>
  </xs:element>
  <xs:element name="sealed">
    <xs:complexType>
      <xs:sequence>
        <xs:any namespace="##other" minOccurs="0"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
  <xs:element name="opaque">
    <xs:complexType>
      <xs:sequence>
        <xs:any processContents="skip"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func env(local string) QName {
	return QName{Namespace: "urn:env", Local: local}
}

func TestWildcardFields(t *testing.T) {
	schema := parseSchema(t, envelopeSchema)
	el, err := schema.GetElement(env("envelope"))
	if err != nil {
		t.Fatal(err)
	}
	ct := el.Type().(*ComplexType)
	if got, want := ct.FieldNames(), []string{"id", "_value_1", "_attr_1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("FieldNames = %v, want %v", got, want)
	}
	if got, want := el.Signature(schema), "ns0:envelope(id: xsd:int, _value_1: ANY[], _attr_1: {})"; got != want {
		t.Errorf("Signature = %s, want %s", got, want)
	}
}

func TestAnyElementParsing(t *testing.T) {
	schema := parseSchema(t, envelopeSchema)
	obj := decodeObject(t, schema, `<e:envelope xmlns:e="urn:env" xmlns:x="urn:ext" x:trace="abc" local="ignored">
  <e:id>1</e:id>
  <e:payload>hello</e:payload>
  <x:unknown><x:inner/></x:unknown>
</e:envelope>`)

	items, ok := obj.Get("_value_1").([]any)
	if !ok || len(items) != 2 {
		t.Fatalf("_value_1 = %#v, want two items", obj.Get("_value_1"))
	}

	declared, ok := items[0].(*AnyObject)
	if !ok {
		t.Fatalf("Declared element parsed as %T, want *AnyObject", items[0])
	}
	payload, err := schema.GetElement(env("payload"))
	if err != nil {
		t.Fatal(err)
	}
	if declared.Element != payload || declared.Value != "hello" {
		t.Errorf("Declared element = %v", declared)
	}

	raw, ok := items[1].(*xmlnode.Node)
	if !ok {
		t.Fatalf("Undeclared element parsed as %T, want *xmlnode.Node", items[1])
	}
	if raw.Name.Space != "urn:ext" || raw.Name.Local != "unknown" || len(raw.Children) != 1 {
		t.Errorf("Raw node = %s", raw)
	}

	attrs, ok := obj.Get("_attr_1").(map[QName]string)
	if !ok {
		t.Fatalf("_attr_1 = %#v", obj.Get("_attr_1"))
	}
	if want := map[QName]string{{Namespace: "urn:ext", Local: "trace"}: "abc"}; !reflect.DeepEqual(attrs, want) {
		t.Errorf("_attr_1 = %v, want %v", attrs, want)
	}
}

func TestAnyElementRoundTrip(t *testing.T) {
	schema := parseSchema(t, envelopeSchema)
	src := `<e:envelope xmlns:e="urn:env" xmlns:x="urn:ext" x:trace="abc">
  <e:id>1</e:id>
  <e:payload>hello</e:payload>
  <x:unknown><x:inner/></x:unknown>
</e:envelope>`
	obj := decodeObject(t, schema, src)
	again := decodeObject(t, schema, encode(t, schema, env("envelope"), obj))

	if again.Get("id") != int64(1) {
		t.Errorf("id = %#v", again.Get("id"))
	}
	items := again.Get("_value_1").([]any)
	if len(items) != 2 {
		t.Fatalf("_value_1 has %d items after round trip", len(items))
	}
	if ao, ok := items[0].(*AnyObject); !ok || ao.Value != "hello" {
		t.Errorf("First wildcard item = %v", items[0])
	}
	if n, ok := items[1].(*xmlnode.Node); !ok || n.Name.Local != "unknown" {
		t.Errorf("Second wildcard item = %v", items[1])
	}
	if !reflect.DeepEqual(again.Get("_attr_1"), obj.Get("_attr_1")) {
		t.Errorf("_attr_1 = %v, want %v", again.Get("_attr_1"), obj.Get("_attr_1"))
	}
}

func TestAnyElementRendering(t *testing.T) {
	schema := parseSchema(t, envelopeSchema)
	payload, err := schema.GetElement(env("payload"))
	if err != nil {
		t.Fatal(err)
	}

	got := encode(t, schema, env("envelope"), map[string]any{
		"id":       1,
		"_value_1": []any{&AnyObject{Element: payload, Value: "x"}},
		"_attr_1":  map[string]string{"{urn:ext}trace": "t"},
	})
	want := `<ns0:envelope xmlns:ns0="urn:env" xmlns:ns1="urn:ext" ns1:trace="t"><ns0:id>1</ns0:id><ns0:payload>x</ns0:payload></ns0:envelope>`
	if got != want {
		t.Errorf("Encode =\n%s\nwant\n%s", got, want)
	}

	_, err = schema.Encode(env("sealed"), map[string]any{
		"_value_1": &AnyObject{Element: payload, Value: "x"},
	})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Code != "cvc-wildcard.2" {
		t.Errorf("Expected cvc-wildcard.2, got %v", err)
	}

	_, err = schema.Encode(env("envelope"), map[string]any{
		"id":       1,
		"_value_1": []any{42},
	})
	if err == nil {
		t.Error("Expected unsupported wildcard value to fail")
	}
}

func TestAnyNamespaceConstraintOnParse(t *testing.T) {
	schema := parseSchema(t, envelopeSchema)
	_, _, err := schema.Decode(parseXML(t, `<e:sealed xmlns:e="urn:env"><e:payload>x</e:payload></e:sealed>`))
	var ue *UnexpectedElementError
	if !errors.As(err, &ue) {
		t.Fatalf("Expected UnexpectedElementError, got %v", err)
	}

	obj := decodeObject(t, schema, `<e:sealed xmlns:e="urn:env"><o:other xmlns:o="urn:o"/></e:sealed>`)
	if _, ok := obj.Get("_value_1").(*xmlnode.Node); !ok {
		t.Errorf("_value_1 = %#v, want raw node", obj.Get("_value_1"))
	}
}

func TestAnySkipKeepsRawNode(t *testing.T) {
	schema := parseSchema(t, envelopeSchema)
	obj := decodeObject(t, schema, `<e:opaque xmlns:e="urn:env"><e:payload>hello</e:payload></e:opaque>`)
	raw, ok := obj.Get("_value_1").(*xmlnode.Node)
	if !ok {
		t.Fatalf("_value_1 = %#v, want raw node", obj.Get("_value_1"))
	}
	if raw.Text != "hello" {
		t.Errorf("Raw node text = %q", raw.Text)
	}
	if raw.Parent() != nil {
		t.Error("Raw node should be detached from the parsed document")
	}
}

func TestNamespaceConstraints(t *testing.T) {
	tests := []struct {
		name            string
		constraint      string
		elemNamespace   string
		targetNamespace string
		shouldMatch     bool
	}{
		{
			name:            "##any allows everything",
			constraint:      "##any",
			elemNamespace:   "http://any.com",
			targetNamespace: "http://target.com",
			shouldMatch:     true,
		},
		{
			name:            "##other allows different namespace",
			constraint:      "##other",
			elemNamespace:   "http://other.com",
			targetNamespace: "http://target.com",
			shouldMatch:     true,
		},
		{
			name:            "##other rejects target namespace",
			constraint:      "##other",
			elemNamespace:   "http://target.com",
			targetNamespace: "http://target.com",
			shouldMatch:     false,
		},
		{
			name:            "##targetNamespace allows target",
			constraint:      "##targetNamespace",
			elemNamespace:   "http://target.com",
			targetNamespace: "http://target.com",
			shouldMatch:     true,
		},
		{
			name:            "##targetNamespace rejects other",
			constraint:      "##targetNamespace",
			elemNamespace:   "http://other.com",
			targetNamespace: "http://target.com",
			shouldMatch:     false,
		},
		{
			name:            "##local allows no namespace",
			constraint:      "##local",
			elemNamespace:   "",
			targetNamespace: "http://target.com",
			shouldMatch:     true,
		},
		{
			name:            "##local rejects namespace",
			constraint:      "##local",
			elemNamespace:   "http://other.com",
			targetNamespace: "http://target.com",
			shouldMatch:     false,
		},
		{
			name:            "explicit namespace list",
			constraint:      "http://ns1.com http://ns2.com",
			elemNamespace:   "http://ns1.com",
			targetNamespace: "http://target.com",
			shouldMatch:     true,
		},
		{
			name:            "explicit namespace list rejects unlisted",
			constraint:      "http://ns1.com http://ns2.com",
			elemNamespace:   "http://ns3.com",
			targetNamespace: "http://target.com",
			shouldMatch:     false,
		},
		{
			name:            "list with ##targetNamespace",
			constraint:      "http://ns1.com ##targetNamespace",
			elemNamespace:   "http://target.com",
			targetNamespace: "http://target.com",
			shouldMatch:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			constraint := ParseNamespaceConstraint(tt.constraint)
			matches := constraint.Matches(tt.elemNamespace, tt.targetNamespace)
			if matches != tt.shouldMatch {
				t.Errorf("Expected matches=%v but got %v for constraint '%s' with namespace '%s'",
					tt.shouldMatch, matches, tt.constraint, tt.elemNamespace)
			}
		})
	}
}
