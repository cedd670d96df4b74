package xsd

import (
	"errors"
	"strings"
	"testing"
)

func validateSchemaText(t *testing.T, body string) []error {
	t.Helper()
	root := parseXML(t, `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">`+body+`</xs:schema>`)
	return NewSchemaValidator("test.xsd").ValidateSchema(root)
}

func TestSchemaValidatorAcceptsValidSchema(t *testing.T) {
	errs := validateSchemaText(t, `
  <xs:annotation><xs:documentation><p>free form</p></xs:documentation></xs:annotation>
  <xs:simpleType name="Code">
    <xs:restriction base="xs:string"><xs:maxLength value="3"/></xs:restriction>
  </xs:simpleType>
  <xs:complexType name="Item" mixed="false">
    <xs:sequence>
      <xs:element name="code" type="Code" minOccurs="0" maxOccurs="unbounded"/>
      <xs:any namespace="##other" processContents="lax" minOccurs="0"/>
    </xs:sequence>
    <xs:attribute name="id" type="xs:int" use="required"/>
  </xs:complexType>
  <xs:element name="item" type="Item" nillable="true"/>`)
	if len(errs) != 0 {
		t.Errorf("Unexpected errors: %v", errs)
	}
}

func TestSchemaValidatorRejectsInvalidSchema(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "global element without name",
			body: `<xs:element type="xs:string"/>`,
			want: "global element must have a name attribute",
		},
		{
			name: "name and ref",
			body: `<xs:complexType name="T"><xs:sequence><xs:element name="a" ref="b"/></xs:sequence></xs:complexType>`,
			want: "cannot have both 'name' and 'ref'",
		},
		{
			name: "min greater than max",
			body: `<xs:complexType name="T"><xs:sequence><xs:element name="a" minOccurs="3" maxOccurs="2"/></xs:sequence></xs:complexType>`,
			want: "minOccurs (3) cannot be greater than maxOccurs (2)",
		},
		{
			name: "negative maxOccurs",
			body: `<xs:complexType name="T"><xs:sequence><xs:element name="a" maxOccurs="-1"/></xs:sequence></xs:complexType>`,
			want: "invalid maxOccurs value '-1'",
		},
		{
			name: "default and fixed",
			body: `<xs:element name="a" type="xs:string" default="x" fixed="y"/>`,
			want: "cannot have both 'default' and 'fixed'",
		},
		{
			name: "type and inline type",
			body: `<xs:element name="a" type="xs:string"><xs:simpleType><xs:restriction base="xs:string"/></xs:simpleType></xs:element>`,
			want: "both 'type' attribute and inline type definition",
		},
		{
			name: "invalid use",
			body: `<xs:complexType name="T"><xs:attribute name="a" use="always"/></xs:complexType>`,
			want: "invalid use value 'always'",
		},
		{
			name: "simpleType without derivation",
			body: `<xs:simpleType name="S"/>`,
			want: "simpleType must have exactly one of",
		},
		{
			name: "named local complexType",
			body: `<xs:element name="a"><xs:complexType name="Inner"/></xs:element>`,
			want: "local complexType must not have a name attribute",
		},
		{
			name: "facet without value",
			body: `<xs:simpleType name="S"><xs:restriction base="xs:string"><xs:pattern/></xs:restriction></xs:simpleType>`,
			want: "pattern facet must have 'value' attribute",
		},
		{
			name: "bad processContents",
			body: `<xs:complexType name="T"><xs:sequence><xs:any processContents="eager"/></xs:sequence></xs:complexType>`,
			want: "invalid processContents value 'eager'",
		},
		{
			name: "all with repeated member",
			body: `<xs:complexType name="T"><xs:all><xs:element name="a" maxOccurs="2"/></xs:all></xs:complexType>`,
			want: "elements within xs:all must have maxOccurs of 0 or 1",
		},
		{
			name: "include without location",
			body: `<xs:include/>`,
			want: "include must have 'schemaLocation' attribute",
		},
		{
			name: "duplicate id",
			body: `<xs:element name="a" id="x"/><xs:element name="b" id="x"/>`,
			want: "duplicate id value 'x'",
		},
		{
			name: "unknown element",
			body: `<xs:elemnt name="typo"/>`,
			want: "unknown XSD element: elemnt",
		},
		{
			name: "invalid boolean",
			body: `<xs:element name="a" nillable="yes"/>`,
			want: "invalid nillable value 'yes'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := validateSchemaText(t, tt.body)
			if len(errs) == 0 {
				t.Fatal("Expected validation errors")
			}
			found := false
			for _, err := range errs {
				var se *SchemaSyntaxError
				if !errors.As(err, &se) {
					t.Fatalf("Error %v is %T, want *SchemaSyntaxError", err, err)
				}
				if se.Location != "test.xsd" {
					t.Errorf("Location = %q", se.Location)
				}
				if strings.Contains(se.Message, tt.want) {
					found = true
				}
			}
			if !found {
				t.Errorf("No error contains %q: %v", tt.want, errs)
			}
		})
	}
}

func TestSchemaValidatorLetsUnsupportedConstructsThrough(t *testing.T) {
	errs := validateSchemaText(t, `<xs:redefine schemaLocation="base.xsd"/>
  <xs:complexType name="T"><xs:assert test="true()"/></xs:complexType>`)
	if len(errs) != 0 {
		t.Errorf("Unexpected errors: %v", errs)
	}
}

func TestSchemaValidatorRootElement(t *testing.T) {
	errs := NewSchemaValidator("").ValidateSchema(parseXML(t, `<schema/>`))
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "document root must be xs:schema element") {
		t.Errorf("Unexpected errors: %v", errs)
	}
	errs = NewSchemaValidator("x.xsd").ValidateSchema(nil)
	if len(errs) != 1 || errs[0].Error() != "x.xsd: no root element" {
		t.Errorf("Unexpected errors: %v", errs)
	}
}
