package xsd

import (
	"errors"
	"strings"
	"testing"
)

const settingsSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://example.com/config"
           xmlns:c="http://example.com/config"
           elementFormDefault="qualified">
  <xs:element name="config">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="version" type="xs:string" fixed="1.0"/>
        <xs:element name="retries" type="xs:int" default="3"/>
        <xs:element name="mode" type="xs:string" minOccurs="0"/>
      </xs:sequence>
      <xs:attribute name="format" type="xs:string" fixed="v2"/>
      <xs:attribute name="timeout" type="xs:int" default="30"/>
      <xs:attribute name="debug" type="xs:boolean"/>
    </xs:complexType>
  </xs:element>
</xs:schema>`

func TestElementFixedAndDefault(t *testing.T) {
	schema := parseSchema(t, settingsSchema)

	tests := []struct {
		name    string
		xml     string
		version any
		retries any
		errText string
	}{
		{
			name:    "explicit values",
			xml:     `<config xmlns="http://example.com/config"><version>1.0</version><retries>5</retries></config>`,
			version: "1.0",
			retries: int64(5),
		},
		{
			name:    "empty elements take default and fixed",
			xml:     `<config xmlns="http://example.com/config"><version/><retries/></config>`,
			version: "1.0",
			retries: int64(3),
		},
		{
			name:    "fixed mismatch",
			xml:     `<config xmlns="http://example.com/config"><version>2.0</version><retries>1</retries></config>`,
			errText: `must be "1.0"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _, err := schema.Decode(parseXML(t, tt.xml))
			if tt.errText != "" {
				if err == nil {
					t.Fatal("Expected fixed value error")
				}
				var pe *XMLParseError
				if !errors.As(err, &pe) {
					t.Errorf("Expected XMLParseError, got %T", err)
				}
				if !strings.Contains(err.Error(), tt.errText) {
					t.Errorf("Error %q does not contain %q", err, tt.errText)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			obj := v.(*Object)
			if got := obj.Get("version"); got != tt.version {
				t.Errorf("version = %#v, want %#v", got, tt.version)
			}
			if got := obj.Get("retries"); got != tt.retries {
				t.Errorf("retries = %#v, want %#v", got, tt.retries)
			}
		})
	}
}

func TestAttributeFixedAndDefault(t *testing.T) {
	schema := parseSchema(t, settingsSchema)

	obj := decodeObject(t, schema, `<config xmlns="http://example.com/config"><version>1.0</version><retries>1</retries></config>`)
	if got := obj.Get("format"); got != "v2" {
		t.Errorf("format = %#v, want fixed value v2", got)
	}
	if got := obj.Get("timeout"); got != int64(30) {
		t.Errorf("timeout = %#v, want default 30", got)
	}
	if got := obj.Get("debug"); got != nil {
		t.Errorf("debug = %#v, want nil", got)
	}

	obj = decodeObject(t, schema, `<config xmlns="http://example.com/config" timeout="5" debug="1"><version>1.0</version><retries>1</retries></config>`)
	if got := obj.Get("timeout"); got != int64(5) {
		t.Errorf("timeout = %#v, want 5", got)
	}
	if got := obj.Get("debug"); got != true {
		t.Errorf("debug = %#v, want true", got)
	}

	_, _, err := schema.Decode(parseXML(t, `<config xmlns="http://example.com/config" format="v1"><version>1.0</version><retries>1</retries></config>`))
	if err == nil || !strings.Contains(err.Error(), `must be "v2"`) {
		t.Errorf("Expected fixed attribute mismatch, got %v", err)
	}
}

func TestFixedValueRendering(t *testing.T) {
	schema := parseSchema(t, settingsSchema)
	name := QName{Namespace: "http://example.com/config", Local: "config"}

	got := encode(t, schema, name, map[string]any{
		"version": "1.0",
		"retries": 2,
		"format":  "v2",
	})
	want := `<ns0:config xmlns:ns0="http://example.com/config" format="v2"><ns0:version>1.0</ns0:version><ns0:retries>2</ns0:retries></ns0:config>`
	if got != want {
		t.Errorf("Encode =\n%s\nwant\n%s", got, want)
	}

	tests := []struct {
		name  string
		value map[string]any
		code  string
		path  string
	}{
		{
			name:  "element mismatch",
			value: map[string]any{"version": "2.0", "retries": 1},
			code:  "cvc-elt.5.2.2.2.2",
			path:  "config.version",
		},
		{
			name:  "attribute mismatch",
			value: map[string]any{"version": "1.0", "retries": 1, "format": "v1"},
			code:  "cvc-au",
			path:  "config.format",
		},
		{
			name:  "attribute format",
			value: map[string]any{"version": "1.0", "retries": 1, "timeout": "soon"},
			code:  "cvc-attribute.3",
			path:  "config.timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Encode(name, tt.value)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("Expected ValidationError, got %v", err)
			}
			if ve.Code != tt.code {
				t.Errorf("Code = %s, want %s", ve.Code, tt.code)
			}
			if got := ve.PathString(); got != tt.path {
				t.Errorf("Path = %s, want %s", got, tt.path)
			}
		})
	}
}

func TestValueConstraintAccessors(t *testing.T) {
	schema := parseSchema(t, settingsSchema)
	el, err := schema.GetElement(QName{Namespace: "http://example.com/config", Local: "config"})
	if err != nil {
		t.Fatal(err)
	}
	ct := el.Type().(*ComplexType)

	for _, member := range ct.Content().(Indicator).Particles() {
		e, ok := member.(*Element)
		if !ok {
			t.Fatalf("Unexpected particle %T", member)
		}
		switch e.Name() {
		case "version":
			if v, ok := e.Fixed(); !ok || v != "1.0" {
				t.Errorf("version Fixed() = %q, %v", v, ok)
			}
		case "retries":
			if v, ok := e.Default(); !ok || v != "3" {
				t.Errorf("retries Default() = %q, %v", v, ok)
			}
		case "mode":
			if _, ok := e.Default(); ok {
				t.Error("mode has no default")
			}
		}
	}
	for _, a := range ct.Attributes() {
		if a.Name() == "timeout" {
			if v, ok := a.Default(); !ok || v != "30" {
				t.Errorf("timeout Default() = %q, %v", v, ok)
			}
		}
	}
}
