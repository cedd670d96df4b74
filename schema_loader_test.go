package xsd

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const personSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://example.com/types"
           xmlns:types="http://example.com/types"
           elementFormDefault="qualified">
  <xs:include schemaLocation="common.xsd"/>
  <xs:complexType name="Person">
    <xs:sequence>
      <xs:element name="name" type="xs:string"/>
      <xs:element name="email" type="types:Email"/>
    </xs:sequence>
  </xs:complexType>
</xs:schema>`

const commonSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema">
  <xs:simpleType name="Email">
    <xs:restriction base="xs:string">
      <xs:pattern value="[^@]+@[^@]+"/>
    </xs:restriction>
  </xs:simpleType>
  <xs:element name="email" type="Email"/>
</xs:schema>`

const documentSchema = `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="http://example.com/main"
           xmlns:main="http://example.com/main"
           xmlns:types="http://example.com/types"
           elementFormDefault="qualified">
  <xs:import namespace="http://example.com/types" schemaLocation="types/person.xsd"/>
  <xs:element name="document">
    <xs:complexType>
      <xs:sequence>
        <xs:element name="title" type="xs:string"/>
        <xs:element name="author" type="types:Person"/>
      </xs:sequence>
    </xs:complexType>
  </xs:element>
</xs:schema>`

const documentInstance = `<document xmlns="http://example.com/main" xmlns:t="http://example.com/types">
  <title>Report</title>
  <author><t:name>Ada</t:name><t:email>ada@example.com</t:email></author>
</document>`

func writeSchemaFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func assertDocument(t *testing.T, schema *Schema) {
	t.Helper()
	obj := decodeObject(t, schema, documentInstance)
	author, ok := obj.Get("author").(*Object)
	if !ok {
		t.Fatalf("author = %#v", obj.Get("author"))
	}
	if author.Get("name") != "Ada" || author.Get("email") != "ada@example.com" {
		t.Errorf("author = %v", author.Map())
	}
}

func TestFileLoaderImportAndInclude(t *testing.T) {
	dir := writeSchemaFiles(t, map[string]string{
		"main.xsd":         documentSchema,
		"types/person.xsd": personSchema,
		"types/common.xsd": commonSchema,
	})

	loader := NewFileLoader(dir)
	schema, err := LoadSchema("main.xsd", WithLoader(loader))
	if err != nil {
		t.Fatalf("LoadSchema: %v", err)
	}
	assertDocument(t, schema)

	want := []string{"http://example.com/main", "http://example.com/types"}
	if got := schema.Namespaces(); !reflect.DeepEqual(got, want) {
		t.Errorf("Namespaces = %v, want %v", got, want)
	}
	// The included document has no targetNamespace and takes the one of
	// person.xsd.
	if _, err := schema.GetElement(QName{Namespace: "http://example.com/types", Local: "email"}); err != nil {
		t.Errorf("Chameleon element not found: %v", err)
	}
	if got := loader.Cache.Len(); got != 3 {
		t.Errorf("Document cache holds %d documents, want 3", got)
	}

	if _, err := LoadSchema(filepath.Join(dir, "main.xsd")); err != nil {
		t.Errorf("LoadSchema with an absolute path: %v", err)
	}
}

func TestFileLoaderRemoteDisabled(t *testing.T) {
	loader := NewFileLoader(t.TempDir())
	_, err := loader.Load("http://example.com/schema.xsd", "")
	if err == nil || !strings.Contains(err.Error(), "remote schema loading is disabled") {
		t.Errorf("Expected remote loading to be refused, got %v", err)
	}
	if _, err := loader.Load("missing.xsd", ""); err == nil {
		t.Error("Expected missing file to fail")
	}
	if loader.Cache.Len() != 0 {
		t.Error("Failed loads must not be cached")
	}
}

func TestMapLoaderRelativeLocations(t *testing.T) {
	loader := MapLoader{
		"wsdl/main.xsd":         documentSchema,
		"wsdl/types/person.xsd": personSchema,
		"wsdl/types/common.xsd": commonSchema,
	}
	schema, err := LoadSchema("wsdl/main.xsd", WithLoader(loader))
	if err != nil {
		t.Fatal(err)
	}
	assertDocument(t, schema)
}

func TestCircularImports(t *testing.T) {
	loader := MapLoader{
		"a.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="urn:a" xmlns:a="urn:a" xmlns:b="urn:b">
  <xs:import namespace="urn:b" schemaLocation="b.xsd"/>
  <xs:element name="a" type="b:B"/>
  <xs:complexType name="A">
    <xs:sequence><xs:element name="v" type="xs:string"/></xs:sequence>
  </xs:complexType>
</xs:schema>`,
		"b.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema"
           targetNamespace="urn:b" xmlns:a="urn:a" xmlns:b="urn:b">
  <xs:import namespace="urn:a" schemaLocation="a.xsd"/>
  <xs:complexType name="B">
    <xs:sequence><xs:element name="inner" type="a:A" minOccurs="0"/></xs:sequence>
  </xs:complexType>
</xs:schema>`,
	}

	var loads []string
	counting := LoaderFunc(func(location, base string) (*Source, error) {
		src, err := loader.Load(location, base)
		if err == nil {
			loads = append(loads, src.Location)
		}
		return src, err
	})

	schema, err := LoadSchema("a.xsd", WithLoader(counting))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"a.xsd", "b.xsd", "a.xsd"}; !reflect.DeepEqual(loads, want) {
		t.Errorf("Loads = %v, want %v", loads, want)
	}
	el, err := schema.GetElement(QName{Namespace: "urn:a", Local: "a"})
	if err != nil {
		t.Fatal(err)
	}
	if got := el.Signature(schema); got != "ns0:a(ns1:B)" {
		t.Errorf("Signature = %s", got)
	}
}

func TestImportFailuresAreNotFatal(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	src := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:main">
  <xs:import namespace="urn:gone" schemaLocation="gone.xsd"/>
  <xs:import namespace="urn:nowhere"/>
  <xs:import namespace="http://www.w3.org/2001/XMLSchema"/>
  <xs:element name="ok" type="xs:string"/>
</xs:schema>`
	root := parseXML(t, src)
	if _, err := ParseNode(root, WithLoader(MapLoader{}), WithLogger(logger)); err != nil {
		t.Fatalf("Missing imports should only warn: %v", err)
	}
	out := logs.String()
	for _, want := range []string{"failed to import schema", "import without schemaLocation"} {
		if !strings.Contains(out, want) {
			t.Errorf("Log output does not contain %q:\n%s", want, out)
		}
	}

	logs.Reset()
	if _, err := ParseNode(root, WithLogger(logger)); err != nil {
		t.Fatalf("Imports without a loader should only warn: %v", err)
	}
	if !strings.Contains(logs.String(), "no loader for import") {
		t.Errorf("Log output: %s", logs.String())
	}
}

func TestImportNamespaceMismatch(t *testing.T) {
	loader := MapLoader{
		"main.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:main">
  <xs:import namespace="urn:expected" schemaLocation="other.xsd"/>
</xs:schema>`,
		"other.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:actual"/>`,
	}
	_, err := LoadSchema("main.xsd", WithLoader(loader))
	var se *SchemaSyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("Expected SchemaSyntaxError, got %v", err)
	}
	if !strings.Contains(se.Message, "does not match") || se.Location != "main.xsd" {
		t.Errorf("Unexpected error: %+v", se)
	}
}

func TestIncludeFailures(t *testing.T) {
	include := `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:main">
  <xs:include schemaLocation="part.xsd"/>
</xs:schema>`

	tests := []struct {
		name   string
		loader Loader
		want   string
	}{
		{name: "no loader", want: "no loader configured"},
		{name: "missing document", loader: MapLoader{}, want: "failed to include part.xsd"},
		{
			name:   "foreign namespace",
			loader: MapLoader{"part.xsd": `<xs:schema xmlns:xs="http://www.w3.org/2001/XMLSchema" targetNamespace="urn:other"/>`},
			want:   `has targetNamespace "urn:other"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.loader != nil {
				opts = append(opts, WithLoader(tt.loader))
			}
			err := schemaError(t, include, opts...)
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestNotASchemaDocument(t *testing.T) {
	err := schemaError(t, `<definitions xmlns="http://schemas.xmlsoap.org/wsdl/"/>`)
	var se *SchemaSyntaxError
	if !errors.As(err, &se) || !strings.Contains(se.Message, "not an XSD schema document") {
		t.Errorf("Unexpected error: %v", err)
	}
}
