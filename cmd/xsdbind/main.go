package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/agentflare-ai/go-xsdbind"
	"github.com/agentflare-ai/go-xsdbind/xmlnode"
	"github.com/kr/pretty"
)

func main() {
	var (
		schemaFile   = flag.String("schema", "", "Path or URL of the root XSD document")
		instanceFile = flag.String("instance", "", "XML instance to decode and re-encode")
		settingsFile = flag.String("settings", "", "YAML file with codec settings")
		remote       = flag.Bool("remote", false, "Allow imports over http(s)")
		verbose      = flag.Bool("verbose", false, "Print debug logging")
		color        = flag.Bool("color", true, "Colorize diagnostics")
	)
	flag.Parse()

	if *schemaFile == "" {
		fmt.Println("Usage: xsdbind -schema <file.xsd> [-instance <file.xml>] [-settings <settings.yaml>]")
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	settings := xsd.DefaultSettings()
	if *settingsFile != "" {
		data, err := os.ReadFile(*settingsFile)
		if err != nil {
			log.Fatalf("Failed to read settings: %v", err)
		}
		if settings, err = xsd.LoadSettings(data); err != nil {
			log.Fatalf("%v", err)
		}
	}

	loader := xsd.NewFileLoader("")
	loader.AllowRemote = *remote
	loader.SetLogger(logger)

	formatter := &xsd.ErrorFormatter{Color: *color}

	schema, err := xsd.LoadSchema(*schemaFile,
		xsd.WithLoader(loader),
		xsd.WithSettings(settings),
		xsd.WithLogger(logger),
	)
	if err != nil {
		report(formatter, *schemaFile, err)
		os.Exit(1)
	}

	fmt.Println("Global elements:")
	for _, name := range schema.ElementNames() {
		el, err := schema.GetElement(name)
		if err != nil {
			continue
		}
		fmt.Printf("  %s\n", el.Signature(schema))
	}
	fmt.Println("Global types:")
	for _, name := range schema.TypeNames() {
		t, err := schema.GetType(name)
		if err != nil {
			continue
		}
		fmt.Printf("  %s: %s\n", schema.PrefixedName(name), t.Signature(schema))
	}

	if *instanceFile == "" {
		return
	}

	file, err := os.Open(*instanceFile)
	if err != nil {
		log.Fatalf("Failed to open instance: %v", err)
	}
	defer file.Close()

	doc, err := xmlnode.Decode(file)
	if err != nil {
		report(formatter, *instanceFile, err)
		os.Exit(1)
	}

	value, el, err := schema.Decode(doc)
	if err != nil {
		report(formatter, *instanceFile, err)
		os.Exit(1)
	}
	fmt.Printf("\n%s =\n", schema.PrefixedName(el.QName()))
	fmt.Printf("%# v\n", pretty.Formatter(value))

	out, err := schema.Encode(el.QName(), value)
	if err != nil {
		report(formatter, *instanceFile, err)
		os.Exit(1)
	}
	data, err := xmlnode.MarshalIndent(out, "  ")
	if err != nil {
		log.Fatalf("Failed to serialize: %v", err)
	}
	fmt.Printf("\n%s\n", data)
}

func report(formatter *xsd.ErrorFormatter, file string, err error) {
	source, _ := os.ReadFile(file)
	diag := xsd.NewDiagnosticConverter(file).Convert(err)
	fmt.Fprint(os.Stderr, formatter.Format(diag, string(source)))
}
