// Command generate-schema writes the JSON Schema of the dittoweb config file.
//
// Usage:
//
//	generate-schema [-o config.schema.json]
//
// Pass "-o -" to print the schema to stdout.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/dittoweb/pkg/adapter"
	"github.com/marmos91/dittoweb/pkg/config"
)

const schemaID = "https://github.com/marmos91/dittoweb/config.schema.json"

func main() {
	output := flag.String("o", "config.schema.json", "output file (- for stdout)")
	flag.Parse()

	schemaJSON, err := generate()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	if *output == "-" {
		if err := writeTo(os.Stdout, schemaJSON); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing schema: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := os.WriteFile(*output, append(schemaJSON, '\n'), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("JSON schema written to %s\n", *output)
}

// generate reflects config.Config into an indented JSON Schema. Property names
// follow the mapstructure tags, so they match the keys viper reads.
func generate() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		FieldNameTag:              "mapstructure",
		// Every key has a default, so none is required in the file
		RequiredFromJSONSchemaTags: true,
	}

	schema := reflector.Reflect(&config.Config{})
	schema.ID = schemaID
	schema.Title = "dittoweb Configuration"
	schema.Description = "Configuration file for the dittoweb static file server"

	if concurrency := property(schema, "server", "concurrency"); concurrency != nil {
		for _, mode := range adapter.Modes {
			concurrency.Enum = append(concurrency.Enum, mode)
		}
	}

	return json.MarshalIndent(schema, "", "  ")
}

// property walks nested object properties by name, returning nil when the
// path does not exist.
func property(s *jsonschema.Schema, names ...string) *jsonschema.Schema {
	for _, name := range names {
		if s == nil || s.Properties == nil {
			return nil
		}
		next, ok := s.Properties.Get(name)
		if !ok {
			return nil
		}
		s = next
	}
	return s
}

func writeTo(w io.Writer, schemaJSON []byte) error {
	_, err := w.Write(append(schemaJSON, '\n'))
	return err
}
