package archive

import (
	"encoding/json"
	"sort"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// GenerateSchema reflects the JSON Schema of T with every definition inlined.
func GenerateSchema[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: false,
	}
	var v T
	return reflector.Reflect(v)
}

var schemas = map[string]func() *jsonschema.Schema{
	"record":     GenerateSchema[Record],
	"transcript": GenerateSchema[Transcript],
	"chunk":      GenerateSchema[Chunk],
}

// SchemaNames lists the documents SchemaJSON can describe.
func SchemaNames() []string {
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SchemaJSON returns the indented JSON Schema of the named document
// ("record", "transcript" or "chunk").
func SchemaJSON(name string) ([]byte, error) {
	gen, ok := schemas[name]
	if !ok {
		return nil, errors.Errorf("unknown schema %q (want one of %v)", name, SchemaNames())
	}
	b, err := json.MarshalIndent(gen(), "", "  ")
	if err != nil {
		return nil, errors.Wrapf(err, "marshal %s schema", name)
	}
	return b, nil
}
