package config

import (
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

// Schema describes the YAML configuration file.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		FieldNameTag:               "yaml",
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
					Description: "Go duration such as 250ms or 10s",
				}
			}
			return nil
		},
	}
	schema := reflector.Reflect(new(Config))
	schema.Title = "BDDMP configuration"
	schema.Description = "Settings for the relay and probe processes. Every field may be overridden by a " + EnvPrefix + " environment variable."
	return schema
}
