package validate

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/quietloop/planrunner/pkg/contracts"
)

// typeSchemas compiles one tiny JSON Schema per ArgType and caches it,
// so each argument value's type can be checked with a real schema
// validator instead of a hand-rolled type switch.
var (
	typeSchemasOnce sync.Once
	typeSchemas     map[contracts.ArgType]*jsonschema.Schema
	typeSchemasErr  error
)

func schemaFor(t contracts.ArgType) (*jsonschema.Schema, error) {
	typeSchemasOnce.Do(func() {
		defs := map[contracts.ArgType]string{
			contracts.ArgString:  `{"type":"string"}`,
			contracts.ArgNumber:  `{"type":"number"}`,
			contracts.ArgBoolean: `{"type":"boolean"}`,
			contracts.ArgObject:  `{"type":"object"}`,
			contracts.ArgArray:   `{"type":"array"}`,
			contracts.ArgAny:     `{}`,
		}
		compiler := jsonschema.NewCompiler()
		for argType, body := range defs {
			url := "mem://argtype/" + string(argType) + ".json"
			if err := compiler.AddResource(url, strings.NewReader(body)); err != nil {
				typeSchemasErr = fmt.Errorf("validate: compiling schema for %s: %w", argType, err)
				return
			}
		}
		typeSchemas = make(map[contracts.ArgType]*jsonschema.Schema, len(defs))
		for argType := range defs {
			url := "mem://argtype/" + string(argType) + ".json"
			s, err := compiler.Compile(url)
			if err != nil {
				typeSchemasErr = fmt.Errorf("validate: compiling schema for %s: %w", argType, err)
				return
			}
			typeSchemas[argType] = s
		}
	})
	if typeSchemasErr != nil {
		return nil, typeSchemasErr
	}
	s, ok := typeSchemas[t]
	if !ok {
		return nil, fmt.Errorf("validate: no schema for arg type %q", t)
	}
	return s, nil
}

// checkArgType validates a single resolved argument value against its
// declared ArgType.
func checkArgType(t contracts.ArgType, value any) error {
	if t == contracts.ArgAny || t == "" {
		return nil
	}
	s, err := schemaFor(t)
	if err != nil {
		return err
	}
	// jsonschema validates decoded-JSON-shaped values; a plain Go int
	// passes the "number" check the same as a float64 would.
	if n, ok := value.(int); ok {
		value = float64(n)
	}
	return s.Validate(value)
}
