package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError is one problem found in a configuration.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// GenerateJSONSchema produces the JSON Schema of the configuration document.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(&Config{})
	s.ID = "https://github.com/ormasoftchile/rail/schemas/config-v0.json"
	s.Title = "rail configuration"
	s.Description = "Schema for rail.yaml configuration documents"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

// ValidateFile runs the structural, semantic and domain phases on path.
func ValidateFile(path string) (*Config, []*ValidationError) {
	c, err := LoadFile(path)
	if err != nil {
		return nil, []*ValidationError{{Phase: "structural", Message: err.Error(), Severity: "error"}}
	}
	if errs := Validate(c); len(errs) > 0 {
		return c, errs
	}
	return c, nil
}

// Validate runs the semantic and domain phases on a loaded configuration.
func Validate(c *Config) []*ValidationError {
	errs := validateSemantic(c)
	return append(errs, validateDomain(c)...)
}

func semanticError(format string, args ...any) []*ValidationError {
	return []*ValidationError{{Phase: "semantic", Message: fmt.Sprintf(format, args...), Severity: "error"}}
}

func validateSemantic(c *Config) []*ValidationError {
	data, err := json.Marshal(c)
	if err != nil {
		return semanticError("marshal for schema validation: %v", err)
	}
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return semanticError("generate schema: %v", err)
	}
	schemaDoc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return semanticError("unmarshal schema: %v", err)
	}

	compiler := sjsonschema.NewCompiler()
	if err := compiler.AddResource("config-v0.json", schemaDoc); err != nil {
		return semanticError("add schema resource: %v", err)
	}
	sch, err := compiler.Compile("config-v0.json")
	if err != nil {
		return semanticError("compile schema: %v", err)
	}

	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return semanticError("unmarshal document: %v", err)
	}
	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return semanticError("%v", err)
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     strings.Join(cause.InstanceLocation, "/"),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

func validateDomain(c *Config) []*ValidationError {
	var errs []*ValidationError
	add := func(path, format string, args ...any) {
		errs = append(errs, &ValidationError{Phase: "domain", Path: path, Message: fmt.Sprintf(format, args...), Severity: "error"})
	}

	for path, v := range map[string]string{
		"engine/requestTimeout": c.Engine.RequestTimeout,
		"worker/requestTimeout": c.Worker.RequestTimeout,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			add(path, "invalid duration %q", v)
		}
	}

	seen := map[string]bool{}
	for i, r := range c.Approvals.Rules {
		path := fmt.Sprintf("approvals/rules/%d", i)
		if strings.TrimSpace(r.Name) == "" {
			add(path+"/name", "rule name must not be empty")
		} else if seen[r.Name] {
			add(path+"/name", "duplicate rule name %q", r.Name)
		}
		seen[r.Name] = true
		if strings.TrimSpace(r.When) == "" {
			add(path+"/when", "rule condition must not be empty")
		}
	}

	if len(c.Engine.Args) > 0 && strings.TrimSpace(c.Engine.Args[0]) == "" {
		add("engine/args/0", "first engine argument must not be empty")
	}
	return errs
}
