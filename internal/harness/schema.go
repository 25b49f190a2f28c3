package harness

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed scenario.cue
var scenarioSchema string

// Validation error codes (E200-E299)
const (
	// Schema errors (E200-E209)
	ErrSchemaSyntax    = "E200" // file is not valid YAML
	ErrSchemaViolation = "E201" // document does not match the scenario schema

	// Semantic errors (E210-E219)
	ErrDuplicateThinker = "E210" // two thinkers share a name
	ErrUnknownThinker   = "E211" // reference to a thinker that is never spawned
	ErrStepOperation    = "E212" // step must name exactly one operation
	ErrStepTick         = "E213" // step tick beyond the scenario's tick count
	ErrAssertionField   = "E214" // assertion is missing a field its type needs
	ErrDormantScript    = "E215" // dormant thinkers cannot run steps
)

// ValidationError represents a scenario validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// ValidationErrors is a non-empty list of validation errors.
type ValidationErrors []ValidationError

// Error joins the messages, one per line.
func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "\n")
}

// ValidateSchema checks a scenario document against the CUE schema.
// Returns all errors found (does not fail-fast).
func ValidateSchema(data []byte) []ValidationError {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return []ValidationError{{
			Field:   "document",
			Message: err.Error(),
			Code:    ErrSchemaSyntax,
		}}
	}
	if doc == nil {
		doc = map[string]any{}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(scenarioSchema, cue.Filename("scenario.cue"))
	if err := schema.Err(); err != nil {
		// The schema is embedded; failing to compile it is a build defect.
		panic(fmt.Sprintf("compile scenario schema: %v", err))
	}

	def := schema.LookupPath(cue.ParsePath("#Scenario"))
	value := def.Unify(ctx.Encode(doc))

	err := value.Validate(cue.Concrete(true))
	if err == nil {
		return nil
	}

	var errs []ValidationError
	for _, e := range cueerrors.Errors(err) {
		field := strings.Join(e.Path(), ".")
		if field == "" {
			field = "document"
		}
		format, args := e.Msg()
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf(format, args...),
			Code:    ErrSchemaViolation,
		})
	}
	return errs
}
