package harness

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one thinker"
ticks: 1
thinkers:
  - name: a
assertions:
  - type: visit_order
    tick: 1
    thinkers: [a]
`

func validationCodes(t *testing.T, err error) []string {
	t.Helper()
	var errs ValidationErrors
	require.ErrorAs(t, err, &errs)
	codes := make([]string, len(errs))
	for i, e := range errs {
		codes[i] = e.Code
	}
	return codes
}

func TestParseScenario_Minimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	assert.Equal(t, 1, s.Ticks)
	require.Len(t, s.Thinkers, 1)
	assert.Equal(t, "a", s.Thinkers[0].Name)
	assert.Equal(t, 0, s.Thinkers[0].Arity)
	require.Len(t, s.Assertions, 1)
	assert.Equal(t, AssertVisitOrder, s.Assertions[0].Type)
	assert.Equal(t, []string{"a"}, s.Assertions[0].Thinkers)
}

func TestParseScenario_Steps(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: steps
description: "every operation"
ticks: 2
thinkers:
  - name: a
    arity: 2
    on:
      - tick: 1
        remove: b
      - tick: 2
        insert: b
      - tick: 2
        spawn: {name: c, arity: 1}
  - name: b
assertions:
  - type: alive
    thinkers: [a, b, c]
`))
	require.NoError(t, err)

	steps := s.Thinkers[0].On
	require.Len(t, steps, 3)
	assert.Equal(t, "b", steps[0].Remove)
	assert.Equal(t, "b", steps[1].Insert)
	require.NotNil(t, steps[2].Spawn)
	assert.Equal(t, "c", steps[2].Spawn.Name)
	assert.Equal(t, 1, steps[2].Spawn.Arity)
}

func TestValidateSchema_Valid(t *testing.T) {
	assert.Empty(t, ValidateSchema([]byte(minimalScenario)))
}

func TestValidateSchema_UnknownField(t *testing.T) {
	errs := ValidateSchema([]byte(minimalScenario + "assertion: []\n"))
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrSchemaViolation, errs[0].Code)
}

func TestValidateSchema_MissingTicks(t *testing.T) {
	errs := ValidateSchema([]byte(`
name: no_ticks
description: "ticks missing"
thinkers: []
assertions:
  - type: alive
`))
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrSchemaViolation, errs[0].Code)
}

func TestValidateSchema_BadArity(t *testing.T) {
	errs := ValidateSchema([]byte(`
name: bad_arity
description: "arity out of range"
ticks: 1
thinkers:
  - name: a
    arity: 3
assertions:
  - type: alive
`))
	require.NotEmpty(t, errs)
	assert.Equal(t, ErrSchemaViolation, errs[0].Code)
}

func TestValidateSchema_UnknownAssertionType(t *testing.T) {
	errs := ValidateSchema([]byte(`
name: bad_assertion
description: "unknown type"
ticks: 1
thinkers: []
assertions:
  - type: trace_contains
`))
	assert.NotEmpty(t, errs)
}

func TestValidateSchema_NoAssertions(t *testing.T) {
	errs := ValidateSchema([]byte(`
name: empty
description: "nothing asserted"
ticks: 1
thinkers: []
assertions: []
`))
	assert.NotEmpty(t, errs)
}

func TestValidateSchema_BadYAML(t *testing.T) {
	errs := ValidateSchema([]byte("name: [unclosed"))
	require.Len(t, errs, 1)
	assert.Equal(t, ErrSchemaSyntax, errs[0].Code)
}

func TestParseScenario_DuplicateThinker(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: dup
description: "duplicate names"
ticks: 1
thinkers:
  - name: a
  - name: a
assertions:
  - type: alive
    thinkers: [a]
`))
	assert.Equal(t, []string{ErrDuplicateThinker}, validationCodes(t, err))
}

func TestParseScenario_UnknownReference(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: unknown
description: "reference to a missing thinker"
ticks: 1
thinkers:
  - name: a
    on:
      - tick: 1
        despawn: ghost
assertions:
  - type: visited
    tick: 1
    thinker: phantom
`))
	assert.Equal(t, []string{ErrUnknownThinker, ErrUnknownThinker}, validationCodes(t, err))
}

func TestParseScenario_SpawnedNameIsKnown(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: spawned
description: "assert on a spawned thinker"
ticks: 2
thinkers:
  - name: a
    on:
      - tick: 1
        spawn: {name: b}
assertions:
  - type: visited
    tick: 2
    thinker: b
`))
	assert.NoError(t, err)
}

func TestParseScenario_StepRules(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: steps
description: "bad steps"
ticks: 1
thinkers:
  - name: a
    on:
      - tick: 1
        remove: b
        despawn: b
      - tick: 5
        remove: b
  - name: b
    dormant: true
    on:
      - tick: 1
        remove: a
assertions:
  - type: alive
`))
	codes := validationCodes(t, err)
	slices.Sort(codes)
	assert.Equal(t, []string{ErrStepOperation, ErrStepTick, ErrDormantScript}, codes)
}

func TestParseScenario_AssertionFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: fields
description: "assertions missing fields"
ticks: 1
thinkers:
  - name: a
assertions:
  - type: visited
  - type: error
`))
	codes := validationCodes(t, err)
	assert.Len(t, codes, 3, "visited needs tick and thinker, error needs code")
	for _, c := range codes {
		assert.Equal(t, ErrAssertionField, c)
	}
}

func TestParseScenario_NormalizesNames(t *testing.T) {
	// "e" + combining acute in the declaration, precomposed in the assertion.
	s, err := ParseScenario([]byte("name: nfc\ndescription: \"normalization\"\nticks: 1\nthinkers:\n  - name: \"caf\\u0065\\u0301\"\nassertions:\n  - type: visited\n    tick: 1\n    thinker: \"caf\\u00e9\"\n"))
	require.NoError(t, err)
	assert.Equal(t, s.Thinkers[0].Name, s.Assertions[0].Thinker)
}

func TestLoadScenario_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "minimal", s.Name)
}

func TestLoadScenario_Missing(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read scenario file")
}

func TestValidationError_Format(t *testing.T) {
	e := ValidationError{Field: "thinkers[0].name", Message: "duplicate", Code: ErrDuplicateThinker}
	assert.Equal(t, "[E210] thinkers[0].name: duplicate", e.Error())

	e.Line = 4
	assert.Equal(t, "[E210] line 4: thinkers[0].name: duplicate", e.Error())
}
