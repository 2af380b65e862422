package adapter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skosovsky/promptsig"
	"github.com/skosovsky/promptsig/signature"
)

// Adapter formats a signature call into messages and parses completions.
type Adapter interface {
	// Name identifies the wire format in errors, logs and traces.
	Name() string
	// Format returns [system, ...demos, ...history, current user] messages.
	Format(sig *signature.Signature, demos []signature.Demo, inputs map[string]any) ([]promptsig.Message, error)
	// Parse extracts output fields from completion. With partial set, missing
	// fields and fields that fail coercion are tolerated.
	Parse(sig *signature.Signature, completion string, partial bool) (map[string]any, error)
}

// StructuredOutput is implemented by adapters that can ask the LM for
// schema-constrained output.
type StructuredOutput interface {
	ResponseFormat(sig *signature.Signature) *promptsig.ResponseFormat
}

// Sentinel errors. Callers should use errors.Is.
var (
	ErrFieldMismatch       = errors.New("adapter: output fields do not match the signature")
	ErrFieldCoercion       = errors.New("adapter: field value does not match its type")
	ErrMalformedJSON       = errors.New("adapter: completion is not a JSON object")
	ErrContextRequired     = errors.New("adapter: context required to format custom types")
	ErrDanglingPlaceholder = errors.New("adapter: placeholder marker has no stored value")
	ErrUnknownField        = errors.New("adapter: input is not a field of the signature")
	ErrInvalidHistory      = errors.New("adapter: history must be a list of records")
)

// ParseError reports a completion that could not be turned into the
// signature's output fields. Use errors.As to inspect it and errors.Is with
// ErrFieldMismatch, ErrFieldCoercion or ErrMalformedJSON for the cause.
type ParseError struct {
	Adapter    string
	Signature  *signature.Signature
	Completion string
	Parsed     map[string]any // fields recovered before the failure

	Field string // set for coercion failures
	Raw   string // raw section text of Field

	Expected []string // set for field-set mismatches
	Actual   []string

	Err error
}

// Error implements error.
func (e *ParseError) Error() string {
	switch {
	case e.Field != "":
		return fmt.Sprintf("adapter: %s: field %q: %v", e.Adapter, e.Field, e.Err)
	case e.Expected != nil:
		return fmt.Sprintf("adapter: %s: expected fields [%s], got [%s]: %v",
			e.Adapter, strings.Join(e.Expected, ", "), strings.Join(e.Actual, ", "), e.Err)
	default:
		return fmt.Sprintf("adapter: %s: %v", e.Adapter, e.Err)
	}
}

// Unwrap returns the cause for errors.Is/errors.As.
func (e *ParseError) Unwrap() error { return e.Err }

var _ error = (*ParseError)(nil)

// checkFields enforces that parsed holds exactly the output fields unless
// partial output is allowed.
func checkFields(name string, sig *signature.Signature, completion string, parsed map[string]any, partial bool) error {
	if partial {
		return nil
	}
	expected := sig.OutputNames()
	actual := make([]string, 0, len(parsed))
	for _, n := range expected {
		if _, ok := parsed[n]; ok {
			actual = append(actual, n)
		}
	}
	if len(actual) == len(expected) {
		return nil
	}
	return &ParseError{
		Adapter:    name,
		Signature:  sig,
		Completion: completion,
		Parsed:     parsed,
		Expected:   expected,
		Actual:     actual,
		Err:        ErrFieldMismatch,
	}
}
