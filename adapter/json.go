package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/skosovsky/promptsig"
	"github.com/skosovsky/promptsig/schema"
	"github.com/skosovsky/promptsig/signature"
)

// JSON asks for a single JSON object keyed by output field names. Inputs
// are still sent as marker sections.
type JSON struct{}

// NewJSON returns the JSON-object adapter.
func NewJSON() *JSON { return &JSON{} }

// Name implements Adapter.
func (*JSON) Name() string { return "json" }

// Format implements Adapter.
func (j *JSON) Format(sig *signature.Signature, demos []signature.Demo, inputs map[string]any) ([]promptsig.Message, error) {
	return formatMessages(j, sig, demos, inputs)
}

// ResponseFormat implements StructuredOutput with the output object schema.
func (*JSON) ResponseFormat(sig *signature.Signature) *promptsig.ResponseFormat {
	outs := sig.Outputs()
	props := make([]schema.Property, len(outs))
	for i, f := range outs {
		t := f.Type
		if f.Description != "" && t.Description() == "" {
			t = t.WithDescription(f.Description)
		}
		props[i] = schema.Prop(f.Name, t)
	}
	return &promptsig.ResponseFormat{Name: "outputs", Schema: schema.ObjectSchema(props)}
}

// Parse implements Adapter. A completion that is not a usable JSON object is
// retried with the marker-text parser. When both fail, the marker error is
// returned for non-JSON text and the JSON error otherwise.
func (j *JSON) Parse(sig *signature.Signature, completion string, partial bool) (map[string]any, error) {
	parsed, err := j.parseObject(sig, completion, partial)
	if err == nil {
		return parsed, nil
	}
	parsed, markerErr := parseMarkers(j.Name(), sig, completion, partial)
	if markerErr == nil {
		return parsed, nil
	}
	if errors.Is(err, ErrMalformedJSON) {
		return nil, markerErr
	}
	return nil, err
}

func (j *JSON) parseObject(sig *signature.Signature, completion string, partial bool) (map[string]any, error) {
	if sig == nil {
		return nil, promptsig.ErrNilSignature
	}
	fail := func(err error) *ParseError {
		return &ParseError{Adapter: j.Name(), Signature: sig, Completion: completion, Err: err}
	}
	text := extractJSONObject(completion)
	if text == "" {
		return nil, fail(ErrMalformedJSON)
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fail(fmt.Errorf("%w: %w", ErrMalformedJSON, err))
	}

	parsed := make(map[string]any)
	for _, f := range sig.Outputs() {
		v, ok := obj[f.Name]
		if !ok {
			continue
		}
		c, err := coerceValue(f.Type, v, 0)
		if err != nil {
			raw := rawText(v)
			if partial {
				parsed[f.Name] = raw
				continue
			}
			pe := fail(coercionError(err))
			pe.Parsed, pe.Field, pe.Raw = parsed, f.Name, raw
			return nil, pe
		}
		parsed[f.Name] = c
	}
	if err := checkFields(j.Name(), sig, completion, parsed, partial); err != nil {
		return nil, err
	}
	return parsed, nil
}

// rawText is the text of a decoded JSON value as the LM wrote it: strings
// verbatim, anything else as compact JSON.
func rawText(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := encodeJSON(normalize(v), "", "")
	if err != nil {
		return fmt.Sprint(v)
	}
	return raw
}

func (*JSON) fieldStructure(sig *signature.Signature) (string, error) {
	outs := sig.Outputs()
	names := make([]string, len(outs))
	hints := make([]any, len(outs))
	for i, f := range outs {
		names[i] = f.Name
		hints[i] = typeHint(f)
	}
	skeleton, err := orderedJSON(names, hints)
	if err != nil {
		return "", err
	}
	parts := []string{structureIntro}
	if in := sig.Inputs(); len(in) > 0 {
		parts = append(parts, "Inputs will have the following structure:", markerStructure(in))
	}
	parts = append(parts, "Outputs will be a JSON object with the following fields.", skeleton)
	return strings.Join(parts, "\n\n"), nil
}

func (*JSON) outputRequirements(sig *signature.Signature) string {
	outs := sig.Outputs()
	fields := make([]string, len(outs))
	for i, f := range outs {
		fields[i] = "`" + f.Name + "`" + typeRequirement(f)
	}
	return "Respond with a JSON object in the following order of fields: " + strings.Join(fields, ", then ") + "."
}

func (*JSON) assistantContent(sig *signature.Signature, values map[string]any, missing string) (string, error) {
	var names []string
	var vals []any
	for _, f := range sig.Outputs() {
		v, present := values[f.Name]
		switch {
		case !present || (v == nil && missing != ""):
			if missing == "" {
				continue
			}
			v = missing
		case schema.HasCustom(f.Type):
			var err error
			if v, err = substituteCustom(f.Type, v, inlineCustom, 0); err != nil {
				return "", fmt.Errorf("adapter: field %q: %w", f.Name, err)
			}
		}
		names = append(names, f.Name)
		vals = append(vals, v)
	}
	return orderedJSON(names, vals)
}

// orderedJSON renders an indented JSON object with keys in the given order.
func orderedJSON(keys []string, values []any) (string, error) {
	if len(keys) == 0 {
		return "{}", nil
	}
	var b strings.Builder
	b.WriteString("{\n")
	for i, k := range keys {
		kj, err := encodeJSON(k, "", "")
		if err != nil {
			return "", err
		}
		vj, err := encodeJSON(values[i], "  ", "  ")
		if err != nil {
			return "", err
		}
		b.WriteString("  " + kj + ": " + vj)
		if i < len(keys)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
	b.WriteByte('}')
	return b.String(), nil
}

// extractJSONObject returns the first balanced {...} span of s, skipping
// braces inside string literals. Code fences around it are ignored.
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
