package adapter

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/skosovsky/promptsig"
	"github.com/skosovsky/promptsig/schema"
	"github.com/skosovsky/promptsig/signature"
)

const (
	incompleteDemoPrefix = "This is an example of the task, though some input or output fields are not supplied."
	notSupplied          = "Not supplied for this particular example. "
	completedMarker      = "[[ ## completed ## ]]"
	structureIntro       = "All interactions will be structured in the following way, with the appropriate values filled in."
)

// wireFormat is the part of message formatting that differs per adapter.
type wireFormat interface {
	fieldStructure(sig *signature.Signature) (string, error)
	outputRequirements(sig *signature.Signature) string
	assistantContent(sig *signature.Signature, values map[string]any, missing string) (string, error)
}

// formatMessages builds [system, ...incomplete demos, ...complete demos,
// ...history, current user] and expands placeholders in user messages.
func formatMessages(w wireFormat, sig *signature.Signature, demos []signature.Demo, inputs map[string]any) ([]promptsig.Message, error) {
	if sig == nil {
		return nil, promptsig.ErrNilSignature
	}
	inputs = maps.Clone(inputs)
	for name := range inputs {
		if _, ok := sig.Input(name); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, name)
		}
	}

	live := sig
	var history []map[string]any
	if hf, ok := sig.HistoryField(); ok {
		records, err := historyRecords(inputs[hf.Name])
		if err != nil {
			return nil, err
		}
		history = records
		live = sig.Delete(hf.Name)
		delete(inputs, hf.Name)
	}

	system, err := systemMessage(w, live)
	if err != nil {
		return nil, err
	}
	msgs := []promptsig.Message{promptsig.TextMessage(promptsig.RoleSystem, system)}

	ph := Placeholders{}
	turn := func(values map[string]any, prefix, missing string) error {
		user, err := userContent(live, values, ph, prefix, missing, "")
		if err != nil {
			return err
		}
		assistant, err := w.assistantContent(live, values, missing)
		if err != nil {
			return err
		}
		msgs = append(msgs,
			promptsig.TextMessage(promptsig.RoleUser, user),
			promptsig.TextMessage(promptsig.RoleAssistant, assistant),
		)
		return nil
	}

	complete, incomplete := signature.ClassifyDemos(live, demos)
	for _, d := range incomplete {
		if err := turn(d, incompleteDemoPrefix, notSupplied); err != nil {
			return nil, err
		}
	}
	for _, d := range complete {
		if err := turn(d, "", ""); err != nil {
			return nil, err
		}
	}
	for _, rec := range history {
		if err := turn(rec, "", ""); err != nil {
			return nil, err
		}
	}

	user, err := userContent(live, inputs, ph, "", "", w.outputRequirements(live))
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, promptsig.TextMessage(promptsig.RoleUser, user))
	return expandPlaceholders(msgs, ph)
}

func systemMessage(w wireFormat, sig *signature.Signature) (string, error) {
	structure, err := w.fieldStructure(sig)
	if err != nil {
		return "", err
	}
	descriptions := "Your input fields are:\n" + DescribeFields(sig.Inputs()) +
		"\nYour output fields are:\n" + DescribeFields(sig.Outputs())
	return strings.Join([]string{descriptions, structure, taskDescription(sig)}, "\n\n"), nil
}

func taskDescription(sig *signature.Signature) string {
	var b strings.Builder
	b.WriteString("In adhering to this structure, your objective is: ")
	for _, line := range strings.Split(sig.Instructions(), "\n") {
		b.WriteString("\n        ")
		b.WriteString(line)
	}
	return b.String()
}

func fieldHeader(name string) string {
	return "[[ ## " + name + " ## ]]"
}

// userContent renders the input fields present in values as marker sections.
// When missing is set, absent fields render as that text instead of being skipped.
func userContent(sig *signature.Signature, values map[string]any, ph Placeholders, prefix, missing, suffix string) (string, error) {
	var parts []string
	if prefix != "" {
		parts = append(parts, prefix)
	}
	for _, f := range sig.Inputs() {
		text, ok, err := fieldText(f, values, ph.encode, missing)
		if err != nil {
			return "", err
		}
		if ok {
			parts = append(parts, fieldHeader(f.Name)+"\n"+text)
		}
	}
	if suffix != "" {
		parts = append(parts, suffix)
	}
	return strings.TrimSpace(strings.Join(parts, "\n\n")), nil
}

func fieldText(f signature.Field, values map[string]any, enc customEncoder, missing string) (string, bool, error) {
	v, present := values[f.Name]
	if !present || (v == nil && missing != "") {
		return missing, missing != "", nil
	}
	text, err := formatValue(f.Type, v, enc)
	if err != nil {
		return "", false, fmt.Errorf("adapter: field %q: %w", f.Name, err)
	}
	return text, true, nil
}

// typeHint returns the "{name}" placeholder plus a formatting note for the
// field structure block.
func typeHint(f signature.Field) string {
	var note string
	u := schema.Unwrap(f.Type)
	switch u.Kind() {
	case schema.KindString, schema.KindCustom:
	case schema.KindBoolean:
		note = "must be true or false"
	case schema.KindInteger:
		note = "must be a single integer value"
	case schema.KindNumber:
		note = "must be a single number value"
	case schema.KindEnum:
		note = "must be one of: " + joinValues(u.Values())
	case schema.KindLiteral:
		note = "must exactly match (no extra characters) one of: " + joinValues(u.Values())
	default:
		js, err := json.Marshal(schema.JSONSchema(f.Type))
		if err == nil {
			note = "must adhere to the JSON schema: " + string(js)
		}
	}
	hint := "{" + f.Name + "}"
	if note != "" {
		hint += "        # note: the value you produce " + note
	}
	return hint
}

func joinValues(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "; ")
}

// typeRequirement is appended to an output name in the closing instruction.
func typeRequirement(f signature.Field) string {
	if schema.IsText(f.Type) || schema.Unwrap(f.Type).IsCustom() {
		return ""
	}
	return " (must be formatted as a valid " + schema.Describe(f.Type) + ")"
}

func markerStructure(fields []signature.Field) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fieldHeader(f.Name) + "\n" + typeHint(f)
	}
	return strings.Join(parts, "\n\n")
}

func historyRecords(v any) ([]map[string]any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []map[string]any:
		return x, nil
	case []signature.Demo:
		out := make([]map[string]any, len(x))
		for i, d := range x {
			out[i] = d
		}
		return out, nil
	case []any:
		out := make([]map[string]any, len(x))
		for i, e := range x {
			switch rec := e.(type) {
			case map[string]any:
				out[i] = rec
			case signature.Demo:
				out[i] = rec
			default:
				return nil, fmt.Errorf("%w: record %d is %T", ErrInvalidHistory, i, e)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: got %T", ErrInvalidHistory, v)
}
