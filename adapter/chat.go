package adapter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/skosovsky/promptsig"
	"github.com/skosovsky/promptsig/signature"
)

var headerRE = regexp.MustCompile(`^\[\[ ## (\w+) ## \]\]`)

// Chat delimits every field with a [[ ## name ## ]] header line.
type Chat struct{}

// NewChat returns the marker-text adapter.
func NewChat() *Chat { return &Chat{} }

// Name implements Adapter.
func (*Chat) Name() string { return "chat" }

// Format implements Adapter.
func (c *Chat) Format(sig *signature.Signature, demos []signature.Demo, inputs map[string]any) ([]promptsig.Message, error) {
	return formatMessages(c, sig, demos, inputs)
}

// Parse implements Adapter.
func (c *Chat) Parse(sig *signature.Signature, completion string, partial bool) (map[string]any, error) {
	return parseMarkers(c.Name(), sig, completion, partial)
}

func (*Chat) fieldStructure(sig *signature.Signature) (string, error) {
	parts := []string{structureIntro}
	if in := sig.Inputs(); len(in) > 0 {
		parts = append(parts, markerStructure(in))
	}
	parts = append(parts, markerStructure(sig.Outputs()), completedMarker)
	return strings.Join(parts, "\n\n"), nil
}

func (*Chat) outputRequirements(sig *signature.Signature) string {
	outs := sig.Outputs()
	fields := make([]string, len(outs))
	for i, f := range outs {
		fields[i] = "`" + fieldHeader(f.Name) + "`" + typeRequirement(f)
	}
	return "Respond with the corresponding output fields, starting with the field " +
		strings.Join(fields, ", then ") +
		", and then ending with the marker for `" + completedMarker + "`."
}

func (*Chat) assistantContent(sig *signature.Signature, values map[string]any, missing string) (string, error) {
	var parts []string
	for _, f := range sig.Outputs() {
		text, ok, err := fieldText(f, values, inlineCustom, missing)
		if err != nil {
			return "", err
		}
		if ok {
			parts = append(parts, fieldHeader(f.Name)+"\n"+text)
		}
	}
	parts = append(parts, completedMarker)
	return strings.Join(parts, "\n\n"), nil
}

type section struct {
	name  string
	lines []string
}

// splitSections scans completion line by line. A header line opens a new
// section; text after the header on the same line belongs to it. The first
// section is the unnamed preamble.
func splitSections(completion string) []section {
	sections := []section{{}}
	for _, line := range strings.Split(completion, "\n") {
		line = strings.TrimSuffix(line, "\r")
		trimmed := strings.TrimSpace(line)
		if m := headerRE.FindStringSubmatchIndex(trimmed); m != nil {
			s := section{name: trimmed[m[2]:m[3]]}
			if rest := strings.TrimSpace(trimmed[m[1]:]); rest != "" {
				s.lines = append(s.lines, rest)
			}
			sections = append(sections, s)
			continue
		}
		last := &sections[len(sections)-1]
		last.lines = append(last.lines, line)
	}
	return sections
}

func parseMarkers(name string, sig *signature.Signature, completion string, partial bool) (map[string]any, error) {
	if sig == nil {
		return nil, promptsig.ErrNilSignature
	}
	parsed := make(map[string]any)
	for _, s := range splitSections(completion)[1:] {
		f, ok := sig.Output(s.name)
		if !ok {
			continue
		}
		if _, seen := parsed[s.name]; seen {
			continue
		}
		raw := strings.TrimSpace(strings.Join(s.lines, "\n"))
		v, err := coerceText(f.Type, raw)
		if err != nil {
			if partial {
				parsed[s.name] = raw
				continue
			}
			return nil, &ParseError{
				Adapter:    name,
				Signature:  sig,
				Completion: completion,
				Parsed:     parsed,
				Field:      s.name,
				Raw:        raw,
				Err:        coercionError(err),
			}
		}
		parsed[s.name] = v
	}
	if err := checkFields(name, sig, completion, parsed, partial); err != nil {
		return nil, err
	}
	return parsed, nil
}

func coercionError(err error) error {
	if errors.Is(err, ErrFieldCoercion) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrFieldCoercion, err)
}
