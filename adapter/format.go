package adapter

import (
	"bytes"
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skosovsky/promptsig"
	"github.com/skosovsky/promptsig/internal/cast"
	"github.com/skosovsky/promptsig/schema"
)

// Custom-type marker delimiters. They never leave the formatter.
const (
	MarkerStart = "<<CUSTOM-TYPE-START-IDENTIFIER>>"
	MarkerEnd   = "<<CUSTOM-TYPE-END-IDENTIFIER>>"
)

var markerRE = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(MarkerStart) + `(.*?)` + regexp.QuoteMeta(MarkerEnd))

// Placeholder is a custom-type value waiting to be expanded into content parts.
type Placeholder struct {
	Type  *schema.Type
	Value any
}

// Placeholders maps marker ids to stored values for one Format call. A nil
// Placeholders means no context: custom values must then already be text.
type Placeholders map[string]Placeholder

const maxValueDepth = 64

// FormatValue renders one field value as prompt text.
//
// Custom-typed values are stored in ph under a fresh id and replaced by a
// marker; custom values nested in arrays or objects are replaced by markers
// inside the JSON rendering. A text field holding a list of strings renders
// as a numbered «» list ("N/A" when empty). Strings pass through; anything
// else is pretty-printed JSON with sorted keys.
func FormatValue(t *schema.Type, value any, ph Placeholders) (string, error) {
	return formatValue(t, value, ph.encode)
}

// customEncoder turns one custom-typed value into text.
type customEncoder func(t *schema.Type, value any) (string, error)

func formatValue(t *schema.Type, value any, enc customEncoder) (string, error) {
	u := schema.Unwrap(t)
	if u.IsCustom() {
		return enc(u, value)
	}
	if u.Kind() == schema.KindString {
		if items, ok := cast.ToStringSlice(value); ok {
			return formatList(items), nil
		}
	}
	switch v := value.(type) {
	case string:
		return v, nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	}
	if schema.HasCustom(t) {
		var err error
		if value, err = substituteCustom(t, value, enc, 0); err != nil {
			return "", err
		}
	}
	return marshalIndent(value)
}

// encode stores value under a fresh id and returns its marker.
func (ph Placeholders) encode(t *schema.Type, value any) (string, error) {
	if ph == nil {
		if s, ok := value.(string); ok {
			return s, nil
		}
		return "", fmt.Errorf("%w: %s value of type %T", ErrContextRequired, t.Name(), value)
	}
	id := uuid.NewString()
	ph[id] = Placeholder{Type: t, Value: value}
	return MarkerStart + id + MarkerEnd, nil
}

// inlineCustom renders a custom value as plain text for assistant turns. URLs
// are kept; inline images and files render as a short bracketed label.
func inlineCustom(t *schema.Type, value any) (string, error) {
	format := t.Formatter()
	if format == nil {
		if s, ok := value.(string); ok {
			return s, nil
		}
		return "", fmt.Errorf("adapter: custom type %q has no formatter", t.Name())
	}
	parts, err := format(value)
	if err != nil {
		return "", fmt.Errorf("adapter: format %s value: %w", t.Name(), err)
	}
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		switch p := p.(type) {
		case promptsig.TextPart:
			lines = append(lines, p.Text)
		case promptsig.ImagePart:
			if p.URL != "" && !strings.HasPrefix(p.URL, "data:") {
				lines = append(lines, p.URL)
			} else {
				lines = append(lines, "[image "+cmp.Or(p.MIMEType, "inline")+"]")
			}
		case promptsig.FilePart:
			lines = append(lines, "[file "+strings.TrimSpace(p.Filename+" "+p.MediaType)+"]")
		}
	}
	return strings.Join(lines, "\n"), nil
}

// substituteCustom walks value along t and replaces custom-typed leaves with
// the encoder's text, so that the JSON rendering carries markers or inline text.
func substituteCustom(t *schema.Type, value any, enc customEncoder, depth int) (any, error) {
	if t == nil || value == nil || depth > maxValueDepth {
		return value, nil
	}
	d := depth + 1
	switch t.Kind() {
	case schema.KindCustom:
		return enc(t, value)
	case schema.KindOptional, schema.KindNullable, schema.KindDefault, schema.KindReadonly:
		return substituteCustom(t.Elem(), value, enc, d)
	case schema.KindLazy:
		return substituteCustom(t.Resolve(), value, enc, d)
	case schema.KindArray, schema.KindSet:
		return mapSlice(value, func(_ int, e any) (any, error) {
			return substituteCustom(t.Elem(), e, enc, d)
		})
	case schema.KindTuple:
		items := t.Members()
		return mapSlice(value, func(i int, e any) (any, error) {
			if i >= len(items) {
				return e, nil
			}
			return substituteCustom(items[i], e, enc, d)
		})
	case schema.KindRecord, schema.KindMap:
		m, ok := value.(map[string]any)
		if !ok {
			return value, nil
		}
		out := make(map[string]any, len(m))
		for k, e := range m {
			v, err := substituteCustom(t.Value(), e, enc, d)
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	case schema.KindObject:
		m, ok := value.(map[string]any)
		if !ok {
			return value, nil
		}
		out := maps.Clone(m)
		for _, p := range t.Properties() {
			e, ok := m[p.Name]
			if !ok {
				continue
			}
			v, err := substituteCustom(p.Type, e, enc, d)
			if err != nil {
				return nil, err
			}
			out[p.Name] = v
		}
		return out, nil
	case schema.KindUnion, schema.KindDiscriminatedUnion:
		// The first custom member whose formatter accepts the value claims it.
		for _, m := range t.Members() {
			u := schema.Unwrap(m)
			if !u.IsCustom() || u.Formatter() == nil {
				continue
			}
			if _, err := u.Formatter()(value); err == nil {
				return enc(u, value)
			}
		}
	}
	return value, nil
}

func mapSlice(value any, fn func(int, any) (any, error)) (any, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return value, nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		v, err := fn(i, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func formatList(items []string) string {
	switch len(items) {
	case 0:
		return "N/A"
	case 1:
		return formatBlob(items[0])
	}
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = "[" + strconv.Itoa(i+1) + "] " + formatBlob(it)
	}
	return strings.Join(lines, "\n")
}

func formatBlob(blob string) string {
	if !strings.ContainsAny(blob, "\n«»") {
		return "«" + blob + "»"
	}
	return "«««\n    " + strings.ReplaceAll(blob, "\n", "\n    ") + "\n»»»"
}

// marshalIndent renders v as two-space indented JSON without HTML escaping,
// so markers survive intact.
func marshalIndent(v any) (string, error) {
	return encodeJSON(v, "", "  ")
}

func encodeJSON(v any, prefix, indent string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent(prefix, indent)
	}
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("adapter: encode value: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// expandPlaceholders splits every user message at placeholder markers and
// splices in the content parts produced by each custom formatter.
func expandPlaceholders(msgs []promptsig.Message, ph Placeholders) ([]promptsig.Message, error) {
	for i, m := range msgs {
		if m.Role != promptsig.RoleUser {
			continue
		}
		text := m.Text()
		if !strings.Contains(text, MarkerStart) {
			continue
		}
		parts, err := splitMarkers(text, ph)
		if err != nil {
			return nil, err
		}
		msgs[i].Content = parts
	}
	return msgs, nil
}

func splitMarkers(text string, ph Placeholders) ([]promptsig.ContentPart, error) {
	var parts []promptsig.ContentPart
	appendText := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, promptsig.TextPart{Text: s})
		}
	}
	last := 0
	for _, loc := range markerRE.FindAllStringSubmatchIndex(text, -1) {
		appendText(text[last:loc[0]])
		last = loc[1]
		id := text[loc[2]:loc[3]]
		p, ok := ph[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrDanglingPlaceholder, id)
		}
		format := p.Type.Formatter()
		if format == nil {
			return nil, fmt.Errorf("adapter: custom type %q has no formatter", p.Type.Name())
		}
		expanded, err := format(p.Value)
		if err != nil {
			return nil, fmt.Errorf("adapter: format %s value: %w", p.Type.Name(), err)
		}
		parts = append(parts, expanded...)
	}
	appendText(text[last:])
	return parts, nil
}
