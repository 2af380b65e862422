package adapter

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/skosovsky/promptsig/internal/cast"
	"github.com/skosovsky/promptsig/schema"
)

// coerceText turns the raw text of one marker section into a value of type t.
// Text passes through trimmed; anything else is decoded as JSON and
// normalized by coerceValue, with numeric, boolean and date literal parsing
// as the fallback.
func coerceText(t *schema.Type, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	u := schema.Unwrap(t)
	switch u.Kind() {
	case schema.KindString, schema.KindCustom:
		return raw, nil
	case schema.KindEnum, schema.KindLiteral:
		if v, ok := matchValue(u, unquote(raw)); ok {
			return v, nil
		}
	}

	decoded, err := decodeJSON(raw)
	if err == nil {
		v, cerr := coerceValue(t, decoded, 0)
		if cerr == nil {
			return v, nil
		}
		err = cerr
	}
	if v, ok := literalFallback(u, raw); ok {
		return v, nil
	}
	return nil, err
}

func decodeJSON(raw string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

func literalFallback(u *schema.Type, raw string) (any, bool) {
	switch u.Kind() {
	case schema.KindBoolean:
		return cast.ParseBool(raw)
	case schema.KindNumber:
		return cast.ParseFloat(raw)
	case schema.KindInteger:
		return cast.ParseInt(raw)
	case schema.KindDate:
		tm, err := parseDate(raw)
		return tm, err == nil
	}
	return nil, false
}

// coerceValue normalizes a decoded JSON value against t. json.Number becomes
// int64 or float64; objects keep only declared properties.
func coerceValue(t *schema.Type, v any, depth int) (any, error) {
	if depth > maxValueDepth {
		return normalize(v), nil
	}
	d := depth + 1
	switch t.Kind() {
	case schema.KindAny:
		return normalize(v), nil
	case schema.KindOptional, schema.KindNullable:
		if v == nil {
			return nil, nil
		}
		return coerceValue(t.Elem(), v, d)
	case schema.KindDefault:
		if v == nil {
			return t.DefaultValue(), nil
		}
		return coerceValue(t.Elem(), v, d)
	case schema.KindReadonly:
		return coerceValue(t.Elem(), v, d)
	case schema.KindLazy:
		return coerceValue(t.Resolve(), v, d)
	case schema.KindNull:
		if v == nil {
			return nil, nil
		}
	case schema.KindString:
		switch x := v.(type) {
		case string:
			return x, nil
		case json.Number:
			return x.String(), nil
		case bool:
			return strconv.FormatBool(x), nil
		case nil:
		default:
			return encodeJSON(x, "", "")
		}
	case schema.KindCustom:
		return v, nil
	case schema.KindBoolean:
		switch x := v.(type) {
		case bool:
			return x, nil
		case string:
			if b, ok := cast.ParseBool(x); ok {
				return b, nil
			}
		}
	case schema.KindNumber:
		switch x := v.(type) {
		case json.Number:
			if f, ok := cast.ParseFloat(x.String()); ok {
				return f, nil
			}
		case string:
			if f, ok := cast.ParseFloat(x); ok {
				return f, nil
			}
		default:
			if f, ok := cast.ToFloat64(x); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
				return f, nil
			}
		}
	case schema.KindInteger:
		switch x := v.(type) {
		case json.Number:
			if i, ok := cast.ParseInt(x.String()); ok {
				return i, nil
			}
		case string:
			if i, ok := cast.ParseInt(x); ok {
				return i, nil
			}
		default:
			if f, ok := cast.ToFloat64(x); ok && f == math.Trunc(f) {
				if i, ok := cast.ToInt64(x); ok {
					return i, nil
				}
			}
		}
	case schema.KindDate:
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			if tm, err := parseDate(x); err == nil {
				return tm, nil
			}
		}
	case schema.KindEnum, schema.KindLiteral:
		if m, ok := matchValue(t, v); ok {
			return m, nil
		}
	case schema.KindArray, schema.KindSet:
		items, ok := v.([]any)
		if !ok {
			break
		}
		out := make([]any, 0, len(items))
		for i, e := range items {
			c, err := coerceValue(t.Elem(), e, d)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			if t.Kind() == schema.KindSet && containsValue(out, c) {
				continue
			}
			out = append(out, c)
		}
		return out, nil
	case schema.KindTuple:
		items, ok := v.([]any)
		members := t.Members()
		if !ok || len(items) != len(members) {
			break
		}
		out := make([]any, len(items))
		for i, e := range items {
			c, err := coerceValue(members[i], e, d)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = c
		}
		return out, nil
	case schema.KindRecord, schema.KindMap:
		m, ok := v.(map[string]any)
		if !ok {
			break
		}
		out := make(map[string]any, len(m))
		for k, e := range m {
			c, err := coerceValue(t.Value(), e, d)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = c
		}
		return out, nil
	case schema.KindObject:
		return coerceObject(t.Properties(), v, d)
	case schema.KindUnion:
		for _, m := range t.Members() {
			if c, err := coerceValue(m, v, d); err == nil {
				return c, nil
			}
		}
	case schema.KindDiscriminatedUnion:
		if member := pickMember(t, v); member != nil {
			return coerceValue(member, v, d)
		}
	case schema.KindIntersection:
		merged := map[string]any{}
		for _, m := range t.Members() {
			c, err := coerceValue(m, v, d)
			if err != nil {
				return nil, err
			}
			cm, ok := c.(map[string]any)
			if !ok {
				return c, nil
			}
			maps.Copy(merged, cm)
		}
		return merged, nil
	}
	return nil, fmt.Errorf("%w: expected %s, got %s", ErrFieldCoercion, schema.Describe(t), describeValue(v))
}

func coerceObject(props []schema.Property, v any, depth int) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %s", ErrFieldCoercion, describeValue(v))
	}
	out := make(map[string]any, len(props))
	for _, p := range props {
		e, present := m[p.Name]
		if !present {
			if !schema.AcceptsNull(p.Type) {
				return nil, fmt.Errorf("%w: missing property %q", ErrFieldCoercion, p.Name)
			}
			if p.Type.Kind() == schema.KindDefault {
				out[p.Name] = p.Type.DefaultValue()
			}
			continue
		}
		c, err := coerceValue(p.Type, e, depth)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.Name, err)
		}
		out[p.Name] = c
	}
	return out, nil
}

// pickMember selects the discriminated-union member whose tag property is a
// literal matching the value's tag.
func pickMember(t *schema.Type, v any) *schema.Type {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	tag, ok := m[t.Discriminator()]
	if !ok {
		return nil
	}
	for _, member := range t.Members() {
		obj := schema.Unwrap(member)
		if obj.Kind() != schema.KindObject {
			continue
		}
		for _, p := range obj.Properties() {
			if p.Name != t.Discriminator() {
				continue
			}
			if _, ok := matchValue(schema.Unwrap(p.Type), tag); ok {
				return member
			}
		}
	}
	return nil
}

// matchValue finds v among the allowed values of an enum or literal type.
// Numbers compare by value, so json.Number("1") matches literal 1.
func matchValue(t *schema.Type, v any) (any, bool) {
	for _, allowed := range t.Values() {
		if sameLiteral(allowed, v) {
			return allowed, true
		}
	}
	return nil, false
}

func sameLiteral(allowed, v any) bool {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		if err != nil {
			return false
		}
		v = f
	}
	af, aok := cast.ToFloat64(allowed)
	vf, vok := cast.ToFloat64(v)
	if aok && vok {
		return af == vf
	}
	if aok {
		if s, ok := v.(string); ok {
			f, ok := cast.ParseFloat(s)
			return ok && f == af
		}
	}
	return reflect.DeepEqual(allowed, v)
}

func containsValue(items []any, v any) bool {
	for _, it := range items {
		if reflect.DeepEqual(it, v) {
			return true
		}
	}
	return false
}

// normalize converts json.Number recursively to int64 or float64.
func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}

func parseDate(s string) (time.Time, error) {
	s = unquote(strings.TrimSpace(s))
	if tm, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return tm, nil
	}
	return time.Parse(time.DateOnly, s)
}

func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' && s[len(s)-1] == '"' || s[0] == '\'' && s[len(s)-1] == '\'') {
		return s[1 : len(s)-1]
	}
	return s
}

func describeValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case json.Number:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	}
	return fmt.Sprintf("%T", v)
}
