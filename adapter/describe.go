package adapter

import (
	"strconv"
	"strings"

	"github.com/skosovsky/promptsig/schema"
	"github.com/skosovsky/promptsig/signature"
)

// DescribeFields renders one numbered line per field, in the form
// "1. `name` (type): description", followed by an indented "Constraints:"
// line when the field has constraints. The description suffix is omitted when empty. One "Type description" line
// is added per reachable custom type that carries a description.
func DescribeFields(fields []signature.Field) string {
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". `")
		b.WriteString(f.Name)
		b.WriteString("` (")
		b.WriteString(schema.Describe(f.Type))
		b.WriteByte(')')
		if f.Description != "" {
			b.WriteString(": ")
			b.WriteString(f.Description)
		}
		if f.Constraints != "" {
			b.WriteString("\n    Constraints: ")
			b.WriteString(f.Constraints)
		}
		for _, ct := range schema.CustomTypes(f.Type) {
			if ct.Description() == "" {
				continue
			}
			b.WriteString("\n    Type description of ")
			b.WriteString(schema.Describe(ct))
			b.WriteString(": ")
			b.WriteString(ct.Description())
		}
	}
	return b.String()
}
