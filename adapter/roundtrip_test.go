package adapter

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/promptsig"
	"github.com/skosovsky/promptsig/schema"
	"github.com/skosovsky/promptsig/signature"
)

// echoCompletion plays back the current user turn's input sections as
// output sections, which is what a perfectly obedient LM would write when
// outputs mirror inputs.
func echoCompletion(t *testing.T, a Adapter, sig *signature.Signature, values map[string]any) string {
	t.Helper()
	switch a.(type) {
	case *Chat:
		var b strings.Builder
		for _, f := range sig.Outputs() {
			text, err := FormatValue(f.Type, values[f.Name], nil)
			require.NoError(t, err)
			fmt.Fprintf(&b, "[[ ## %s ## ]]\n%s\n\n", f.Name, text)
		}
		b.WriteString(completedMarker)
		return b.String()
	default:
		out, err := NewJSON().assistantContent(sig, values, "")
		require.NoError(t, err)
		return out
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	t.Parallel()
	types := []struct {
		name string
		typ  *schema.Type
		val  any
	}{
		{"text", schema.String(), "multi\nline text"},
		{"number", schema.Number(), 3.25},
		{"integer", schema.Integer(), int64(-7)},
		{"boolean", schema.Boolean(), false},
		{"enum", schema.Enum("red", "green"), "green"},
		{"date", schema.Date(), time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		{"array", schema.Array(schema.Integer()), []any{int64(1), int64(2)}},
		{"object", schema.Object(schema.Prop("k", schema.String())), map[string]any{"k": "v"}},
	}
	adapters := []Adapter{NewChat(), NewJSON()}
	for _, a := range adapters {
		for _, tt := range types {
			t.Run(a.Name()+"/"+tt.name, func(t *testing.T) {
				t.Parallel()
				sig := newSig(t, "", []fieldSpec{{"in", tt.typ, ""}}, []fieldSpec{{"out", tt.typ, ""}})
				msgs, err := a.Format(sig, nil, map[string]any{"in": tt.val})
				require.NoError(t, err)
				require.Equal(t, promptsig.RoleUser, msgs[len(msgs)-1].Role)

				got, err := a.Parse(sig, echoCompletion(t, a, sig, map[string]any{"out": tt.val}), false)
				require.NoError(t, err)
				assert.Equal(t, tt.val, got["out"])
			})
		}
	}
}
