package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skosovsky/promptsig/schema"
	"github.com/skosovsky/promptsig/signature"
)

func TestJSON_Format(t *testing.T) {
	t.Parallel()
	demos := []signature.Demo{{"question": "q0", "answer": "a0", "score": 1}}
	msgs, err := NewJSON().Format(qaSig(t), demos, map[string]any{"question": "q1"})
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	assert.Contains(t, msgs[0].Text(),
		"All interactions will be structured in the following way, with the appropriate values filled in.\n\n"+
			"Inputs will have the following structure:\n\n"+
			"[[ ## question ## ]]\n{question}\n\n"+
			"Outputs will be a JSON object with the following fields.\n\n"+
			"{\n"+
			"  \"answer\": \"{answer}\",\n"+
			"  \"score\": \"{score}        # note: the value you produce must be a single number value\"\n"+
			"}\n\n"+
			"In adhering to this structure, your objective is: ")
	assert.Equal(t, "[[ ## question ## ]]\nq0", msgs[1].Text())
	assert.Equal(t, "{\n  \"answer\": \"a0\",\n  \"score\": 1\n}", msgs[2].Text())
	assert.Equal(t, "[[ ## question ## ]]\nq1\n\n"+
		"Respond with a JSON object in the following order of fields: `answer`, then `score` (must be formatted as a valid number).",
		msgs[3].Text())
}

func TestJSON_ResponseFormat(t *testing.T) {
	t.Parallel()
	sig := newSig(t, "", nil, []fieldSpec{
		{"answer", nil, "Short answer"},
		{"score", schema.Optional(schema.Number()), ""},
	})
	rf := NewJSON().ResponseFormat(sig)
	require.NotNil(t, rf)
	assert.Equal(t, "outputs", rf.Name)
	assert.Equal(t, "object", rf.Schema["type"])
	assert.Equal(t, []any{"answer"}, rf.Schema["required"])
	props, ok := rf.Schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Short answer", props["answer"].(map[string]any)["description"])

	var _ StructuredOutput = NewJSON()
}

func TestJSON_Parse(t *testing.T) {
	t.Parallel()
	sig := newSig(t, "", nil, []fieldSpec{
		{"answer", nil, ""},
		{"score", schema.Number(), ""},
		{"label", schema.Enum("yes", "no"), ""},
	})
	tests := []struct {
		name       string
		completion string
	}{
		{"bare", `{"answer": "Paris", "score": 0.9, "label": "yes"}`},
		{"fenced", "```json\n{\"answer\": \"Paris\", \"score\": 0.9, \"label\": \"yes\"}\n```"},
		{"prose around", "Here it is: {\"answer\": \"Paris\", \"score\": \"0.9\", \"label\": \"yes\", \"extra\": 1} done"},
		{"braces in strings", `{"label": "yes", "score": 0.9, "answer": "Paris"} trailing {"x": "}"}`},
		{"marker fallback", "[[ ## answer ## ]]\nParis\n[[ ## score ## ]]\n0.9\n[[ ## label ## ]]\nyes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NewJSON().Parse(sig, tt.completion, false)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"answer": "Paris", "score": 0.9, "label": "yes"}, got)
		})
	}
}

func TestJSON_ParseErrors(t *testing.T) {
	t.Parallel()
	sig := newSig(t, "", nil, []fieldSpec{{"a1", nil, ""}, {"n", schema.Integer(), ""}})

	_, err := NewJSON().Parse(sig, `{"a1": "x"}`, false)
	require.ErrorIs(t, err, ErrFieldMismatch)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "json", pe.Adapter)

	got, err := NewJSON().Parse(sig, `{"a1": "x"}`, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a1": "x"}, got)

	_, err = NewJSON().Parse(sig, `{"a1": "x", "n": "many"}`, false)
	require.ErrorIs(t, err, ErrFieldCoercion)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "n", pe.Field)
	assert.Equal(t, "many", pe.Raw)

	got, err = NewJSON().Parse(sig, `{"a1": "x", "n": "many"}`, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a1": "x", "n": "many"}, got)

	got, err = NewJSON().Parse(sig, `{"a1": "x", "n": [1, {"b": 2}]}`, true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a1": "x", "n": `[1,{"b":2}]`}, got)

	chat, err := NewChat().Parse(sig, "[[ ## a1 ## ]]\nx\n[[ ## n ## ]]\n[1, {\"b\": 2}]", true)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a1": "x", "n": `[1, {"b": 2}]`}, chat)

	_, err = NewJSON().Parse(sig, "no structure at all", false)
	require.ErrorIs(t, err, ErrFieldMismatch)
}

func TestExtractJSONObject(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		`{"a": 1}`:                 `{"a": 1}`,
		"x {\"a\": {\"b\": 2}} y":  `{"a": {"b": 2}}`,
		`{"s": "}{\"", "t": 1} {}`: `{"s": "}{\"", "t": 1}`,
		"no object":                "",
		`{"unterminated": true`:    "",
	}
	for in, want := range tests {
		assert.Equal(t, want, extractJSONObject(in), in)
	}
}
