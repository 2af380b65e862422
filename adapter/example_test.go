package adapter_test

import (
	"fmt"

	"github.com/skosovsky/promptsig/adapter"
	"github.com/skosovsky/promptsig/schema"
	"github.com/skosovsky/promptsig/signature"
)

func ExampleChat_Parse() {
	sig := signature.MustNew("",
		[]signature.Field{signature.Input("question", "")},
		[]signature.Field{
			signature.Output("answer", ""),
			signature.Output("confidence", "").Typed(schema.Number()),
		},
	)
	out, err := adapter.NewChat().Parse(sig,
		"[[ ## answer ## ]]\nParis\n\n[[ ## confidence ## ]]\n0.9\n\n[[ ## completed ## ]]", false)
	if err != nil {
		panic(err)
	}
	fmt.Println(out["answer"], out["confidence"])
	// Output: Paris 0.9
}

func ExampleFormatValue() {
	text, _ := adapter.FormatValue(schema.String(), []string{"first", "second"}, nil)
	fmt.Println(text)
	// Output:
	// [1] «first»
	// [2] «second»
}

func ExampleJSON_Parse() {
	sig := signature.MustNew("",
		[]signature.Field{signature.Input("text", "")},
		[]signature.Field{signature.Output("sentiment", "").Typed(schema.Enum("positive", "negative"))},
	)
	out, err := adapter.NewJSON().Parse(sig, "```json\n{\"sentiment\": \"positive\"}\n```", false)
	if err != nil {
		panic(err)
	}
	fmt.Println(out["sentiment"])
	// Output: positive
}
