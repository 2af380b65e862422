package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skosovsky/promptsig/adapter"
	"github.com/skosovsky/promptsig/predict"
)

var parseFlags struct {
	adapter string
	file    string
	partial bool
}

var parseCmd = &cobra.Command{
	Use:   "parse <manifest>",
	Short: "Parse a completion into the manifest's output fields and print them as JSON",
	Long: `Reads a completion from --file or stdin and parses it with the chosen
adapter. When the chat format does not parse, the JSON adapter is tried once,
unless --adapter was given explicitly.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	f := parseCmd.Flags()
	f.StringVarP(&parseFlags.adapter, "adapter", "a", "", "chat or json (default: manifest setting, then chat)")
	f.StringVarP(&parseFlags.file, "file", "f", "", "completion file (default: stdin)")
	f.BoolVar(&parseFlags.partial, "partial", false, "tolerate missing and malformed fields")
}

func runParse(cmd *cobra.Command, args []string) error {
	m, err := loadManifest(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	a, err := pickAdapter(parseFlags.adapter, m)
	if err != nil {
		return err
	}
	var data []byte
	if parseFlags.file != "" {
		data, err = os.ReadFile(parseFlags.file) // #nosec G304 -- path comes from the command line
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("read completion: %w", err)
	}
	out, err := a.Parse(m.Signature, string(data), parseFlags.partial)
	if err != nil && parseFlags.adapter == "" && a.Name() != "json" && predict.IsParseFailure(err) {
		logger.Warn("parse failed, retrying with json adapter", zap.String("adapter", a.Name()), zap.Error(err))
		out, err = adapter.NewJSON().Parse(m.Signature, string(data), parseFlags.partial)
	}
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
