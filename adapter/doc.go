// Package adapter translates between signatures and LM-facing text.
//
// An Adapter formats a signature, few-shot demos and current inputs into an
// ordered message sequence, and parses the LM completion back into a typed
// field map. Two wire formats are provided: Chat, which delimits fields with
// [[ ## name ## ]] headers, and JSON, which asks for a single JSON object.
//
// Values of custom types (images, files) are never inlined as text. While a
// prompt is formatted they are replaced by placeholder markers that are
// expanded into content parts as the last formatting step; see FormatValue.
//
// Formatting and parsing are pure and safe for concurrent use: every Format
// call allocates its own Placeholders.
package adapter
