package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/fattura-reconcile/internal/common"
)

// Format selects how command results are printed.
type Format string

// Output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a --output flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: output format %q (want text, json or yaml)", common.ErrInvalidConfig, s)
	}
}

// Output writes command results in the selected format.
type Output struct {
	w      io.Writer
	Money  *Money
	format Format
}

// NewOutput creates an Output writing to w.
func NewOutput(w io.Writer, format Format, money *Money) *Output {
	if w == nil {
		w = os.Stdout
	}
	if money == nil {
		money = NewMoney("it", "€")
	}
	return &Output{w: w, format: format, Money: money}
}

// Writer returns the underlying writer.
func (o *Output) Writer() io.Writer { return o.w }

// Format returns the selected format.
func (o *Output) Format() Format { return o.format }

// Structured reports whether results are machine readable.
func (o *Output) Structured() bool { return o.format != FormatText }

// Render prints v as JSON or YAML, or calls text for the human format.
func (o *Output) Render(v any, text func(w io.Writer) error) error {
	switch o.format {
	case FormatJSON:
		enc := json.NewEncoder(o.w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(o.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	default:
		return text(o.w)
	}
}

// Println writes a line in text mode. Structured formats stay clean.
func (o *Output) Println(a ...any) {
	if o.Structured() {
		return
	}
	_, _ = fmt.Fprintln(o.w, a...)
}
