package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
)

// Output renders CLI results either as human-readable text/tables or
// as JSON, depending on the --json flag.
type Output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// NewOutput builds an Output writing to w/errW in the given mode.
func NewOutput(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// Print writes a plain line in text mode; it is a no-op in JSON mode.
func (o *Output) Print(format string, args ...any) {
	if o.jsonMode {
		return
	}
	fmt.Fprintf(o.w, format+"\n", args...)
}

// Table renders rows under header as tab-aligned columns in text mode.
func (o *Output) Table(header []string, rows [][]string) {
	if o.jsonMode {
		return
	}
	tw := tabwriter.NewWriter(o.w, 0, 4, 2, ' ', 0)
	for i, h := range header {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	for _, row := range rows {
		for i, cell := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, cell)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

// JSON marshals v and writes it, regardless of mode — callers use this
// directly for --json output.
func (o *Output) JSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success prints a one-line confirmation in text mode.
func (o *Output) Success(format string, args ...any) {
	if o.jsonMode {
		return
	}
	fmt.Fprintf(o.w, format+"\n", args...)
}

// Error prints an error: in text mode to the error writer with an
// "error: " prefix, in JSON mode as an {"error": ...} object on the main
// writer.
func (o *Output) Error(err error) {
	if o.jsonMode {
		o.JSON(map[string]string{"error": err.Error()})
		return
	}
	fmt.Fprintf(o.errW, "error: %v\n", err)
}
