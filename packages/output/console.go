package output

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// maxErrorBody bounds how much of a failed response body is printed
const maxErrorBody = 2048

type ConsoleFormatter struct {
	writer  io.Writer
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) Format(r *Result) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	took := dim(fmt.Sprintf("(%dms)", r.Duration.Milliseconds()))

	if r.Err != nil {
		fail := describe(r.Err)
		status := ""
		if fail.status != 0 {
			status = fmt.Sprintf(" %d", fail.status)
		}
		fmt.Fprintf(f.writer, "%s %s %s %s\n", red("✗"), bold(r.Method), r.URL, took)
		fmt.Fprintf(f.writer, "  %s%s: %s\n", yellow(fail.kind+" error"), status, fail.message)
		if len(fail.body) > 0 {
			body := fail.body
			if len(body) > maxErrorBody {
				body = append(body[:maxErrorBody:maxErrorBody], []byte("...")...)
			}
			fmt.Fprintf(f.writer, "%s\n", f.render(body))
		}
		return nil
	}

	fmt.Fprintf(f.writer, "%s %s %s %s\n", green("✓"), bold(r.Method), r.URL, took)
	if r.Void {
		return nil
	}
	_, err := fmt.Fprintf(f.writer, "%s", f.render([]byte(r.Body.Raw())))
	return err
}

// render pretty-prints JSON bodies and returns anything else unchanged
func (f *ConsoleFormatter) render(body []byte) []byte {
	if !gjson.ValidBytes(body) {
		return body
	}
	out := pretty.Pretty(body)
	if !color.NoColor {
		out = pretty.Color(out, pretty.TerminalStyle)
	}
	return out
}
