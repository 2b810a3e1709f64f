package output

import (
	stdjson "encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/ws/packages/json"
)

// JSONOutput is the envelope written by JSONFormatter
type JSONOutput struct {
	Method     string     `json:"method"`
	URL        string     `json:"url"`
	OK         bool       `json:"ok"`
	DurationMs int64      `json:"durationMs"`
	Time       string     `json:"time"`
	Body       *json.JSON `json:"body,omitempty"`
	Error      *JSONError `json:"error,omitempty"`
}

type JSONError struct {
	Kind    string `json:"kind"`
	Status  int    `json:"status,omitempty"`
	Message string `json:"message"`
	Body    string `json:"body,omitempty"`
}

type JSONFormatter struct {
	writer io.Writer
}

func NewJSONFormatter(w io.Writer) *JSONFormatter {
	if w == nil {
		w = os.Stdout
	}
	return &JSONFormatter{writer: w}
}

func (f *JSONFormatter) Format(r *Result) error {
	out := JSONOutput{
		Method:     r.Method,
		URL:        r.URL,
		OK:         r.Err == nil,
		DurationMs: r.Duration.Milliseconds(),
		Time:       time.Now().UTC().Format(time.RFC3339),
	}
	if r.Err != nil {
		fail := describe(r.Err)
		out.Error = &JSONError{
			Kind:    fail.kind,
			Status:  fail.status,
			Message: fail.message,
			Body:    string(fail.body),
		}
	} else if !r.Void {
		body := r.Body
		out.Body = &body
	}

	enc := stdjson.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
