package output

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/ws/packages/json"
	"github.com/abdul-hamid-achik/ws/packages/ws"
)

// Result is the outcome of one call as shown to the user
type Result struct {
	Method   string
	URL      string
	Body     json.JSON
	Void     bool
	Err      error
	Duration time.Duration
}

// Formatter writes a Result to its destination
type Formatter interface {
	Format(r *Result) error
}

// NewFormatter returns the formatter for name: "console" or "json"
func NewFormatter(name string, w io.Writer, noColor bool) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithNoColor(noColor)), nil
	case "json":
		return NewJSONFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want console or json)", name)
	}
}

// failure extracts what the formatters show about a failed call
type failure struct {
	kind    string
	status  int
	message string
	body    []byte
}

func describe(err error) failure {
	f := failure{kind: "error", message: err.Error()}
	var wsErr *ws.Error
	if errors.As(err, &wsErr) {
		f.kind = wsErr.Kind.String()
		f.status = wsErr.StatusCode
		f.body = wsErr.Body
		if wsErr.Err != nil {
			f.message = wsErr.Err.Error()
		}
	}
	return f
}
