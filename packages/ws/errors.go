package ws

import (
	"errors"
	"fmt"
)

// Kind classifies why a call failed
type Kind int

const (
	// KindAdaptation means the request adapter refused or failed to rewrite the request
	KindAdaptation Kind = iota + 1
	// KindTransport covers timeouts, connection failures and non-2xx statuses
	KindTransport
	// KindParsing means the response body was not valid JSON
	KindParsing
	// KindShape means the body lacked the expected array or failed its schema
	KindShape
	// KindApplication means the error handler found an error payload in a successful response
	KindApplication
)

func (k Kind) String() string {
	switch k {
	case KindAdaptation:
		return "adaptation"
	case KindTransport:
		return "transport"
	case KindParsing:
		return "parsing"
	case KindShape:
		return "shape"
	case KindApplication:
		return "application"
	default:
		return "unknown"
	}
}

// Sentinels matching every *Error of the corresponding kind through errors.Is.
var (
	ErrAdaptation  = errors.New("ws: adaptation error")
	ErrTransport   = errors.New("ws: transport error")
	ErrParsing     = errors.New("ws: parsing error")
	ErrShape       = errors.New("ws: shape error")
	ErrApplication = errors.New("ws: application error")

	// ErrAlreadyStarted is returned when a Request is fetched twice
	ErrAlreadyStarted = errors.New("ws: request already started")
)

// Error is the failure value of every ws call
type Error struct {
	Kind       Kind
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Attempt    int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("ws %s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("ws %s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	errs := []error{e.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindAdaptation:
		return ErrAdaptation
	case KindTransport:
		return ErrTransport
	case KindParsing:
		return ErrParsing
	case KindShape:
		return ErrShape
	default:
		return ErrApplication
	}
}

// KindOf returns the kind of a ws error, or 0 for other errors
func KindOf(err error) Kind {
	var wsErr *Error
	if errors.As(err, &wsErr) {
		return wsErr.Kind
	}
	return 0
}

// StatusCode returns the HTTP status carried by a ws error, or 0
func StatusCode(err error) int {
	var wsErr *Error
	if errors.As(err, &wsErr) {
		return wsErr.StatusCode
	}
	return 0
}
