package ws

import (
	"strings"

	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/ws/packages/http"
)

// LogLevel controls what a client reports to its logger
type LogLevel int

const (
	LogOff LogLevel = iota
	LogCalls
	LogCallsAndResponses
)

func (l LogLevel) String() string {
	switch l {
	case LogCalls:
		return "calls"
	case LogCallsAndResponses:
		return "responses"
	default:
		return "off"
	}
}

// ParseLogLevel accepts "off", "calls" and "responses"
func ParseLogLevel(s string) (LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return LogOff, true
	case "calls":
		return LogCalls, true
	case "responses", "calls+responses", "callsandresponses":
		return LogCallsAndResponses, true
	default:
		return LogOff, false
	}
}

func (p *plan) logCall(req *http.Request, attempt int) {
	if p.logLevel == LogOff {
		return
	}
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", req.BuildURL()),
		zap.Int("attempt", attempt),
	}
	if req.Params.Len() > 0 && !req.EncodesQuery() {
		fields = append(fields, zap.Strings("params", req.Params.Keys()))
	}
	if req.IsMultipart() {
		fields = append(fields, zap.String("part", req.Part.Name), zap.Int("part_bytes", len(req.Part.Data)))
	}
	p.logger.Info("ws call", fields...)
}

func (p *plan) logResponse(req *http.Request, resp *http.Response, attempt int) {
	if p.logLevel == LogOff {
		return
	}
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("url", req.BuildURL()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", resp.Duration),
		zap.Int("attempt", attempt),
	}
	if p.logLevel == LogCallsAndResponses {
		fields = append(fields, zap.ByteString("body", resp.Body))
	}
	p.logger.Info("ws response", fields...)
}

func (p *plan) logFailure(err *Error) {
	if p.logLevel == LogOff {
		return
	}
	p.logger.Warn("ws call failed",
		zap.String("method", p.method),
		zap.String("url", p.url),
		zap.Stringer("kind", err.Kind),
		zap.Int("attempt", err.Attempt),
		zap.Error(err.Err),
	)
}

func (p *plan) logRetry(err error, attempt int, d RetryDecision) {
	if p.logLevel == LogOff {
		return
	}
	p.logger.Info("ws retrying call",
		zap.String("method", p.method),
		zap.String("url", p.url),
		zap.Int("attempt", attempt),
		zap.Duration("delay", d.Delay),
		zap.Error(err),
	)
}
