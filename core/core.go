package core

import "github.com/hupe1980/agentcore/logging"

// scopedLogger stamps every record with the identity of the run or tool call
// that emitted it, so loop and tool code only pass event specific fields.
type scopedLogger struct {
	logger logging.Logger
	fields []any
}

// newScopedLogger falls back to a NoOpLogger when l is nil. Empty string
// values in fields are dropped together with their key.
func newScopedLogger(l logging.Logger, fields ...any) *scopedLogger {
	kept := make([]any, 0, len(fields))
	for i := 0; i+1 < len(fields); i += 2 {
		if v, ok := fields[i+1].(string); ok && v == "" {
			continue
		}
		kept = append(kept, fields[i], fields[i+1])
	}

	return &scopedLogger{logger: logging.OrNoOp(l), fields: kept}
}

// Logger returns the underlying logger without the scope fields.
func (s *scopedLogger) Logger() logging.Logger { return s.logger }

func (s *scopedLogger) LogDebug(msg string, args ...any) { s.logger.Debug(msg, s.with(args)...) }

func (s *scopedLogger) LogInfo(msg string, args ...any) { s.logger.Info(msg, s.with(args)...) }

func (s *scopedLogger) LogWarn(msg string, args ...any) { s.logger.Warn(msg, s.with(args)...) }

func (s *scopedLogger) LogError(msg string, args ...any) { s.logger.Error(msg, s.with(args)...) }

func (s *scopedLogger) with(args []any) []any {
	if len(s.fields) == 0 {
		return args
	}

	out := make([]any, 0, len(s.fields)+len(args))
	out = append(out, s.fields...)

	return append(out, args...)
}
