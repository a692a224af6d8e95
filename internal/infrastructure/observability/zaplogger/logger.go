package zaplogger

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/Zhima-Mochi/storefront/internal/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type logger struct{ l *zap.Logger }

// New adapts a configured zap logger to the observability port. Fixed fields
// are attached to every entry.
func New(z *zap.Logger, fixed ...observability.Field) observability.Logger {
	if z == nil {
		z = zap.NewNop()
	}
	if len(fixed) > 0 {
		z = z.With(toZapFields(fixed)...)
	}
	return &logger{l: z}
}

func (z *logger) With(fields ...observability.Field) observability.Logger {
	if len(fields) == 0 {
		return z
	}
	return &logger{l: z.l.With(toZapFields(fields)...)}
}

func (z *logger) Debug(msg string, fields ...observability.Field) {
	z.log(zapcore.DebugLevel, msg, fields)
}

func (z *logger) Info(msg string, fields ...observability.Field) {
	z.log(zapcore.InfoLevel, msg, fields)
}

func (z *logger) Warn(msg string, fields ...observability.Field) {
	z.log(zapcore.WarnLevel, msg, fields)
}

func (z *logger) Error(msg string, fields ...observability.Field) {
	z.log(zapcore.ErrorLevel, msg, fields)
}

func (z *logger) log(level zapcore.Level, msg string, fields []observability.Field) {
	if ce := z.l.Check(level, msg); ce != nil {
		ce.Write(toZapFields(fields)...)
	}
}

// Sync flushes buffered entries. Console sinks that cannot be synced are not
// reported as failures.
func (z *logger) Sync() error {
	err := z.l.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

func toZapFields(fs []observability.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fs))
	for _, f := range fs {
		out = append(out, toZapField(f))
	}
	return out
}

// toZapField keeps the hot field types of order and payment logs (ids,
// amounts, statuses, latencies) off the reflection path.
func toZapField(f observability.Field) zap.Field {
	switch v := f.Value.(type) {
	case nil:
		return zap.Skip()
	case error:
		return zap.NamedError(f.Key, v)
	case string:
		return zap.String(f.Key, v)
	case int:
		return zap.Int(f.Key, v)
	case int64:
		return zap.Int64(f.Key, v)
	case bool:
		return zap.Bool(f.Key, v)
	case float64:
		return zap.Float64(f.Key, v)
	case time.Duration:
		return zap.Duration(f.Key, v)
	case time.Time:
		return zap.Time(f.Key, v)
	case fmt.Stringer:
		return zap.Stringer(f.Key, v)
	default:
		return zap.Any(f.Key, v)
	}
}
