package ddns

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

var discard logrus.FieldLogger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

type loggerKey struct{}

// contextWithLogger attaches the per-pass logger so that components log with the pass fields.
func contextWithLogger(ctx context.Context, l logrus.FieldLogger) context.Context {
	return context.WithValue(ctx, loggerKey{}, l)
}

func loggerFrom(ctx context.Context, fallback logrus.FieldLogger) logrus.FieldLogger {
	if l, ok := ctx.Value(loggerKey{}).(logrus.FieldLogger); ok {
		return l
	}
	if fallback == nil {
		return discard
	}
	return fallback
}
