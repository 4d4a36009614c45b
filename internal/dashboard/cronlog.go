package dashboard

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"tileboard/pkg/logx"
)

// cronLogger routes cron's internal logging into logx.
type cronLogger struct {
	log logx.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Trace("cron "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fs := append(kvFields(keysAndValues), logx.Err(err))
	l.log.Error("cron "+msg, fs...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
