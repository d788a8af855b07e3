package franz

import (
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/fikovnik/kafka-consumer/internal/logging"
)

// kgoLogger forwards kgo's leveled key/value logs to a logging.Logger.
type kgoLogger struct {
	l *logging.Logger
}

func newLogger(l *logging.Logger) kgo.Logger {
	return &kgoLogger{l: l.With(map[string]any{"lib": "franz-go"})}
}

func (k *kgoLogger) Level() kgo.LogLevel {
	switch {
	case k.l.Enabled(logging.LevelDebug):
		return kgo.LogLevelDebug
	case k.l.Enabled(logging.LevelInfo):
		return kgo.LogLevelInfo
	case k.l.Enabled(logging.LevelWarn):
		return kgo.LogLevelWarn
	case k.l.Enabled(logging.LevelError):
		return kgo.LogLevelError
	default:
		return kgo.LogLevelNone
	}
}

func (k *kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	var fields map[string]any
	if len(keyvals) > 0 {
		fields = make(map[string]any, len(keyvals)/2+1)
		for i := 0; i+1 < len(keyvals); i += 2 {
			key := fmt.Sprint(keyvals[i])
			if err, ok := keyvals[i+1].(error); ok {
				fields[key] = err.Error()
				continue
			}
			fields[key] = keyvals[i+1]
		}
		if len(keyvals)%2 == 1 {
			fields["extra"] = keyvals[len(keyvals)-1]
		}
	}
	k.l.Log(toLevel(level), msg, fields)
}

func toLevel(level kgo.LogLevel) logging.Level {
	switch level {
	case kgo.LogLevelError:
		return logging.LevelError
	case kgo.LogLevelWarn:
		return logging.LevelWarn
	case kgo.LogLevelInfo:
		return logging.LevelInfo
	default:
		return logging.LevelDebug
	}
}
