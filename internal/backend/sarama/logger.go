package sarama

import (
	"fmt"
	"strings"

	"github.com/IBM/sarama"

	"github.com/fikovnik/kafka-consumer/internal/logging"
)

// stdLogger adapts sarama's printf-style logging. sarama has no levels, so
// everything goes out at debug.
type stdLogger struct {
	l *logging.Logger
}

var _ sarama.StdLogger = (*stdLogger)(nil)

func newLogger(l *logging.Logger) *stdLogger {
	return &stdLogger{l: l.With(map[string]any{"lib": "sarama"})}
}

func (s *stdLogger) Print(v ...any) {
	s.emit(fmt.Sprint(v...))
}

func (s *stdLogger) Printf(format string, v ...any) {
	s.emit(fmt.Sprintf(format, v...))
}

func (s *stdLogger) Println(v ...any) {
	s.emit(fmt.Sprintln(v...))
}

func (s *stdLogger) emit(msg string) {
	s.l.Debug(strings.TrimRight(msg, "\n"))
}
