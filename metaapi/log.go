package metaapi

import (
	"log"
	"os"
)

// Logger is used for the client's internal messages. Listener failures, tick
// failures and reconnect attempts are reported here and nowhere else.
type Logger interface {
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

type stdLog struct {
	logger *log.Logger
}

var _ Logger = (*stdLog)(nil)

func (s *stdLog) Infof(format string, v ...interface{}) {
	// The stdlib log package has no levels. To keep the default quiet only
	// errors are printed; pass a real logger (see ZapLogger) for the rest.
}

func (s *stdLog) Warnf(format string, v ...interface{}) {
	// See Infof.
}

func (s *stdLog) Errorf(format string, v ...interface{}) {
	s.logger.Printf(format, v...)
}

func newStdLog() Logger {
	return &stdLog{logger: log.New(os.Stderr, "", log.LstdFlags)}
}
