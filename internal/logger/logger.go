package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Log is the shared application logger. Handlers log internal failures here
// before answering with a generic 500; expected precondition failures are not
// logged, they are part of normal operation.
var Log = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

func Infof(format string, args ...interface{}) {
	Log.Infof(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Log.Errorf(format, args...)
}
