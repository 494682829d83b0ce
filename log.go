package mercury

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logOnce sync.Once
	log     *logrus.Logger
)

// Log returns the package-wide logger, initializing it from HG_NA_LOG_LEVEL
// on first use.
func Log() *logrus.Logger {
	logOnce.Do(func() {
		log = logrus.New()
		log.SetOutput(os.Stderr)
		level := logrus.InfoLevel
		if os.Getenv("HG_NA_LOG_LEVEL") == "debug" {
			level = logrus.DebugLevel
		}
		log.SetLevel(level)
	})
	return log
}
