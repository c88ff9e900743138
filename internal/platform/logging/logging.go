package logging

import "github.com/sirupsen/logrus"

// New builds the application logger: JSON output, level parsed from config
// (falling back to info on garbage).
func New(level string) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}
