package cli

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// ApplyLogLevel applies a level name from the --log-level flag or the
// [global] section to the process-wide logger. An empty or unknown name
// leaves the current level untouched; the config validator reports bad
// names separately.
func ApplyLogLevel(level string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return
	}
	logrus.SetLevel(lvl)
}
