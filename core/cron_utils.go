package core

import "fmt"

// CronUtils implements the go-cron logger interface on top of Logger.
type CronUtils struct {
	Logger Logger
}

func NewCronUtils(l Logger) *CronUtils {
	return &CronUtils{Logger: l}
}

func (c *CronUtils) Info(msg string, keysAndValues ...any) {
	c.Logger.Debugf("%s", formatCronMsg(msg, keysAndValues))
}

func (c *CronUtils) Error(err error, msg string, keysAndValues ...any) {
	c.Logger.Errorf("%s, error: %v", formatCronMsg(msg, keysAndValues), err)
}

func formatCronMsg(msg string, keysAndValues []any) string {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		msg += fmt.Sprintf(", %v: %v", keysAndValues[i], keysAndValues[i+1])
	}
	return msg
}
