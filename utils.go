package parliament

import (
	"github.com/go-kit/kit/log"
)

// CheckWarn logs e as a warning and reports whether e was non-nil,
// leaving the caller to decide whether the error is fatal.
// cmd/parliament uses it for flag-parsing errors.
func CheckWarn(e error, logger log.Logger) bool {
	if e != nil {
		logger.Log("msg", "Warning", "error", e)
		return true
	}
	return false
}

// DebugLogFunc gates the high-volume per-message log lines (receipt,
// crash/restart, decree acceptance). Assign parliament.DebugLog to a
// real logging func to turn them on; the zero value is silent.
type DebugLogFunc func(log.Logger, ...interface{})

var DebugLog = DebugLogFunc(func(log.Logger, ...interface{}) {})
