package coresim

import (
	"fmt"

	"go.uber.org/zap"
)

// WarnCategory is one of the seven warning categories spec §7 assigns
// log lines to, each individually promotable to a hard error.
type WarnCategory string

const (
	WarnMemory   WarnCategory = "memory"
	WarnTensors  WarnCategory = "tensors"
	WarnTrans    WarnCategory = "trans"
	WarnESRs     WarnCategory = "esrs"
	WarnCacheops WarnCategory = "cacheops"
	WarnDebug    WarnCategory = "debug"
	WarnOther    WarnCategory = "other"
)

// logger wraps an injected zap SugaredLogger with the category
// promotion rule from spec §7: "each category is individually
// promotable to a hard error via configuration". It is a plain struct
// field on System, never a package-level global, so tests can swap it
// freely and multiple Systems never share logging state.
type logger struct {
	sugar   *zap.SugaredLogger
	promote map[WarnCategory]bool
}

func newLogger(sugar *zap.SugaredLogger, promote map[WarnCategory]bool) *logger {
	if sugar == nil {
		z, _ := zap.NewDevelopment()
		sugar = z.Sugar()
	}
	if promote == nil {
		promote = map[WarnCategory]bool{}
	}
	return &logger{sugar: sugar, promote: promote}
}

// Warn logs a categorized warning, or panics with a FatalError if the
// category has been promoted to a hard error by configuration.
func (l *logger) Warn(cat WarnCategory, hart HartID, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.sugar.Warnw(msg, "category", string(cat), "hart", hart.String())
	if l.promote[cat] {
		panic(&FatalError{Reason: fmt.Sprintf("[%s] %s", cat, msg), Hart: hart})
	}
}

// Debugf logs at debug level without the promotion path; used for
// routine trace lines (cold/warm reset, broadcast fan-out, etc.).
func (l *logger) Debugf(format string, args ...any) {
	l.sugar.Debugf(format, args...)
}
