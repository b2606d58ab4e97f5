package retry

import (
	"context"
	"errors"

	"github.com/KOMKZ/opsfeed/errcode"
)

// RetryCondition decides whether attempt (1-based) should be followed by another.
type RetryCondition interface {
	ShouldRetry(err error, attempt int) bool
}

// ConditionFunc adapts a function to RetryCondition.
type ConditionFunc func(err error, attempt int) bool

func (f ConditionFunc) ShouldRetry(err error, attempt int) bool {
	return f(err, attempt)
}

// AlwaysRetry retries every non-nil error
func AlwaysRetry() RetryCondition {
	return ConditionFunc(func(err error, _ int) bool { return err != nil })
}

// NeverRetry single attempt
func NeverRetry() RetryCondition {
	return ConditionFunc(func(error, int) bool { return false })
}

// RetryOnError retries only errors matching target via errors.Is
func RetryOnError(target error) RetryCondition {
	return ConditionFunc(func(err error, _ int) bool {
		return err != nil && errors.Is(err, target)
	})
}

// SkipKinds retries everything except cancellation and the listed error kinds.
// Circuit-open and auth failures are the usual members: another attempt can't
// change their outcome.
func SkipKinds(kinds ...errcode.Kind) RetryCondition {
	return ConditionFunc(func(err error, _ int) bool {
		if err == nil || errors.Is(err, context.Canceled) {
			return false
		}
		k := errcode.KindOf(err)
		for _, skip := range kinds {
			if k == skip {
				return false
			}
		}
		return true
	})
}
