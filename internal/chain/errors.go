package chain

import (
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when the watched lock is not registered upstream
	ErrNotFound = errors.New("lock not registered on contract")

	// ErrRangeTooLarge is returned when a log query exceeds the provider's
	// per-request block range cap
	ErrRangeTooLarge = errors.New("block range too large for provider")

	// ErrPushUnsupported is returned by Subscribe on poll-only transports
	ErrPushUnsupported = errors.New("push subscriptions unsupported on http transport")
)

// range cap rejections are not standardized across providers, so match the
// common phrasings in addition to any configured hard cap
var rangeTooLargeHints = []string{
	"query returned more than",
	"block range is too wide",
	"range too large",
	"exceed maximum block range",
	"logs are limited",
	"too many results",
	"limit exceeded",
}

func isRangeTooLargeError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range rangeTooLargeHints {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}
