package quote

import (
	"strings"

	"github.com/spendsave/savings-engine/internal/retry"
)

// fatalSignatures are error shapes no retry can fix: retrying burns the
// budget without any chance of a different outcome.
var fatalSignatures = []string{
	"incompatible type",
	"missing signer",
	"no signer available",
	"invalid abi",
	"unsupported fee tier",
}

var transientSignatures = []string{
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"temporarily unavailable",
	"rate limit",
	"429",
	"eof",
}

// Classify tags a quoting error for the retry loop.
func Classify(err error) retry.Class {
	if err == nil {
		return retry.ClassUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range fatalSignatures {
		if strings.Contains(msg, sig) {
			return retry.ClassFatal
		}
	}
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return retry.ClassRetryable
		}
	}
	return retry.ClassUnknown
}
