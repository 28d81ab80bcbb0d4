package fetcher

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

var (
	// request rejected, timed out or answered with a non 2xx status
	ErrNetwork = errors.New("network failure")
	// well formed response without a usable entry
	ErrEmptyResult = errors.New("empty result")
	// response missing the expected fields
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// IsNoLink reports whether err means "nothing playable" rather than a
// transport problem. Schema mismatches are treated like empty results.
func IsNoLink(err error) bool {
	return stderrors.Is(err, ErrEmptyResult) || stderrors.Is(err, ErrSchemaMismatch)
}
