package transport

import (
	"sync/atomic"

	moderr "github.com/lizzyg/gemrouter/errors"
	"github.com/lizzyg/gemrouter/internal/core"
)

// Once makes s single-pass: the first iteration runs s, any later iteration
// yields ErrStreamConsumed and stops.
func Once(s core.Stream) core.Stream {
	var used atomic.Bool
	return func(yield func(*core.GenerateContentResponse, error) bool) {
		if used.Swap(true) {
			yield(nil, moderr.ErrStreamConsumed)
			return
		}
		s(yield)
	}
}

// Fail returns a stream that yields err once.
func Fail(err error) core.Stream {
	return func(yield func(*core.GenerateContentResponse, error) bool) {
		yield(nil, err)
	}
}
