package vk

import (
	"fmt"

	"vkrelay/internal/poster"
)

// VK API error codes the client distinguishes.
const (
	codeUnknown        = 1
	codeAuthFailed     = 5
	codeTooManyPerSec  = 6
	codeFlood          = 9
	codeInternal       = 10
	codeAccessDenied   = 15
	codeRateLimit      = 29
	codeInvalidParam   = 100
	codePostNotFound   = 104
	codeWallPostDenied = 214
	codeTooManyRecips  = 219
	codeTooManyPosts   = 220
	codeCantDeleteAll  = 924
)

// APIError is an error object returned by the VK API. It unwraps to the
// poster sentinel matching its code.
type APIError struct {
	Method string
	Code   int
	Msg    string
	kind   error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("vk %s: error %d: %s", e.Method, e.Code, e.Msg)
}

func (e *APIError) Unwrap() error { return e.kind }

// classify maps an API error code to a poster sentinel. Delete failures
// use the not-found/forbidden taxonomy; everything else is publish-shaped.
func classify(method string, code int) error {
	switch code {
	case codeAuthFailed:
		return poster.ErrUnauthenticated
	case codeTooManyPerSec, codeFlood, codeRateLimit:
		return poster.ErrRateLimited
	case codeUnknown, codeInternal:
		return poster.ErrTransport
	}
	if method == methodWallDelete || method == methodMessagesDelete {
		switch code {
		case codeInvalidParam, codePostNotFound:
			return poster.ErrNotFound
		default:
			return poster.ErrForbidden
		}
	}
	return poster.ErrRejected
}
