package mail

import (
	"errors"
	"fmt"
)

// ErrAuthFailed marks a login rejection at session construction. It is the
// only session error treated as fatal by callers; everything after a
// successful login degrades instead of failing.
var ErrAuthFailed = errors.New("mail authentication failed")

func wrapAuthFailed(err error) error {
	if err == nil {
		return ErrAuthFailed
	}
	return fmt.Errorf("%w: %v", ErrAuthFailed, err)
}
