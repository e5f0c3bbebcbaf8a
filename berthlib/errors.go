package berthlib

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrCapacityExceeded = errors.New("count pushed past the configured maximum")
	ErrNotBorrowed      = errors.New("lease is already back in its pool")
	ErrFlushTimeout     = errors.New("flush deadline elapsed")
)

// A lease handed to the wrong pool is an invalid argument, so ErrWrongPool
// matches errors.Is checks against both sentinels.
var ErrWrongPool = fmt.Errorf("lease was issued by a different pool: %w", ErrInvalidArgument)
