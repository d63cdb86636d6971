package usage

import "errors"

// ErrLimitReached indicates the user exhausted their daily analysis limit.
var ErrLimitReached = errors.New("daily limit reached")
