package sock

import "errors"

var (
	// ErrAgain reports that a non-blocking descriptor is not ready.
	ErrAgain = errors.New("sock: resource temporarily unavailable")
	// ErrTimeout reports that a connect did not finish before its deadline.
	ErrTimeout = errors.New("sock: i/o timeout")
)
