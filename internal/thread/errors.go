package thread

import "errors"

// ErrNoActiveThread is returned by operations that need a bound thread identifier.
var ErrNoActiveThread = errors.New("no thread is bound to the controller")
