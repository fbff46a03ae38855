package eventbus

import "errors"

// ErrInvalidCommand is returned for inbound commands that cannot be decoded.
var ErrInvalidCommand = errors.New("invalid command")
