package pipeline

import "errors"

var ErrDecodePanic = errors.New("decoder panicked")
