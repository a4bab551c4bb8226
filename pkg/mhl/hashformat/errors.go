package hashformat

import "errors"

// ErrUnsupportedFormat is fatal: it must be caught before any write, per
// spec.md §7.
var ErrUnsupportedFormat = errors.New("unsupported hash format")
