package perw

import "github.com/pkg/errors"

// Error kinds returned by the editor. Concrete errors wrap one of these with
// context, test them with errors.Is.
var (
	ErrIO            = errors.New("io error")
	ErrFormat        = errors.New("format error")
	ErrNotFound      = errors.New("section not found")
	ErrOutOfBounds   = errors.New("offset out of bounds")
	ErrDuplicateInit = errors.New("section table already enumerated")
	ErrContract      = errors.New("contract violation")
)
