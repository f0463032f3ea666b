package query

import (
	"errors"
)

var ErrNotFound = errors.New("not found")
