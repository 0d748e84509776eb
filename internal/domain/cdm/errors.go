package cdm

import (
	"errors"
	"strings"
)

// ErrInvalidCDM is matched by every ParseError.
var ErrInvalidCDM = errors.New("invalid CCSDS CDM KVN")

// ParseError carries every problem found in one message.
type ParseError struct {
	Problems []string
}

func (e *ParseError) Error() string {
	return ErrInvalidCDM.Error() + ": " + strings.Join(e.Problems, "; ")
}

// Is makes errors.Is(err, ErrInvalidCDM) succeed.
func (e *ParseError) Is(target error) bool {
	return target == ErrInvalidCDM
}
