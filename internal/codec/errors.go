package codec

import (
	"fmt"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// ErrorKind classifies a decode failure.
type ErrorKind string

const (
	ErrShort         ErrorKind = "short"
	ErrDiscriminator ErrorKind = "discriminator"
	ErrStringLength  ErrorKind = "string_length"
	ErrInvalidBool   ErrorKind = "invalid_bool"
	ErrInvalidOption ErrorKind = "invalid_option"
	ErrInvalidUTF8   ErrorKind = "invalid_utf8"
)

// DecodeError reports why an account could not be decoded. It matches
// domain.ErrMalformedAccount under errors.Is.
type DecodeError struct {
	Kind   ErrorKind
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("codec: malformed account (%s at offset %d): %s", e.Kind, e.Offset, e.Reason)
}

// Is makes every DecodeError match domain.ErrMalformedAccount.
func (e *DecodeError) Is(target error) bool {
	return target == domain.ErrMalformedAccount
}
