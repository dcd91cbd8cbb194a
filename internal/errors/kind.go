package errors

import "errors"

type Kind int

const (
	KindUnknown Kind = iota
	KindConfiguration
	KindTransport
	KindValidation
)

func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrTransport):
		return KindTransport
	}
	return KindUnknown
}
