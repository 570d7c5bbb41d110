package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid actor")
	ErrInvalidObject = errors.New("invalid object")
	ErrInvalidAction = errors.New("invalid action")
)

// Actor is the authenticated operator making an admin request.
type Actor struct {
	Email string
	Role  string
}

type Service interface {
	Authorize(ctx context.Context, actor Actor, object string, action string) error
}
