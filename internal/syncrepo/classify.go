package syncrepo

import (
	"context"
	"errors"
	"net"

	"github.com/Camilo-RBS/Habitumapp-sub000/internal/domain"
	"github.com/Camilo-RBS/Habitumapp-sub000/internal/remote"
)

// Classify maps a failure onto the taxonomy shown to the user.
func Classify(err error) domain.FailureKind {
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrNotFound):
		return domain.FailureNotFound
	case errors.Is(err, remote.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return domain.FailureNetwork
	case errors.Is(err, remote.ErrRejected),
		errors.Is(err, remote.ErrNotFound),
		errors.Is(err, domain.ErrInvalidEntity),
		errors.Is(err, domain.ErrInvalidTransition):
		return domain.FailureRejected
	default:
		return domain.FailureUnknown
	}
}
