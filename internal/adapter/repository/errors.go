package repository

import (
	stderrors "errors"

	"posttrr/pkg/errors"
)

// asAppError lets transaction callbacks return domain errors through the storage client.
func asAppError(err error, target **errors.AppError) bool {
	return stderrors.As(err, target)
}
