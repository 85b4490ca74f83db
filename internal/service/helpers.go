package service

import (
	"database/sql"
	"errors"

	"github.com/noah-isme/demandes-api/internal/models"
	appErrors "github.com/noah-isme/demandes-api/pkg/errors"
)

// notFoundOr maps sql.ErrNoRows to NOT_FOUND and anything else to INTERNAL_ERROR.
func notFoundOr(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

// ensureReadable lets requesters see only their own requests.
func ensureReadable(actor models.Actor, demande *models.Demande) error {
	if actor.Role == models.RoleRequester && demande.RequesterID != actor.ID {
		return appErrors.Clone(appErrors.ErrForbidden, "request belongs to another requester")
	}
	return nil
}

func paginate(page, size, maxSize int) (limit, offset int, p models.Pagination) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > maxSize {
		size = maxSize
	}
	return size, (page - 1) * size, models.Pagination{Page: page, PageSize: size}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
