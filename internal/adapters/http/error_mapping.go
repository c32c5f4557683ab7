package httpadapter

import (
	"errors"
	"net/http"

	"github.com/surgiscan/docintake/internal/core/domain"
)

var errMultipartFile = errors.New("multipart field 'file' is required")

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrValidation):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrInvalidState):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrUpstreamRejected):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
