package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/script-kb-assistant/internal/core/domain"
)

type errorClass struct {
	kind   error
	status int
	code   string
}

// errorClasses is matched in order. ErrTemporary precedes the upstream and data-access
// kinds it may accompany, and ErrSchemaMismatch precedes ErrUpstreamModel which it wraps.
var errorClasses = []errorClass{
	{kind: domain.ErrInvalidInput, status: http.StatusBadRequest, code: "invalid_input"},
	{kind: domain.ErrSessionNotFound, status: http.StatusNotFound, code: "session_not_found"},
	{kind: domain.ErrTemporary, status: http.StatusServiceUnavailable, code: "temporarily_unavailable"},
	{kind: domain.ErrSchemaMismatch, status: http.StatusBadGateway, code: "schema_mismatch"},
	{kind: domain.ErrUpstreamModel, status: http.StatusBadGateway, code: "upstream_model"},
	{kind: domain.ErrDataAccess, status: http.StatusServiceUnavailable, code: "data_access"},
}

func classifyError(err error) (int, string) {
	for _, class := range errorClasses {
		if errors.Is(err, class.kind) {
			return class.status, class.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

// streamRejects reports errors answered with a plain status instead of an event stream.
func streamRejects(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrSessionNotFound)
}
