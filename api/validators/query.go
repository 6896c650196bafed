package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/pullstream-backend/pkg/errors"
	"github.com/angelmondragon/pullstream-backend/pkg/pagination"
)

// ParsePage reads ?limit= and ?cursor=. The cursor stays opaque here; the
// service decodes it and rejects garbage.
func ParsePage(r *http.Request) (pagination.Params, error) {
	query := r.URL.Query()
	params := pagination.Params{
		Limit:  pagination.DefaultLimit,
		Cursor: strings.TrimSpace(query.Get("cursor")),
	}

	raw := strings.TrimSpace(query.Get("limit"))
	if raw == "" {
		return params, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return pagination.Params{}, limitError("limit must be an integer")
	}
	if limit < 1 || limit > pagination.MaxLimit {
		return pagination.Params{}, limitError("limit out of range").
			WithDetails(map[string]any{"field": "limit", "min": 1, "max": pagination.MaxLimit})
	}
	params.Limit = limit
	return params, nil
}

func limitError(msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": "limit"})
}
