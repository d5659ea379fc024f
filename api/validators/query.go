package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/pagination"
)

// ParsePage reads the limit and cursor query parameters shared by the list
// endpoints. A malformed cursor is rejected here rather than by the repository.
func ParsePage(r *http.Request) (pagination.Params, error) {
	query := r.URL.Query()

	limit := pagination.DefaultLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return pagination.Params{}, invalidQuery("limit", "limit must be a whole number")
		}
		if value < 1 || value > pagination.MaxLimit {
			return pagination.Params{}, invalidQuery("limit", "limit out of range").
				WithDetails(map[string]any{"field": "limit", "min": 1, "max": pagination.MaxLimit})
		}
		limit = value
	}

	cursor := strings.TrimSpace(query.Get("cursor"))
	if _, err := pagination.ParseCursor(cursor); err != nil {
		return pagination.Params{}, invalidQuery("cursor", "cursor is not valid")
	}
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}

func invalidQuery(field, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, msg).WithDetails(map[string]any{"field": field})
}
