package validators

import (
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/giftbasket/giftcart/pkg/errors"
)

const dateLayout = "2006-01-02"

// ParseQueryDate reads a required YYYY-MM-DD parameter as midnight in loc.
func ParseQueryDate(r *http.Request, key string, loc *time.Location) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "query parameter is required").WithDetails(map[string]any{"field": key})
	}
	if loc == nil {
		loc = time.Local
	}
	value, err := time.ParseInLocation(dateLayout, raw, loc)
	if err != nil {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "query parameter must be a YYYY-MM-DD date").WithDetails(map[string]any{"field": key})
	}
	return value, nil
}
