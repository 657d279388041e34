package httpx

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/target/mmk-investigations/internal/domain/model"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// listQuery is the parsed form of GET /api/investigations query parameters.
type listQuery struct {
	Opts model.InvestigationListOptions
	// BadField names the parameter that failed to parse, if any.
	BadField string
	Err      error
}

// parseListQuery reads limit, offset and status. Missing or malformed limit and offset fall
// back to defaults and are clamped; an unknown status is a validation error.
func parseListQuery(r *http.Request) listQuery {
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), defaultListLimit)
	if limit < 1 {
		limit = defaultListLimit
	}
	limit = min(limit, maxListLimit)

	out := listQuery{Opts: model.InvestigationListOptions{
		Limit:  limit,
		Offset: max(intParam(q.Get("offset"), 0), 0),
	}}

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		var status model.InvestigationStatus
		if err := status.UnmarshalText([]byte(raw)); err != nil {
			out.BadField, out.Err = "status", err
			return out
		}
		out.Opts.Status = &status
	}
	return out
}

func intParam(v string, def int) int {
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
