package utils

import (
	"net/http"
	"strconv"
	"strings"

	"ms-auction/internal/auctionerr"
)

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Pagination reads page and limit from the query string. Missing values take
// the defaults; out-of-range values are a validation failure.
func Pagination(r *http.Request) (page, limit int, err error) {
	page, limit = 1, DefaultPageLimit
	if v := r.URL.Query().Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			return 0, 0, auctionerr.Validation("page", "must be a positive integer")
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > MaxPageLimit {
			return 0, 0, auctionerr.Validation("limit", "must be between 1 and 100")
		}
	}
	return page, limit, nil
}

// CSV splits a comma separated query value, dropping blanks.
func CSV(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
