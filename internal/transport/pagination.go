package transport

import (
	"net/http"
	"strconv"
)

// pageParams reads page/limit query params, defaulting and clamping happens
// in the caller via projection.ClampPage.
func pageParams(r *http.Request) (page, limit int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	return page, limit
}
