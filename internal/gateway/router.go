package gateway

import (
	"net/http"
	"strings"
)

const resourcePrefix = "media"

// parseMediaPath splits a path of the form /media[/<id>]. ok is false for
// any other shape.
func parseMediaPath(p string) (id string, ok bool) {
	segments := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if segments[0] != resourcePrefix {
		return "", false
	}

	switch len(segments) {
	case 1:
		return "", true
	case 2:
		return segments[1], segments[1] != ""
	default:
		return "", false
	}
}

// Handler returns an http.Handler implementing the media API.
//
// Routing is done by hand rather than with ServeMux patterns so that a
// wrong method gets the same 404 as a wrong path.
func (s *Server) Handler() http.Handler {
	route := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseMediaPath(r.URL.Path)
		if !ok {
			writeNotFound(w)
			return
		}

		switch {
		case r.Method == http.MethodPost && id == "":
			s.handleCreate(w, r)
		case r.Method == http.MethodGet && id != "":
			s.handleRead(w, r, id)
		case r.Method == http.MethodPut && id != "":
			s.handleUpdate(w, r, id)
		case r.Method == http.MethodDelete && id != "":
			s.handleDelete(w, r, id)
		default:
			writeNotFound(w)
		}
	})

	return LogRequest(Recoverer(SlashFix(route)))
}
