package web

import (
	"net/http"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/loglens/internal/logging"
)

// renderHTML writes c as a full HTML response.
func renderHTML(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render page", "error", err)
	}
}
