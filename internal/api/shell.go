package api

import (
	_ "embed"
	"html/template"
	"log/slog"
	"net/http"
)

//go:embed web/shell.html
var shellSource string

var shellTemplate = template.Must(template.New("shell").Parse(shellSource))

type shellData struct {
	Token       string
	TokenHeader string
	DevMode     bool
}

// shellHandler renders the chrome page that hosts the tab strip, header and
// sidebar. The token is baked in so the page can call the control API.
func shellHandler(token string, devMode bool) http.HandlerFunc {
	data := shellData{Token: token, TokenHeader: TokenHeader, DevMode: devMode}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		if err := shellTemplate.Execute(w, data); err != nil {
			slog.Warn("shell render failed", "error", err)
		}
	}
}
