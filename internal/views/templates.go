package views

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const (
	PageAdmin  = "admin.html"
	PageAgenda = "agenda.html"
	PageBook   = "book.html"
	PageLogin  = "login.html"
)

var funcs = template.FuncMap{
	"lower": strings.ToLower,
}

// Templates parses the embedded page templates.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html")
}

func MustTemplates() *template.Template {
	return template.Must(Templates())
}

// Static serves the stylesheet under /static.
func Static() http.FileSystem {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.FS(sub)
}
