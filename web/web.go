// Package web embeds the page templates and static assets served by the
// raffle and store binaries.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"

	"rifa/internal/catalogclient"
)

//go:embed all:templates
var templateFS embed.FS

//go:embed all:store
var storeFS embed.FS

//go:embed all:assets
var assetsFS embed.FS

// Templates parses every page template.
func Templates() (*template.Template, error) {
	t, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// StoreTemplates parses the catalog store front templates.
func StoreTemplates() (*template.Template, error) {
	t, err := template.New("").Funcs(template.FuncMap{
		"downloads": catalogclient.FormatDownloads,
	}).ParseFS(storeFS, "store/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse store templates: %w", err)
	}
	return t, nil
}

// Assets returns the static files rooted at the assets directory.
func Assets() (fs.FS, error) {
	return fs.Sub(assetsFS, "assets")
}
