package ui

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"time"

	"github.com/bher20/cryptotracker/internal/dashboard"
	"github.com/bher20/cryptotracker/internal/market"
)

// content embeds all static assets and templates for the web UI.
//
//go:embed static/* templates/*
var content embed.FS

var dashboardTmpl = template.Must(template.ParseFS(content, "templates/dashboard.html"))

// StaticHandler returns an http.Handler that serves the embedded assets.
func StaticHandler() http.Handler {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		// This should never happen in a correctly built binary.
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

type sortOption struct {
	Label    string
	Slug     string
	Selected bool
}

type page struct {
	View              *dashboard.View
	Search            string
	SortOptions       []sortOption
	Query             template.URL
	PerPage           int
	NextUpdateMinutes int
}

// QueryString encodes params so chart and download links reproduce the view.
func QueryString(p dashboard.Params) string {
	v := url.Values{}
	v.Set("sort", p.Sort.Slug())
	if p.Search != "" {
		v.Set("search", p.Search)
	}
	return v.Encode()
}

// RenderDashboard writes the dashboard page for view.
func RenderDashboard(w io.Writer, view *dashboard.View, perPage int, now time.Time) error {
	opts := make([]sortOption, 0, len(market.SortKeys))
	for _, k := range market.SortKeys {
		opts = append(opts, sortOption{Label: string(k), Slug: k.Slug(), Selected: k == view.Params.Sort})
	}
	return dashboardTmpl.Execute(w, page{
		View:              view,
		Search:            view.Params.Search,
		SortOptions:       opts,
		Query:             template.URL(QueryString(view.Params)),
		PerPage:           perPage,
		NextUpdateMinutes: view.MinutesUntilRefresh(now),
	})
}
