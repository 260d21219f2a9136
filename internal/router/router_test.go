package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"webserv/internal/config"
	"webserv/internal/httpreq"
)

func newReq(t *testing.T, method, path string, sb *config.ServerBlock) *httpreq.Request {
	t.Helper()
	r := httpreq.New(func(req *httpreq.Request) error {
		req.ServerBlock = sb
		return nil
	})
	line := method + " " + path + " HTTP/1.1\r\nHost: x\r\n\r\n"
	r.Feed([]byte(line))
	require.True(t, r.Done())
	require.Equal(t, 0, r.Error)
	return r
}

func testServer() *config.ServerBlock {
	return &config.ServerBlock{
		Root: "/var/www",
		Locations: map[string]*config.Location{
			"/": {
				Prefix:         "/",
				AllowedMethods: map[string]bool{"GET": true},
				Autoindex:      true,
			},
			"/upload": {
				Prefix:         "/upload",
				AllowedMethods: map[string]bool{"POST": true},
			},
			"/old": {
				Prefix:         "/old",
				AllowedMethods: map[string]bool{"GET": true},
				Redirection:    "/new",
			},
			"/assets": {
				Prefix:         "/assets",
				AllowedMethods: map[string]bool{"GET": true},
				Alias:          "/srv/static/",
			},
		},
		LocationOrder: []string{"/", "/upload", "/old", "/assets"},
	}
}

func TestRouteNoMatchingLocation(t *testing.T) {
	sb := &config.ServerBlock{Root: "/var/www"}
	req := newReq(t, "GET", "/anything", sb)
	d := Route(req, sb)
	require.Equal(t, 404, d.Status)
}

func TestRouteMethodNotAllowed(t *testing.T) {
	sb := testServer()
	req := newReq(t, "DELETE", "/index.html", sb)
	d := Route(req, sb)
	require.Equal(t, 405, d.Status)
}

func TestRouteRedirect(t *testing.T) {
	sb := testServer()
	req := newReq(t, "GET", "/old", sb)
	d := Route(req, sb)
	require.Equal(t, 301, d.Status)
	require.Equal(t, "/new", d.RedirectTo)
}

func TestRouteResolvesFSPath(t *testing.T) {
	sb := testServer()
	req := newReq(t, "GET", "/index.html", sb)
	d := Route(req, sb)
	require.Equal(t, 0, d.Status)
	require.Equal(t, "/var/www/index.html", d.FSPath)
}

func TestRouteAlias(t *testing.T) {
	sb := testServer()
	req := newReq(t, "GET", "/assets/app.css", sb)
	d := Route(req, sb)
	require.Equal(t, 0, d.Status)
	require.Equal(t, "/srv/static/app.css", d.FSPath)
}

func TestRouteUnsupportedMethod(t *testing.T) {
	sb := testServer()
	req := newReq(t, "GET", "/index.html", sb)
	req.Method = httpreq.MethodOther
	d := Route(req, sb)
	require.Equal(t, 501, d.Status)
}
