package response

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"webserv/internal/config"
	"webserv/internal/httpreq"
)

func newRequest(t *testing.T, sb *config.ServerBlock, raw string) *httpreq.Request {
	t.Helper()
	r := httpreq.New(func(req *httpreq.Request) error {
		req.ServerBlock = sb
		return nil
	})
	r.Feed([]byte(raw))
	require.True(t, r.Done())
	return r
}

func TestBuildServesStaticFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("hello"), 0o644))

	sb := &config.ServerBlock{
		Root: root,
		Locations: map[string]*config.Location{
			"/": {Prefix: "/", AllowedMethods: map[string]bool{"GET": true}},
		},
		LocationOrder: []string{"/"},
	}
	req := newRequest(t, sb, "GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n")

	resp := Build(req, sb, "127.0.0.1:1")
	require.Equal(t, 200, resp.Status)
	require.Equal(t, "hello", string(resp.Content))
	require.Equal(t, "text/html", resp.ContentType)
}

func TestBuildMissingFileIs404(t *testing.T) {
	root := t.TempDir()
	sb := &config.ServerBlock{
		Root: root,
		Locations: map[string]*config.Location{
			"/": {Prefix: "/", AllowedMethods: map[string]bool{"GET": true}},
		},
		LocationOrder: []string{"/"},
	}
	req := newRequest(t, sb, "GET /nope.html HTTP/1.1\r\nHost: x\r\n\r\n")

	resp := Build(req, sb, "127.0.0.1:1")
	require.Equal(t, 404, resp.Status)
}

func TestBuildDirectoryWithoutTrailingSlashRedirects(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	sb := &config.ServerBlock{
		Root: root,
		Locations: map[string]*config.Location{
			"/": {Prefix: "/", AllowedMethods: map[string]bool{"GET": true}, Autoindex: true},
		},
		LocationOrder: []string{"/"},
	}
	req := newRequest(t, sb, "GET /sub HTTP/1.1\r\nHost: x\r\n\r\n")

	resp := Build(req, sb, "127.0.0.1:1")
	require.Equal(t, 301, resp.Status)
	require.Equal(t, "/sub/", resp.LocationHdr)
}

func TestBuildAutoindexListsEntries(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))

	sb := &config.ServerBlock{
		Root: root,
		Locations: map[string]*config.Location{
			"/": {Prefix: "/", AllowedMethods: map[string]bool{"GET": true}, Autoindex: true},
		},
		LocationOrder: []string{"/"},
	}
	req := newRequest(t, sb, "GET / HTTP/1.1\r\nHost: x\r\n\r\n")

	resp := Build(req, sb, "127.0.0.1:1")
	require.Equal(t, 200, resp.Status)
	require.Contains(t, string(resp.Content), "a.txt")
}

func TestBuildDirectoryNoIndexNoAutoindexIs403(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	sb := &config.ServerBlock{
		Root: root,
		Locations: map[string]*config.Location{
			"/": {Prefix: "/", AllowedMethods: map[string]bool{"GET": true}},
		},
		LocationOrder: []string{"/"},
	}
	req := newRequest(t, sb, "GET /sub/ HTTP/1.1\r\nHost: x\r\n\r\n")

	resp := Build(req, sb, "127.0.0.1:1")
	require.Equal(t, 403, resp.Status)
}

func TestBuildPostCreatesThenAppends(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "data.txt")

	sb := &config.ServerBlock{
		Root: root,
		Locations: map[string]*config.Location{
			"/": {Prefix: "/", AllowedMethods: map[string]bool{"POST": true}},
		},
		LocationOrder: []string{"/"},
	}

	req := newRequest(t, sb, "POST /data.txt HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello")
	resp := Build(req, sb, "127.0.0.1:1")
	require.Equal(t, 201, resp.Status)

	req2 := newRequest(t, sb, "POST /data.txt HTTP/1.1\r\nHost: x\r\nContent-Length: 6\r\n\r\n world")
	resp2 := Build(req2, sb, "127.0.0.1:1")
	require.Equal(t, 200, resp2.Status)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))
}

func TestBuildDeleteMissingIs404(t *testing.T) {
	root := t.TempDir()
	sb := &config.ServerBlock{
		Root: root,
		Locations: map[string]*config.Location{
			"/": {Prefix: "/", AllowedMethods: map[string]bool{"DELETE": true}},
		},
		LocationOrder: []string{"/"},
	}
	req := newRequest(t, sb, "DELETE /nope.txt HTTP/1.1\r\nHost: x\r\n\r\n")

	resp := Build(req, sb, "127.0.0.1:1")
	require.Equal(t, 404, resp.Status)
}

func TestBuildDeleteRemovesFile(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "bye.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	sb := &config.ServerBlock{
		Root: root,
		Locations: map[string]*config.Location{
			"/": {Prefix: "/", AllowedMethods: map[string]bool{"DELETE": true}},
		},
		LocationOrder: []string{"/"},
	}
	req := newRequest(t, sb, "DELETE /bye.txt HTTP/1.1\r\nHost: x\r\n\r\n")

	resp := Build(req, sb, "127.0.0.1:1")
	require.Equal(t, 200, resp.Status)
	_, err := os.Stat(target)
	require.True(t, os.IsNotExist(err))
}

func TestBuildErrorPageSubstitution(t *testing.T) {
	root := t.TempDir()
	errPage := filepath.Join(root, "404.html")
	require.NoError(t, os.WriteFile(errPage, []byte("custom not found"), 0o644))

	sb := &config.ServerBlock{
		Root:       root,
		ErrorPages: map[int]string{404: errPage},
		Locations: map[string]*config.Location{
			"/": {Prefix: "/", AllowedMethods: map[string]bool{"GET": true}},
		},
		LocationOrder: []string{"/"},
	}
	req := newRequest(t, sb, "GET /nope.html HTTP/1.1\r\nHost: x\r\n\r\n")

	resp := Build(req, sb, "127.0.0.1:1")
	require.Equal(t, 404, resp.Status)
	require.Equal(t, "custom not found", string(resp.Content))
}

func TestBuildKeepAliveSurvivesOnlyOnSuccess(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok.html"), []byte("ok"), 0o644))

	sb := &config.ServerBlock{
		Root: root,
		Locations: map[string]*config.Location{
			"/": {Prefix: "/", AllowedMethods: map[string]bool{"GET": true}},
		},
		LocationOrder: []string{"/"},
	}
	req := newRequest(t, sb, "GET /ok.html HTTP/1.1\r\nHost: x\r\nConnection: keep-alive\r\n\r\n")
	resp := Build(req, sb, "127.0.0.1:1")
	require.Equal(t, "keep-alive", resp.Connection)

	req2 := newRequest(t, sb, "GET /missing HTTP/1.1\r\nHost: x\r\nConnection: keep-alive\r\n\r\n")
	resp2 := Build(req2, sb, "127.0.0.1:1")
	require.Equal(t, "close", resp2.Connection)
}
