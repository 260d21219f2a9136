// Package response builds outgoing HTTP messages: it dispatches
// GET/POST/DELETE against the routed Location and filesystem path,
// generates autoindex pages, handles uploads and deletions, substitutes
// error pages, and assembles the final wire-format response.
package response

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"webserv/internal/cgi"
	"webserv/internal/config"
	"webserv/internal/httpreq"
	"webserv/internal/httpstatus"
	"webserv/internal/router"
)

// Response is an outgoing HTTP message under construction.
type Response struct {
	Status      int
	ContentType string
	LocationHdr string
	Connection  string
	Content     []byte
	Serialized  []byte
}

// Build runs the full per-method dispatch and leaves r.Serialized ready
// to write to the client fd.
func Build(req *httpreq.Request, sb *config.ServerBlock, peer string) *Response {
	resp := &Response{}

	if req.Error != 0 {
		resp.Status = req.Error
		finalize(resp, req, sb)
		resp.Serialized = assemble(resp)
		return resp
	}

	decision := router.Route(req, sb)
	switch {
	case decision.Status == 301:
		resp.Status = 301
		resp.LocationHdr = decision.RedirectTo
	case decision.Status != 0:
		resp.Status = decision.Status
	default:
		dispatch(resp, req, sb, decision, peer)
	}

	finalize(resp, req, sb)
	resp.Serialized = assemble(resp)
	return resp
}

func dispatch(resp *Response, req *httpreq.Request, sb *config.ServerBlock, d router.Decision, peer string) {
	switch req.Method {
	case httpreq.MethodGet:
		handleGet(resp, req, sb, d)
	case httpreq.MethodPost:
		handlePost(resp, req, sb, d, peer)
	case httpreq.MethodDelete:
		handleDelete(resp, d)
	default:
		resp.Status = 501
	}
}

// cgiInterpreterFor returns the interpreter for fsPath's extension if the
// location declares CGI mappings and the extension matches.
func cgiInterpreterFor(loc *config.Location, fsPath string) (string, bool) {
	if loc == nil || len(loc.CGI) == 0 {
		return "", false
	}
	for ext, interpreter := range loc.CGI {
		if strings.HasSuffix(fsPath, ext) {
			return interpreter, true
		}
	}
	return "", false
}

func handleGet(resp *Response, req *httpreq.Request, sb *config.ServerBlock, d router.Decision) {
	if interpreter, ok := cgiInterpreterFor(d.Location, d.FSPath); ok {
		runCGI(resp, req, sb, interpreter, d.FSPath)
		return
	}

	info, err := os.Stat(d.FSPath)
	if err != nil {
		resp.Status = 404
		return
	}

	if info.IsDir() {
		if !strings.HasSuffix(req.Path, "/") {
			resp.Status = 301
			resp.LocationHdr = req.Path + "/"
			return
		}
		if d.Location.Index != "" {
			serveFile(resp, d.Location.Index)
			return
		}
		if d.Location.Autoindex {
			resp.Content = []byte(buildAutoindex(req.Path, d.FSPath))
			resp.ContentType = "text/html"
			resp.Status = 200
			return
		}
		resp.Status = 403
		return
	}

	serveFile(resp, d.FSPath)
}

func serveFile(resp *Response, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		resp.Status = 500
		return
	}
	resp.Content = data
	resp.ContentType = httpstatus.MIMEType(extOf(path))
	resp.Status = 200
}

func extOf(path string) string {
	idx := strings.LastIndexByte(path, '.')
	slash := strings.LastIndexByte(path, '/')
	if idx <= slash {
		return ""
	}
	return path[idx:]
}

func handleDelete(resp *Response, d router.Decision) {
	info, err := os.Stat(d.FSPath)
	if err != nil {
		resp.Status = 404
		return
	}
	if info.Mode()&0o200 == 0 {
		resp.Status = 403
		return
	}
	if info.IsDir() && !strings.HasSuffix(d.FSPath, "/") {
		resp.Status = 404
		return
	}
	// Non-empty directories fail remove() with ENOTEMPTY, which falls
	// through to the generic 500 below rather than recursing.
	if err := os.Remove(d.FSPath); err != nil {
		resp.Status = 500
		return
	}
	resp.Status = 200
	resp.Content = []byte(successPage(200))
	resp.ContentType = "text/html"
}

func runCGI(resp *Response, req *httpreq.Request, sb *config.ServerBlock, interpreter, scriptPath string) {
	result, err := cgi.Run(cgi.Request{
		Interpreter: interpreter,
		ScriptPath:  scriptPath,
		Method:      req.Method,
		Path:        req.Path,
		Query:       req.Query,
		Headers:     req.Headers,
		Body:        req.Body,
		ServerName:  hostName(req),
		ServerPort:  sb.Port,
	})
	if err != nil {
		resp.Status = 500
		return
	}
	resp.Status = result.Status
	resp.ContentType = result.ContentType
	if result.Location != "" {
		resp.LocationHdr = result.Location
		if resp.Status == 0 {
			resp.Status = 301
		}
	}
	resp.Content = result.Body
	if resp.Status == 0 {
		resp.Status = 200
	}
}

func hostName(req *httpreq.Request) string {
	host, _ := req.Header("Host")
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		return host[:idx]
	}
	return host
}

// finalize fills in Connection and substitutes error pages for any status
// that isn't a plain success (200, 201, 202 or 301).
func finalize(resp *Response, req *httpreq.Request, sb *config.ServerBlock) {
	connHdr, _ := req.Header("Connection")
	if resp.Status == 200 && strings.EqualFold(connHdr, "keep-alive") {
		resp.Connection = "keep-alive"
	} else {
		resp.Connection = "close"
	}

	if resp.Status == 200 || resp.Status == 201 || resp.Status == 202 || resp.Status == 301 {
		return
	}

	if sb != nil {
		if path, ok := sb.ErrorPages[resp.Status]; ok {
			if data, err := os.ReadFile(path); err == nil {
				resp.Content = data
				resp.ContentType = httpstatus.MIMEType(extOf(path))
				return
			}
		}
	}
	resp.Content = []byte(defaultErrorPage(resp.Status))
	resp.ContentType = "text/html"
}

func defaultErrorPage(code int) string {
	reason := httpstatus.ReasonPhrase(code)
	return fmt.Sprintf(`<!DOCTYPE html><html><head><title>%d %s</title></head>`+
		`<body><center><h1>%d %s</h1></center><hr><center>webserv</center></body></html>`,
		code, reason, code, reason)
}

// successPage is a minimal body for 200/201/202 responses; styling it is
// left to whatever the deployment fronts this server with.
func successPage(code int) string {
	reason := httpstatus.ReasonPhrase(code)
	return fmt.Sprintf(`<!DOCTYPE html><html><body><h1>%s</h1></body></html>`, reason)
}

// assemble serializes the status line, headers and body.
func assemble(resp *Response) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", resp.Status, httpstatus.ReasonPhrase(resp.Status))
	fmt.Fprintf(&b, "Server: Webserv\r\n")
	fmt.Fprintf(&b, "Date: %s\r\n", formatHTTPDate(time.Now()))
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(resp.Content))
	if resp.ContentType != "" {
		fmt.Fprintf(&b, "Content-Type: %s\r\n", resp.ContentType)
	}
	fmt.Fprintf(&b, "Connection: %s\r\n", resp.Connection)
	if resp.LocationHdr != "" {
		fmt.Fprintf(&b, "Location: %s\r\n", resp.LocationHdr)
	}
	b.WriteString("\r\n")

	out := make([]byte, 0, b.Len()+len(resp.Content))
	out = append(out, b.String()...)
	out = append(out, resp.Content...)
	return out
}

// formatHTTPDate formats t as RFC1123 with a hard-coded GMT zone.
func formatHTTPDate(t time.Time) string {
	s := t.UTC().Format(time.RFC1123)
	return s[:len(s)-3] + "GMT"
}

// sortedKeys is used by the autoindex builder to produce deterministic
// directory listings.
func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
