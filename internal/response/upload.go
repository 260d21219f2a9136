package response

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"webserv/internal/config"
	"webserv/internal/httpreq"
	"webserv/internal/router"
)

// handlePost dispatches POST: CGI first (by extension match), then
// directory-target uploads (multipart or bare), then append-or-create on
// a resolved file path.
func handlePost(resp *Response, req *httpreq.Request, sb *config.ServerBlock, d router.Decision, peer string) {
	if interpreter, ok := cgiInterpreterFor(d.Location, d.FSPath); ok {
		runCGI(resp, req, sb, interpreter, d.FSPath)
		return
	}

	info, statErr := os.Stat(d.FSPath)
	if statErr == nil && info.IsDir() {
		uploadDir := d.FSPath
		if d.Location != nil && d.Location.Upload != "" {
			uploadDir = d.Location.Upload
		}
		contentType, _ := req.Header("Content-Type")
		if boundary, ok := multipartBoundary(contentType); ok {
			handleMultipartUpload(resp, req, uploadDir, boundary)
			return
		}
		handleBareUpload(resp, req, uploadDir, peer)
		return
	}

	writeAppendOrCreate(resp, d.FSPath, req.Body, statErr == nil)
}

// writeAppendOrCreate appends to an existing regular file (200) or creates
// a new one (201) with the body as contents.
func writeAppendOrCreate(resp *Response, path string, body []byte, exists bool) {
	flags := os.O_CREATE | os.O_WRONLY
	if exists {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		resp.Status = 500
		return
	}
	defer f.Close()
	if _, err := f.Write(body); err != nil {
		resp.Status = 500
		return
	}
	if exists {
		resp.Status = 200
	} else {
		resp.Status = 201
	}
	resp.ContentType = "text/html"
	resp.Content = []byte(successPage(resp.Status))
}

// multipartBoundary extracts the boundary= parameter from a
// "multipart/form-data; boundary=..." Content-Type header.
func multipartBoundary(contentType string) (string, bool) {
	if !strings.HasPrefix(strings.ToLower(contentType), "multipart/form-data") {
		return "", false
	}
	idx := strings.Index(strings.ToLower(contentType), "boundary=")
	if idx < 0 {
		return "", false
	}
	b := strings.TrimSpace(contentType[idx+len("boundary="):])
	b = strings.Trim(b, `"`)
	if b == "" {
		return "", false
	}
	return b, true
}

// handleMultipartUpload extracts the first file part's filename and
// content from the body and writes it under uploadDir, mirroring the
// original's single-part assumption (it reads one filename="..." field and
// one content span between the header blank line and the boundary).
func handleMultipartUpload(resp *Response, req *httpreq.Request, uploadDir, boundary string) {
	body := string(req.Body)
	marker := "--" + boundary
	endMarker := marker + "--"

	filenameIdx := strings.Index(body, "filename=\"")
	if filenameIdx < 0 {
		resp.Status = 400
		return
	}
	nameStart := filenameIdx + len("filename=\"")
	nameEnd := strings.IndexByte(body[nameStart:], '"')
	if nameEnd < 0 {
		resp.Status = 400
		return
	}
	filename := body[nameStart : nameStart+nameEnd]
	if filename == "" {
		resp.Status = 400
		return
	}

	headerEnd := strings.Index(body[nameStart:], "\r\n\r\n")
	if headerEnd < 0 {
		resp.Status = 400
		return
	}
	contentStart := nameStart + headerEnd + len("\r\n\r\n")

	boundaryEnd := strings.Index(body[contentStart:], marker)
	var contentEnd int
	if boundaryEnd < 0 {
		if idx := strings.Index(body[contentStart:], endMarker); idx >= 0 {
			contentEnd = contentStart + idx
		} else {
			contentEnd = len(body)
		}
	} else {
		contentEnd = contentStart + boundaryEnd
	}
	// Trim the CRLF that precedes the boundary line.
	trimmed := strings.TrimSuffix(body[contentStart:contentEnd], "\r\n")

	writeUploadedFile(resp, filepath.Join(uploadDir, filepath.Base(filename)), []byte(trimmed))
}

// handleBareUpload writes a non-multipart POST body directly into
// uploadDir, naming the file after the current UTC timestamp and the
// peer address since the request carries no filename.
func handleBareUpload(resp *Response, req *httpreq.Request, uploadDir, peer string) {
	name := fmt.Sprintf("upload-%s-%s.bin", time.Now().UTC().Format("20060102T150405.000000000"), sanitizePeer(peer))
	writeUploadedFile(resp, filepath.Join(uploadDir, name), req.Body)
}

func sanitizePeer(peer string) string {
	return strings.NewReplacer(":", "-", ".", "-").Replace(peer)
}

func writeUploadedFile(resp *Response, path string, content []byte) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		resp.Status = 500
		return
	}
	defer f.Close()
	if _, err := f.Write(content); err != nil {
		resp.Status = 500
		return
	}
	resp.Status = 202
	resp.ContentType = "text/html"
	resp.Content = []byte(successPage(202))
}

// buildAutoindex synthesizes a directory listing page when a request
// resolves to a directory with no index file and autoindex is enabled.
func buildAutoindex(urlPath, fsPath string) string {
	entries, err := os.ReadDir(fsPath)
	if err != nil {
		return defaultErrorPage(500)
	}

	sizes := make(map[string]int64, len(entries))
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		name := e.Name()
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		if e.IsDir() {
			name += "/"
		}
		names[name] = true
		sizes[name] = size
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<!DOCTYPE html><html><head><title>Index of %s</title></head><body>", urlPath)
	fmt.Fprintf(&b, "<h1>Index of %s</h1><pre>", urlPath)
	if urlPath != "/" {
		b.WriteString("<a href=\"../\">../</a>\n")
	}
	for _, name := range sortedKeys(names) {
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>\t\t%d bytes\n", name, name, sizes[name])
	}
	b.WriteString("</pre></body></html>")
	return b.String()
}

