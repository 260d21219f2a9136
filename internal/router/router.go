// Package router implements server selection and location routing:
// picking a ServerBlock from the accepting socket and Host header, then
// picking the longest-matching Location, enforcing the method gate and
// redirection rule, and resolving the on-disk path (including alias
// rewriting) that the response builder should serve.
package router

import (
	"fmt"
	"strings"

	"webserv/internal/config"
	"webserv/internal/httpreq"
)

// Resolver binds a Config to the server-selection step the request
// parser invokes once headers are complete.
type Resolver struct {
	cfg *config.Config
}

// NewResolver wraps cfg for use as a httpreq.ServerResolver factory.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// ForSocket returns a ServerResolver bound to the listening socket that
// accepted the connection — the resolver consults the Host header once
// it is known and otherwise falls back to the first server on that
// endpoint.
func (r *Resolver) ForSocket(key config.SocketKey) httpreq.ServerResolver {
	return func(req *httpreq.Request) error {
		host, _ := req.Header("Host")
		host = stripPort(host)

		sb := r.cfg.ServerFor(key, host)
		if sb == nil {
			return fmt.Errorf("router: no server block bound to %+v", key)
		}
		req.ServerBlock = sb
		return nil
	}
}

func stripPort(host string) string {
	if idx := strings.IndexByte(host, ':'); idx >= 0 {
		return host[:idx]
	}
	return host
}

// Decision is the outcome of routing one request: either a short-circuit
// status (404/405/301/...) or a Location plus the resolved filesystem
// path to act on.
type Decision struct {
	Status     int // non-zero short-circuits response building
	RedirectTo string
	Location   *config.Location
	FSPath     string
}

// Route applies location matching, the method gate and redirection rule,
// and alias rewriting, for a request already bound to sb.
func Route(req *httpreq.Request, sb *config.ServerBlock) Decision {
	loc := sb.MatchLocation(req.Path)
	if loc == nil {
		return Decision{Status: 404}
	}

	if req.Method == httpreq.MethodOther {
		return Decision{Status: 501}
	}
	if !loc.Allows(req.Method) {
		return Decision{Status: 405}
	}

	if loc.Redirection != "" {
		return Decision{Status: 301, RedirectTo: loc.Redirection}
	}

	fsPath := sb.Root + req.Path
	if loc.Alias != "" {
		prefixFS := sb.Root + loc.Prefix
		if strings.HasPrefix(fsPath, prefixFS) {
			rest := strings.TrimPrefix(fsPath, prefixFS)
			if strings.HasSuffix(loc.Alias, "/") {
				rest = strings.TrimPrefix(rest, "/")
			}
			fsPath = loc.Alias + rest
		}
	}

	return Decision{Location: loc, FSPath: fsPath}
}
