// Package config parses the webserv directive-grammar configuration file
// into an ordered list of ServerBlocks with nested Location tables.
package config

// SocketKey identifies a listening endpoint by (host, port). ServerBlocks
// sharing a SocketKey share one Socket; this is a weak back-reference
// modeled as a value key rather than a pointer, since the owning Socket
// is a separate component's responsibility (internal/socket and
// internal/reactor own the map this key indexes into).
type SocketKey struct {
	Host uint32
	Port int
}

// Location is a routing rule attached to a URI prefix within a ServerBlock.
type Location struct {
	Prefix         string
	AllowedMethods map[string]bool
	Redirection    string
	Alias          string
	Index          string
	Autoindex      bool
	Upload         string
	CGI            map[string]string // extension -> interpreter path
}

// Allows reports whether method is permitted on this location.
func (l *Location) Allows(method string) bool {
	return l.AllowedMethods[method]
}

// ServerBlock is one virtual host binding: a (host, port) endpoint plus
// the server_name, root, error pages and locations that serve it.
type ServerBlock struct {
	Host                uint32
	Port                int
	IP                  string
	ServerNames         []string
	Root                string
	ClientMaxBodySize   int64
	ErrorPages          map[int]string
	Locations           map[string]*Location
	LocationOrder       []string // insertion order, for deterministic iteration
	Socket              SocketKey
}

// MaxBody returns the client_max_body_size limit for this block. Exposed
// as a narrow duck-typed accessor so internal/httpreq can enforce the
// cap without importing internal/config directly.
func (s *ServerBlock) MaxBody() int64 { return s.ClientMaxBodySize }

// MatchesHost reports whether host (the Host: header value, without port)
// is one of this block's server_names.
func (s *ServerBlock) MatchesHost(host string) bool {
	for _, name := range s.ServerNames {
		if name == host {
			return true
		}
	}
	return false
}

// MatchLocation implements the longest-prefix-wins rule: among
// all location keys that are an exact match or a prefix of path, the
// longest key wins; exact match beats a prefix of the same observed
// length (impossible to tie otherwise, since keys are unique strings).
func (s *ServerBlock) MatchLocation(path string) *Location {
	var best *Location
	bestLen := -1
	for _, key := range s.LocationOrder {
		loc := s.Locations[key]
		if path == key {
			return loc
		}
		if len(key) > bestLen && hasPathPrefix(path, key) {
			best = loc
			bestLen = len(key)
		}
	}
	return best
}

func hasPathPrefix(path, prefix string) bool {
	return len(path) >= len(prefix) && path[:len(prefix)] == prefix
}

// Config is the full parsed configuration: the ordered list of server
// blocks found in the file.
type Config struct {
	Servers []*ServerBlock
}

// SocketKeys returns the distinct (host, port) pairs that need a listening
// socket, in first-seen order.
func (c *Config) SocketKeys() []SocketKey {
	seen := make(map[SocketKey]bool)
	var keys []SocketKey
	for _, s := range c.Servers {
		k := SocketKey{Host: s.Host, Port: s.Port}
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// DefaultServerFor returns the first server block bound to key, used as
// the fallback when no server_name in the request's Host header matches.
func (c *Config) DefaultServerFor(key SocketKey) *ServerBlock {
	for _, s := range c.Servers {
		if s.Host == key.Host && s.Port == key.Port {
			return s
		}
	}
	return nil
}

// ServerFor returns the server block bound to key whose server_names
// contains host, or the default server for key if none matches.
func (c *Config) ServerFor(key SocketKey, host string) *ServerBlock {
	var fallback *ServerBlock
	for _, s := range c.Servers {
		if s.Host != key.Host || s.Port != key.Port {
			continue
		}
		if fallback == nil {
			fallback = s
		}
		if s.MatchesHost(host) {
			return s
		}
	}
	return fallback
}
