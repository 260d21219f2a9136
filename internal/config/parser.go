package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultConfig is the config path used when the CLI receives no argument.
const DefaultConfig = "/etc/webserv/webserv.conf"

// ParseFile reads path and parses it into a Config. All validation errors
// are fatal: the first one encountered is returned, and the caller is
// expected to log it and exit non-zero.
func ParseFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: unable to open file: %w", err)
	}
	return Parse(string(content))
}

// parser is a cursor over the raw config text: whitespace/comment
// skipping, directive-type sniffing, and ';'-terminated parameter reads.
type parser struct {
	content string
	i       int
}

// Parse parses the textual config grammar into a Config.
func Parse(content string) (*Config, error) {
	p := &parser{content: content}
	cfg := &Config{}

	for p.i < len(p.content) {
		if err := p.skipWhiteSpace(); err != nil {
			return nil, err
		}
		if p.i >= len(p.content) {
			break
		}
		server, err := p.parseServerBlock()
		if err != nil {
			return nil, err
		}
		cfg.Servers = append(cfg.Servers, server)
		if err := p.skipWhiteSpace(); err != nil {
			return nil, err
		}
	}

	if len(cfg.Servers) == 0 {
		return nil, fmt.Errorf("config: no server block found (empty file?)")
	}
	return cfg, nil
}

func (p *parser) eof() bool { return p.i >= len(p.content) }

// skipWhiteSpace advances past whitespace and '#'-to-end-of-line comments.
func (p *parser) skipWhiteSpace() error {
	for p.i < len(p.content) {
		c := p.content[p.i]
		if c == '#' {
			for p.i < len(p.content) && p.content[p.i] != '\n' {
				p.i++
			}
			continue
		}
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			p.i++
			continue
		}
		return nil
	}
	return nil
}

func (p *parser) hasPrefix(s string) bool {
	return strings.HasPrefix(p.content[p.i:], s)
}

// parseServerBlock consumes "server { ... }".
func (p *parser) parseServerBlock() (*ServerBlock, error) {
	if !p.hasPrefix("server") {
		return nil, fmt.Errorf("config: expected 'server' block, found %q", p.peek(20))
	}
	p.i += len("server")
	if err := p.skipWhiteSpace(); err != nil {
		return nil, err
	}
	if p.eof() || p.content[p.i] != '{' {
		return nil, fmt.Errorf("config: missing '{' after server")
	}
	p.i++

	server := &ServerBlock{
		ErrorPages:    map[int]string{},
		Locations:     map[string]*Location{},
		LocationOrder: nil,
	}

	for {
		if err := p.skipWhiteSpace(); err != nil {
			return nil, err
		}
		if p.eof() {
			return nil, fmt.Errorf("config: missing '}' closing server block")
		}
		if p.content[p.i] == '}' {
			p.i++
			break
		}
		if err := p.parseServerDirective(server); err != nil {
			return nil, err
		}
	}
	return server, nil
}

func (p *parser) peek(n int) string {
	end := p.i + n
	if end > len(p.content) {
		end = len(p.content)
	}
	return p.content[p.i:end]
}

var serverDirectives = []string{
	"listen", "server_name", "root", "client_max_body_size", "error_page", "location",
}

var locationDirectives = []string{
	"allowed_methods", "return", "alias", "autoindex", "index", "upload", "cgi",
}

// directiveName returns the directive keyword at the cursor (one of
// candidates), requiring it be followed by whitespace, or "" if none
// matches.
func (p *parser) directiveName(candidates []string) string {
	for _, name := range candidates {
		if p.hasPrefix(name) {
			after := p.i + len(name)
			if after < len(p.content) && isSpace(p.content[after]) {
				return name
			}
		}
	}
	return ""
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// parameter reads forward to the terminating ';', disallowing whitespace
// immediately before it.
func (p *parser) parameter() (string, error) {
	start := p.i
	for p.i < len(p.content) {
		if p.content[p.i] == ';' {
			if p.i > start && isSpace(p.content[p.i-1]) {
				return "", fmt.Errorf("config: invalid syntax: whitespace before ';'")
			}
			param := p.content[start:p.i]
			p.i++
			return param, nil
		}
		p.i++
	}
	return "", fmt.Errorf("config: missing ';'")
}

func (p *parser) parseServerDirective(server *ServerBlock) error {
	name := p.directiveName(serverDirectives)
	if name == "" {
		return fmt.Errorf("config: unknown or invalid directive in server block near %q", p.peek(20))
	}
	p.i += len(name)
	if err := p.skipWhiteSpace(); err != nil {
		return err
	}

	if name == "location" {
		return p.parseLocation(server)
	}

	param, err := p.parameter()
	if err != nil {
		return err
	}
	param = strings.TrimSpace(param)

	switch name {
	case "listen":
		return handleListen(param, server)
	case "server_name":
		return handleServerName(param, server)
	case "root":
		return handleRoot(param, server)
	case "client_max_body_size":
		return handleClientMaxBodySize(param, server)
	case "error_page":
		return handleErrorPage(param, server)
	}
	return fmt.Errorf("config: unhandled directive %q", name)
}

// parseLocation consumes "location <prefix> { ... }".
func (p *parser) parseLocation(server *ServerBlock) error {
	start := p.i
	for p.i < len(p.content) && !isSpace(p.content[p.i]) {
		p.i++
	}
	// Locations map URI prefixes, not filesystem paths, to a Location;
	// the root prefix is applied separately when resolving a path, so the
	// two namespaces stay distinct here.
	prefix := p.content[start:p.i]

	if err := p.skipWhiteSpace(); err != nil {
		return err
	}
	if p.eof() || p.content[p.i] != '{' {
		return fmt.Errorf("config: missing '{' after location")
	}
	p.i++

	loc := &Location{
		Prefix:         prefix,
		AllowedMethods: map[string]bool{},
		CGI:            map[string]string{},
	}

	for {
		if err := p.skipWhiteSpace(); err != nil {
			return err
		}
		if p.eof() {
			return fmt.Errorf("config: missing '}' closing location block")
		}
		if p.content[p.i] == '}' {
			p.i++
			break
		}
		if err := p.parseLocationDirective(loc, server); err != nil {
			return err
		}
	}

	if _, exists := server.Locations[prefix]; !exists {
		server.LocationOrder = append(server.LocationOrder, prefix)
	}
	server.Locations[prefix] = loc
	return nil
}

func (p *parser) parseLocationDirective(loc *Location, server *ServerBlock) error {
	name := p.directiveName(locationDirectives)
	if name == "" {
		return fmt.Errorf("config: unknown or invalid directive in location block near %q", p.peek(20))
	}
	p.i += len(name)
	if err := p.skipWhiteSpace(); err != nil {
		return err
	}
	param, err := p.parameter()
	if err != nil {
		return err
	}
	param = strings.TrimSpace(param)

	switch name {
	case "allowed_methods":
		return handleAllowedMethods(param, loc)
	case "return":
		loc.Redirection = param
		return nil
	case "alias":
		return handleAlias(param, loc, server)
	case "autoindex":
		return handleAutoindex(param, loc)
	case "index":
		return handleIndex(param, loc, server)
	case "upload":
		return handleUpload(param, loc, server)
	case "cgi":
		return handleCGI(param, loc)
	}
	return fmt.Errorf("config: unhandled location directive %q", name)
}

// --- directive handlers, one per supported directive ---

const defaultHost = "127.0.0.1"

func handleListen(param string, server *ServerBlock) error {
	ipStr := defaultHost
	portStr := param
	if idx := strings.IndexByte(param, ':'); idx >= 0 {
		host := param[:idx]
		if host == "localhost" {
			ipStr = "127.0.0.1"
		} else {
			ipStr = host
		}
		portStr = param[idx+1:]
	}

	for i := 0; i < len(ipStr); i++ {
		c := ipStr[i]
		if !(c >= '0' && c <= '9') && c != '.' {
			return fmt.Errorf("config: listen directive: IP invalid")
		}
	}
	host, err := ipStringToNumeric(ipStr)
	if err != nil {
		return fmt.Errorf("config: listen directive: IP invalid: %w", err)
	}

	for i := 0; i < len(portStr); i++ {
		if portStr[i] < '0' || portStr[i] > '9' {
			return fmt.Errorf("config: listen directive: port invalid")
		}
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("config: listen directive: port invalid")
	}

	server.Host = host
	server.IP = ipStr
	server.Port = port
	server.Socket = SocketKey{Host: host, Port: port}
	return nil
}

func ipStringToNumeric(ip string) (uint32, error) {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("IP address must have 4 octets")
	}
	var numeric uint32
	for _, part := range parts {
		v, err := strconv.Atoi(part)
		if err != nil || v < 0 || v > 255 {
			return 0, fmt.Errorf("octet out of range")
		}
		numeric = (numeric << 8) | uint32(v)
	}
	return numeric, nil
}

func handleServerName(param string, server *ServerBlock) error {
	for _, c := range param {
		if !isServerNameChar(c) {
			return fmt.Errorf("config: server_name directive: invalid character")
		}
	}
	server.ServerNames = append(server.ServerNames, param)
	return nil
}

func isServerNameChar(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') ||
		c == '.' || c == '-' || c == '~' || c == '_'
}

func handleRoot(param string, server *ServerBlock) error {
	if !strings.HasSuffix(param, "/") {
		return fmt.Errorf("config: root directive: missing '/' at end")
	}
	info, err := os.Stat(param)
	if err != nil {
		return fmt.Errorf("config: root directive: path invalid: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: root directive: is no directory")
	}
	server.Root = strings.TrimSuffix(param, "/")
	return nil
}

func handleClientMaxBodySize(param string, server *ServerBlock) error {
	for i := 0; i < len(param); i++ {
		if param[i] < '0' || param[i] > '9' {
			return fmt.Errorf("config: client_max_body_size directive: invalid character")
		}
	}
	size, err := strconv.ParseInt(param, 10, 64)
	if err != nil {
		return fmt.Errorf("config: client_max_body_size directive: invalid value: %w", err)
	}
	server.ClientMaxBodySize = size
	return nil
}

func handleErrorPage(param string, server *ServerBlock) error {
	if len(param) < 4 {
		return fmt.Errorf("config: error_page directive: malformed")
	}
	codeStr := param[:3]
	for _, c := range codeStr {
		if c < '0' || c > '9' {
			return fmt.Errorf("config: error_page directive: status code invalid")
		}
	}
	code, _ := strconv.Atoi(codeStr)
	if code < 100 || code > 599 {
		return fmt.Errorf("config: error_page directive: status code invalid")
	}
	if param[3] != ' ' {
		return fmt.Errorf("config: error_page directive: missing space")
	}
	path := param[4:]
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("config: error_page directive: missing '/' in front of path")
	}

	fullPath := server.Root + path
	info, err := os.Stat(fullPath)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("config: error_page directive: error page path invalid")
	}
	if f, err := os.Open(fullPath); err != nil {
		return fmt.Errorf("config: error_page directive: error page has no read rights")
	} else {
		f.Close()
	}

	// A later duplicate code replaces the earlier mapping.
	server.ErrorPages[code] = fullPath
	return nil
}

func handleAllowedMethods(param string, loc *Location) error {
	for _, method := range strings.Fields(param) {
		switch method {
		case "GET", "POST", "DELETE":
			loc.AllowedMethods[method] = true
		default:
			return fmt.Errorf("config: allowed_methods directive: invalid method %q", method)
		}
	}
	return nil
}

func handleAlias(param string, loc *Location, server *ServerBlock) error {
	aliasPath := server.Root + param
	if !strings.HasSuffix(aliasPath, "/") {
		return fmt.Errorf("config: alias directive: missing '/' at end")
	}
	info, err := os.Stat(aliasPath)
	if err != nil {
		return fmt.Errorf("config: alias directive: path invalid: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: alias directive: is no directory")
	}
	if f, err := os.Open(aliasPath); err != nil {
		return fmt.Errorf("config: alias directive: directory has no read rights")
	} else {
		f.Close()
	}
	loc.Alias = aliasPath
	return nil
}

func handleAutoindex(param string, loc *Location) error {
	switch param {
	case "on":
		loc.Autoindex = true
	case "off":
		loc.Autoindex = false
	default:
		return fmt.Errorf("config: autoindex directive: invalid parameter (must be 'on' or 'off')")
	}
	return nil
}

func handleIndex(param string, loc *Location, server *ServerBlock) error {
	indexPath := server.Root + param
	info, err := os.Stat(indexPath)
	if err != nil || !info.Mode().IsRegular() {
		return fmt.Errorf("config: index directive: index file is invalid")
	}
	if f, err := os.Open(indexPath); err != nil {
		return fmt.Errorf("config: index directive: index file has no read rights")
	} else {
		f.Close()
	}
	loc.Index = indexPath
	return nil
}

func handleUpload(param string, loc *Location, server *ServerBlock) error {
	uploadPath := server.Root + param
	info, err := os.Stat(uploadPath)
	if err != nil {
		return fmt.Errorf("config: upload directive: path invalid: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("config: upload directive: is no directory")
	}
	probe := uploadPath + "/.webserv-write-check"
	f, err := os.Create(probe)
	if err != nil {
		return fmt.Errorf("config: upload directive: directory has no write rights")
	}
	f.Close()
	os.Remove(probe)
	loc.Upload = uploadPath
	return nil
}

func handleCGI(param string, loc *Location) error {
	fields := strings.Fields(param)
	if len(fields) != 2 {
		return fmt.Errorf("config: cgi directive: expected '<extension> <interpreter>'")
	}
	ext, interpreter := fields[0], fields[1]
	if !strings.HasPrefix(ext, ".") {
		return fmt.Errorf("config: cgi directive: extension must start with '.'")
	}
	loc.CGI[ext] = interpreter
	return nil
}
