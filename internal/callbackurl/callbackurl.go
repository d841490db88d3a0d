// Package callbackurl implements the redirect URI allow-list policy for OIDC
// clients.
//
// A registered callback is a pattern. The scheme, userinfo, host and port
// accept single '*' wildcards, the path accepts '*' (within one segment) and
// '**' (across segments), and query parameters must match key for key with
// glob values. The bare pattern "*" allows everything. Fragments are ignored
// on both sides.
package callbackurl

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
)

// ErrInvalidPattern is returned for callback patterns that cannot be parsed.
var ErrInvalidPattern = errors.New("invalid callback URL pattern")

var (
	schemeRe = regexp.MustCompile(`^[A-Za-z*][A-Za-z0-9+.*-]*$`)
	hostRe   = regexp.MustCompile(`^[A-Za-z0-9*._~%-]+$`)
	portRe   = regexp.MustCompile(`^[0-9*]*$`)
)

// parts is a URL split the way the matcher compares it.
type parts struct {
	scheme   string
	userinfo string
	hasUser  bool
	host     string
	ipv6     bool
	port     string
	path     string
	query    url.Values
}

// ValidatePattern checks that a callback URL pattern can be used for
// matching.
func ValidatePattern(pattern string) error {
	if pattern == "*" {
		return nil
	}

	p, err := split(pattern)
	if err != nil {
		return err
	}
	if _, err := compile(p); err != nil {
		return err
	}

	return nil
}

// GetCallbackURLFromList returns the input callback URL if it matches one of
// the patterns, in declared order. It returns an empty string when nothing
// matches.
//
// Loopback redirect URIs over plain http match regardless of port, as
// required by RFC 8252 section 7.3.
func GetCallbackURLFromList(patterns []string, input string) (string, error) {
	loopbackWithoutPort := ""
	if u, _ := url.Parse(input); u != nil && u.Scheme == "http" {
		host := u.Hostname()
		ip := net.ParseIP(host)
		if host == "localhost" || (ip != nil && ip.IsLoopback()) {
			if strings.Contains(host, ":") {
				u.Host = "[" + host + "]"
			} else {
				u.Host = host
			}
			loopbackWithoutPort = u.String()
		}
	}

	for _, pattern := range patterns {
		ok, err := Match(pattern, input)
		if err != nil {
			return "", err
		}
		if ok {
			return input, nil
		}

		if loopbackWithoutPort == "" {
			continue
		}
		ok, err = Match(pattern, loopbackWithoutPort)
		if err != nil {
			return "", err
		}
		if ok {
			return input, nil
		}
	}

	return "", nil
}

// Match reports whether input is allowed by pattern. An error is returned
// only when the input's query string cannot be parsed; a broken stored
// pattern is logged and treated as non-matching.
func Match(pattern, input string) (bool, error) {
	if pattern == input || pattern == "*" {
		return true, nil
	}

	in, err := split(input)
	if err != nil {
		if errors.Is(err, errQuery) {
			return false, err
		}
		return false, nil
	}

	p, err := split(pattern)
	if err != nil {
		log.Warn().Err(err).Str("pattern", pattern).Msg("invalid callback URL pattern, skipping")
		return false, nil
	}

	m, err := compile(p)
	if err != nil {
		log.Warn().Err(err).Str("pattern", pattern).Msg("invalid callback URL pattern, skipping")
		return false, nil
	}

	return m.match(in), nil
}

var errQuery = errors.New("invalid query string")

func split(raw string) (*parts, error) {
	raw, _, _ = strings.Cut(raw, "#")

	var query url.Values
	if base, rawQuery, found := strings.Cut(raw, "?"); found {
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errQuery, err)
		}
		query = q
		raw = base
	}

	scheme, rest, found := strings.Cut(raw, "://")
	if !found || scheme == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidPattern, raw)
	}
	if !schemeRe.MatchString(scheme) {
		return nil, fmt.Errorf("%w: bad scheme %q", ErrInvalidPattern, scheme)
	}

	// Special schemes treat a backslash like a slash.
	rest = strings.ReplaceAll(rest, `\`, "/")

	authority, path := rest, "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority, path = rest[:i], rest[i:]
	}

	p := &parts{scheme: strings.ToLower(scheme), path: path, query: query}

	if i := strings.LastIndexByte(authority, '@'); i >= 0 {
		p.userinfo, p.hasUser = authority[:i], true
		authority = authority[i+1:]
	}

	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated IPv6 host", ErrInvalidPattern)
		}
		p.host, p.ipv6 = strings.ToLower(authority[1:end]), true
		if tail := authority[end+1:]; tail != "" {
			if !strings.HasPrefix(tail, ":") {
				return nil, fmt.Errorf("%w: garbage after IPv6 host", ErrInvalidPattern)
			}
			p.port = tail[1:]
		}
	} else {
		host, port, hasPort := strings.Cut(authority, ":")
		if hasPort {
			p.port = port
		}
		p.host = strings.ToLower(host)
		if p.host == "" || !hostRe.MatchString(p.host) {
			return nil, fmt.Errorf("%w: bad host %q", ErrInvalidPattern, host)
		}
	}

	if !portRe.MatchString(p.port) {
		return nil, fmt.Errorf("%w: bad port %q", ErrInvalidPattern, p.port)
	}
	if (p.scheme == "http" && p.port == "80") || (p.scheme == "https" && p.port == "443") {
		p.port = ""
	}

	return p, nil
}

type matcher struct {
	scheme   glob.Glob
	userinfo glob.Glob
	hasUser  bool
	host     glob.Glob
	port     glob.Glob
	path     glob.Glob
	query    map[string][]glob.Glob
}

func compile(p *parts) (*matcher, error) {
	var (
		m   = &matcher{hasUser: p.hasUser, query: make(map[string][]glob.Glob, len(p.query))}
		err error
	)

	if m.scheme, err = glob.Compile(p.scheme); err != nil {
		return nil, fmt.Errorf("%w: scheme: %w", ErrInvalidPattern, err)
	}
	if m.userinfo, err = glob.Compile(p.userinfo, ':'); err != nil {
		return nil, fmt.Errorf("%w: userinfo: %w", ErrInvalidPattern, err)
	}

	host := p.host
	if p.ipv6 {
		host = glob.QuoteMeta(host)
	}
	if m.host, err = glob.Compile(host, '.'); err != nil {
		return nil, fmt.Errorf("%w: host: %w", ErrInvalidPattern, err)
	}
	if m.port, err = glob.Compile(p.port); err != nil {
		return nil, fmt.Errorf("%w: port: %w", ErrInvalidPattern, err)
	}
	if m.path, err = glob.Compile(p.path, '/'); err != nil {
		return nil, fmt.Errorf("%w: path: %w", ErrInvalidPattern, err)
	}

	for key, values := range p.query {
		globs := make([]glob.Glob, 0, len(values))
		for _, v := range values {
			g, err := glob.Compile(v)
			if err != nil {
				return nil, fmt.Errorf("%w: query %q: %w", ErrInvalidPattern, key, err)
			}
			globs = append(globs, g)
		}
		m.query[key] = globs
	}

	return m, nil
}

func (m *matcher) match(in *parts) bool {
	if m.hasUser != in.hasUser {
		return false
	}

	if !m.scheme.Match(in.scheme) ||
		!m.userinfo.Match(in.userinfo) ||
		!m.host.Match(in.host) ||
		!m.port.Match(in.port) ||
		!m.path.Match(in.path) {
		return false
	}

	if len(m.query) != len(in.query) {
		return false
	}
	for key, globs := range m.query {
		values, ok := in.query[key]
		if !ok || len(values) != len(globs) {
			return false
		}
		for i, g := range globs {
			if !g.Match(values[i]) {
				return false
			}
		}
	}

	return true
}
