package tenant

import (
	"net"
	"net/netip"
	"path"
	"regexp"
	"strings"
)

type Source string

const (
	SourceSubdomain Source = "subdomain"
	SourceHeader    Source = "header"
)

// Identity is the tenant a request was resolved to.
type Identity struct {
	Slug   string `json:"slug"`
	Source Source `json:"source"`
}

type State int

const (
	// StateBypassed means the path is excluded and no resolution was attempted.
	StateBypassed State = iota
	StateUnresolved
	StateResolved
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateBypassed:
		return "bypassed"
	case StateUnresolved:
		return "unresolved"
	case StateResolved:
		return "resolved"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

const (
	ReasonExcludedPath      = "excluded_path"
	ReasonLocalHost         = "local_host"
	ReasonIPLiteral         = "ip_literal"
	ReasonNoSubdomain       = "no_subdomain"
	ReasonReservedSubdomain = "reserved_subdomain"
	ReasonInvalidSlug       = "invalid_slug"
	ReasonInvalidHeader     = "invalid_header"
)

type Resolution struct {
	State    State
	Identity Identity
	Reason   string
}

// Local reports whether the request came from a development host.
func (r Resolution) Local() bool {
	return r.Reason == ReasonLocalHost
}

var (
	DefaultReserved         = []string{"www", "api", "app", "admin", "mail", "ftp"}
	DefaultExcludedPrefixes = []string{"/_next/", "/static/", "/assets/", "/api/", "/v1/", "/healthz", "/metrics", "/favicon.ico"}

	slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)
)

const maxSlugLen = 63

type Options struct {
	Reserved         []string
	ExcludedPrefixes []string
	// TrustedHeader names an explicit tenant header consulted when the host
	// carries no usable subdomain. Empty disables header resolution.
	TrustedHeader string
	// RootDomain is the apex the service runs under. Hosts beneath it take
	// their tenant from the labels left of it, so multi-label roots such as
	// example.co.uk work. Empty falls back to the three-label rule.
	RootDomain string
}

type Resolver struct {
	reserved map[string]struct{}
	excluded []string
	header   string
	root     string
}

func NewResolver(opts Options) *Resolver {
	reserved := opts.Reserved
	if len(reserved) == 0 {
		reserved = DefaultReserved
	}
	excluded := opts.ExcludedPrefixes
	if len(excluded) == 0 {
		excluded = DefaultExcludedPrefixes
	}
	set := make(map[string]struct{}, len(reserved))
	for _, r := range reserved {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			set[r] = struct{}{}
		}
	}
	return &Resolver{
		reserved: set,
		excluded: append([]string(nil), excluded...),
		header:   strings.TrimSpace(opts.TrustedHeader),
		root:     strings.Trim(strings.ToLower(strings.TrimSpace(opts.RootDomain)), "."),
	}
}

type HeaderReader interface {
	Get(key string) string
}

// Resolve runs the full state machine for one request. It never panics and
// always returns one of the defined states.
func (r *Resolver) Resolve(host, requestPath string, headers HeaderReader) Resolution {
	if r.Excluded(requestPath) {
		return Resolution{State: StateBypassed, Reason: ReasonExcludedPath}
	}
	res := r.ResolveHost(host)
	if res.State == StateResolved || res.Local() || res.Reason == ReasonIPLiteral || r.header == "" || headers == nil {
		return res
	}
	raw := strings.TrimSpace(headers.Get(r.header))
	if raw == "" {
		return res
	}
	slug := strings.ToLower(raw)
	if !ValidSlug(slug) || r.Reserved(slug) {
		return Resolution{State: StateRejected, Reason: ReasonInvalidHeader}
	}
	return Resolution{State: StateResolved, Identity: Identity{Slug: slug, Source: SourceHeader}}
}

// ResolveHost derives the tenant from the hostname alone.
func (r *Resolver) ResolveHost(host string) Resolution {
	hostname := Hostname(host)
	if hostname == "" || IsLocalHost(hostname) {
		return Resolution{State: StateUnresolved, Reason: ReasonLocalHost}
	}
	if _, err := netip.ParseAddr(hostname); err == nil {
		return Resolution{State: StateUnresolved, Reason: ReasonIPLiteral}
	}
	candidate, ok := r.subdomain(hostname)
	if !ok {
		return Resolution{State: StateUnresolved, Reason: ReasonNoSubdomain}
	}
	if r.Reserved(candidate) {
		return Resolution{State: StateUnresolved, Reason: ReasonReservedSubdomain}
	}
	if !ValidSlug(candidate) {
		return Resolution{State: StateUnresolved, Reason: ReasonInvalidSlug}
	}
	return Resolution{State: StateResolved, Identity: Identity{Slug: candidate, Source: SourceSubdomain}}
}

// subdomain returns the first label of hostname when it sits below the root
// domain, or below any two-label apex when no root is configured.
func (r *Resolver) subdomain(hostname string) (string, bool) {
	if r.root != "" && (hostname == r.root || strings.HasSuffix(hostname, "."+r.root)) {
		prefix := strings.TrimSuffix(strings.TrimSuffix(hostname, r.root), ".")
		if prefix == "" {
			return "", false
		}
		return strings.SplitN(prefix, ".", 2)[0], true
	}
	labels := strings.Split(hostname, ".")
	if len(labels) < 3 {
		return "", false
	}
	return labels[0], true
}

func (r *Resolver) Reserved(slug string) bool {
	_, ok := r.reserved[slug]
	return ok
}

// Excluded reports whether requestPath skips tenant resolution: static assets,
// the API namespace and anything that looks like a file.
func (r *Resolver) Excluded(requestPath string) bool {
	for _, prefix := range r.excluded {
		if strings.HasSuffix(prefix, "/") {
			if requestPath == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(requestPath, prefix) {
				return true
			}
			continue
		}
		if requestPath == prefix || strings.HasPrefix(requestPath, prefix+"/") {
			return true
		}
	}
	return path.Ext(path.Base(requestPath)) != ""
}

func ValidSlug(slug string) bool {
	return len(slug) > 0 && len(slug) <= maxSlugLen && slugPattern.MatchString(slug)
}

// Hostname strips the port and trailing dot and lower-cases host.
func Hostname(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

func IsLocalHost(hostname string) bool {
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	addr, err := netip.ParseAddr(hostname)
	if err != nil {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified()
}
