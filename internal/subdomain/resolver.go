// Package subdomain maps client subdomains such as acme.converseia.com to
// client slugs.
package subdomain

import (
	"net"
	"slices"
	"strings"

	"widget-preview/internal/slug"
)

var (
	DefaultBaseDomains = []string{"converseia.com", "localhost", "vercel.app"}
	DefaultReserved    = []string{"www", "api", "admin", "mail", "ftp", "chat-teste"}
)

type Resolver struct {
	BaseDomains []string
	Reserved    []string
}

// NewResolver lower-cases and trims both lists. Empty lists fall back to the
// defaults.
func NewResolver(baseDomains, reserved []string) Resolver {
	r := Resolver{BaseDomains: clean(baseDomains), Reserved: clean(reserved)}
	if len(r.BaseDomains) == 0 {
		r.BaseDomains = slices.Clone(DefaultBaseDomains)
	}
	if len(r.Reserved) == 0 {
		r.Reserved = slices.Clone(DefaultReserved)
	}
	return r
}

// Resolve returns the client slug for host. host may carry a port. Only a
// single well-formed label directly in front of a base domain matches, and a
// reserved label never does.
func (r Resolver) Resolve(host string) (string, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", false
	}

	for _, base := range r.BaseDomains {
		prefix, ok := strings.CutSuffix(host, "."+base)
		if !ok || prefix == "" {
			continue
		}
		if strings.Contains(prefix, ".") || !slug.Valid(prefix) || slices.Contains(r.Reserved, prefix) {
			return "", false
		}
		return prefix, true
	}
	return "", false
}

func clean(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.Trim(strings.ToLower(strings.TrimSpace(s)), ".")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
