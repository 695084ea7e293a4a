// Package referer maps upstream hostnames to the Referer the upstream CDN expects.
//
// The table is ordered and the first rule whose domain is a substring of the target
// hostname wins. A fallback referer is always present and carries no domain, so it can
// never be matched by substring and every lookup terminates with an answer.
package referer

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/maypok86/otter/v2"

	"livetv-proxy/work/config"
	"livetv-proxy/work/utils"
)

// Rule maps a hostname substring to a referer URL.
type Rule struct {
	Domain  string
	Referer string
}

// Resolver is safe for concurrent use. Its table never changes after construction.
type Resolver struct {
	rules    []Rule
	fallback string
	memo     *otter.Cache[string, string] // lower-cased hostname -> referer
}

// New validates the table and returns a Resolver.
func New(rules []Rule, fallback string) (*Resolver, error) {
	if fallback == "" {
		return nil, errors.New("referer: fallback referer is required")
	}
	if u, err := url.Parse(fallback); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("referer: fallback %q is not an absolute URL", fallback)
	}

	normalised := make([]Rule, 0, len(rules))
	for i, r := range rules {
		domain := strings.ToLower(strings.TrimSpace(r.Domain))
		if domain == "" {
			return nil, fmt.Errorf("referer: rule %d has no domain", i)
		}
		if r.Referer == "" {
			return nil, fmt.Errorf("referer: rule %q has no referer", domain)
		}
		normalised = append(normalised, Rule{Domain: domain, Referer: r.Referer})
	}

	return &Resolver{
		rules:    normalised,
		fallback: fallback,
		memo:     otter.Must(&otter.Options[string, string]{MaximumSize: 4096}),
	}, nil
}

// FromConfig builds a Resolver from the configured table.
func FromConfig(cfg *config.Config) (*Resolver, error) {
	rules := make([]Rule, 0, len(cfg.RefererRules))
	for _, r := range cfg.RefererRules {
		rules = append(rules, Rule{Domain: r.Domain, Referer: r.Referer})
	}
	return New(rules, cfg.DefaultReferer)
}

// Resolve returns the referer for target. Unparseable targets get the fallback.
func (r *Resolver) Resolve(target string) string {
	u, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return r.fallback
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return r.fallback
	}

	if ref, ok := r.memo.GetIfPresent(host); ok {
		return ref
	}

	ref := r.lookup(host)
	r.memo.Set(host, ref)
	return ref
}

func (r *Resolver) lookup(host string) string {
	for _, rule := range r.rules {
		if strings.Contains(host, rule.Domain) {
			return rule.Referer
		}
	}
	return r.fallback
}

// Fallback returns the referer used when no rule matches.
func (r *Resolver) Fallback() string {
	return r.fallback
}

// Rules returns a copy of the table in match order.
func (r *Resolver) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Origin derives the Origin header value from a referer.
func Origin(referer string) string {
	return utils.OriginOf(referer)
}
