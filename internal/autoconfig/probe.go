// Package autoconfig implements the configuration pipeline's network
// discovery probes: the Mozilla-style autoconfig XML convention and the
// Microsoft Autodiscover convention, tried in a fixed order against a
// small, bounded set of well-known URLs.
package autoconfig

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fenilsonani/mailclient/internal/store"
)

// candidate is one probe attempt: a URL to fetch and the parser that
// should be tried against the response body.
type candidate struct {
	url    string
	parser func([]byte, string) (store.LoginParam, bool)
}

// candidates returns the seven probe URLs, in the order they must be
// tried, for domain and the already percent-encoded address encAddr. The
// list and its order are a compatibility contract; do not reorder or
// extend it.
func candidates(domain, addr, encAddr string) []candidate {
	return []candidate{
		{fmt.Sprintf("https://autoconfig.%s/mail/config-v1.1.xml?emailaddress=%s", domain, encAddr), parseMozillaFor(addr)},
		{fmt.Sprintf("https://%s/.well-known/autoconfig/mail/config-v1.1.xml?emailaddress=%s", domain, encAddr), parseMozillaFor(addr)},
		{fmt.Sprintf("https://%s/autodiscover/autodiscover.xml", domain), parseOutlookFor(addr)},
		{fmt.Sprintf("https://autodiscover.%s/autodiscover/autodiscover.xml", domain), parseOutlookFor(addr)},
		{fmt.Sprintf("http://autoconfig.%s/mail/config-v1.1.xml?emailaddress=%s", domain, encAddr), parseMozillaFor(addr)},
		{fmt.Sprintf("http://%s/.well-known/autoconfig/mail/config-v1.1.xml", domain), parseMozillaFor(addr)}, // address NOT sent in plaintext
		{fmt.Sprintf("https://autoconfig.thunderbird.net/v1.1/%s", domain), parseMozillaFor(addr)},
	}
}

func parseMozillaFor(addr string) func([]byte, string) (store.LoginParam, bool) {
	return func(data []byte, _ string) (store.LoginParam, bool) { return parseMozilla(data, addr) }
}

func parseOutlookFor(addr string) func([]byte, string) (store.LoginParam, bool) {
	return func(data []byte, _ string) (store.LoginParam, bool) { return parseOutlook(data, addr) }
}

// Attempt reports which probe, if any, succeeded: the URL tried and
// whether it was served from cache.
type Attempt struct {
	URL       string
	FromCache bool
}

// Probe tries each candidate URL in order, consulting cache first and
// writing through to it after a successful parse, and returns the first
// LoginParam a parser accepts. timeout bounds each individual request;
// zero means the package default.
func Probe(ctx context.Context, cache Cache, addr string, timeout time.Duration) (store.LoginParam, Attempt, bool) {
	domain := domainOf(addr)
	encAddr := encodeAddr(addr)

	if cache != nil {
		if p, ok := cache.Get(ctx, domain); ok {
			return p, Attempt{URL: "cache:" + domain, FromCache: true}, true
		}
	}

	for _, c := range candidates(domain, addr, encAddr) {
		body, err := fetch(ctx, c.url, timeout)
		if err != nil {
			continue // non-fatal: try the next URL
		}
		p, ok := c.parser(body, addr)
		if !ok {
			continue
		}
		if cache != nil {
			cache.Set(ctx, domain, p)
		}
		return p, Attempt{URL: c.url}, true
	}

	return store.LoginParam{}, Attempt{}, false
}

func domainOf(addr string) string {
	i := strings.LastIndexByte(addr, '@')
	if i < 0 {
		return ""
	}
	return addr[i+1:]
}

// encodeAddr percent-encodes addr for use as a URL query value.
func encodeAddr(addr string) string {
	return url.QueryEscape(addr)
}
