// Package validation provides input validation for addresses and domains.
package validation

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

var (
	// ErrInvalidAddress is returned when an email address is not syntactically valid.
	ErrInvalidAddress = errors.New("invalid address: must be a syntactically valid email address")
	// ErrInvalidDomain is returned when a domain name is invalid.
	ErrInvalidDomain = errors.New("invalid domain: must be a valid domain name")
)

// emailPattern is a pragmatic email-address syntax check (local-part@domain)
// rather than the full RFC 5322 grammar; anything that passes here is safe
// to split on '@' and to percent-encode into a probe URL.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// domainPattern follows RFC 1035: labels of 1-63 alphanumeric-and-hyphen
// characters, not starting or ending with a hyphen.
var domainPattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)*[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

// maxDomainLength is the RFC 1035 total-name limit.
const maxDomainLength = 253

// Address checks that addr is a syntactically valid email address.
func Address(addr string) error {
	if !emailPattern.MatchString(addr) {
		return ErrInvalidAddress
	}
	return nil
}

// PercentEncodeAddress returns addr percent-encoded for safe inclusion as a
// query parameter in the autoconfig probe URLs.
func PercentEncodeAddress(addr string) string {
	return url.QueryEscape(addr)
}

// DomainOf returns the portion of addr after the last '@', or "" if addr
// has no '@'.
func DomainOf(addr string) string {
	i := strings.LastIndexByte(addr, '@')
	if i < 0 {
		return ""
	}
	return addr[i+1:]
}

// Domain checks that domain is a valid DNS name.
func Domain(domain string) error {
	domain = strings.TrimSpace(strings.ToLower(domain))

	if len(domain) == 0 || len(domain) > maxDomainLength {
		return ErrInvalidDomain
	}
	if !domainPattern.MatchString(domain) {
		return ErrInvalidDomain
	}
	for _, label := range strings.Split(domain, ".") {
		if len(label) == 0 || len(label) > 63 {
			return ErrInvalidDomain
		}
	}
	return nil
}
