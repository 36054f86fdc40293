// Package provider holds the compile-time table mapping known email
// domains to verified IMAP/SMTP settings, consulted by the configuration
// pipeline before any network autoconfig probe is attempted.
package provider

import "strings"

// Status describes how reliable a provider entry is known to be.
type Status int

const (
	StatusOK Status = iota
	StatusPreparation
	StatusBroken
)

// Socket is the transport security a ServerSpec expects.
type Socket int

const (
	SocketSSL Socket = iota
	SocketSTARTTLS
)

// ServerSpec is one endpoint (IMAP or SMTP) of a provider entry.
type ServerSpec struct {
	Hostname string
	Port     int
	Socket   Socket
}

// Entry is an immutable, known-good (or known-broken) configuration for a
// single email domain.
type Entry struct {
	Status          Status
	IMAP            *ServerSpec
	SMTP            *ServerSpec
	UsernamePattern string // "%EMAILLOCALPART%" or "%EMAILADDRESS%"; "" means same as address
	AfterLoginHint  string
}

// table is keyed by lowercase domain. Entries mirror well-known public
// provider configurations; this is intentionally small and curated rather
// than exhaustive. Domains absent here simply fall through to network
// autoconfig probing.
var table = map[string]Entry{
	"gmail.com": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "imap.gmail.com", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.gmail.com", Port: 465, Socket: SocketSSL},
	},
	"googlemail.com": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "imap.gmail.com", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.gmail.com", Port: 465, Socket: SocketSSL},
	},
	"outlook.com": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "outlook.office365.com", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.office365.com", Port: 587, Socket: SocketSTARTTLS},
	},
	"hotmail.com": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "outlook.office365.com", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.office365.com", Port: 587, Socket: SocketSTARTTLS},
	},
	"live.com": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "outlook.office365.com", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.office365.com", Port: 587, Socket: SocketSTARTTLS},
	},
	"yahoo.com": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "imap.mail.yahoo.com", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.mail.yahoo.com", Port: 465, Socket: SocketSSL},
	},
	"icloud.com": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "imap.mail.me.com", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.mail.me.com", Port: 587, Socket: SocketSTARTTLS},
	},
	"me.com": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "imap.mail.me.com", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.mail.me.com", Port: 587, Socket: SocketSTARTTLS},
	},
	"mac.com": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "imap.mail.me.com", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.mail.me.com", Port: 587, Socket: SocketSTARTTLS},
	},
	"gmx.net": {
		Status:          StatusOK,
		IMAP:            &ServerSpec{Hostname: "imap.gmx.net", Port: 993, Socket: SocketSSL},
		SMTP:            &ServerSpec{Hostname: "mail.gmx.net", Port: 587, Socket: SocketSTARTTLS},
		UsernamePattern: "%EMAILADDRESS%",
	},
	"web.de": {
		Status:          StatusOK,
		IMAP:            &ServerSpec{Hostname: "imap.web.de", Port: 993, Socket: SocketSSL},
		SMTP:            &ServerSpec{Hostname: "smtp.web.de", Port: 587, Socket: SocketSTARTTLS},
		UsernamePattern: "%EMAILADDRESS%",
	},
	"posteo.de": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "posteo.de", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "posteo.de", Port: 465, Socket: SocketSSL},
	},
	"mailbox.org": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "imap.mailbox.org", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.mailbox.org", Port: 465, Socket: SocketSSL},
	},
	"fastmail.com": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "imap.fastmail.com", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.fastmail.com", Port: 465, Socket: SocketSSL},
	},
	"nauta.cu": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "imap.nauta.cu", Port: 143, Socket: SocketSTARTTLS},
		SMTP:   &ServerSpec{Hostname: "smtp.nauta.cu", Port: 25, Socket: SocketSTARTTLS},
	},
	"yandex.com": {
		Status: StatusOK,
		IMAP:   &ServerSpec{Hostname: "imap.yandex.com", Port: 993, Socket: SocketSSL},
		SMTP:   &ServerSpec{Hostname: "smtp.yandex.com", Port: 465, Socket: SocketSSL},
	},
}

// Lookup returns the provider entry for addr's domain, and whether one
// exists. The match is case-insensitive on the domain portion only.
func Lookup(addr string) (Entry, bool) {
	domain := domainOf(addr)
	if domain == "" {
		return Entry{}, false
	}
	entry, ok := table[strings.ToLower(domain)]
	return entry, ok
}

func domainOf(addr string) string {
	i := strings.LastIndexByte(addr, '@')
	if i < 0 {
		return ""
	}
	return addr[i+1:]
}
