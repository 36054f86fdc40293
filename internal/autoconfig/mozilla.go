package autoconfig

import (
	"encoding/xml"
	"strings"

	"github.com/fenilsonani/mailclient/internal/store"
)

// mozillaConfig mirrors the Mozilla "clientConfig" schema served at the
// well-known autoconfig URLs, widened to slices since a real provider
// document may list more than one incoming/outgoing server.
type mozillaConfig struct {
	XMLName       xml.Name `xml:"clientConfig"`
	EmailProvider struct {
		ID             string          `xml:"id,attr"`
		Domain         []string        `xml:"domain"`
		DisplayName    string          `xml:"displayName"`
		IncomingServer []mozillaServer `xml:"incomingServer"`
		OutgoingServer []mozillaServer `xml:"outgoingServer"`
	} `xml:"emailProvider"`
}

type mozillaServer struct {
	Type       string `xml:"type,attr"`
	Hostname   string `xml:"hostname"`
	Port       int    `xml:"port"`
	SocketType string `xml:"socketType"`
	Username   string `xml:"username"`
	Auth       string `xml:"authentication"`
}

// parseMozilla parses a Mozilla autoconfig XML document for addr. It
// returns ok=false if the document does not describe a usable IMAP
// incoming server.
func parseMozilla(data []byte, addr string) (store.LoginParam, bool) {
	var cfg mozillaConfig
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return store.LoginParam{}, false
	}

	var in, out *mozillaServer
	for i := range cfg.EmailProvider.IncomingServer {
		if strings.EqualFold(cfg.EmailProvider.IncomingServer[i].Type, "imap") {
			in = &cfg.EmailProvider.IncomingServer[i]
			break
		}
	}
	for i := range cfg.EmailProvider.OutgoingServer {
		if strings.EqualFold(cfg.EmailProvider.OutgoingServer[i].Type, "smtp") {
			out = &cfg.EmailProvider.OutgoingServer[i]
			break
		}
	}
	if in == nil || in.Hostname == "" {
		return store.LoginParam{}, false
	}

	var p store.LoginParam
	p.Addr = addr
	p.MailServer = in.Hostname
	p.MailPort = in.Port
	p.MailUser = substituteUsername(in.Username, addr)
	p.ImapSocket = socketFromMozilla(in.SocketType)

	if out != nil && out.Hostname != "" {
		p.SendServer = out.Hostname
		p.SendPort = out.Port
		p.SendUser = substituteUsername(out.Username, addr)
		p.SmtpSocket = smtpSocketFromMozilla(out.SocketType)
	}

	return p, true
}

func substituteUsername(pattern, addr string) string {
	switch {
	case pattern == "" || pattern == "%EMAILADDRESS%":
		return addr
	case pattern == "%EMAILLOCALPART%":
		if i := strings.IndexByte(addr, '@'); i >= 0 {
			return addr[:i]
		}
		return addr
	default:
		return pattern
	}
}

func socketFromMozilla(socketType string) store.ImapSocket {
	switch strings.ToUpper(socketType) {
	case "SSL":
		return store.ImapSSL
	case "STARTTLS":
		return store.ImapSTARTTLS
	case "PLAIN":
		return store.ImapPlain
	default:
		return store.ImapSocketAutomatic
	}
}

func smtpSocketFromMozilla(socketType string) store.SmtpSocket {
	switch strings.ToUpper(socketType) {
	case "SSL":
		return store.SmtpSSL
	case "STARTTLS":
		return store.SmtpSTARTTLS
	case "PLAIN":
		return store.SmtpPlain
	default:
		return store.SmtpSocketAutomatic
	}
}
