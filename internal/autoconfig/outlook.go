package autoconfig

import (
	"encoding/xml"
	"strings"

	"github.com/fenilsonani/mailclient/internal/store"
)

// outlookResponse mirrors the subset of the Microsoft Autodiscover response
// schema (POX, not the newer JSON/SOAP variants) this pipeline needs: the
// Protocol blocks describing IMAP and SMTP endpoints.
type outlookResponse struct {
	XMLName  xml.Name `xml:"Autodiscover"`
	Response struct {
		Account struct {
			Protocol []outlookProtocol `xml:"Protocol"`
		} `xml:"Account"`
	} `xml:"Response"`
}

type outlookProtocol struct {
	Type       string `xml:"Type"`
	Server     string `xml:"Server"`
	Port       int    `xml:"Port"`
	SSL        string `xml:"SSL"`
	LoginName  string `xml:"LoginName"`
	DomainName string `xml:"DomainRequired"`
}

// parseOutlook parses a Microsoft Autodiscover XML document for addr,
// returning ok=false when it does not describe a usable IMAP protocol
// block.
func parseOutlook(data []byte, addr string) (store.LoginParam, bool) {
	var resp outlookResponse
	if err := xml.Unmarshal(data, &resp); err != nil {
		return store.LoginParam{}, false
	}

	var in, out *outlookProtocol
	for i := range resp.Response.Account.Protocol {
		proto := &resp.Response.Account.Protocol[i]
		switch strings.ToUpper(proto.Type) {
		case "IMAP":
			if in == nil {
				in = proto
			}
		case "SMTP":
			if out == nil {
				out = proto
			}
		}
	}
	if in == nil || in.Server == "" {
		return store.LoginParam{}, false
	}

	var p store.LoginParam
	p.Addr = addr
	p.MailServer = in.Server
	p.MailPort = in.Port
	p.MailUser = outlookUsername(in.LoginName, addr)
	p.ImapSocket = socketFromOutlook(in.SSL, in.Port)

	if out != nil && out.Server != "" {
		p.SendServer = out.Server
		p.SendPort = out.Port
		p.SendUser = outlookUsername(out.LoginName, addr)
		p.SmtpSocket = smtpSocketFromOutlook(out.SSL, out.Port)
	}

	return p, true
}

func outlookUsername(loginName, addr string) string {
	if loginName == "" {
		return addr
	}
	return loginName
}

// socketFromOutlook infers transport security from the <SSL> flag (which
// autodiscover uses for "on"/"off" rather than naming STARTTLS explicitly)
// together with the conventional port.
func socketFromOutlook(ssl string, port int) store.ImapSocket {
	if strings.EqualFold(ssl, "off") {
		if port == 143 {
			return store.ImapSTARTTLS
		}
		return store.ImapPlain
	}
	return store.ImapSSL
}

func smtpSocketFromOutlook(ssl string, port int) store.SmtpSocket {
	if strings.EqualFold(ssl, "off") {
		if port == 587 {
			return store.SmtpSTARTTLS
		}
		return store.SmtpPlain
	}
	return store.SmtpSSL
}
