package store

import "testing"

func TestServerFlagsRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		auth AuthMethod
		imap ImapSocket
		smtp SmtpSocket
	}{
		{"normal ssl ssl", AuthNormal, ImapSSL, SmtpSSL},
		{"oauth starttls starttls", AuthOAuth2, ImapSTARTTLS, SmtpSTARTTLS},
		{"normal plain plain", AuthNormal, ImapPlain, SmtpPlain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := LoginParam{Auth: tt.auth, ImapSocket: tt.imap, SmtpSocket: tt.smtp}
			var got LoginParam
			got.setServerFlags(p.serverFlags())
			if got.Auth != tt.auth || got.ImapSocket != tt.imap || got.SmtpSocket != tt.smtp {
				t.Errorf("round trip = (%v, %v, %v), want (%v, %v, %v)",
					got.Auth, got.ImapSocket, got.SmtpSocket, tt.auth, tt.imap, tt.smtp)
			}
		})
	}
}

func TestHasAdvancedFields(t *testing.T) {
	base := LoginParam{Addr: "a@example.com", MailPw: "x"}

	if base.HasAdvancedFields() {
		t.Error("plain addr+password counted as advanced")
	}

	withServer := base
	withServer.MailServer = "imap.example.com"
	if !withServer.HasAdvancedFields() {
		t.Error("explicit mail_server not counted as advanced")
	}

	withPort := base
	withPort.SendPort = 2525
	if !withPort.HasAdvancedFields() {
		t.Error("explicit send_port not counted as advanced")
	}

	withUser := base
	withUser.MailUser = "someone-else"
	if !withUser.HasAdvancedFields() {
		t.Error("non-default mail_user not counted as advanced")
	}

	sameUser := base
	sameUser.MailUser = base.Addr
	if sameUser.HasAdvancedFields() {
		t.Error("mail_user equal to addr counted as advanced")
	}

	withSocket := base
	withSocket.ImapSocket = ImapSSL
	if !withSocket.HasAdvancedFields() {
		t.Error("explicit socket flag not counted as advanced")
	}
}

func TestComplete(t *testing.T) {
	p := LoginParam{
		Addr: "a@example.com", MailPw: "x",
		MailServer: "imap.example.com", MailPort: 993, MailUser: "a@example.com",
		SendServer: "smtp.example.com", SendPort: 465, SendUser: "a@example.com", SendPw: "x",
		ImapSocket: ImapSSL, SmtpSocket: SmtpSSL,
	}
	if !p.Complete() {
		t.Error("fully populated param reported incomplete")
	}

	missingPort := p
	missingPort.SendPort = 0
	if missingPort.Complete() {
		t.Error("zero send_port reported complete")
	}

	unresolvedSocket := p
	unresolvedSocket.ImapSocket = ImapSocketAutomatic
	if unresolvedSocket.Complete() {
		t.Error("unresolved socket flag reported complete")
	}
}

func TestStripLocalPart(t *testing.T) {
	p := LoginParam{MailUser: "a@x.com", SendUser: "b@y.com"}
	p.StripLocalPart()
	if p.MailUser != "a" || p.SendUser != "b" {
		t.Errorf("StripLocalPart() = (%q, %q), want (a, b)", p.MailUser, p.SendUser)
	}

	plain := LoginParam{MailUser: "justuser", SendUser: "justuser"}
	plain.StripLocalPart()
	if plain.MailUser != "justuser" {
		t.Errorf("StripLocalPart() mangled a local-only user: %q", plain.MailUser)
	}
}

func TestDomain(t *testing.T) {
	p := LoginParam{Addr: "a@example.com"}
	if got := p.Domain(); got != "example.com" {
		t.Errorf("Domain() = %q, want example.com", got)
	}
	none := LoginParam{Addr: "no-at-sign"}
	if got := none.Domain(); got != "" {
		t.Errorf("Domain() = %q, want empty", got)
	}
}
