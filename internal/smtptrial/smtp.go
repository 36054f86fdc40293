// Package smtptrial verifies SMTP credentials by live connection: it
// dials the submission endpoint, negotiates the requested transport
// security, authenticates, and quits without sending anything.
package smtptrial

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/fenilsonani/mailclient/internal/store"
)

// defaultConnectTimeout bounds the dial when the caller does not supply
// its own bound; commandTimeout bounds the whole trial once connected.
const (
	defaultConnectTimeout = 30 * time.Second
	commandTimeout        = 30 * time.Second
)

// Try dials params' SMTP endpoint using the transport security implied by
// params.SmtpSocket, authenticates with params.SendUser/SendPw, and quits.
// connectTimeout bounds the dial; zero means the package default.
// Returning true confirms the credentials and endpoint are usable.
func Try(ctx context.Context, params store.LoginParam, connectTimeout time.Duration) (bool, error) {
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	addr := net.JoinHostPort(params.SendServer, fmt.Sprintf("%d", params.SendPort))

	dialer := &net.Dialer{Timeout: connectTimeout}
	tlsConfig := &tls.Config{
		ServerName:         params.SendServer,
		InsecureSkipVerify: params.SmtpCertificateChecks == store.CertAcceptInvalid,
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false, fmt.Errorf("smtptrial: dial %s: %w", addr, err)
	}
	if params.SmtpSocket == store.SmtpSSL {
		conn = tls.Client(conn, tlsConfig)
	}
	conn.SetDeadline(time.Now().Add(commandTimeout))

	client := smtp.NewClient(conn)
	defer client.Close()

	if err := client.Hello("localhost"); err != nil {
		return false, fmt.Errorf("smtptrial: EHLO: %w", err)
	}

	if params.SmtpSocket == store.SmtpSTARTTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			return false, fmt.Errorf("smtptrial: server does not support STARTTLS")
		}
		if err := client.StartTLS(tlsConfig); err != nil {
			return false, fmt.Errorf("smtptrial: STARTTLS: %w", err)
		}
	}

	auth := sasl.NewPlainClient("", params.SendUser, params.SendPw)
	if err := client.Auth(auth); err != nil {
		return false, fmt.Errorf("smtptrial: auth: %w", err)
	}

	_ = client.Quit()
	return true, nil
}
