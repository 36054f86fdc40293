package smtptrial

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"

	"github.com/fenilsonani/mailclient/internal/store"
)

// scriptedServer speaks just enough SMTP to accept or reject one AUTH
// attempt on a plaintext connection.
func scriptedServer(t *testing.T, acceptAuth bool) (addr string, done chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	done = make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		w := func(s string) { conn.Write([]byte(s + "\r\n")) }
		r := bufio.NewReader(conn)

		w("220 test ESMTP")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			cmd := strings.ToUpper(strings.TrimSpace(line))
			switch {
			case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
				w("250-test")
				w("250 AUTH PLAIN")
			case strings.HasPrefix(cmd, "AUTH"):
				if acceptAuth {
					w("235 2.7.0 authentication successful")
				} else {
					w("535 5.7.8 authentication failed")
				}
			case strings.HasPrefix(cmd, "QUIT"):
				w("221 bye")
				return
			default:
				w("502 command not implemented")
			}
		}
	}()
	return ln.Addr().String(), done
}

func paramsFor(addr string) store.LoginParam {
	host, port, _ := net.SplitHostPort(addr)
	p := store.LoginParam{
		SendServer: host,
		SendUser:   "a@example.com",
		SendPw:     "pw",
		SmtpSocket: store.SmtpPlain,
	}
	for _, c := range port {
		p.SendPort = p.SendPort*10 + int(c-'0')
	}
	return p
}

func TestTryAcceptedCredentials(t *testing.T) {
	addr, done := scriptedServer(t, true)

	ok, err := Try(context.Background(), paramsFor(addr), 0)
	if err != nil || !ok {
		t.Fatalf("Try() = %v, %v; want success", ok, err)
	}
	<-done
}

func TestTryRejectedCredentials(t *testing.T) {
	addr, _ := scriptedServer(t, false)

	ok, err := Try(context.Background(), paramsFor(addr), 0)
	if ok || err == nil {
		t.Fatalf("Try() = %v, %v; want auth failure", ok, err)
	}
	if !strings.Contains(err.Error(), "auth") {
		t.Errorf("error = %v, want an auth error", err)
	}
}

func TestTrySTARTTLSUnsupported(t *testing.T) {
	// The scripted server never advertises STARTTLS; a STARTTLS trial
	// must fail without attempting the handshake.
	addr, _ := scriptedServer(t, true)
	p := paramsFor(addr)
	p.SmtpSocket = store.SmtpSTARTTLS

	ok, err := Try(context.Background(), p, 0)
	if ok || err == nil {
		t.Fatalf("Try() = %v, %v; want STARTTLS failure", ok, err)
	}
	if !strings.Contains(err.Error(), "STARTTLS") {
		t.Errorf("error = %v, want a STARTTLS error", err)
	}
}

func TestTryConnectionRefused(t *testing.T) {
	// A closed port fails the dial.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ok, err := Try(context.Background(), paramsFor(addr), 0)
	if ok || err == nil {
		t.Fatalf("Try() = %v, %v; want dial failure", ok, err)
	}
}
