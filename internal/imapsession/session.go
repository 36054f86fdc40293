// Package imapsession wraps github.com/emersion/go-imap/v2's imapclient for
// the configuration pipeline's needs: connection lifecycle, folder listing
// and classification, and folder selection with UIDVALIDITY tracking. It
// supports the three socket modes the trial-connection strategy needs and
// persists per-folder UID state through the config store.
package imapsession

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"

	"github.com/fenilsonani/mailclient/internal/folder"
	"github.com/fenilsonani/mailclient/internal/store"
)

// defaultDialTimeout bounds the initial TCP/TLS handshake when the caller
// does not supply its own bound.
const defaultDialTimeout = 30 * time.Second

// Session owns one IMAP connection for the lifetime of a single
// configuration run. Callers must call Disconnect (directly or via defer)
// on every exit path, including cancellation.
type Session struct {
	db          *store.DB
	client      *imapclient.Client
	dialTimeout time.Duration

	canIdle  bool
	hasXlist bool

	watchFolder string
	idleCmd     *imapclient.IdleCommand
}

// New returns a Session bound to db for persisting mailbox UID state.
// dialTimeout bounds the initial connect; zero means the package default.
func New(db *store.DB, dialTimeout time.Duration) *Session {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &Session{db: db, dialTimeout: dialTimeout}
}

// Connect dials params' IMAP endpoint using the transport security implied
// by params.ImapSocket, logs in, and records server capabilities.
func (s *Session) Connect(ctx context.Context, params store.LoginParam) (bool, error) {
	addr := net.JoinHostPort(params.MailServer, portString(params.MailPort))
	options := &imapclient.Options{
		TLSConfig: &tls.Config{
			ServerName:         params.MailServer,
			InsecureSkipVerify: params.ImapCertificateChecks == store.CertAcceptInvalid,
		},
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()

	type dialResult struct {
		client *imapclient.Client
		err    error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		var client *imapclient.Client
		var err error
		switch params.ImapSocket {
		case store.ImapSSL:
			client, err = imapclient.DialTLS(addr, options)
		case store.ImapSTARTTLS:
			client, err = imapclient.DialStartTLS(addr, options)
		case store.ImapPlain:
			client, err = imapclient.DialInsecure(addr, options)
		default:
			err = fmt.Errorf("imapsession: socket mode not resolved")
		}
		resultCh <- dialResult{client, err}
	}()

	var client *imapclient.Client
	select {
	case <-dialCtx.Done():
		return false, dialCtx.Err()
	case result := <-resultCh:
		if result.err != nil {
			return false, fmt.Errorf("imapsession: connect %s: %w", addr, result.err)
		}
		client = result.client
	}
	s.client = client

	if err := s.login(ctx, params); err != nil {
		s.Disconnect()
		return false, err
	}

	caps := client.Caps()
	s.canIdle = caps.Has(imap.CapIdle)
	s.hasXlist = caps.Has(imap.Cap("XLIST"))

	return true, nil
}

// login authenticates using LOGIN, falling back to SASL PLAIN only when
// the server advertises LOGINDISABLED: a failed AUTHENTICATE can leave the
// wire state unusable for a subsequent LOGIN retry.
func (s *Session) login(ctx context.Context, params store.LoginParam) error {
	caps := s.client.Caps()
	if caps.Has(imap.CapLoginDisabled) {
		client := sasl.NewPlainClient("", params.MailUser, params.MailPw)
		return s.waitCtx(ctx, func() error { return s.client.Authenticate(client) })
	}
	return s.waitCtx(ctx, func() error { return s.client.Login(params.MailUser, params.MailPw).Wait() })
}

// IsConnected reports whether Connect succeeded and Disconnect has not yet
// been called.
func (s *Session) IsConnected() bool {
	return s.client != nil
}

// Disconnect logs out and releases the underlying connection. It is safe
// to call multiple times and on a Session that never connected.
func (s *Session) Disconnect() {
	if s.client == nil {
		return
	}
	s.InterruptIdle()
	_ = s.client.Logout().Wait()
	_ = s.client.Close()
	s.client = nil
}

// ListFolders lists every mailbox and returns the raw listing entries for
// classification. The list+collect round trip runs on a goroutine so ctx
// cancellation can abort it without blocking on the server.
func (s *Session) ListFolders(ctx context.Context) ([]folder.Info, error) {
	type listResult struct {
		out []folder.Info
		err error
	}
	resultCh := make(chan listResult, 1)
	go func() {
		cmd := s.client.List("", "*", nil)
		var out []folder.Info
		for {
			data := cmd.Next()
			if data == nil {
				break
			}
			out = append(out, folder.Info{
				Name:      data.Mailbox,
				Delimiter: string(data.Delim),
				Attrs:     attrsFromIMAP(data.Attrs),
			})
		}
		resultCh <- listResult{out, cmd.Close()}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("imapsession: list: %w", result.err)
		}
		return result.out, nil
	}
}

func attrsFromIMAP(attrs []imap.MailboxAttr) []folder.Attr {
	out := make([]folder.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = folder.Attr(a)
	}
	return out
}

// SelectWithUIDValidity selects name and reconciles the stored
// "<uidvalidity>:<lastseenuid>" pair against the server's reported
// UIDVALIDITY. A mismatch (or no stored value) re-initializes the pair:
// if the folder is non-empty it prefetches the UID of the highest
// sequence number and persists uidvalidity:(highestUID-1), so that
// message can be seen again; if empty it persists uidvalidity:0.
func (s *Session) SelectWithUIDValidity(ctx context.Context, name string) error {
	type selectResult struct {
		data *imap.SelectData
		err  error
	}
	resultCh := make(chan selectResult, 1)
	go func() {
		data, err := s.client.Select(name, nil).Wait()
		resultCh <- selectResult{data, err}
	}()

	var data *imap.SelectData
	select {
	case <-ctx.Done():
		return ctx.Err()
	case result := <-resultCh:
		if result.err != nil {
			return fmt.Errorf("imapsession: select %s: %w", name, result.err)
		}
		data = result.data
	}

	storedUV, _, ok, err := s.db.GetMailboxState(ctx, name)
	if err != nil {
		return err
	}

	if ok && storedUV == uint32(data.UIDValidity) {
		return nil
	}

	if data.NumMessages == 0 {
		return s.db.SetMailboxState(ctx, name, uint32(data.UIDValidity), 0)
	}

	highestUID, err := s.highestUID(ctx, data.NumMessages)
	if err != nil {
		return err
	}

	var lastSeen uint32
	if highestUID > 0 {
		lastSeen = uint32(highestUID) - 1
	}
	return s.db.SetMailboxState(ctx, name, uint32(data.UIDValidity), lastSeen)
}

// highestUID fetches the UID of the message at the given sequence number,
// the last message in the currently selected mailbox.
func (s *Session) highestUID(ctx context.Context, seqNum uint32) (imap.UID, error) {
	type fetchResult struct {
		uid imap.UID
		err error
	}
	resultCh := make(chan fetchResult, 1)
	go func() {
		var seqSet imap.SeqSet
		seqSet.AddNum(seqNum)

		fetchCmd := s.client.Fetch(seqSet, &imap.FetchOptions{UID: true})
		defer fetchCmd.Close()

		msg := fetchCmd.Next()
		if msg == nil {
			resultCh <- fetchResult{}
			return
		}
		buf, err := msg.Collect()
		if err != nil {
			resultCh <- fetchResult{err: fmt.Errorf("imapsession: prefetch highest UID: %w", err)}
			return
		}
		resultCh <- fetchResult{uid: buf.UID}
	}()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case result := <-resultCh:
		return result.uid, result.err
	}
}

// EnsureConfiguredFolders lists and classifies every folder, records the
// Sent folder if one is found, and, when createMvbox is true and no
// DeltaChat folder already exists, creates one (falling back to
// INBOX<delim>DeltaChat) and subscribes to it.
func (s *Session) EnsureConfiguredFolders(ctx context.Context, createMvbox bool) (sentFolder, mvboxFolder string, err error) {
	listing, err := s.ListFolders(ctx)
	if err != nil {
		return "", "", err
	}

	for _, info := range listing {
		if folder.Classify(info) == folder.SentObjects {
			sentFolder = info.Name
			break
		}
	}

	if name, found := folder.FindMvbox(listing); found {
		mvboxFolder = name
	} else if createMvbox {
		mvboxFolder, err = s.createMvbox(ctx, listing)
		if err != nil {
			return sentFolder, "", err
		}
	}

	if err := s.db.SetRawConfig(ctx, "folders_configured", strPtr("3")); err != nil {
		return sentFolder, mvboxFolder, err
	}
	if sentFolder != "" {
		if err := s.db.SetRawConfig(ctx, "configured_sentbox_folder", strPtr(sentFolder)); err != nil {
			return sentFolder, mvboxFolder, err
		}
	}
	if mvboxFolder != "" {
		if err := s.db.SetRawConfig(ctx, "configured_mvbox_folder", strPtr(mvboxFolder)); err != nil {
			return sentFolder, mvboxFolder, err
		}
	}
	return sentFolder, mvboxFolder, nil
}

func strPtr(s string) *string { return &s }

// createMvbox attempts to create the fixed DeltaChat name, falling back to
// INBOX<delim>DeltaChat on failure, and subscribes to whichever succeeds.
func (s *Session) createMvbox(ctx context.Context, listing []folder.Info) (string, error) {
	delim := "/"
	for _, info := range listing {
		if strings.EqualFold(info.Name, "INBOX") && info.Delimiter != "" {
			delim = info.Delimiter
			break
		}
	}

	name := folder.MvboxName
	if err := s.waitCtx(ctx, func() error { return s.client.Create(name, nil).Wait() }); err != nil {
		name = folder.MvboxFallbackName(delim)
		if err := s.waitCtx(ctx, func() error { return s.client.Create(name, nil).Wait() }); err != nil {
			return "", fmt.Errorf("imapsession: create mvbox: %w", err)
		}
	}
	if err := s.waitCtx(ctx, func() error { return s.client.Subscribe(name).Wait() }); err != nil {
		return "", fmt.Errorf("imapsession: subscribe mvbox: %w", err)
	}
	return name, nil
}

// waitCtx runs a blocking command.Wait()-style call on a goroutine so ctx
// cancellation can interrupt it, the same pattern used throughout this
// package for multi-step exchanges (List, Select, Fetch).
func (s *Session) waitCtx(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	go func() { errCh <- fn() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// SetWatchFolder records the folder a future IDLE should monitor.
func (s *Session) SetWatchFolder(name string) {
	s.watchFolder = name
}

// InterruptIdle stops an in-progress IDLE command, if any.
func (s *Session) InterruptIdle() {
	if s.idleCmd != nil {
		_ = s.idleCmd.Close()
		s.idleCmd = nil
	}
}

// CanIdle reports whether the server advertised the IDLE capability.
func (s *Session) CanIdle() bool { return s.canIdle }

// HasXlist reports whether the server advertised the legacy XLIST
// extension.
func (s *Session) HasXlist() bool { return s.hasXlist }

func portString(port int) string {
	return fmt.Sprintf("%d", port)
}
