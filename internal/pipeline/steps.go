package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fenilsonani/mailclient/internal/autoconfig"
	"github.com/fenilsonani/mailclient/internal/metrics"
	"github.com/fenilsonani/mailclient/internal/ongoing"
	"github.com/fenilsonani/mailclient/internal/provider"
	"github.com/fenilsonani/mailclient/internal/secret"
	"github.com/fenilsonani/mailclient/internal/store"
	"github.com/fenilsonani/mailclient/internal/validation"
)

// stepValidateAddress is step 1.
func (p *Pipeline) stepValidateAddress(ctx context.Context, r *run) (int, error) {
	r.progress(1)
	if r.params.Addr == "" {
		return 0, ErrBadEmailAddress
	}
	return 2, nil
}

// stepOAuthSubstitution is step 2: only acts when the account is already
// marked OAuth2 (e.g. carried over from a prior configuration attempt).
// Token acquisition lives outside this module; only the narrow
// address-substitution hook runs here.
func (p *Pipeline) stepOAuthSubstitution(ctx context.Context, r *run) (int, error) {
	r.progress(10)
	if r.params.Auth == store.AuthOAuth2 && p.oauth != nil {
		if newAddr, ok := p.oauth.ResolveAddr(ctx, r.params.Addr, r.params.MailPw); ok && newAddr != "" {
			r.params.Addr = newAddr
			if err := p.db.SetRawConfig(ctx, "addr", &newAddr); err != nil {
				return 0, fmt.Errorf("pipeline: persist oauth address: %w", err)
			}
		}
	}
	r.progress(20)
	return 3, nil
}

// stepParseDomain is step 3: syntactic validation only. Percent-encoding
// happens inside autoconfig.Probe when it is actually needed.
func (p *Pipeline) stepParseDomain(ctx context.Context, r *run) (int, error) {
	if err := validation.Address(r.params.Addr); err != nil {
		return 0, ErrBadEmailAddress
	}
	return 4, nil
}

// stepDecideBranch is step 4: advanced mode skips discovery entirely;
// otherwise the provider database is tried before any network call.
func (p *Pipeline) stepDecideBranch(ctx context.Context, r *run) (int, error) {
	r.progress(200)

	if r.params.HasAdvancedFields() {
		r.advanced = true
		return 13, nil
	}

	r.keepOAuth = r.params.Auth == store.AuthOAuth2

	entry, ok := provider.Lookup(r.params.Addr)
	if ok && entry.Status != provider.StatusBroken {
		discovered := loginParamFromProvider(entry, r.params.Addr)
		r.discovered = &discovered
		r.autoconfigSupplied = true
		metrics.RecordProbe("provider_db")
		return 12, nil
	}
	return 5, nil
}

// stepNetworkProbe covers steps 5-11: the seven well-known
// autoconfig/autodiscover URLs, tried in order by autoconfig.Probe.
func (p *Pipeline) stepNetworkProbe(ctx context.Context, r *run) (int, error) {
	r.progress(300)

	discovered, attempt, ok := autoconfig.Probe(ctx, p.cache, r.params.Addr, p.probeTimeout)
	if ok {
		if attempt.FromCache {
			metrics.RecordProbe("cache")
		} else {
			metrics.RecordProbe("network")
		}
	}
	r.progress(350)

	if !ok {
		return 13, nil
	}
	r.discovered = &discovered
	r.autoconfigSupplied = true
	return 12, nil
}

// stepApplyDiscovered is step 12: merge non-empty discovered fields into
// the working params. Socket settings discovered by autoconfig always win;
// the OAuth2 auth method saved aside in step 4 is reapplied afterwards.
// Discovery sources rarely supply everything (usernames and the send
// password in particular), so the run continues into default-fill.
func (p *Pipeline) stepApplyDiscovered(ctx context.Context, r *run) (int, error) {
	r.progress(500)
	if r.discovered != nil {
		mergeNonEmpty(&r.params, *r.discovered)
	}
	if r.keepOAuth {
		r.params.Auth = store.AuthOAuth2
	}
	return 13, nil
}

// stepDefaultFill is step 13: fills whatever the user, the provider
// database, or an autoconfig document left empty.
func (p *Pipeline) stepDefaultFill(ctx context.Context, r *run) (int, error) {
	pr := &r.params
	domain := pr.Domain()

	if pr.MailServer == "" {
		pr.MailServer = "imap." + domain
	}
	if pr.MailPort == 0 {
		if pr.ImapSocket == store.ImapSTARTTLS || pr.ImapSocket == store.ImapPlain {
			pr.MailPort = 143
		} else {
			pr.MailPort = 993
		}
	}
	if pr.MailUser == "" {
		pr.MailUser = pr.Addr
	}
	if pr.SendServer == "" {
		pr.SendServer = strings.Replace(pr.MailServer, "imap.", "smtp.", 1)
	}
	if pr.SendPort == 0 {
		switch pr.SmtpSocket {
		case store.SmtpSTARTTLS:
			pr.SendPort = 587
		case store.SmtpPlain:
			pr.SendPort = 25
		default:
			pr.SendPort = 465
		}
	}
	if pr.SendUser == "" {
		pr.SendUser = pr.MailUser
	}
	if pr.SendPw == "" {
		pr.SendPw = pr.MailPw
	}

	if pr.Auth != store.AuthNormal && pr.Auth != store.AuthOAuth2 {
		pr.Auth = store.AuthNormal
	}
	if pr.ImapSocket != store.ImapSSL && pr.ImapSocket != store.ImapSTARTTLS && pr.ImapSocket != store.ImapPlain {
		if pr.MailPort == 143 {
			pr.ImapSocket = store.ImapSTARTTLS
		} else {
			pr.ImapSocket = store.ImapSSL
		}
	}
	if pr.SmtpSocket != store.SmtpSSL && pr.SmtpSocket != store.SmtpSTARTTLS && pr.SmtpSocket != store.SmtpPlain {
		switch pr.SendPort {
		case 587:
			pr.SmtpSocket = store.SmtpSTARTTLS
		case 25:
			pr.SmtpSocket = store.SmtpPlain
		default:
			pr.SmtpSocket = store.SmtpSSL
		}
	}

	if !pr.Complete() {
		return 0, ErrIncompleteSettings
	}
	return 14, nil
}

// stepTryIMAP is step 14: up to two passes, with the flip-to-STARTTLS and
// port-143 fallbacks skipped entirely when autoconfig already pinned the
// transport security. Between passes the settings reset to SSL on 993 and
// the usernames drop to their local part, since some providers only accept
// the local part as login name.
func (p *Pipeline) stepTryIMAP(ctx context.Context, r *run) (int, error) {
	r.progress(600)
	log := p.log.Pipeline()

	type variant struct {
		socket store.ImapSocket
		port   int
	}

	for pass := 0; pass < 2; pass++ {
		if pass == 1 {
			r.params.ImapSocket = store.ImapSSL
			r.params.MailPort = 993
			r.params.StripLocalPart()
		}

		attempts := []variant{{r.params.ImapSocket, r.params.MailPort}}
		if !r.autoconfigSupplied {
			attempts = append(attempts,
				variant{store.ImapSTARTTLS, r.params.MailPort},
				variant{store.ImapSTARTTLS, 143},
			)
		}

		for _, v := range attempts {
			r.params.ImapSocket = v.socket
			r.params.MailPort = v.port

			sess := p.newSession()
			started := time.Now()
			ok, err := sess.Connect(ctx, r.params)
			metrics.RecordConnect("imap", ok && err == nil, time.Since(started).Seconds())

			if err == nil && ok {
				r.imapSess = sess
				r.progress(690)
				return 15, nil
			}
			log.WarnContext(ctx, "imap connect attempt failed",
				"server", r.params.MailServer, "port", r.params.MailPort, "error", err)

			if ongoing.ShallStop(ctx) {
				return 0, ErrCancelled
			}
		}
	}

	return 0, ErrImapConnect
}

// stepTrySMTP is step 15.
func (p *Pipeline) stepTrySMTP(ctx context.Context, r *run) (int, error) {
	r.progress(800)
	log := p.log.Pipeline()

	type variant struct {
		socket store.SmtpSocket
		port   int
	}

	attempts := []variant{{r.params.SmtpSocket, r.params.SendPort}}
	if !r.autoconfigSupplied {
		attempts = append(attempts,
			variant{store.SmtpSTARTTLS, 587},
			variant{store.SmtpSTARTTLS, 25},
		)
	}

	for _, v := range attempts {
		r.params.SmtpSocket = v.socket
		r.params.SendPort = v.port

		started := time.Now()
		ok, err := p.trySMTP(ctx, r.params)
		metrics.RecordConnect("smtp", ok && err == nil, time.Since(started).Seconds())

		if err == nil && ok {
			r.progress(860)
			return 16, nil
		}
		log.WarnContext(ctx, "smtp connect attempt failed",
			"server", r.params.SendServer, "port", r.params.SendPort, "error", err)

		if ongoing.ShallStop(ctx) {
			return 0, ErrCancelled
		}
	}

	return 0, ErrSmtpConnect
}

// stepFolderDiscovery is step 16. Folder configuration failures are
// non-fatal warnings: the run continues even if classification or mvbox
// creation fails. The moved-messages folder is created when either of the
// mvbox_watch/mvbox_move settings is on; both default to on when unset.
func (p *Pipeline) stepFolderDiscovery(ctx context.Context, r *run) (int, error) {
	r.progress(900)
	log := p.log.Pipeline()

	if r.imapSess == nil {
		return 17, nil
	}

	if err := r.imapSess.SelectWithUIDValidity(ctx, "INBOX"); err != nil {
		log.WarnContext(ctx, "select INBOX failed", "error", err)
	}

	watch, err := p.db.GetConfigBoolOr(ctx, "mvbox_watch", true)
	if err != nil {
		return 0, fmt.Errorf("pipeline: read mvbox_watch: %w", err)
	}
	move, err := p.db.GetConfigBoolOr(ctx, "mvbox_move", true)
	if err != nil {
		return 0, fmt.Errorf("pipeline: read mvbox_move: %w", err)
	}

	sent, mvbox, err := r.imapSess.EnsureConfiguredFolders(ctx, watch || move)
	if err != nil {
		log.WarnContext(ctx, "folder configuration failed", "error", err)
	}
	r.sentFolder, r.mvboxFolder = sent, mvbox

	return 17, nil
}

// stepPersist is step 17: the primary (raw) keys become the new verified
// snapshot, and configured_* is written with configured=true.
func (p *Pipeline) stepPersist(ctx context.Context, r *run) (int, error) {
	r.progress(910)

	if err := p.db.SaveRaw(ctx, r.params); err != nil {
		return 0, fmt.Errorf("pipeline: save raw config: %w", err)
	}
	if err := p.db.SnapshotSuccess(ctx); err != nil {
		return 0, fmt.Errorf("pipeline: snapshot success: %w", err)
	}
	if err := p.db.PersistConfigured(ctx, r.params); err != nil {
		return 0, fmt.Errorf("pipeline: persist configured: %w", err)
	}
	return 18, nil
}

// stepFinalize is step 18: ensures an end-to-end keypair exists for the
// configured address.
func (p *Pipeline) stepFinalize(ctx context.Context, r *run) (int, error) {
	r.progress(920)
	if err := secret.EnsureKeypair(ctx, p.db, r.params.Addr); err != nil {
		return 0, fmt.Errorf("pipeline: ensure keypair: %w", err)
	}
	r.progress(940)
	return stepDone, nil
}

// mergeNonEmpty copies every non-zero-value field of src into dst.
func mergeNonEmpty(dst *store.LoginParam, src store.LoginParam) {
	if src.MailServer != "" {
		dst.MailServer = src.MailServer
	}
	if src.MailPort != 0 {
		dst.MailPort = src.MailPort
	}
	if src.MailUser != "" {
		dst.MailUser = src.MailUser
	}
	if src.ImapSocket != store.ImapSocketAutomatic {
		dst.ImapSocket = src.ImapSocket
	}
	if src.SendServer != "" {
		dst.SendServer = src.SendServer
	}
	if src.SendPort != 0 {
		dst.SendPort = src.SendPort
	}
	if src.SendUser != "" {
		dst.SendUser = src.SendUser
	}
	if src.SmtpSocket != store.SmtpSocketAutomatic {
		dst.SmtpSocket = src.SmtpSocket
	}
}

// loginParamFromProvider builds a LoginParam from a provider database hit.
func loginParamFromProvider(entry provider.Entry, addr string) store.LoginParam {
	var p store.LoginParam
	p.Addr = addr
	if entry.IMAP != nil {
		p.MailServer = entry.IMAP.Hostname
		p.MailPort = entry.IMAP.Port
		p.MailUser = substituteProviderUsername(entry.UsernamePattern, addr)
		p.ImapSocket = imapSocketFromProvider(entry.IMAP.Socket)
	}
	if entry.SMTP != nil {
		p.SendServer = entry.SMTP.Hostname
		p.SendPort = entry.SMTP.Port
		p.SendUser = substituteProviderUsername(entry.UsernamePattern, addr)
		p.SmtpSocket = smtpSocketFromProvider(entry.SMTP.Socket)
	}
	return p
}

func substituteProviderUsername(pattern, addr string) string {
	switch pattern {
	case "", "%EMAILADDRESS%":
		return addr
	case "%EMAILLOCALPART%":
		if i := strings.IndexByte(addr, '@'); i >= 0 {
			return addr[:i]
		}
		return addr
	default:
		return pattern
	}
}

func imapSocketFromProvider(s provider.Socket) store.ImapSocket {
	if s == provider.SocketSTARTTLS {
		return store.ImapSTARTTLS
	}
	return store.ImapSSL
}

func smtpSocketFromProvider(s provider.Socket) store.SmtpSocket {
	if s == provider.SocketSTARTTLS {
		return store.SmtpSTARTTLS
	}
	return store.SmtpSSL
}
