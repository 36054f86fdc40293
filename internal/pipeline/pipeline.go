package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/fenilsonani/mailclient/internal/autoconfig"
	"github.com/fenilsonani/mailclient/internal/imapsession"
	"github.com/fenilsonani/mailclient/internal/logging"
	"github.com/fenilsonani/mailclient/internal/metrics"
	"github.com/fenilsonani/mailclient/internal/ongoing"
	"github.com/fenilsonani/mailclient/internal/smtptrial"
	"github.com/fenilsonani/mailclient/internal/store"
)

// OAuthResolver substitutes an OAuth-derived address for the entered one
// (step 2). Token acquisition itself lives outside this module; a nil
// resolver disables the substitution entirely.
type OAuthResolver interface {
	ResolveAddr(ctx context.Context, addr, password string) (string, bool)
}

// imapTrial is the slice of the IMAP session surface the pipeline needs,
// satisfied by *imapsession.Session and by test fakes.
type imapTrial interface {
	Connect(ctx context.Context, params store.LoginParam) (bool, error)
	Disconnect()
	SelectWithUIDValidity(ctx context.Context, name string) error
	EnsureConfiguredFolders(ctx context.Context, createMvbox bool) (sentFolder, mvboxFolder string, err error)
}

// Pipeline runs the account auto-configuration sequence against one
// config store. Construct with New; zero value is not usable.
type Pipeline struct {
	db    *store.DB
	log   *logging.Logger
	cache autoconfig.Cache
	oauth OAuthResolver

	// probeTimeout bounds one autoconfig HTTP request; connectTimeout
	// bounds one IMAP/SMTP dial. Zero means the protocol packages'
	// defaults.
	probeTimeout   time.Duration
	connectTimeout time.Duration

	newSession func() imapTrial
	trySMTP    func(ctx context.Context, params store.LoginParam) (bool, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCache installs an autoconfig response cache consulted before network
// probes. Without it every run probes the network.
func WithCache(c autoconfig.Cache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithOAuth installs the address-substitution hook for OAuth2 accounts.
func WithOAuth(r OAuthResolver) Option {
	return func(p *Pipeline) { p.oauth = r }
}

// WithProbeTimeout bounds each autoconfig/autodiscover HTTP request.
func WithProbeTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.probeTimeout = d }
}

// WithConnectTimeout bounds each IMAP and SMTP trial dial.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.connectTimeout = d }
}

// New returns a Pipeline bound to db.
func New(db *store.DB, log *logging.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		db:  db,
		log: log,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.newSession = func() imapTrial { return imapsession.New(db, p.connectTimeout) }
	p.trySMTP = func(ctx context.Context, params store.LoginParam) (bool, error) {
		return smtptrial.Try(ctx, params, p.connectTimeout)
	}
	return p
}

// steps returns the numbered step table. Each entry's fn reports the
// number of the next step to run, so the two join points (12 and 13) are
// ordinary return values instead of a mutated counter.
func (p *Pipeline) steps() map[int]step {
	return map[int]step{
		1:  {1, "validate_address", p.stepValidateAddress},
		2:  {2, "oauth_substitution", p.stepOAuthSubstitution},
		3:  {3, "parse_domain", p.stepParseDomain},
		4:  {4, "decide_branch", p.stepDecideBranch},
		5:  {5, "network_probe", p.stepNetworkProbe},
		12: {12, "apply_discovered", p.stepApplyDiscovered},
		13: {13, "default_fill", p.stepDefaultFill},
		14: {14, "try_imap", p.stepTryIMAP},
		15: {15, "try_smtp", p.stepTrySMTP},
		16: {16, "folder_discovery", p.stepFolderDiscovery},
		17: {17, "persist", p.stepPersist},
		18: {18, "finalize", p.stepFinalize},
	}
}

// Run executes the whole pipeline against the tentative credentials
// currently stored in the primary (unprefixed) config keys. It emits
// Progress(n) events through onProgress in non-decreasing order, ending
// with exactly one of 0 (failure) or 1000 (success). On failure the
// primary keys are restored from the last-known-good snapshot.
func (p *Pipeline) Run(ctx context.Context, onProgress func(n int)) error {
	log := p.log.Pipeline()
	started := time.Now()

	r := &run{onProgress: func(n int) {
		metrics.PipelineProgress.Set(float64(n))
		if onProgress != nil {
			onProgress(n)
		}
	}}

	var err error
	r.params, err = p.db.LoadRaw(ctx)
	if err == nil {
		err = p.runSteps(ctx, r)
	}

	if r.imapSess != nil {
		r.imapSess.Disconnect()
	}

	if err != nil {
		outcome := "failure"
		if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
			outcome = "cancelled"
		}
		metrics.RecordConfigurationRun(outcome, time.Since(started).Seconds())
		log.WarnContext(ctx, "configuration run failed", "error", err)

		if restoreErr := p.db.RestoreLastGood(ctx); restoreErr != nil {
			log.ErrorContext(ctx, "restore of last-known-good settings failed", restoreErr)
		}
		r.progress(0)
		return err
	}

	metrics.RecordConfigurationRun("success", time.Since(started).Seconds())
	log.InfoContext(ctx, "configuration run succeeded",
		"addr", r.params.Addr,
		"mail_server", r.params.MailServer,
		"send_server", r.params.SendServer,
		"sent_folder", r.sentFolder,
		"mvbox_folder", r.mvboxFolder,
	)
	r.progress(1000)
	return nil
}

func (p *Pipeline) runSteps(ctx context.Context, r *run) error {
	steps := p.steps()
	next := 1
	for next != stepDone {
		if ongoing.ShallStop(ctx) {
			return ErrCancelled
		}

		s, ok := steps[next]
		if !ok {
			return errors.New("pipeline: no such step")
		}

		n, err := s.fn(ctx, r)
		if err != nil {
			metrics.RecordPipelineStep(s.name, "failure")
			return err
		}
		metrics.RecordPipelineStep(s.name, "ok")
		next = n
	}
	return nil
}
