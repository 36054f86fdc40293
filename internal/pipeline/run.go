package pipeline

import (
	"github.com/fenilsonani/mailclient/internal/store"
)

// run carries one configuration attempt's working state across every step.
// Ownership of the open IMAP session is scoped to the run: it is closed on
// every exit path by Pipeline.Run, never by an individual step.
type run struct {
	params store.LoginParam

	// advanced records that the user supplied at least one field that
	// bypasses autoconfig discovery entirely (step 4).
	advanced bool

	// keepOAuth preserves the OAuth2 auth setting across a discovery
	// merge; discovered socket settings always win, the auth method never
	// changes hands.
	keepOAuth bool

	// discovered holds the LoginParam a provider-database hit or a
	// network probe produced, merged into params by step 12. Nil means
	// no discovery source produced anything.
	discovered *store.LoginParam

	// autoconfigSupplied records whether discovered came from a source
	// that pins the transport security: the IMAP/SMTP trial strategy
	// (steps 14-15) only gets one attempt per pass when this is true.
	autoconfigSupplied bool

	imapSess imapTrial

	sentFolder  string
	mvboxFolder string

	onProgress func(n int)
}

func (r *run) progress(n int) {
	if r.onProgress != nil {
		r.onProgress(n)
	}
}
