package http

import (
	"context"

	"github.com/nyxlight/ledger/internal/domain/access"
	"github.com/nyxlight/ledger/internal/domain/audit"
	"github.com/nyxlight/ledger/internal/domain/document"
	"github.com/nyxlight/ledger/internal/domain/ledger"
	"github.com/nyxlight/ledger/internal/domain/llmqueue"
	"github.com/nyxlight/ledger/internal/domain/notify"
	"github.com/nyxlight/ledger/internal/domain/overseer"
	"github.com/nyxlight/ledger/internal/domain/proposal"
	"github.com/nyxlight/ledger/internal/domain/scheduler"
	"github.com/nyxlight/ledger/internal/domain/session"
	"github.com/nyxlight/ledger/internal/platform/mlog"
)

// ChatBackend is the external LLM call the Control API dispatches through
// the bounded-concurrency queue (spec.md §6: "individual domain calculators
// ... remain external collaborators"). The core only coordinates access to
// it; it never implements the model call itself.
type ChatBackend interface {
	Complete(ctx context.Context, userID, clientID, message string) (reply, moduleUsed string, moduleData map[string]any, err error)
}

// App wires every domain component (A–J) behind the Control API (spec.md
// §4.K), grounded on common/net/http's middleware-chain shape.
type App struct {
	log mlog.Logger

	auth    *Authenticator
	access  *access.Controller
	apiPort int

	sessions  *session.Manager
	pipeline  *proposal.Pipeline
	ledger    *ledger.GeneralLedger
	matcher   *document.ClientMatcher
	queue     *llmqueue.Queue
	overseer  *overseer.Overseer
	notifier  *notify.Manager
	trail     *audit.Trail
	detector  *audit.Detector
	scheduler *scheduler.Scheduler
	chat      ChatBackend
}

// Deps groups every collaborator App.New needs — one struct instead of a
// dozen constructor parameters, matching how components/ledger's bootstrap
// assembles its own Service.
type Deps struct {
	Log       mlog.Logger
	Auth      *Authenticator
	Access    *access.Controller
	APIPort   int
	Sessions  *session.Manager
	Pipeline  *proposal.Pipeline
	Ledger    *ledger.GeneralLedger
	Matcher   *document.ClientMatcher
	Queue     *llmqueue.Queue
	Overseer  *overseer.Overseer
	Notifier  *notify.Manager
	Trail     *audit.Trail
	Detector  *audit.Detector
	Scheduler *scheduler.Scheduler
	Chat      ChatBackend
}

// New builds the App from its dependencies.
func New(d Deps) *App {
	return &App{
		log:       d.Log,
		auth:      d.Auth,
		access:    d.Access,
		apiPort:   d.APIPort,
		sessions:  d.Sessions,
		pipeline:  d.Pipeline,
		ledger:    d.Ledger,
		matcher:   d.Matcher,
		queue:     d.Queue,
		overseer:  d.Overseer,
		notifier:  d.Notifier,
		trail:     d.Trail,
		detector:  d.Detector,
		scheduler: d.Scheduler,
		chat:      d.Chat,
	}
}
