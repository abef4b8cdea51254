package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/nyxlight/ledger/internal/adapters/erpexport"
	"github.com/nyxlight/ledger/internal/adapters/sqlitestore"
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
	nyxhttp "github.com/nyxlight/ledger/internal/ports/http"
	"github.com/nyxlight/ledger/internal/ports/ws"
)

// Options lets a caller (e.g. a test harness or nyxctl) inject an
// already-built logger and chat backend, mirroring
// components/ledger/internal/bootstrap's Options shape.
type Options struct {
	Logger mlog.Logger
	Chat   nyxhttp.ChatBackend
}

// Service owns every long-running component and both listeners.
type Service struct {
	cfg *Config
	log mlog.Logger

	store     *sqlitestore.Store
	scheduler *scheduler.Scheduler

	httpApp *nyxhttp.App
	wsHub   *ws.Hub

	httpSrv *http.Server
	wsSrv   *http.Server
}

// noopChat answers every chat turn with a fixed notice, used only when no
// real chat backend collaborator is injected (spec.md §9: the chat model
// itself is always external to this core).
type noopChat struct{}

func (noopChat) Complete(_ context.Context, _, _, _ string) (string, string, map[string]any, error) {
	return "Chat backend nije konfiguriran.", "none", nil, nil
}

// InitServers builds a Service from environment configuration.
func InitServers() (*Service, error) {
	return InitServersWithOptions(nil)
}

// InitServersWithOptions builds a Service, optionally overriding the
// logger and chat backend.
func InitServersWithOptions(opts *Options) (*Service, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	var logger mlog.Logger
	if opts != nil && opts.Logger != nil {
		logger = opts.Logger
	} else {
		zl, err := mlog.New(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}

		logger = zl
	}

	store, err := sqlitestore.Open(cfg.DBPath, 20)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	gl := ledger.New(store)

	transactions, err := store.LoadTransactionsInOrder()
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	gl.Restore(transactions)

	pipeline, err := proposal.New(store, gl, erpexport.New())
	if err != nil {
		return nil, fmt.Errorf("failed to init proposal pipeline: %w", err)
	}

	matcher := document.NewClientMatcher(nil)

	queue := llmqueue.New(
		llmqueue.WithMaxConcurrent(cfg.LLMMaxConcurrent),
		llmqueue.WithMaxPerMinute(cfg.LLMRatePerMin),
		llmqueue.WithTimeout(cfg.LLMTimeout()),
		llmqueue.WithQueueMaxSize(cfg.QueueMax),
	)

	sessions := session.New(cfg.MaxSessions, cfg.SessionIdleTimeout())
	notifier := notify.New(cfg.NotifyMaxPerUser)
	ov := overseer.New()

	trail, err := audit.New(store)
	if err != nil {
		return nil, fmt.Errorf("failed to init audit trail: %w", err)
	}

	detector := audit.NewDetector()

	accessLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
	ac := access.New(accessLog)
	ac.SetPolicy(access.PortPolicy{Port: cfg.APIPort, AllowLAN: true, AllowVPN: true, AllowLocal: true})
	ac.SetPolicy(access.PortPolicy{Port: cfg.Port, AllowLAN: true, AllowVPN: true, AllowLocal: true})

	sched := scheduler.New(logger)
	scheduler.SetupDefault(sched,
		dpoExportTask(store, cfg.DPODatasetDir),
		backupTask(store, cfg.BackupDir, cfg.BackupKeep),
		pruneLogsTask(store, cfg.AuditMaxDays),
	)

	users, err := LoadUsers(cfg.UsersFile)
	if err != nil {
		return nil, err
	}

	authUsers := make(map[string]nyxhttp.UserRecord, len(users.Users))
	for name, u := range users.Users {
		authUsers[name] = nyxhttp.UserRecord{PasswordHash: u.PasswordHash, DisplayName: u.DisplayName, Role: u.Role}
	}

	secret := []byte(cfg.JWTSecret)
	authenticator := nyxhttp.NewAuthenticator(secret, cfg.JWTTTL(), authUsers)

	var chat nyxhttp.ChatBackend = noopChat{}
	if opts != nil && opts.Chat != nil {
		chat = opts.Chat
	}

	app := nyxhttp.New(nyxhttp.Deps{
		Log:       logger,
		Auth:      authenticator,
		Access:    ac,
		APIPort:   cfg.APIPort,
		Sessions:  sessions,
		Pipeline:  pipeline,
		Ledger:    gl,
		Matcher:   matcher,
		Queue:     queue,
		Overseer:  ov,
		Notifier:  notifier,
		Trail:     trail,
		Detector:  detector,
		Scheduler: sched,
		Chat:      chat,
	})

	hub := ws.New(logger, ac, cfg.Port, ws.StaticTokenAuthenticator{Secret: secret}, sessions, notifier, chat)

	return &Service{
		cfg:       cfg,
		log:       logger,
		store:     store,
		scheduler: sched,
		httpApp:   app,
		wsHub:     hub,
	}, nil
}

// Run starts both listeners and the scheduler, and blocks until an
// interrupt or terminate signal arrives, then shuts everything down.
func (s *Service) Run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.scheduler.Start(ctx)

	fiberApp := s.httpApp.Router()

	go func() {
		addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.APIPort)

		s.log.Infof("control API listening on %s", addr)

		if err := fiberApp.Listen(addr); err != nil {
			s.log.Errorf("control API stopped: %v", err)
		}
	}()

	s.wsSrv = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler: s.wsHub,
	}

	go func() {
		s.log.Infof("websocket multiplex listening on %s", s.wsSrv.Addr)

		if err := s.wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("websocket server stopped: %v", err)
		}
	}()

	<-ctx.Done()

	s.log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = fiberApp.ShutdownWithContext(shutdownCtx)
	_ = s.wsSrv.Shutdown(shutdownCtx)

	s.scheduler.Stop()
	_ = s.store.Close()
	_ = s.log.Sync()
}
