package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/nyxlight/ledger/internal/apperr"
	"github.com/nyxlight/ledger/internal/domain/audit"
	"github.com/nyxlight/ledger/internal/domain/document"
	"github.com/nyxlight/ledger/internal/domain/ledger"
	"github.com/nyxlight/ledger/internal/domain/llmqueue"
	"github.com/nyxlight/ledger/internal/domain/proposal"
)

// Router builds the fiber.App with every route named in spec.md §4.K,
// wrapped in the correlation-id / CORS / access-control / auth chain.
func (a *App) Router() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return WithError(c, err)
		},
	})

	app.Use(WithCorrelationID())
	app.Use(WithCORS())
	app.Use(a.WithAccessControl())

	api := app.Group("/api")

	api.Post("/auth/login", a.handleLogin)

	protected := api.Group("", a.auth.Protect())
	protected.Post("/chat", a.handleChat)
	protected.Get("/pending", a.handlePending)
	protected.Post("/bookings", a.handleSubmitBooking)
	protected.Post("/bookings/:id/approve", a.handleApprove)
	protected.Post("/bookings/:id/reject", a.handleReject)
	protected.Post("/bookings/:id/correct", a.handleCorrect)
	protected.Post("/export", a.handleExport)
	protected.Post("/upload", a.handleUpload)
	protected.Get("/audit", a.handleAudit)
	protected.Get("/audit/anomalies", a.handleAuditAnomalies)
	protected.Get("/monitor", a.handleMonitor)

	return app
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *App) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, apperr.InvalidInput("neispravan JSON"))
	}

	token, rec, err := a.auth.Login(req.Username, req.Password)
	if err != nil {
		return WithError(c, err)
	}

	sess, ok := a.sessions.Create(req.Username, rec.DisplayName)
	if !ok {
		return WithError(c, apperr.InvalidState("dosegnut je maksimalan broj od 15 istovremenih sesija"))
	}

	_, _ = a.trail.Log(req.Username, audit.ActionLogin, "auth", "prijava korisnika", sess.ID, "", audit.RiskLow)

	return c.JSON(fiber.Map{"token": token, "session_id": sess.ID, "display_name": rec.DisplayName, "role": rec.Role})
}

type chatRequest struct {
	ClientID string `json:"client_id"`
	Message  string `json:"message"`
	Priority int    `json:"priority"`
}

type chatResult struct {
	reply      string
	moduleUsed string
	moduleData map[string]any
}

func (a *App) handleChat(c *fiber.Ctx) error {
	userID := UserID(c)

	var req chatRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, apperr.InvalidInput("neispravan JSON"))
	}

	verdict := a.overseer.Evaluate(req.Message, "chat")
	if !verdict.Approved {
		severity := audit.RiskHigh
		if verdict.HardBoundary {
			severity = audit.RiskCritical
		}

		_, _ = a.trail.Log(userID, audit.ActionReview, "overseer", verdict.Reason, "", req.ClientID, severity)

		return WithError(c, apperr.SafetyBlocked(string(verdict.BoundaryType), verdict.Reason))
	}

	res, err := a.queue.Submit(c.Context(), userID, llmqueue.Priority(req.Priority), func(ctx context.Context) (any, error) {
		reply, moduleUsed, moduleData, chatErr := a.chat.Complete(ctx, userID, req.ClientID, req.Message)
		if chatErr != nil {
			return nil, apperr.Internal(chatErr)
		}

		return chatResult{reply: reply, moduleUsed: moduleUsed, moduleData: moduleData}, nil
	})
	if err != nil {
		return WithError(c, err)
	}

	cr, _ := res.(chatResult)

	_, _ = a.trail.Log(userID, audit.ActionAIProposal, cr.moduleUsed, req.Message, "", req.ClientID, audit.RiskLow)

	if sess := a.sessions.GetByUser(userID); sess != nil {
		a.sessions.RecordMessage(sess.ID)
	}

	return c.JSON(fiber.Map{"reply": cr.reply, "module_used": cr.moduleUsed, "module_data": cr.moduleData})
}

func (a *App) handlePending(c *fiber.Ctx) error {
	client := c.Query("client")
	return c.JSON(a.pipeline.ListPending(client))
}

type lineRequest struct {
	Konto          string          `json:"konto"`
	Side           string          `json:"side"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
	CounterpartyID string          `json:"counterparty_id"`
}

type submitBookingRequest struct {
	ClientID     string        `json:"client_id"`
	DocumentType string        `json:"document_type"`
	Lines        []lineRequest `json:"lines"`
	Confidence   float64       `json:"confidence"`
	Reasoning    string        `json:"reasoning"`
}

func (a *App) handleSubmitBooking(c *fiber.Ctx) error {
	userID := UserID(c)

	var req submitBookingRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, apperr.InvalidInput("neispravan JSON"))
	}

	lines := make([]ledger.Line, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, ledger.Line{
			Konto:          l.Konto,
			Side:           ledger.Side(l.Side),
			Amount:         l.Amount,
			Description:    l.Description,
			CounterpartyID: l.CounterpartyID,
		})
	}

	bp, err := a.pipeline.Submit(req.ClientID, req.DocumentType, lines, req.Confidence, req.Reasoning)
	if err != nil {
		return WithError(c, err)
	}

	if sess := a.sessions.GetByUser(userID); sess != nil {
		a.sessions.RecordBooking(sess.ID, false)
	}

	_, _ = a.trail.Log(userID, audit.ActionBooking, req.DocumentType, "prijedlog poslan", bp.ID, req.ClientID, audit.RiskLow)

	return c.Status(fiber.StatusCreated).JSON(bp)
}

func (a *App) handleApprove(c *fiber.Ctx) error {
	userID := UserID(c)
	id := c.Params("id")

	bp, err := a.pipeline.Approve(id, userID)
	if err != nil {
		return WithError(c, err)
	}

	anomalies := a.checkAnomalies(bp)

	if sess := a.sessions.GetByUser(userID); sess != nil {
		a.sessions.RecordBooking(sess.ID, true)
	}

	_, _ = a.trail.Log(userID, audit.ActionApprove, bp.DocumentType, "prijedlog odobren", bp.ID, bp.ClientID, audit.RiskLow)

	return c.JSON(fiber.Map{"proposal": bp, "anomalies": anomalies})
}

func (a *App) checkAnomalies(bp *proposal.BookingProposal) []audit.Anomaly {
	var out []audit.Anomaly

	for _, l := range bp.Lines {
		out = append(out, a.detector.CheckTransaction(l.Amount, l.CounterpartyID, "", time.Now().UTC(), l.Description, l.Konto)...)
	}

	return out
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (a *App) handleReject(c *fiber.Ctx) error {
	userID := UserID(c)
	id := c.Params("id")

	var req reasonRequest
	_ = c.BodyParser(&req)

	bp, err := a.pipeline.Reject(id, userID, req.Reason)
	if err != nil {
		return WithError(c, err)
	}

	_, _ = a.trail.Log(userID, audit.ActionReject, bp.DocumentType, req.Reason, bp.ID, bp.ClientID, audit.RiskMedium)

	return c.JSON(bp)
}

type correctRequest struct {
	OriginalKonto  string `json:"original_konto"`
	CorrectedKonto string `json:"corrected_konto"`
	Description    string `json:"description"`
}

func (a *App) handleCorrect(c *fiber.Ctx) error {
	userID := UserID(c)
	id := c.Params("id")

	var req correctRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, apperr.InvalidInput("neispravan JSON"))
	}

	bp, err := a.pipeline.Correct(id, userID, req.OriginalKonto, req.CorrectedKonto, req.Description)
	if err != nil {
		return WithError(c, err)
	}

	_, _ = a.trail.Log(userID, audit.ActionAICorrect, bp.DocumentType, req.Description, bp.ID, bp.ClientID, audit.RiskLow)

	return c.JSON(bp)
}

type exportRequest struct {
	ClientID string `json:"client_id"`
	ERP      string `json:"erp"`
	Format   string `json:"format"`
}

func (a *App) handleExport(c *fiber.Ctx) error {
	userID := UserID(c)

	var req exportRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, apperr.InvalidInput("neispravan JSON"))
	}

	payload, ids, err := a.pipeline.ExportApproved(req.ClientID, req.ERP, req.Format)
	if err != nil {
		return WithError(c, err)
	}

	_, _ = a.trail.Log(userID, audit.ActionExport, req.ERP, "izvoz odobrenih prijedloga", req.ClientID, req.ClientID, audit.RiskLow)

	c.Set(fiber.HeaderContentType, "application/octet-stream")

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"exported_ids": ids, "size": len(payload)})
}

type uploadRequest struct {
	Filename   string `json:"filename"`
	FileType   string `json:"file_type"`
	Source     string `json:"source"`
	Text       string `json:"text"`
	Folder     string `json:"folder"`
	ClientHint string `json:"client_hint"`
}

func (a *App) handleUpload(c *fiber.Ctx) error {
	userID := UserID(c)

	var req uploadRequest
	if err := c.BodyParser(&req); err != nil {
		return WithError(c, apperr.InvalidInput("neispravan JSON"))
	}

	doc := document.New(req.Filename, req.FileType, req.Source)
	document.Route(doc, a.matcher, req.Text, req.Folder)

	subIntent := document.SubIntent(req.Text)
	entities := document.ExtractEntities(req.Text)

	_, _ = a.trail.Log(userID, audit.ActionReview, doc.AssignedModule, "dokument zaprimljen: "+req.Filename, doc.ID, req.ClientHint, audit.RiskLow)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"document":   doc,
		"sub_intent": subIntent,
		"entities":   entities,
	})
}

func (a *App) handleAudit(c *fiber.Ctx) error {
	rows, err := a.trail.Rows()
	if err != nil {
		return WithError(c, apperr.Internal(err))
	}

	if clientID := c.Query("client_id"); clientID != "" {
		filtered := rows[:0]

		for _, r := range rows {
			if r.ClientID == clientID {
				filtered = append(filtered, r)
			}
		}

		rows = filtered
	}

	return c.JSON(fiber.Map{"entries": rows, "count": len(rows)})
}

func (a *App) handleAuditAnomalies(c *fiber.Ctx) error {
	anomalies := a.detector.Anomalies()

	return c.JSON(fiber.Map{
		"detections": len(anomalies),
		"anomalies":  anomalies,
		"by_risk":    audit.RiskSummary(anomalies),
		"benford":    audit.BenfordTest(a.detector.Amounts()),
	})
}

func (a *App) handleMonitor(c *fiber.Ctx) error {
	verify, _ := a.trail.VerifyChain()

	return c.JSON(fiber.Map{
		"sessions":   a.sessions.Stats(),
		"queue":      a.queue.Stats(),
		"overseer":   a.overseer.Stats(),
		"notify":     a.notifier.Stats(),
		"scheduler":  a.scheduler.Stats(),
		"ledger":     a.ledger.VerifyChain(),
		"audit":      verify,
		"trial":      a.ledger.TrialBalance(""),
		"detections": a.detector.Detections(),
	})
}
