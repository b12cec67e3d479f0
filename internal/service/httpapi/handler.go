package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/PawanKumar-Dev/dd-sub002/internal/domain"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/intake"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/manual"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/reconcile"
	"github.com/PawanKumar-Dev/dd-sub002/internal/service/verify"
)

const defaultListLimit = 50

// Handler — админ/intake HTTP API reconciliation engine.
// Intake-эндпоинт принимает сырые ответы регистратора от order-processing флоу;
// остальные эндпоинты — операторская поверхность над pending-записями.
type Handler struct {
	intake      *intake.Service
	retry       *manual.RetryService
	scheduler   *verify.Scheduler
	sync        *reconcile.Sync
	pending     domain.PendingDomainRepository
	orders      domain.OrderRepository
	timeline    domain.TimelineRepository
	idempotency domain.IdempotencyRepository
	logger      *log.Entry
}

// NewHandler создаёт HTTP-обработчик API.
func NewHandler(
	intakeSvc *intake.Service,
	retrySvc *manual.RetryService,
	scheduler *verify.Scheduler,
	syncSvc *reconcile.Sync,
	pending domain.PendingDomainRepository,
	orders domain.OrderRepository,
	timeline domain.TimelineRepository,
	idempotency domain.IdempotencyRepository,
	logger *log.Entry,
) *Handler {
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	return &Handler{
		intake:      intakeSvc,
		retry:       retrySvc,
		scheduler:   scheduler,
		sync:        syncSvc,
		pending:     pending,
		orders:      orders,
		timeline:    timeline,
		idempotency: idempotency,
		logger:      logger,
	}
}

// Router собирает chi-маршрутизатор API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.idempotency != nil {
				r.Use(IdempotencyMiddleware(h.idempotency, h.logger))
			}
			r.Post("/attempts", h.handleRecordAttempt)
		})
		r.Get("/pending", h.handleListPending)
		r.Get("/pending/{id}", h.handleGetPending)
		r.Patch("/pending/{id}", h.handlePatchPending)
		r.Delete("/pending/{id}", h.handleDeletePending)
		r.Post("/pending/{id}/retry", h.handleManualRetry)
		r.Post("/verify", h.handleVerifyBatch)
		r.Get("/orders/{id}/resolution", h.handleOrderResolution)
	})
	return r
}

type registrarResponseDTO struct {
	StatusCode int    `json:"status_code"`
	Body       string `json:"body"`
}

type attemptRequest struct {
	OrderID           string   `json:"order_id"`
	DomainName        string   `json:"domain_name"`
	PriceMinor        int64    `json:"price_minor"`
	Currency          string   `json:"currency"`
	RegistrationYears int32    `json:"registration_years"`
	UserID            string   `json:"user_id"`
	CustomerID        string   `json:"customer_id"`
	ContactID         string   `json:"contact_id"`
	AdminContactID    string   `json:"admin_contact_id"`
	TechContactID     string   `json:"tech_contact_id"`
	BillingContactID  string   `json:"billing_contact_id"`
	NameServers       []string `json:"name_servers"`
	RegistrarOrderID  string   `json:"registrar_order_id"`

	Response registrarResponseDTO `json:"response"`
}

type attemptResponse struct {
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	PendingID string `json:"pending_id,omitempty"`
}

func (h *Handler) handleRecordAttempt(w http.ResponseWriter, r *http.Request) {
	var req attemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.intake.RecordRegistrationAttempt(r.Context(), intake.Attempt{
		OrderID:           req.OrderID,
		DomainName:        req.DomainName,
		PriceMinor:        req.PriceMinor,
		Currency:          req.Currency,
		RegistrationYears: req.RegistrationYears,
		UserID:            req.UserID,
		CustomerID:        req.CustomerID,
		ContactID:         req.ContactID,
		AdminContactID:    req.AdminContactID,
		TechContactID:     req.TechContactID,
		BillingContactID:  req.BillingContactID,
		NameServers:       req.NameServers,
		RegistrarOrderID:  req.RegistrarOrderID,
		Response: domain.RegistrarResponse{
			StatusCode: req.Response.StatusCode,
			Body:       req.Response.Body,
		},
	})
	if err != nil {
		if errors.Is(err, domain.ErrOrderIDRequired) || errors.Is(err, domain.ErrDomainNameRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.WithError(err).Error("record registration attempt failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, attemptResponse{
		Outcome:   string(result.Classification.Outcome),
		Reason:    result.Classification.Reason,
		PendingID: result.PendingID,
	})
}

type pendingView struct {
	ID                   string     `json:"id"`
	OrderID              string     `json:"order_id"`
	DomainName           string     `json:"domain_name"`
	PriceMinor           int64      `json:"price_minor"`
	Currency             string     `json:"currency"`
	RegistrationYears    int32      `json:"registration_years"`
	RegistrarOrderID     string     `json:"registrar_order_id,omitempty"`
	Status               string     `json:"status"`
	Reason               string     `json:"reason,omitempty"`
	VerificationAttempts int        `json:"verification_attempts"`
	NeedsReview          bool       `json:"needs_review"`
	LastVerifiedAt       *time.Time `json:"last_verified_at,omitempty"`
	RegisteredAt         *time.Time `json:"registered_at,omitempty"`
	ExpiresAt            *time.Time `json:"expires_at,omitempty"`
	AdminNotes           string     `json:"admin_notes,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

func toPendingView(p domain.PendingDomain) pendingView {
	return pendingView{
		ID:                   p.ID,
		OrderID:              p.OrderID,
		DomainName:           p.DomainName,
		PriceMinor:           p.PriceMinor,
		Currency:             p.Currency,
		RegistrationYears:    p.RegistrationYears,
		RegistrarOrderID:     p.RegistrarOrderID,
		Status:               string(p.Status),
		Reason:               p.Reason,
		VerificationAttempts: p.VerificationAttempts,
		NeedsReview:          p.NeedsReview,
		LastVerifiedAt:       p.LastVerifiedAt,
		RegisteredAt:         p.RegisteredAt,
		ExpiresAt:            p.ExpiresAt,
		AdminNotes:           p.AdminNotes,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

type pendingListResponse struct {
	Items  []pendingView `json:"items"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.PendingFilter{
		Status: domain.PendingStatus(q.Get("status")),
		Search: q.Get("search"),
		Limit:  defaultListLimit,
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if raw := q.Get("needs_review"); raw != "" {
		needsReview, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "needs_review must be a boolean")
			return
		}
		filter.NeedsReview = &needsReview
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err := strconv.Atoi(raw); err == nil && limit > 0 {
			filter.Limit = limit
		}
	}
	if raw := q.Get("offset"); raw != "" {
		if offset, err := strconv.Atoi(raw); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	items, err := h.pending.List(filter)
	if err != nil {
		h.logger.WithError(err).Error("list pending domains failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]pendingView, 0, len(items))
	for _, p := range items {
		views = append(views, toPendingView(p))
	}
	writeJSON(w, http.StatusOK, pendingListResponse{Items: views, Limit: filter.Limit, Offset: filter.Offset})
}

type timelineView struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred_at"`
}

type pendingDetailResponse struct {
	pendingView
	Timeline []timelineView `json:"timeline"`
}

func (h *Handler) handleGetPending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.pending.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrPendingNotFound) {
			writeError(w, http.StatusNotFound, "pending domain not found")
			return
		}
		h.logger.WithError(err).Error("get pending domain failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	detail := pendingDetailResponse{pendingView: toPendingView(p), Timeline: []timelineView{}}
	if h.timeline != nil {
		events, err := h.timeline.List(id)
		if err != nil {
			h.logger.WithError(err).WithField("pending_id", id).Warn("list timeline failed")
		}
		for _, event := range events {
			detail.Timeline = append(detail.Timeline, timelineView{
				Type:     event.Type,
				Reason:   event.Reason,
				Occurred: event.Occurred,
			})
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

type patchPendingRequest struct {
	Status    string `json:"status,omitempty"`
	Reason    string `json:"reason,omitempty"`
	AdminNote string `json:"admin_note,omitempty"`
	// Override разрешает корректировку терминальной записи. Это отдельная
	// логируемая операция, а не переход state machine.
	Override bool `json:"override,omitempty"`
}

func (h *Handler) handlePatchPending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req patchPendingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.pending.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrPendingNotFound) {
			writeError(w, http.StatusNotFound, "pending domain not found")
			return
		}
		h.logger.WithError(err).Error("get pending domain failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if req.AdminNote != "" {
		note := time.Now().UTC().Format(time.RFC3339) + " " + req.AdminNote
		if err := h.pending.AppendAdminNote(id, note); err != nil {
			h.logger.WithError(err).WithField("pending_id", id).Error("append admin note failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	if req.Status != "" {
		target := domain.PendingStatus(req.Status)
		if !target.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status")
			return
		}

		switch {
		case req.Override:
			updated, err := h.pending.Override(id, target, req.Reason)
			if err != nil {
				h.logger.WithError(err).WithField("pending_id", id).Error("override pending domain failed")
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			h.appendTimeline(id, domain.TimelineEventManualOverride, "status forced to "+req.Status+": "+req.Reason)
			p = updated
			if updated.Status.Terminal() && h.sync != nil {
				if err := h.sync.ApplyResolved(r.Context(), updated); err != nil {
					h.logger.WithError(err).WithField("pending_id", id).Error("sync after override failed")
				}
			}

		case p.Status.Terminal():
			writeError(w, http.StatusConflict, "record is terminal, pass override to correct it")
			return

		default:
			updated, changed, err := h.pending.Transition(id, domain.TransitionInput{Status: target, Reason: req.Reason})
			if err != nil {
				if errors.Is(err, domain.ErrPendingInvalidTransition) {
					writeError(w, http.StatusUnprocessableEntity, err.Error())
					return
				}
				h.logger.WithError(err).WithField("pending_id", id).Error("transition pending domain failed")
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			p = updated
			if changed && updated.Status.Terminal() {
				h.appendTimeline(id, domain.TimelineEventResolved, req.Reason)
				if h.sync != nil {
					if err := h.sync.ApplyResolved(r.Context(), updated); err != nil {
						h.logger.WithError(err).WithField("pending_id", id).Error("sync after admin transition failed")
					}
				}
			}
		}
	} else {
		p, err = h.pending.Get(id)
		if err != nil {
			h.logger.WithError(err).Error("get pending domain failed")
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}

	writeJSON(w, http.StatusOK, toPendingView(p))
}

func (h *Handler) handleDeletePending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.pending.Delete(id); err != nil {
		if errors.Is(err, domain.ErrPendingNotFound) {
			writeError(w, http.StatusNotFound, "pending domain not found")
			return
		}
		h.logger.WithError(err).WithField("pending_id", id).Error("delete pending domain failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.logger.WithField("pending_id", id).Warn("pending domain deleted by administrator")
	w.WriteHeader(http.StatusNoContent)
}

type retryResponse struct {
	Outcome string      `json:"outcome"`
	Reason  string      `json:"reason,omitempty"`
	Pending pendingView `json:"pending"`
}

func (h *Handler) handleManualRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	operator := r.Header.Get("X-Operator")
	if operator == "" {
		operator = "unknown"
	}

	result, err := h.retry.Retry(r.Context(), id, operator)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPendingNotFound):
			writeError(w, http.StatusNotFound, "pending domain not found")
		case errors.Is(err, domain.ErrPendingAlreadyCompleted):
			writeError(w, http.StatusConflict, err.Error())
		case domain.IsNotClaimable(err):
			writeError(w, http.StatusConflict, "record is being processed, try again later")
		case errors.Is(err, domain.ErrRegistrarUnavailable):
			writeError(w, http.StatusBadGateway, "registrar is unavailable")
		default:
			h.logger.WithError(err).WithField("pending_id", id).Error("manual retry failed")
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, retryResponse{
		Outcome: string(result.Classification.Outcome),
		Reason:  result.Classification.Reason,
		Pending: toPendingView(result.Pending),
	})
}

type verifyRequest struct {
	IDs []string `json:"ids"`
}

type verifyResponse struct {
	Selected     int `json:"selected"`
	Resolved     int `json:"resolved"`
	Inconclusive int `json:"inconclusive"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
}

func (h *Handler) handleVerifyBatch(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	result := h.scheduler.RunBatch(r.Context(), req.IDs)
	writeJSON(w, http.StatusOK, verifyResponse{
		Selected:     result.Selected,
		Resolved:     result.Resolved,
		Inconclusive: result.Inconclusive,
		Skipped:      result.Skipped,
		Errors:       result.Errors,
	})
}

type resolutionDomainView struct {
	DomainName string     `json:"domain_name"`
	Status     string     `json:"status"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type resolutionResponse struct {
	OrderID  string                 `json:"order_id"`
	Resolved bool                   `json:"resolved"`
	Notified bool                   `json:"notified"`
	Domains  []resolutionDomainView `json:"domains"`
}

// handleOrderResolution отвечает на вопрос "все ли позиции заказа терминальны".
// Поверхность клиентская: промежуточные статусы отдаются как "being processed",
// сырой текст регистратора наружу не выходит.
func (h *Handler) handleOrderResolution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	order, err := h.orders.Get(id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.WithError(err).Error("get order failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := resolutionResponse{
		OrderID:  order.ID,
		Resolved: order.AllResolved(),
		Notified: order.Notified,
		Domains:  make([]resolutionDomainView, 0, len(order.Domains)),
	}
	for _, d := range order.Domains {
		resp.Domains = append(resp.Domains, resolutionDomainView{
			DomainName: d.DomainName,
			Status:     customerStatus(d.Status),
			ExpiresAt:  d.ExpiresAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// customerStatus отображает внутренний статус позиции в клиентскую лексику.
func customerStatus(s domain.DomainStatus) string {
	switch s {
	case domain.DomainStatusRegistered:
		return "registered"
	case domain.DomainStatusFailed:
		return "failed"
	default:
		return "being processed"
	}
}

func (h *Handler) appendTimeline(pendingID, eventType, reason string) {
	if h.timeline == nil {
		return
	}
	event := domain.TimelineEvent{
		PendingID: pendingID,
		Type:      eventType,
		Reason:    reason,
		Occurred:  time.Now().UTC(),
	}
	if err := h.timeline.Append(event); err != nil {
		h.logger.WithError(err).WithField("pending_id", pendingID).Warn("append timeline event failed")
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
