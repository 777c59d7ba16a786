package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/civium/rewards-core/internal/api/dto"
	"github.com/civium/rewards-core/internal/api/middlewares"
	"github.com/civium/rewards-core/internal/config"
	"github.com/civium/rewards-core/internal/model"
	"github.com/civium/rewards-core/internal/model/ledger"
	"github.com/civium/rewards-core/internal/model/member"
	"github.com/civium/rewards-core/internal/model/redemption"
	"github.com/civium/rewards-core/internal/model/suspension"
	"github.com/civium/rewards-core/internal/service/checkin"
	"github.com/civium/rewards-core/internal/serviceerrs"
	"github.com/civium/rewards-core/internal/utils/auth"
)

type memberRepo interface {
	Create(ctx context.Context, m *member.Member) error
	FindByLogin(ctx context.Context, loginHash string) (member.Member, error)
	Exists(ctx context.Context, loginHash string) bool
}

type actionService interface {
	CompleteQuiz(ctx context.Context, memberID, quizID string, completionTime time.Duration, points int64, ipAddress string) (ledger.Transaction, error)
	CompleteTask(ctx context.Context, memberID, taskID, proofURL string, points int64, ipAddress string) (ledger.Transaction, error)
	CastVote(ctx context.Context, memberID, campaignID string, points int64, ipAddress string) (ledger.Transaction, error)
	CheckInEvent(ctx context.Context, memberID, eventID string, eventTime time.Time, eventCoords, memberCoords *checkin.Coordinates, points int64, ipAddress string) (ledger.Transaction, error)
}

type ledgerService interface {
	Balance(ctx context.Context, memberID string) (int64, error)
	History(ctx context.Context, memberID string) ([]ledger.Transaction, error)
	Adjust(ctx context.Context, memberID string, amount int64) (ledger.Transaction, error)
	CreditFromVerifiedPurchase(ctx context.Context, memberID string, pointsAmount int64, purchaseReference string) (ledger.Transaction, error)
}

type redemptionService interface {
	Redeem(ctx context.Context, memberID string, productType redemption.ProductType, pointsAmount int64, idempotencyKey, destination string) (redemption.Redemption, error)
	Refund(ctx context.Context, redemptionID string) (ledger.Transaction, error)
	ListByMember(ctx context.Context, memberID string) ([]redemption.Redemption, error)
}

type suspensionService interface {
	Suspend(ctx context.Context, memberID, reason, suspendedBy string, durationDays int) (suspension.Suspension, error)
	Restore(ctx context.Context, memberID string) error
}

type HTTPHandler struct {
	members     memberRepo
	actions     actionService
	ledger      ledgerService
	redemptions redemptionService
	suspensions suspensionService
	cfg         *config.Config
	log         *slog.Logger
}

func New(members memberRepo, actions actionService, ledgerSvc ledgerService,
	redemptionsSvc redemptionService, suspensionsSvc suspensionService,
	cfg *config.Config, log *slog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		members:     members,
		actions:     actions,
		ledger:      ledgerSvc,
		redemptions: redemptionsSvc,
		suspensions: suspensionsSvc,
		cfg:         cfg,
		log:         log,
	}
}

func hashLogin(login string) string {
	sum := sha256.Sum256([]byte(login))
	return hex.EncodeToString(sum[:])
}

func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loginHash := hashLogin(req.Login)
	if h.members.Exists(r.Context(), loginHash) {
		http.Error(w, "login already taken", http.StatusConflict)
		return
	}

	passwordHash, err := bcrypt.GenerateFromPassword(
		[]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internalError(w, r, "failed to hash password", err)
		return
	}

	m := member.Member{
		LoginHash:    loginHash,
		PasswordHash: string(passwordHash),
	}
	if err = h.members.Create(r.Context(), &m); err != nil {
		h.internalError(w, r, "failed to create member", err)
		return
	}

	h.setToken(w, r, m.ID)
}

func (h *HTTPHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Login == "" || req.Password == "" {
		http.Error(w, "login and password are required", http.StatusBadRequest)
		return
	}

	m, err := h.members.FindByLogin(r.Context(), hashLogin(req.Login))
	if errors.Is(err, serviceerrs.ErrMemberNotFound) {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to find member", err)
		return
	}
	if bcrypt.CompareHashAndPassword(
		[]byte(m.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	h.setToken(w, r, m.ID)
}

func (h *HTTPHandler) setToken(w http.ResponseWriter, r *http.Request, memberID string) {
	cookie, err := auth.Authenticate(memberID, []byte(h.cfg.SecretKey))
	if err != nil {
		h.internalError(w, r, "failed to issue token", err)
		return
	}
	http.SetCookie(w, &cookie)
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPHandler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	memberID, ok := memberIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req dto.QuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := h.actions.CompleteQuiz(r.Context(), memberID, req.QuizID,
		time.Duration(req.CompletionSeconds)*time.Second,
		h.cfg.QuizPoints, middlewares.ClientIP(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dto.NewTransactionResponse(t))
}

func (h *HTTPHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	memberID, ok := memberIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req dto.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := h.actions.CompleteTask(r.Context(), memberID, req.TaskID,
		req.ProofURL, h.cfg.TaskPoints, middlewares.ClientIP(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dto.NewTransactionResponse(t))
}

func (h *HTTPHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	memberID, ok := memberIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req dto.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := h.actions.CastVote(r.Context(), memberID, req.CampaignID,
		h.cfg.VotePoints, middlewares.ClientIP(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dto.NewTransactionResponse(t))
}

func (h *HTTPHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	memberID, ok := memberIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req dto.CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := h.actions.CheckInEvent(r.Context(), memberID, req.EventID,
		req.EventTime,
		coords(req.EventLat, req.EventLon), coords(req.Lat, req.Lon),
		h.cfg.EventPoints, middlewares.ClientIP(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dto.NewTransactionResponse(t))
}

func coords(lat, lon *float64) *checkin.Coordinates {
	if lat == nil || lon == nil {
		return nil
	}
	return &checkin.Coordinates{Latitude: *lat, Longitude: *lon}
}

func (h *HTTPHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	memberID, ok := memberIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	balance, err := h.ledger.Balance(r.Context(), memberID)
	if err != nil {
		h.internalError(w, r, "failed to get balance", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dto.BalanceResponse{Balance: balance})
}

func (h *HTTPHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	memberID, ok := memberIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	ts, err := h.ledger.History(r.Context(), memberID)
	if err != nil {
		h.internalError(w, r, "failed to get history", err)
		return
	}
	if len(ts) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]dto.TransactionResponse, len(ts))
	for i, t := range ts {
		resp[i] = dto.NewTransactionResponse(t)
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

func (h *HTTPHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	memberID, ok := memberIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req dto.RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rd, err := h.redemptions.Redeem(r.Context(), memberID,
		redemption.ProductType(req.ProductType), req.Points,
		req.IdempotencyKey, req.Destination)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dto.NewRedemptionResponse(rd))
}

func (h *HTTPHandler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	memberID, ok := memberIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	rds, err := h.redemptions.ListByMember(r.Context(), memberID)
	if err != nil {
		h.internalError(w, r, "failed to list redemptions", err)
		return
	}
	if len(rds) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]dto.RedemptionResponse, len(rds))
	for i, rd := range rds {
		resp[i] = dto.NewRedemptionResponse(rd)
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// PurchaseWebhook credits points for a card purchase. The caller has
// already verified the payment with the provider; this endpoint only
// checks the shared webhook secret.
func (h *HTTPHandler) PurchaseWebhook(w http.ResponseWriter, r *http.Request) {
	if h.cfg.WebhookSecret == "" ||
		r.Header.Get(model.HeaderWebhookSecret) != h.cfg.WebhookSecret {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req dto.PurchaseWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := h.ledger.CreditFromVerifiedPurchase(r.Context(),
		req.MemberID, req.Points, req.PurchaseReference)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dto.NewTransactionResponse(t))
}

func (h *HTTPHandler) Suspend(w http.ResponseWriter, r *http.Request) {
	operatorID, ok := memberIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var req dto.SuspendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.suspensions.Suspend(r.Context(),
		req.MemberID, req.Reason, operatorID, req.DurationDays)
	if err != nil {
		h.internalError(w, r, "failed to suspend member", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, s)
}

func (h *HTTPHandler) Restore(w http.ResponseWriter, r *http.Request) {
	memberID := chi.URLParam(r, "memberID")
	if memberID == "" {
		http.Error(w, "member id is required", http.StatusBadRequest)
		return
	}

	if err := h.suspensions.Restore(r.Context(), memberID); err != nil {
		h.internalError(w, r, "failed to restore member", err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *HTTPHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req dto.AdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := req.IsValid(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	t, err := h.ledger.Adjust(r.Context(), req.MemberID, req.Amount)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dto.NewTransactionResponse(t))
}

func (h *HTTPHandler) RefundRedemption(w http.ResponseWriter, r *http.Request) {
	redemptionID := chi.URLParam(r, "redemptionID")
	if redemptionID == "" {
		http.Error(w, "redemption id is required", http.StatusBadRequest)
		return
	}

	t, err := h.redemptions.Refund(r.Context(), redemptionID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, dto.NewTransactionResponse(t))
}

func (h *HTTPHandler) Ping(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func memberIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(model.KeyContextMemberID).(string)
	return id, ok && id != ""
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, r *http.Request,
	code int, payload any,
) {
	w.Header().Set(model.HeaderContentType, "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.LogAttrs(r.Context(),
			slog.LevelError,
			"failed to encode response",
			slog.Any(model.KeyLoggerError, err),
		)
	}
}

func (h *HTTPHandler) internalError(w http.ResponseWriter, r *http.Request,
	msg string, err error,
) {
	h.log.LogAttrs(r.Context(),
		slog.LevelError,
		msg,
		slog.Any(model.KeyLoggerError, err),
	)
	http.Error(w,
		http.StatusText(http.StatusInternalServerError),
		http.StatusInternalServerError)
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, r *http.Request,
	err error,
) {
	switch {
	case errors.Is(err, serviceerrs.ErrDuplicateAction):
		http.Error(w, "action already completed", http.StatusConflict)
	case errors.Is(err, serviceerrs.ErrProofAlreadyUsed):
		http.Error(w, "proof already used", http.StatusConflict)
	case errors.Is(err, serviceerrs.ErrAccountSuspended):
		http.Error(w, "account is suspended", http.StatusForbidden)
	case errors.Is(err, serviceerrs.ErrInsufficientBalance):
		http.Error(w, "insufficient balance", http.StatusPaymentRequired)
	case errors.Is(err, serviceerrs.ErrTooFast):
		http.Error(w, "completed too fast", http.StatusUnprocessableEntity)
	case errors.Is(err, serviceerrs.ErrCheckInWindowClosed):
		http.Error(w, "check-in window not yet open", http.StatusUnprocessableEntity)
	case errors.Is(err, serviceerrs.ErrCheckInWindowExpired):
		http.Error(w, "check-in window expired", http.StatusUnprocessableEntity)
	case errors.Is(err, serviceerrs.ErrLocationMismatch):
		http.Error(w, "location does not match event", http.StatusUnprocessableEntity)
	case errors.Is(err, serviceerrs.ErrRedemptionAmountInvalid):
		http.Error(w, "points amount out of allowed band", http.StatusUnprocessableEntity)
	case errors.Is(err, serviceerrs.ErrInvalidDestination):
		http.Error(w, "invalid destination", http.StatusUnprocessableEntity)
	case errors.Is(err, serviceerrs.ErrRedemptionNotFound):
		http.Error(w, "redemption not found", http.StatusNotFound)
	case errors.Is(err, serviceerrs.ErrRedemptionNotFailed):
		http.Error(w, "redemption is not failed", http.StatusConflict)
	case errors.Is(err, serviceerrs.ErrMemberNotFound):
		http.Error(w, "member not found", http.StatusNotFound)
	default:
		h.internalError(w, r, "request failed", err)
	}
}
