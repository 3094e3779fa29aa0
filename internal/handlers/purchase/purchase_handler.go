package purchase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kevin07696/purchase-service/internal/domain"
	purchasesvc "github.com/kevin07696/purchase-service/internal/services/purchase"
	"github.com/kevin07696/purchase-service/pkg/middleware"
	"github.com/kevin07696/purchase-service/pkg/resilience"
	"go.uber.org/zap"
)

// maxRequestBody caps a purchase request body
const maxRequestBody = 64 << 10

// Service is the purchase command surface used by the handler
type Service interface {
	Process(ctx context.Context, cmd purchasesvc.ProcessCommand) (*purchasesvc.Result, error)
	CompleteThreeD(ctx context.Context, cmd purchasesvc.CompleteThreeDCommand) (*purchasesvc.Result, error)
}

// Handler serves the purchase HTTP API
type Handler struct {
	service  Service
	timeouts *resilience.TimeoutConfig
	logger   *zap.Logger
}

// NewHandler creates a purchase handler
func NewHandler(service Service, timeouts *resilience.TimeoutConfig, logger *zap.Logger) *Handler {
	if timeouts == nil {
		timeouts = resilience.DefaultTimeoutConfig()
	}
	return &Handler{
		service:  service,
		timeouts: timeouts,
		logger:   logger,
	}
}

// ProcessRequest is the body of a process call
type ProcessRequest struct {
	SelectedCrossSales []string           `json:"selected_cross_sales"`
	Payment            domain.PaymentData `json:"payment"`
	User               domain.UserInfo    `json:"user"`
	ReturnURL          string             `json:"return_url"`
	CaptchaValidated   bool               `json:"captcha_validated"`
}

// CompleteThreeDRequest is the body of a 3DS completion call
type CompleteThreeDRequest struct {
	PaRes string `json:"pares"`
	MD    string `json:"md"`
}

// ErrorResponse is written for every failed call
type ErrorResponse struct {
	Details map[string]interface{} `json:"details,omitempty"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
}

// RegisterRoutes mounts the purchase routes on mux
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/purchases/{session_id}/process", h.Process)
	mux.HandleFunc("POST /v1/purchases/{session_id}/complete-threed", h.CompleteThreeD)
}

// Process handles POST /v1/purchases/{session_id}/process
func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if !h.decode(w, r, &req) {
		return
	}

	if req.User.IPAddress == "" {
		req.User.IPAddress = middleware.ClientIP(r)
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	result, err := h.service.Process(ctx, purchasesvc.ProcessCommand{
		Payment:            req.Payment,
		User:               req.User,
		SelectedCrossSales: req.SelectedCrossSales,
		SessionID:          r.PathValue("session_id"),
		ReturnURL:          req.ReturnURL,
		CaptchaValidated:   req.CaptchaValidated,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// CompleteThreeD handles POST /v1/purchases/{session_id}/complete-threed
func (h *Handler) CompleteThreeD(w http.ResponseWriter, r *http.Request) {
	var req CompleteThreeDRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx, cancel := h.timeouts.HandlerContext(r.Context())
	defer cancel()

	result, err := h.service.CompleteThreeD(ctx, purchasesvc.CompleteThreeDCommand{
		SessionID: r.PathValue("session_id"),
		PaRes:     req.PaRes,
		MD:        req.MD,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.logger.Info("invalid request body",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		resp := ErrorResponse{
			Code:    string(domain.ErrorCodeValidationFailed),
			Message: "invalid request body",
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			resp.Details = map[string]interface{}{"field": typeErr.Field}
		}
		h.writeJSON(w, http.StatusBadRequest, resp)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	resp := ErrorResponse{
		Code:    string(domain.ErrorCodeInternalError),
		Message: domain.ErrInternalError.Message,
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = string(domainErr.Code)
		resp.Message = domainErr.Message
		if status < http.StatusInternalServerError {
			resp.Details = domainErr.Details
		}
	} else if errors.Is(err, context.DeadlineExceeded) {
		resp.Message = "purchase timed out"
	}

	fields := []zap.Field{
		zap.String("path", r.URL.Path),
		zap.String("session_id", r.PathValue("session_id")),
		zap.String("code", resp.Code),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Purchase request failed", fields...)
	} else {
		h.logger.Info("Purchase request rejected", fields...)
	}

	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// StatusFor maps a purchase error to an HTTP status
func StatusFor(err error) int {
	switch domain.GetErrorCode(err) {
	case domain.ErrorCodeValidationFailed,
		domain.ErrorCodeValidationAmountInvalid,
		domain.ErrorCodeValidationMissingField:
		return http.StatusBadRequest
	case domain.ErrorCodePurchaseNotFound:
		return http.StatusNotFound
	case domain.ErrorCodePurchaseAlreadyProcessed,
		domain.ErrorCodePurchaseInvalidState,
		domain.ErrorCodePurchaseDuplicateRequest:
		return http.StatusConflict
	case domain.ErrorCodePurchaseBlacklistLimit:
		return http.StatusForbidden
	case domain.ErrorCodePaymentNotSupported,
		domain.ErrorCodeBillerUnavailable,
		domain.ErrorCodeCascadeExhausted:
		return http.StatusUnprocessableEntity
	case domain.ErrorCodeBillerMappingFailed,
		domain.ErrorCodeTransactionBackend:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
