package gateway

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/onixgrid/bapbridge/internal/auth"
	"github.com/onixgrid/bapbridge/internal/correlation"
	"github.com/onixgrid/bapbridge/internal/normalize"
	"github.com/onixgrid/bapbridge/internal/protocol"
)

// Handlers exposes the synchronous action endpoints.
type Handlers struct {
	service *Service
	log     *slog.Logger
}

func NewHandlers(service *Service, log *slog.Logger) *Handlers {
	return &Handlers{service: service, log: log}
}

// Register mounts one POST route per dispatchable action.
func (h *Handlers) Register(r gin.IRoutes) {
	for _, action := range protocol.Actions {
		r.POST("/"+string(action), h.handle(action))
	}
}

func (h *Handlers) handle(action protocol.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req normalize.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, &APIError{
				Status:  http.StatusBadRequest,
				Code:    CodeValidation,
				Message: "invalid JSON body: " + err.Error(),
			})
			return
		}

		result, txnID, err := h.service.Execute(c.Request.Context(), action, &req, auth.Subject(c))
		if err != nil {
			h.log.Debug("action failed", "action", action, "transaction_id", txnID, "error", err)
			writeError(c, classify(err))
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":        true,
			"transaction_id": txnID,
			"data": gin.H{
				"context": result.Context,
				"message": result.Message,
			},
		})
	}
}

// classify maps errors from the normalizer and correlation store onto
// APIErrors. Errors already classified pass through unchanged.
func classify(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var ve *normalize.ValidationError
	if errors.As(err, &ve) {
		return &APIError{Status: http.StatusBadRequest, Code: CodeValidation, Message: ve.Msg}
	}
	if errors.Is(err, normalize.ErrUnauthorized) {
		return &APIError{Status: http.StatusUnauthorized, Code: CodeUnauthorized, Message: err.Error()}
	}
	if errors.Is(err, normalize.ErrNoBuyerProfile) {
		return &APIError{Status: http.StatusForbidden, Code: CodeNoBuyerProfile, Message: err.Error()}
	}
	var le *normalize.LookupError
	if errors.As(err, &le) {
		return &APIError{Status: http.StatusInternalServerError, Code: CodeProfileLookup, Message: le.Error()}
	}

	if errors.Is(err, correlation.ErrDuplicateTransaction) {
		return &APIError{Status: http.StatusConflict, Code: CodeDuplicate, Message: err.Error()}
	}
	var te *correlation.TimeoutError
	if errors.As(err, &te) {
		return &APIError{Status: http.StatusGatewayTimeout, Code: CodeTimeout, Message: te.Error()}
	}

	return &APIError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: err.Error()}
}

func writeError(c *gin.Context, apiErr *APIError) {
	body := gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	}
	if len(apiErr.Details) > 0 {
		body["details"] = apiErr.Details
	}
	c.JSON(apiErr.Status, gin.H{
		"success": false,
		"error":   body,
	})
}
