package http

import (
	"errors"
	"net/http"

	"sigqueue/internal/domain"
	"sigqueue/internal/usecase"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type registerRequest struct {
	PubKey string `json:"pubKey"`
}

type submitRequest struct {
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok", "store": s.cfg.StoreMode}
	if s.store != nil {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			status = http.StatusServiceUnavailable
			body["status"] = "unavailable"
		}
	}
	c.JSON(status, body)
}

func (s *Server) handleRegister(c *gin.Context) {
	accountID := c.Param("account_id")
	if !s.enforceRateLimit(c, routeRegister, accountID) {
		return
	}
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if err := s.admission.Register(c.Request.Context(), accountID, req.PubKey); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleSubmit(c *gin.Context) {
	accountID := c.Param("account_id")
	if !s.enforceRateLimit(c, routeSubmit, accountID) {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	err := s.admission.Submit(c.Request.Context(), usecase.SubmitRequest{
		AccountID:     accountID,
		TransactionID: c.Param("transaction_id"),
		Payload:       req.Payload,
		Signature:     req.Signature,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleStatus(c *gin.Context) {
	accountID := c.Param("account_id")
	if !s.enforceRateLimit(c, routeStatus, accountID) {
		return
	}
	record, err := s.admission.Status(c.Request.Context(), accountID, c.Param("transaction_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, record)
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = http.StatusBadRequest, "INVALID_INPUT"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrAlreadyComplete):
		status, code = http.StatusConflict, "ALREADY_COMPLETE"
	case errors.Is(err, domain.ErrTransactionConflict):
		status, code = http.StatusConflict, "TRANSACTION_CONFLICT"
	case errors.Is(err, domain.ErrPolicyUnavailable):
		status, code = http.StatusServiceUnavailable, "POLICY_UNAVAILABLE"
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		// Store details stay in the log.
		writeErrorCode(c, status, code, http.StatusText(status))
		return
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
