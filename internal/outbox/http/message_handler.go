// Package http provides HTTP handlers for appending to and inspecting the outbox.
package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/outbox/internal/httputil"
	"github.com/allisson/outbox/internal/outbox/http/dto"
	outboxUseCase "github.com/allisson/outbox/internal/outbox/usecase"
	customValidation "github.com/allisson/outbox/internal/validation"
)

// MessageHandler handles HTTP requests for outbox messages.
type MessageHandler struct {
	producer outboxUseCase.ProducerUseCase
	logger   *slog.Logger
}

// NewMessageHandler creates a new message handler with required dependencies.
func NewMessageHandler(producer outboxUseCase.ProducerUseCase, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{
		producer: producer,
		logger:   logger,
	}
}

// SendHandler appends a message to the outbox.
// POST /v1/messages - Returns 201 Created with the stored message.
func (h *MessageHandler) SendHandler(c *gin.Context) {
	var req dto.SendMessageRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	msg, err := h.producer.Send(c.Request.Context(), req.Topic, req.Payload)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, dto.MapMessageToResponse(msg))
}

// GetHandler returns a message and its delivery state.
// GET /v1/messages/:id - Returns 200 OK, or 404 when the id is unknown.
func (h *MessageHandler) GetHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid message id: must be a UUID"), h.logger)
		return
	}

	msg, err := h.producer.Get(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapMessageToResponse(msg))
}

// ListPendingHandler lists undelivered messages oldest first.
// GET /v1/messages?offset=0&limit=50
func (h *MessageHandler) ListPendingHandler(c *gin.Context) {
	offset, limit, err := httputil.ParsePagination(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	messages, err := h.producer.ListPending(c.Request.Context(), offset, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapMessagesToListResponse(messages))
}

// StatsHandler reports the size of the undelivered backlog.
// GET /v1/stats
func (h *MessageHandler) StatsHandler(c *gin.Context) {
	pending, err := h.producer.CountPending(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.StatsResponse{Pending: pending})
}
