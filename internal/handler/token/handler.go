package token

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue-api/internal/handler"
	"github.com/jwalitptl/clinic-queue-api/internal/middleware"
	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/service/token"
)

type Handler struct {
	service *token.Service
}

func NewHandler(service *token.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	tokens := r.Group("/tokens")
	{
		tokens.GET("/queue", h.GetQueue)
		tokens.GET("/next", h.GetNextPatient)
		tokens.POST("/batch-status", h.BatchUpdateStatus)
		tokens.GET("/:id", h.GetToken)
		tokens.PATCH("/:id/status", h.UpdateStatus)
		tokens.POST("/:id/start", h.StartConsultation)
		tokens.POST("/:id/complete", h.CompleteConsultation)
		tokens.POST("/:id/no-show", h.MarkNoShow)
		tokens.POST("/:id/skip", h.Skip)
		tokens.POST("/:id/video/join", h.JoinVideo)
		tokens.POST("/:id/video/close", h.CloseVideo)
	}
}

func (h *Handler) GetToken(c *gin.Context) {
	doctorID, tokenID, ok := h.ownedToken(c)
	if !ok {
		return
	}

	t, err := h.service.Get(c.Request.Context(), doctorID, tokenID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

func (h *Handler) GetQueue(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	date, err := queryDate(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date format"))
		return
	}

	queue, err := h.service.Queue(c.Request.Context(), doctorID, date)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(queue))
}

func (h *Handler) GetNextPatient(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	date, err := queryDate(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date format"))
		return
	}

	next, err := h.service.NextPatient(c.Request.Context(), doctorID, date)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(next))
}

func (h *Handler) StartConsultation(c *gin.Context) {
	h.transition(c, h.service.StartConsultation)
}

func (h *Handler) MarkNoShow(c *gin.Context) {
	h.transition(c, h.service.MarkNoShow)
}

func (h *Handler) Skip(c *gin.Context) {
	h.transition(c, h.service.Skip)
}

func (h *Handler) JoinVideo(c *gin.Context) {
	h.transition(c, h.service.JoinVideo)
}

func (h *Handler) CloseVideo(c *gin.Context) {
	h.transition(c, h.service.CloseVideo)
}

func (h *Handler) CompleteConsultation(c *gin.Context) {
	doctorID, tokenID, ok := h.ownedToken(c)
	if !ok {
		return
	}

	var req model.CompleteConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	t, err := h.service.CompleteConsultation(c.Request.Context(), doctorID, tokenID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	doctorID, tokenID, ok := h.ownedToken(c)
	if !ok {
		return
	}

	var req struct {
		Status model.TokenStatus `json:"status" binding:"required"`
		Reason string            `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	t, err := h.service.UpdateStatus(c.Request.Context(), doctorID, tokenID, req.Status, req.Reason)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

func (h *Handler) BatchUpdateStatus(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	var req model.BatchUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	result, err := h.service.BatchUpdateStatus(c.Request.Context(), doctorID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(result))
}

func (h *Handler) transition(c *gin.Context, op func(ctx context.Context, doctorID, tokenID uuid.UUID) (*model.Token, error)) {
	doctorID, tokenID, ok := h.ownedToken(c)
	if !ok {
		return
	}

	t, err := op(c.Request.Context(), doctorID, tokenID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(t))
}

func (h *Handler) ownedToken(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	doctorID, ok := actor(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}

	tokenID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid token ID"))
		return uuid.Nil, uuid.Nil, false
	}
	return doctorID, tokenID, true
}

func actor(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing actor identity"))
		return uuid.Nil, false
	}
	return id, true
}

// queryDate parses the optional date query parameter, defaulting to today.
func queryDate(c *gin.Context) (time.Time, error) {
	raw := c.Query("date")
	if raw == "" {
		return time.Now().UTC(), nil
	}
	return time.Parse("2006-01-02", raw)
}
