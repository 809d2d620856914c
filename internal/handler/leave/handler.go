package leave

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue-api/internal/handler"
	"github.com/jwalitptl/clinic-queue-api/internal/middleware"
	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/service/leave"
)

type Handler struct {
	service *leave.Service
}

func NewHandler(service *leave.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the doctor-facing leave routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	leaves := r.Group("/leaves")
	{
		leaves.POST("", h.Submit)
		leaves.GET("", h.ListOwn)
		leaves.GET("/:id", h.Get)
		leaves.POST("/:id/cancel", h.Cancel)
	}
}

// RegisterAdminRoutes mounts the review routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	leaves := r.Group("/leaves")
	{
		leaves.GET("", h.List)
		leaves.POST("/:id/approve", h.Approve)
		leaves.POST("/:id/reject", h.Reject)
	}
}

func (h *Handler) Submit(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	var req model.SubmitLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	created, err := h.service.Submit(c.Request.Context(), doctorID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) Get(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid leave request ID"))
		return
	}

	leaveReq, err := h.service.GetOwned(c.Request.Context(), doctorID, id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(leaveReq))
}

func (h *Handler) ListOwn(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	filters := &model.LeaveFilters{DoctorID: &doctorID}
	if raw := c.Query("status"); raw != "" {
		status := model.LeaveStatus(raw)
		filters.Status = &status
	}

	leaves, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(leaves))
}

func (h *Handler) List(c *gin.Context) {
	filters := &model.LeaveFilters{}
	if raw := c.Query("doctor_id"); raw != "" {
		doctorID, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
			return
		}
		filters.DoctorID = &doctorID
	}
	if raw := c.Query("status"); raw != "" {
		status := model.LeaveStatus(raw)
		filters.Status = &status
	}

	leaves, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(leaves))
}

func (h *Handler) Cancel(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid leave request ID"))
		return
	}

	cancelled, err := h.service.Cancel(c.Request.Context(), doctorID, id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(cancelled))
}

func (h *Handler) Approve(c *gin.Context) {
	id, comment, ok := h.decision(c)
	if !ok {
		return
	}

	approved, affected, err := h.service.Approve(c.Request.Context(), id, comment)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"leave":           approved,
		"affected_tokens": affected,
	}))
}

func (h *Handler) Reject(c *gin.Context) {
	id, comment, ok := h.decision(c)
	if !ok {
		return
	}

	rejected, err := h.service.Reject(c.Request.Context(), id, comment)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(rejected))
}

func (h *Handler) decision(c *gin.Context) (uuid.UUID, string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid leave request ID"))
		return uuid.Nil, "", false
	}

	var req model.DecideLeaveRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return uuid.Nil, "", false
	}
	return id, req.Comment, true
}

func actor(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing actor identity"))
		return uuid.Nil, false
	}
	return id, true
}
