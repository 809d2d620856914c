package schedule

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-queue-api/internal/handler"
	"github.com/jwalitptl/clinic-queue-api/internal/middleware"
	"github.com/jwalitptl/clinic-queue-api/internal/model"
	"github.com/jwalitptl/clinic-queue-api/internal/service/availability"
)

type Handler struct {
	service *availability.Service
}

func NewHandler(service *availability.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the doctor-facing schedule routes. Availability
// resolution is mounted separately because the booking subsystem reads it
// with patient credentials.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	schedules := r.Group("/schedules")
	{
		schedules.GET("", h.ListSchedules)
		schedules.GET("/:date", h.GetSchedule)
		schedules.PUT("/:date", h.SetAvailability)
		schedules.PUT("", h.SetAvailabilityRange)
	}

	requests := r.Group("/schedule-requests")
	{
		requests.POST("", h.SubmitChangeRequest)
		requests.GET("", h.ListOwnChangeRequests)
	}
}

// RegisterAdminRoutes mounts the change-request review routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	requests := r.Group("/schedule-requests")
	{
		requests.GET("", h.ListChangeRequests)
		requests.POST("/:id/approve", h.ApproveChangeRequest)
		requests.POST("/:id/reject", h.RejectChangeRequest)
	}
}

// RegisterAvailabilityRoutes mounts the read-only resolution endpoint.
func (h *Handler) RegisterAvailabilityRoutes(r *gin.RouterGroup) {
	r.GET("/availability/:doctorId/:date", h.ResolveAvailability)
}

func (h *Handler) ResolveAvailability(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid doctor ID"))
		return
	}

	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date format"))
		return
	}

	resolved, err := h.service.Resolve(c.Request.Context(), doctorID, date)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(resolved))
}

func (h *Handler) GetSchedule(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date format"))
		return
	}

	schedule, err := h.service.GetSchedule(c.Request.Context(), doctorID, date)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(schedule))
}

func (h *Handler) ListSchedules(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	from, to, err := dateRange(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	schedules, err := h.service.ListSchedules(c.Request.Context(), doctorID, from, to)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(schedules))
}

func (h *Handler) SetAvailability(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid date format"))
		return
	}

	var req model.SetScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	schedule, cancelled, err := h.service.SetAvailability(c.Request.Context(), doctorID, date, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{
		"schedule":         schedule,
		"cancelled_tokens": cancelled,
	}))
}

func (h *Handler) SetAvailabilityRange(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	var req struct {
		StartDate string `json:"start_date" binding:"required"`
		EndDate   string `json:"end_date" binding:"required"`
		model.SetScheduleRequest
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	from, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid start_date"))
		return
	}
	to, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid end_date"))
		return
	}

	results, err := h.service.SetAvailabilityRange(c.Request.Context(), doctorID, from, to, &req.SetScheduleRequest)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(results))
}

func (h *Handler) SubmitChangeRequest(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}

	var req struct {
		StartDate   string `json:"start_date" binding:"required"`
		EndDate     string `json:"end_date" binding:"required"`
		IsAvailable bool   `json:"is_available"`
		Reason      string `json:"reason" binding:"required,max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid start_date"))
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid end_date"))
		return
	}

	created, err := h.service.SubmitChangeRequest(c.Request.Context(), doctorID, start, end, req.IsAvailable, req.Reason)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, handler.NewSuccessResponse(created))
}

func (h *Handler) ListOwnChangeRequests(c *gin.Context) {
	doctorID, ok := actor(c)
	if !ok {
		return
	}
	h.listChangeRequests(c, &doctorID)
}

func (h *Handler) ListChangeRequests(c *gin.Context) {
	h.listChangeRequests(c, nil)
}

func (h *Handler) listChangeRequests(c *gin.Context, doctorID *uuid.UUID) {
	var status *model.ChangeRequestStatus
	if raw := c.Query("status"); raw != "" {
		s := model.ChangeRequestStatus(raw)
		status = &s
	}

	requests, err := h.service.ListChangeRequests(c.Request.Context(), doctorID, status)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(requests))
}

func (h *Handler) ApproveChangeRequest(c *gin.Context) {
	h.decideChangeRequest(c, true)
}

func (h *Handler) RejectChangeRequest(c *gin.Context) {
	h.decideChangeRequest(c, false)
}

func (h *Handler) decideChangeRequest(c *gin.Context, approve bool) {
	adminID, ok := actor(c)
	if !ok {
		return
	}

	requestID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse("invalid request ID"))
		return
	}

	var req struct {
		Comment string `json:"comment" binding:"max=500"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, handler.NewErrorResponse(err.Error()))
		return
	}

	decided, err := h.service.DecideChangeRequest(c.Request.Context(), adminID, requestID, approve, req.Comment)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(decided))
}

func actor(c *gin.Context) (uuid.UUID, bool) {
	id, ok := middleware.ActorID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing actor identity"))
		return uuid.Nil, false
	}
	return id, true
}

// dateRange parses from/to query parameters, defaulting to the current
// month.
func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, -1)

	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}
