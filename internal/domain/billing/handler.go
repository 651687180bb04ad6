package billing

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/practicehq/practice/internal/platform/auth"
	"github.com/practicehq/practice/internal/platform/db"
	"github.com/practicehq/practice/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	group := api.Group("", auth.RequireRole("admin", "billing"))
	group.GET("/claims", h.List)
	group.GET("/claims/:id", h.Get)
	group.GET("/claims/:id/lines", h.GetLines)
	group.GET("/claims/:id/payments", h.GetPayments)
	group.GET("/eligibility", h.VerifyCoverage)

	group.POST("/claims", h.Create)
	group.PUT("/claims/:id", h.UpdateDraft)
	group.POST("/claims/:id/lines", h.AddLine)
	group.DELETE("/claims/:id/lines/:lineID", h.RemoveLine)
	group.POST("/claims/:id/submit", h.Submit)
	group.POST("/claims/:id/review", h.MoveToReview)
	group.POST("/claims/:id/reject", h.Reject)
	group.POST("/claims/:id/adjudicate", h.Adjudicate)
	group.POST("/claims/:id/appeal", h.Appeal)
	group.POST("/claims/:id/settle", h.Settle)
	group.POST("/claims/:id/cancel", h.Cancel)
	group.POST("/claims/:id/payments", h.RecordPayment)
}

func claimError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrTerminal),
		errors.Is(err, ErrNotDraft):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrAmountInvariant), errors.Is(err, ErrNoLines),
		errors.Is(err, ErrPatientInactive):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func (h *Handler) Create(c echo.Context) error {
	var cl Claim
	if err := c.Bind(&cl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.Create(c.Request().Context(), &cl); err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "claim not found")
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(),
		db.ExtractFilters(c), c.QueryParam("sort"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateDraft(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Payer         string     `json:"payer"`
		ServiceDate   time.Time  `json:"service_date"`
		AppointmentID *uuid.UUID `json:"appointment_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.UpdateDraft(c.Request().Context(), id, body.Payer, body.ServiceDate, body.AppointmentID)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) GetLines(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	lines, err := h.svc.GetLines(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, lines)
}

func (h *Handler) AddLine(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var line ClaimLine
	if err := c.Bind(&line); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	line.ClaimID = id
	if err := h.svc.AddLine(c.Request().Context(), &line); err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusCreated, line)
}

func (h *Handler) RemoveLine(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	lineID, err := uuid.Parse(c.Param("lineID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid line id")
	}
	if err := h.svc.RemoveLine(c.Request().Context(), id, lineID); err != nil {
		return claimError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Submit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		PatientMRN  string `json:"patient_mrn"`
		ProviderNPI string `json:"provider_npi"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.Submit(c.Request().Context(), id, body.PatientMRN, body.ProviderNPI)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) MoveToReview(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.MoveToReview(c.Request().Context(), id)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) Reject(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.Reject(c.Request().Context(), id, body.Reason)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) Adjudicate(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Outcome       string  `json:"outcome"`
		AllowedAmount float64 `json:"allowed_amount"`
		DenialReason  string  `json:"denial_reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.Adjudicate(c.Request().Context(), id, body.Outcome, body.AllowedAmount, body.DenialReason)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) Appeal(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cl, err := h.svc.Appeal(c.Request().Context(), id, body.Reason)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) Settle(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.Settle(c.Request().Context(), id)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	cl, err := h.svc.Cancel(c.Request().Context(), id)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusOK, cl)
}

func (h *Handler) GetPayments(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	payments, err := h.svc.GetPayments(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, payments)
}

func (h *Handler) RecordPayment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Payment
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ClaimID = id
	cl, err := h.svc.RecordPayment(c.Request().Context(), &p)
	if err != nil {
		return claimError(err)
	}
	return c.JSON(http.StatusCreated, cl)
}

func (h *Handler) VerifyCoverage(c echo.Context) error {
	elig, err := h.svc.VerifyCoverage(c.Request().Context(),
		c.QueryParam("payer"), c.QueryParam("member_id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, elig)
}
