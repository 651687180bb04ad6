package messaging

import (
	"context"
	"errors"
	"net/http"

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
	group := api.Group("", auth.RequireRole("admin", "clinician", "front-desk"))
	group.GET("/threads", h.ListThreads)
	group.GET("/threads/:id", h.GetThread)
	group.POST("/threads", h.CreateThread)
	group.GET("/threads/:id/messages", h.ListMessages)
	group.POST("/messages", h.CreateMessage)
	group.GET("/messages/unread-count", h.UnreadCount)
	group.GET("/messages/:id", h.GetMessage)
	group.POST("/messages/:id/queue", h.Queue)
	group.POST("/messages/:id/delivered", h.MarkDelivered)
	group.POST("/messages/:id/read", h.MarkRead)
	group.POST("/messages/:id/bounce", h.MarkBounced)
	group.POST("/messages/:id/cancel", h.Cancel)
}

func messageError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNotRecipient):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrPatientInactive):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	return echo.NewHTTPError(http.StatusBadRequest, err.Error())
}

func (h *Handler) CreateThread(c echo.Context) error {
	var t Thread
	if err := c.Bind(&t); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if t.CreatedBy == "" {
		t.CreatedBy = auth.UserIDFromContext(c.Request().Context())
	}
	if err := h.svc.CreateThread(c.Request().Context(), &t); err != nil {
		return messageError(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) GetThread(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	t, err := h.svc.GetThread(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "thread not found")
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) ListThreads(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListThreads(c.Request().Context(),
		db.ExtractFilters(c), c.QueryParam("sort"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) CreateMessage(c echo.Context) error {
	var m Message
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if m.Sender == "" {
		m.Sender = auth.UserIDFromContext(c.Request().Context())
	}
	if err := h.svc.CreateMessage(c.Request().Context(), &m); err != nil {
		return messageError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMessage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.GetMessage(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "message not found")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMessages(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByThread(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Queue(c echo.Context) error {
	return h.transition(c, h.svc.Queue)
}

func (h *Handler) MarkDelivered(c echo.Context) error {
	return h.transition(c, h.svc.MarkDelivered)
}

func (h *Handler) MarkRead(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	reader := auth.UserIDFromContext(c.Request().Context())
	m, err := h.svc.MarkRead(c.Request().Context(), id, reader)
	if err != nil {
		return messageError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UnreadCount(c echo.Context) error {
	recipient := c.QueryParam("recipient")
	if recipient == "" {
		recipient = auth.UserIDFromContext(c.Request().Context())
	}
	n, err := h.svc.UnreadCount(c.Request().Context(), recipient)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"unread": n})
}

func (h *Handler) MarkBounced(c echo.Context) error {
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
	m, err := h.svc.MarkBounced(c.Request().Context(), id, body.Reason)
	if err != nil {
		return messageError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.transition(c, h.svc.Cancel)
}

func (h *Handler) transition(c echo.Context, fn func(context.Context, uuid.UUID) (*Message, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := fn(c.Request().Context(), id)
	if err != nil {
		return messageError(err)
	}
	return c.JSON(http.StatusOK, m)
}
