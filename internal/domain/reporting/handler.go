package reporting

import (
	"bytes"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/practicehq/practice/internal/platform/auth"
	"github.com/practicehq/practice/internal/platform/export"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	group := api.Group("/reports", auth.RequireRole("admin", "billing"))
	group.GET("/revenue", h.Revenue)
	group.GET("/claims-by-status", h.ClaimsByStatus)
	group.GET("/claims-aging", h.ClaimsAging)
	group.GET("/patient-growth", h.PatientGrowth)
	group.GET("/appointment-volume", h.AppointmentVolume)
	group.GET("/no-show-rate", h.NoShowRate)
	group.GET("/referral-conversion", h.ReferralConversion)
}

func parsePeriod(c echo.Context) (Period, error) {
	var p Period
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, "invalid from date, want YYYY-MM-DD")
		}
		p.From = t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return p, echo.NewHTTPError(http.StatusBadRequest, "invalid to date, want YYYY-MM-DD")
		}
		p.To = t
	}
	return p, nil
}

func wantsRefresh(c echo.Context) bool {
	return c.QueryParam("refresh") == "1" || c.QueryParam("refresh") == "true"
}

func wantsXLSX(c echo.Context) bool {
	return c.QueryParam("format") == "xlsx"
}

// respond writes either JSON or a single-sheet workbook depending on
// the format query param.
func respond(c echo.Context, name string, headers []string, data interface{}, rows [][]interface{}) error {
	if !wantsXLSX(c) {
		return c.JSON(http.StatusOK, data)
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, export.Sheet{Name: name, Headers: headers, Rows: rows}); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+name+`.xlsx"`)
	return c.Blob(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *Handler) Revenue(c echo.Context) error {
	p, err := parsePeriod(c)
	if err != nil {
		return err
	}
	data, err := h.svc.RevenueByMonth(c.Request().Context(), p, wantsRefresh(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	rows := make([][]interface{}, 0, len(data))
	for _, r := range data {
		rows = append(rows, []interface{}{r.Month, r.ClaimCount, r.Billed, r.Allowed, r.Collected})
	}
	return respond(c, "revenue", []string{"Month", "Claims", "Billed", "Allowed", "Collected"}, data, rows)
}

func (h *Handler) ClaimsByStatus(c echo.Context) error {
	data, err := h.svc.ClaimsByStatus(c.Request().Context(), wantsRefresh(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	rows := make([][]interface{}, 0, len(data))
	for _, r := range data {
		rows = append(rows, []interface{}{r.Status, r.ClaimCount, r.Billed})
	}
	return respond(c, "claims-by-status", []string{"Status", "Claims", "Billed"}, data, rows)
}

func (h *Handler) PatientGrowth(c echo.Context) error {
	p, err := parsePeriod(c)
	if err != nil {
		return err
	}
	data, err := h.svc.PatientGrowth(c.Request().Context(), p, wantsRefresh(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	rows := make([][]interface{}, 0, len(data))
	for _, r := range data {
		rows = append(rows, []interface{}{r.Month, r.NewPatients})
	}
	return respond(c, "patient-growth", []string{"Month", "New Patients"}, data, rows)
}

func (h *Handler) ClaimsAging(c echo.Context) error {
	data, err := h.svc.ClaimsAging(c.Request().Context(), wantsRefresh(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	rows := make([][]interface{}, 0, len(data))
	for _, r := range data {
		rows = append(rows, []interface{}{r.Bucket, r.ClaimCount, r.Balance})
	}
	return respond(c, "claims-aging", []string{"Bucket", "Claims", "Open Balance"}, data, rows)
}

func (h *Handler) AppointmentVolume(c echo.Context) error {
	p, err := parsePeriod(c)
	if err != nil {
		return err
	}
	data, err := h.svc.AppointmentVolume(c.Request().Context(), p, wantsRefresh(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	rows := make([][]interface{}, 0, len(data))
	for _, r := range data {
		rows = append(rows, []interface{}{r.ProviderName, r.Scheduled, r.Completed, r.Cancelled, r.NoShows})
	}
	return respond(c, "appointment-volume",
		[]string{"Provider", "Scheduled", "Completed", "Cancelled", "No-shows"}, data, rows)
}

func (h *Handler) NoShowRate(c echo.Context) error {
	p, err := parsePeriod(c)
	if err != nil {
		return err
	}
	data, err := h.svc.NoShowRate(c.Request().Context(), p, wantsRefresh(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	rows := make([][]interface{}, 0, len(data))
	for _, r := range data {
		rows = append(rows, []interface{}{r.Month, r.Total, r.NoShows, r.RatePct})
	}
	return respond(c, "no-show-rate", []string{"Month", "Visits", "No-shows", "Rate %"}, data, rows)
}

func (h *Handler) ReferralConversion(c echo.Context) error {
	p, err := parsePeriod(c)
	if err != nil {
		return err
	}
	data, err := h.svc.ReferralConversion(c.Request().Context(), p, wantsRefresh(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	rows := make([][]interface{}, 0, len(data))
	for _, r := range data {
		rows = append(rows, []interface{}{r.Specialty, r.Sent, r.Accepted, r.Completed, r.RatePct})
	}
	return respond(c, "referral-conversion",
		[]string{"Specialty", "Sent", "Accepted", "Completed", "Completion %"}, data, rows)
}
