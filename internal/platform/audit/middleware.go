package audit

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/practicehq/practice/internal/platform/auth"
	"github.com/practicehq/practice/internal/platform/db"
)

var methodActions = map[string]string{
	"GET":    "read",
	"POST":   "create",
	"PUT":    "update",
	"PATCH":  "update",
	"DELETE": "delete",
}

// Middleware records an audit event for every API request after the
// handler has run, so the recorded status code reflects the outcome.
func Middleware(l *Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			action, ok := methodActions[c.Request().Method]
			if !ok {
				return err
			}
			// Lifecycle routes like POST /claims/:id/submit record the
			// verb itself rather than a generic "create".
			if c.Request().Method == "POST" {
				if verb := trailingVerb(c.Path()); verb != "" {
					action = verb
				}
			}

			status := c.Response().Status
			if err != nil {
				if he, isHTTP := err.(*echo.HTTPError); isHTTP {
					status = he.Code
				}
			}

			ctx := c.Request().Context()
			rid, _ := c.Get("request_id").(string)
			resource, resourceID := splitResourcePath(c.Path(), c.ParamValues())

			l.Record(Event{
				TenantID:   db.TenantFromContext(ctx),
				UserID:     auth.UserIDFromContext(ctx),
				Role:       strings.Join(auth.RolesFromContext(ctx), ","),
				Action:     action,
				Resource:   resource,
				ResourceID: resourceID,
				PatientID:  patientRef(resource, resourceID, c.QueryParam("patient")),
				RequestID:  rid,
				IPAddress:  c.RealIP(),
				UserAgent:  c.Request().UserAgent(),
				StatusCode: status,
			})
			return err
		}
	}
}

// trailingVerb returns the final static segment of routes shaped like
// /resource/:id/<verb>, or "" when the route does not end in one.
func trailingVerb(routePath string) string {
	parts := strings.Split(strings.Trim(routePath, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	last := parts[len(parts)-1]
	if strings.HasPrefix(last, ":") || !strings.HasPrefix(parts[len(parts)-2], ":") {
		return ""
	}
	return last
}

// patientRef derives the patient an event touches. Patient-scoped routes
// carry it as the bound id; list endpoints filtered by patient carry it
// as a query parameter.
func patientRef(resource, resourceID, patientParam string) string {
	if resource == "patients" {
		return resourceID
	}
	return patientParam
}

// splitResourcePath extracts a resource name like "patients" from a route
// such as /api/v1/patients/:id, plus the bound id param when present.
func splitResourcePath(routePath string, paramValues []string) (string, string) {
	parts := strings.Split(strings.Trim(routePath, "/"), "/")
	resource := ""
	for _, p := range parts {
		if p == "" || p == "api" || strings.HasPrefix(p, "v") && len(p) <= 3 {
			continue
		}
		if strings.HasPrefix(p, ":") {
			continue
		}
		resource = p
		break
	}
	resourceID := ""
	if len(paramValues) > 0 {
		resourceID = paramValues[0]
	}
	return resource, resourceID
}
