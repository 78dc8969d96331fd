package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// checker answers health probes with the running version. It bypasses the
// origin check and gets no CORS or cache headers, the frontend proxy
// decides how to cache it.
func (s *Server) checker(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"message": "OK",
		"version": s.version,
	})
}
