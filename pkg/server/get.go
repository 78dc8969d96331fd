package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/log"
)

// getKML handles GET /admin/:id. The admin token is never part of this
// response, anyone knowing the id may read the metadata.
func (s *Server) getKML(c echo.Context) error {
	id := c.Param("id")

	doc, err := s.metadata.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, s.toResponse(c, doc, false))
}

// getKMLByAdminID handles GET /admin?admin_id=<token>, the owner-side
// lookup. The response includes the admin token the caller already holds.
func (s *Server) getKMLByAdminID(c echo.Context) error {
	adminID := c.QueryParam("admin_id")
	if adminID == "" {
		log.Error().Msg("admin_id query parameter missing")
		return apperr.New(apperr.KindBadRequest, "admin_id query parameter is required")
	}

	doc, err := s.metadata.GetByAdminID(c.Request().Context(), adminID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, s.toResponse(c, doc, true))
}
