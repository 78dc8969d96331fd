package server

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"kmlstore/pkg/log"
)

// deleteKML handles DELETE /admin/:id. The object is removed before the
// metadata record so a record pointing at a missing object never outlives
// the request.
func (s *Server) deleteKML(c echo.Context) error {
	if err := checkRequestContentType(c); err != nil {
		return err
	}

	id := c.Param("id")
	ctx := c.Request().Context()

	doc, err := s.metadata.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := verifyPermissions(doc, c.FormValue("admin_id")); err != nil {
		return err
	}

	if err := s.objects.Delete(ctx, doc.FileKey); err != nil {
		return err
	}
	if err := s.metadata.Delete(ctx, id); err != nil {
		return err
	}

	log.Info().Str("kml_id", id).Msg("KML deleted")
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"id":      id,
		"message": fmt.Sprintf("The kml %s was successfully deleted.", id),
	})
}
