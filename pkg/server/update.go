package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"kmlstore/pkg/log"
	"kmlstore/pkg/models"
)

// updateKML handles PUT /admin/:id. The record is fetched first so the
// ownership check runs before any content is validated; the object is
// overwritten in place under the original file key.
func (s *Server) updateKML(c echo.Context) error {
	if err := checkRequestContentType(c); err != nil {
		return err
	}
	// Reading any form value makes echo buffer the whole body, so the
	// declared length is checked first.
	if err := s.validator.CheckDeclaredSize(c.Request().ContentLength); err != nil {
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

	result, err := s.readKMLFile(c)
	if err != nil {
		return err
	}

	if err := s.objects.Put(ctx, doc.FileKey, result.Gzipped); err != nil {
		return err
	}

	upd := models.DocumentUpdate{
		Updated:       models.Timestamp(time.Now()),
		Length:        int64(len(result.Gzipped)),
		Empty:         result.Empty,
		AuthorVersion: doc.AuthorVersion,
	}
	if v := c.FormValue("author_version"); v != "" {
		upd.AuthorVersion = v
	}

	updated, err := s.metadata.Update(ctx, id, upd)
	if err != nil {
		return err
	}

	log.Info().Str("kml_id", id).Bool("empty", updated.Empty).Msg("KML updated")
	return c.JSON(http.StatusOK, s.toResponse(c, updated, true))
}
