package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/log"
	"kmlstore/pkg/models"
)

// createKML handles POST /admin. The object is written before the
// metadata record so a record never references a missing object. Should
// the metadata write fail afterwards the orphaned object stays behind;
// this is logged, not compensated.
func (s *Server) createKML(c echo.Context) error {
	if err := checkRequestContentType(c); err != nil {
		return err
	}
	// Reading any form value makes echo buffer the whole body, so the
	// declared length is checked first.
	if err := s.validator.CheckDeclaredSize(c.Request().ContentLength); err != nil {
		return err
	}

	author := c.FormValue("author")
	if author == "" {
		log.Error().Msg("Author field missing in request")
		return apperr.New(apperr.KindBadRequest, "Author field missing in request")
	}

	authorVersion := c.FormValue("author_version")
	if authorVersion == "" {
		authorVersion = s.cfg.KML.DefaultAuthorVersion
	}

	result, err := s.readKMLFile(c)
	if err != nil {
		return err
	}

	now := models.Timestamp(time.Now())
	doc := &models.Document{
		ID:            models.NewID(),
		AdminID:       models.NewAdminToken(),
		Created:       now,
		Updated:       now,
		Length:        int64(len(result.Gzipped)),
		Empty:         result.Empty,
		Author:        author,
		AuthorVersion: authorVersion,
		Encoding:      models.ContentEncoding,
		ContentType:   models.ContentType,
	}
	doc.FileKey = models.FileKeyFor(doc.ID)

	ctx := c.Request().Context()
	if err := s.objects.Put(ctx, doc.FileKey, result.Gzipped); err != nil {
		return err
	}
	if err := s.metadata.Create(ctx, doc); err != nil {
		// The object is already stored; it stays orphaned until cleaned
		// up out of band.
		log.Error().Str("file_key", doc.FileKey).Msg("Metadata create failed after object write, object orphaned")
		return err
	}

	log.Info().Str("kml_id", doc.ID).Bool("empty", doc.Empty).Msg("KML created")
	return c.JSON(http.StatusCreated, s.toResponse(c, doc, true))
}
