package server

import (
	"crypto/subtle"
	"io"
	"mime"

	"github.com/labstack/echo/v4"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/kml"
	"kmlstore/pkg/log"
	"kmlstore/pkg/models"
)

// checkRequestContentType rejects requests whose declared content type is
// not multipart/form-data.
func checkRequestContentType(c echo.Context) error {
	mediaType, _, err := mime.ParseMediaType(c.Request().Header.Get(echo.HeaderContentType))
	if err != nil || mediaType != echo.MIMEMultipartForm {
		log.Error().Str("content_type", mediaType).Msg("Unsupported Media Type")
		return apperr.New(apperr.KindUnsupportedMediaType, "Unsupported Media Type")
	}
	return nil
}

// readKMLFile extracts the kml file part and runs it through the
// validation pipeline. The declared request length has been checked by
// the handler before any form access buffered the body.
func (s *Server) readKMLFile(c echo.Context) (*kml.Result, error) {
	fileHeader, err := c.FormFile("kml")
	if err != nil {
		log.Error().Err(err).Msg("KML file missing in request")
		return nil, apperr.New(apperr.KindBadRequest, "KML file missing in request")
	}

	mediaType, params, err := mime.ParseMediaType(fileHeader.Header.Get(echo.HeaderContentType))
	if err != nil || mediaType != models.ContentType {
		log.Error().Str("content_type", mediaType).Msg("Unsupported KML media type")
		return nil, apperr.New(apperr.KindUnsupportedMediaType, "Unsupported KML media type")
	}

	src, err := fileHeader.Open()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "Could not read KML file", err)
	}
	defer func() {
		if err := src.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close uploaded file")
		}
	}()

	raw, err := io.ReadAll(src)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, "Could not read KML file", err)
	}

	return s.validator.Validate(raw, params["charset"])
}

// verifyPermissions compares the supplied admin token against the record.
// An empty token and a wrong token fail identically so the response never
// hints which one it was.
func verifyPermissions(doc *models.Document, adminID string) error {
	if adminID == "" ||
		subtle.ConstantTimeCompare([]byte(doc.AdminID), []byte(adminID)) != 1 {
		log.Error().Str("kml_id", doc.ID).Msg("Permission denied for kml")
		return apperr.New(apperr.KindForbidden, "Permission denied")
	}
	return nil
}
