package server

import (
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/models"
)

// kmlResponse is the success envelope for every record-returning
// operation. AdminID is only present when the caller proved ownership or
// just created the record.
type kmlResponse struct {
	Success       bool     `json:"success"`
	ID            string   `json:"id"`
	AdminID       string   `json:"admin_id,omitempty"`
	Created       string   `json:"created"`
	Updated       string   `json:"updated"`
	Empty         bool     `json:"empty"`
	Author        string   `json:"author"`
	AuthorVersion string   `json:"author_version"`
	Links         kmlLinks `json:"links"`
}

type kmlLinks struct {
	Self string `json:"self"`
	KML  string `json:"kml"`
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

func errorEnvelope(code int, message string) errorResponse {
	return errorResponse{Success: false, Error: errorBody{Code: code, Message: message}}
}

// toResponse converts a record into the wire envelope. The conversion is
// the only place where records meet the transport.
func (s *Server) toResponse(c echo.Context, doc *models.Document, withAdminID bool) kmlResponse {
	resp := kmlResponse{
		Success:       true,
		ID:            doc.ID,
		Created:       doc.Created,
		Updated:       doc.Updated,
		Empty:         doc.Empty,
		Author:        doc.Author,
		AuthorVersion: doc.AuthorVersion,
		Links: kmlLinks{
			Self: fmt.Sprintf("%s%s/admin/%s", hostURL(c), s.cfg.Server.RoutePrefix, doc.ID),
			KML:  s.kmlFileLink(c, doc.FileKey),
		},
	}
	if withAdminID {
		resp.AdminID = doc.AdminID
	}
	return resp
}

// kmlFileLink builds the public download link of the stored body, served
// by the storage frontend when one is configured.
func (s *Server) kmlFileLink(c echo.Context, fileKey string) string {
	if s.cfg.Storage.HostURL != "" {
		return fmt.Sprintf("%s/%s", s.cfg.Storage.HostURL, fileKey)
	}
	return fmt.Sprintf("%s/%s", hostURL(c), fileKey)
}

func statusOf(err error) int {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code
	}
	return apperr.HTTPStatus(apperr.KindOf(err))
}
