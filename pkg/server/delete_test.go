package server

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/suite"

	"kmlstore/pkg/models"
)

type DeleteTestSuite struct {
	RouteTestSuite
}

func TestDeleteTestSuite(t *testing.T) {
	suite.Run(t, new(DeleteTestSuite))
}

func (s *DeleteTestSuite) TestDeleteSuccess() {
	created := s.createDocument(validKML)
	id := created["id"].(string)
	adminID := created["admin_id"].(string)

	body, contentType := multipartBody("", map[string]string{"admin_id": adminID})
	rec := s.request(http.MethodDelete, adminPath(id), body, multipartHeaders(contentType))

	s.Equal(http.StatusOK, rec.Code, rec.Body.String())
	payload := s.decode(rec)
	s.Equal(true, payload["success"])
	s.Equal(id, payload["id"])
	s.Contains(payload["message"], "successfully deleted")

	// Both the object and the record are gone.
	s.NotContains(s.objects.objects, models.FileKeyFor(id))
	rec = s.request(http.MethodGet, adminPath(id), nil, map[string]string{"Origin": "map.geo.example.ch"})
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *DeleteTestSuite) TestDeleteTwice() {
	created := s.createDocument(validKML)
	id := created["id"].(string)
	adminID := created["admin_id"].(string)

	body, contentType := multipartBody("", map[string]string{"admin_id": adminID})
	rec := s.request(http.MethodDelete, adminPath(id), body, multipartHeaders(contentType))
	s.Equal(http.StatusOK, rec.Code)

	// The second delete is a clean 404, not a server error.
	body, contentType = multipartBody("", map[string]string{"admin_id": adminID})
	rec = s.request(http.MethodDelete, adminPath(id), body, multipartHeaders(contentType))
	s.assertError(rec, http.StatusNotFound, "Could not find "+id+" within the database.")
}

func (s *DeleteTestSuite) TestDeleteWrongAdminID() {
	created := s.createDocument(validKML)
	id := created["id"].(string)

	body, contentType := multipartBody("", map[string]string{"admin_id": "wrongToken"})
	rec := s.request(http.MethodDelete, adminPath(id), body, multipartHeaders(contentType))

	s.assertError(rec, http.StatusForbidden, "Permission denied")
	s.Contains(s.objects.objects, models.FileKeyFor(id))
}

func (s *DeleteTestSuite) TestDeleteUnknownID() {
	body, contentType := multipartBody("", map[string]string{"admin_id": "whatever"})
	rec := s.request(http.MethodDelete, adminPath("unknownId"), body, multipartHeaders(contentType))

	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *DeleteTestSuite) TestDeleteObjectStoreDown() {
	doc := s.seedDocument("someId", "someToken")
	s.objects.failWith = upstreamErr()

	body, contentType := multipartBody("", map[string]string{"admin_id": doc.AdminID})
	rec := s.request(http.MethodDelete, adminPath(doc.ID), body, multipartHeaders(contentType))

	s.Equal(http.StatusBadGateway, rec.Code)
	// The metadata record survives a failed object delete.
	s.Contains(s.metadata.docs, doc.ID)
}
