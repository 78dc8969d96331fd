package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/config"
	"kmlstore/pkg/models"
	"kmlstore/pkg/origin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const (
	validKML   = `<kml xmlns="http://www.opengis.net/kml/2.2"><Document><name>test</name></Document></kml>`
	emptyKML   = `<kml></kml>`
	invalidKML = `<kml><Document></kml>`
)

func upstreamErr() error {
	return apperr.New(apperr.KindUpstreamUnavailable, "Metadata store not reachable")
}

// RouteTestSuite is the shared fixture: a server over mock gateways with
// a restrictive allow-list.
type RouteTestSuite struct {
	suite.Suite
	server   *Server
	objects  *MockObjectStore
	metadata *MockMetadataStore
}

func (s *RouteTestSuite) SetupTest() {
	cfg := &config.Config{}
	cfg.Server.AllowedDomains = []string{`map\.geo\.example\.ch`, `https://map\.geo\.example\.ch`}
	cfg.Server.CacheControl = config.NoCache
	cfg.Server.CacheControl4xx = "public, max-age=3600"
	cfg.Storage.HostURL = "https://public.example.ch/kml/files"
	cfg.KML.MaxSize = 2 * 1024 * 1024
	cfg.KML.DefaultAuthorVersion = "0.0.0"

	authorizer, err := origin.New(cfg.Server.AllowedDomains)
	s.Require().NoError(err)

	s.objects = NewMockObjectStore()
	s.metadata = NewMockMetadataStore()
	s.server = NewServer(cfg, "test-v1.0.0", authorizer, s.objects, s.metadata)
	s.server.setupRoutes()
}

// request runs a full round trip through the echo instance, middleware
// included.
func (s *RouteTestSuite) request(method, target string, body *bytes.Buffer, headers map[string]string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, target, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	s.server.echo.ServeHTTP(rec, req)
	return rec
}

func (s *RouteTestSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var payload map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

// multipartBody builds a multipart/form-data body with optional kml file
// part and form fields. Returns the body and its content type.
func multipartBody(kmlData string, fields map[string]string) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, value := range fields {
		_ = mw.WriteField(name, value)
	}
	if kmlData != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", `form-data; name="kml"; filename="kml.xml"`)
		header.Set("Content-Type", models.ContentType)
		part, _ := mw.CreatePart(header)
		_, _ = part.Write([]byte(kmlData))
	}
	_ = mw.Close()
	return body, mw.FormDataContentType()
}

// createDocument seeds a record plus object through the real create
// handler and returns the response payload.
func (s *RouteTestSuite) createDocument(kmlData string) map[string]any {
	body, contentType := multipartBody(kmlData, map[string]string{"author": "test"})
	headers := map[string]string{"Origin": "map.geo.example.ch", "Content-Type": contentType}
	rec := s.request(http.MethodPost, "/admin", body, headers)
	s.Require().Equal(http.StatusCreated, rec.Code, "failed to create initial kml: %s", rec.Body.String())
	return s.decode(rec)
}

func (s *RouteTestSuite) assertError(rec *httptest.ResponseRecorder, status int, message string) {
	s.Equal(status, rec.Code)
	payload := s.decode(rec)
	s.Equal(false, payload["success"])
	errBody, ok := payload["error"].(map[string]any)
	s.Require().True(ok, "missing error body: %s", rec.Body.String())
	s.Equal(float64(status), errBody["code"])
	if message != "" {
		s.Equal(message, errBody["message"])
	}
}

// seedDocument inserts a record directly into the mock stores, bypassing
// the create handler.
func (s *RouteTestSuite) seedDocument(id, adminID string) *models.Document {
	now := models.Timestamp(time.Now())
	doc := &models.Document{
		ID:            id,
		AdminID:       adminID,
		FileKey:       models.FileKeyFor(id),
		Created:       now,
		Updated:       now,
		Length:        42,
		Empty:         false,
		Author:        "test",
		AuthorVersion: "0.0.0",
		Encoding:      models.ContentEncoding,
		ContentType:   models.ContentType,
	}
	s.metadata.docs[id] = doc
	s.objects.objects[doc.FileKey] = []byte("gzipped")
	return doc
}

func multipartHeaders(contentType string) map[string]string {
	return map[string]string{"Origin": "map.geo.example.ch", "Content-Type": contentType}
}

func adminPath(id string) string {
	return fmt.Sprintf("/admin/%s", id)
}

// countingReader tracks how many body bytes a handler actually consumed.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestServerTimeouts(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.AllowedDomains = []string{`.*`}
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 45 * time.Second

	authorizer, err := origin.New(cfg.Server.AllowedDomains)
	require.NoError(t, err)

	srv := NewServer(cfg, "test", authorizer, NewMockObjectStore(), NewMockMetadataStore())
	srv.setupRoutes()

	assert.Equal(t, 30*time.Second, srv.echo.Server.ReadTimeout)
	assert.Equal(t, 45*time.Second, srv.echo.Server.WriteTimeout)
}
