package models

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
)

const (
	// ContentType is the only media type accepted for uploaded documents.
	ContentType = "application/vnd.google-earth.kml+xml"

	// ContentEncoding is the encoding of the stored document body.
	ContentEncoding = "gzip"

	// timestampFormat is ISO-8601 with millisecond precision in UTC.
	timestampFormat = "2006-01-02T15:04:05.000-07:00"
)

// Document is the metadata record kept for every stored KML. The body
// itself lives gzipped in the object store under FileKey.
type Document struct {
	ID            string `bson:"_id" json:"id"`
	AdminID       string `bson:"admin_id" json:"admin_id"`
	FileKey       string `bson:"file_key" json:"file_key"`
	Created       string `bson:"created" json:"created"`
	Updated       string `bson:"updated" json:"updated"`
	Length        int64  `bson:"length" json:"length"`
	Empty         bool   `bson:"empty" json:"empty"`
	Author        string `bson:"author" json:"author"`
	AuthorVersion string `bson:"author_version" json:"author_version"`
	Encoding      string `bson:"encoding" json:"encoding"`
	ContentType   string `bson:"content_type" json:"content_type"`
}

// DocumentUpdate carries the mutable fields rewritten on a successful PUT.
// ID, AdminID, FileKey, Author and Created are immutable after creation.
type DocumentUpdate struct {
	Updated       string
	Length        int64
	Empty         bool
	AuthorVersion string
}

// NewID returns a URL-safe unpadded identifier derived from a random
// UUID, 22 characters long. Uniqueness is probabilistic; collisions are
// not checked before insert.
func NewID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}

// NewAdminToken returns a fresh ownership token. Same alphabet and length
// as document IDs but drawn independently.
func NewAdminToken() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf[:])
}

// FileKeyFor derives the object store key of a document from its ID.
func FileKeyFor(id string) string {
	return id + ".kml"
}

// Timestamp formats t for storage and the wire.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}
