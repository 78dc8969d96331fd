package server

import (
	"context"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/models"
)

// MockObjectStore implements objstore.Store for testing.
type MockObjectStore struct {
	objects   map[string][]byte
	failWith  error
	putCalls  int
	delCalls  int
	deletedAt []string
}

func NewMockObjectStore() *MockObjectStore {
	return &MockObjectStore{objects: make(map[string][]byte)}
}

func (m *MockObjectStore) Put(_ context.Context, key string, data []byte) error {
	m.putCalls++
	if m.failWith != nil {
		return m.failWith
	}
	m.objects[key] = data
	return nil
}

func (m *MockObjectStore) Get(_ context.Context, key string) ([]byte, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, apperr.New(apperr.KindNotFound, "Object not found")
	}
	return data, nil
}

func (m *MockObjectStore) Delete(_ context.Context, key string) error {
	m.delCalls++
	if m.failWith != nil {
		return m.failWith
	}
	delete(m.objects, key)
	m.deletedAt = append(m.deletedAt, key)
	return nil
}

// MockMetadataStore implements metadata.Store for testing.
type MockMetadataStore struct {
	docs     map[string]*models.Document
	failWith error
}

func NewMockMetadataStore() *MockMetadataStore {
	return &MockMetadataStore{docs: make(map[string]*models.Document)}
}

func (m *MockMetadataStore) Create(_ context.Context, doc *models.Document) error {
	if m.failWith != nil {
		return m.failWith
	}
	clone := *doc
	m.docs[doc.ID] = &clone
	return nil
}

func (m *MockMetadataStore) GetByID(_ context.Context, id string) (*models.Document, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "Could not find %s within the database.", id)
	}
	clone := *doc
	return &clone, nil
}

func (m *MockMetadataStore) GetByAdminID(_ context.Context, adminID string) (*models.Document, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	for _, doc := range m.docs {
		if doc.AdminID == adminID {
			clone := *doc
			return &clone, nil
		}
	}
	return nil, apperr.New(apperr.KindNotFound, "Could not find document")
}

func (m *MockMetadataStore) Update(_ context.Context, id string, upd models.DocumentUpdate) (*models.Document, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	doc, ok := m.docs[id]
	if !ok {
		return nil, apperr.Newf(apperr.KindNotFound, "Could not find %s within the database.", id)
	}
	doc.Updated = upd.Updated
	doc.Length = upd.Length
	doc.Empty = upd.Empty
	doc.AuthorVersion = upd.AuthorVersion
	clone := *doc
	return &clone, nil
}

func (m *MockMetadataStore) Delete(_ context.Context, id string) error {
	if m.failWith != nil {
		return m.failWith
	}
	delete(m.docs, id)
	return nil
}

func (m *MockMetadataStore) Close(context.Context) error {
	return nil
}
