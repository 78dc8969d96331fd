package metadata

import (
	"context"

	"kmlstore/pkg/models"
)

// Store is the metadata store contract. Lookups exist for both the
// primary key and the admin token (secondary index). The caller's ID
// generation guarantees uniqueness, collisions are not checked on create.
type Store interface {
	// Create inserts a fresh record.
	Create(ctx context.Context, doc *models.Document) error

	// GetByID retrieves a record by its document ID.
	GetByID(ctx context.Context, id string) (*models.Document, error)

	// GetByAdminID retrieves a record via the admin token index. Should
	// the index unexpectedly hold more than one record the anomaly is
	// logged and the first result returned.
	GetByAdminID(ctx context.Context, adminID string) (*models.Document, error)

	// Update rewrites the mutable fields of an existing record and
	// returns the updated record.
	Update(ctx context.Context, id string, upd models.DocumentUpdate) (*models.Document, error)

	// Delete removes a record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
