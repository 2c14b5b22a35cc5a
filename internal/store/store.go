package store

import (
	"context"
	"github.com/majewsky-labs/lloadd/internal/models"
)

// Store defines the interface for LDAP data storage
type Store interface {
	// Initialize prepares the store for use
	Initialize(ctx context.Context) error

	// Close releases the store
	Close() error

	// Entry operations
	GetEntry(ctx context.Context, dn string) (*models.Entry, error)
	CreateEntry(ctx context.Context, entry *models.Entry) error
	UpdateEntry(ctx context.Context, entry *models.Entry) error
	DeleteEntry(ctx context.Context, dn string) error
	SearchEntries(ctx context.Context, baseDN string, filter string) ([]*models.Entry, error)
	EntryExists(ctx context.Context, dn string) (bool, error)

	// Miscellaneous
	GetAllEntries(ctx context.Context) ([]*models.Entry, error)
	GetChildren(ctx context.Context, dn string) ([]*models.Entry, error)

	// GetUserPasswordHash looks up a user by uid and returns its stored
	// userPassword hash and DN, used by the admin UI's Basic Auth layer.
	// Returns ("", "", nil) if no user with that uid exists.
	GetUserPasswordHash(ctx context.Context, uid string) (hash string, dn string, err error)

	// IsUserInGroup reports whether userDN is a direct member of the
	// groupOfNames entry at groupDN.
	IsUserInGroup(ctx context.Context, userDN, groupDN string) (bool, error)
}
