package admin

import (
	"sameieportalen.no/internal/approval"
	"sameieportalen.no/internal/auth"
)

// MemoryStore serves a database-less deployment: the roster doubles as the
// role source and the documents as the approval document store.
type MemoryStore struct {
	*auth.StaticRoster
	*approval.MemoryDocuments
}

var _ Store = MemoryStore{}

func NewMemoryStore() MemoryStore {
	return MemoryStore{StaticRoster: &auth.StaticRoster{}, MemoryDocuments: approval.NewMemoryDocuments()}
}
