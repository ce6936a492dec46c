package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-process Repository.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []Record
	byToken map[string]int
	byKey   map[string]struct{}
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byToken: make(map[string]int),
		byKey:   make(map[string]struct{}),
	}
}

func (m *MemoryRepository) InsertBatch(_ context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tokens := make(map[string]struct{}, len(records))
	keys := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := m.byToken[r.Token]; dup {
			return fmt.Errorf("duplicate token for %s", r.Email)
		}
		if _, dup := tokens[r.Token]; dup {
			return fmt.Errorf("duplicate token for %s", r.Email)
		}
		key := r.BatchID + "\x00" + r.Email
		if _, dup := m.byKey[key]; dup {
			return fmt.Errorf("duplicate recipient %s in batch %s", r.Email, r.BatchID)
		}
		if _, dup := keys[key]; dup {
			return fmt.Errorf("duplicate recipient %s in batch %s", r.Email, r.BatchID)
		}
		tokens[r.Token] = struct{}{}
		keys[key] = struct{}{}
	}
	for _, r := range records {
		m.byToken[r.Token] = len(m.records)
		m.byKey[r.BatchID+"\x00"+r.Email] = struct{}{}
		m.records = append(m.records, cloneRecord(r))
	}
	return nil
}

func (m *MemoryRepository) FindByToken(_ context.Context, token string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byToken[token]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(m.records[idx]), nil
}

func (m *MemoryRepository) UpdateResponse(_ context.Context, token string, status Status, respondedAt time.Time, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.byToken[token]
	if !ok {
		return ErrNotFound
	}
	rec := &m.records[idx]
	if rec.Status != StatusSent {
		return ErrAlreadyProcessed
	}
	at := respondedAt
	rec.Status = status
	rec.RespondedAt = &at
	if comment != "" {
		rec.Comment = comment
	}
	return nil
}

func (m *MemoryRepository) ListByBatch(_ context.Context, batchID string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.records {
		if r.BatchID == batchID {
			out = append(out, cloneRecord(r))
		}
	}
	return out, nil
}

func (m *MemoryRepository) ListPending(_ context.Context, sentBefore time.Time) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for _, r := range m.records {
		if r.Status == StatusSent && r.SentAt.Before(sentBefore) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

func cloneRecord(r Record) Record {
	if r.RespondedAt != nil {
		at := *r.RespondedAt
		r.RespondedAt = &at
	}
	return r
}

// Document is a stored document that can be sent for approval.
type Document struct {
	ID           string
	Title        string
	URL          string
	Status       DocumentStatus
	CurrentBatch string
}

// MemoryDocuments is an in-process Documents store.
type MemoryDocuments struct {
	mu   sync.RWMutex
	docs map[string]Document
}

var _ Documents = (*MemoryDocuments)(nil)

func NewMemoryDocuments(docs ...Document) *MemoryDocuments {
	m := &MemoryDocuments{docs: make(map[string]Document, len(docs))}
	for _, d := range docs {
		m.docs[d.ID] = d
	}
	return m
}

func (m *MemoryDocuments) DocumentURL(_ context.Context, documentID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[documentID]
	if !ok {
		return "", ErrNotFound
	}
	return d.URL, nil
}

func (m *MemoryDocuments) StartBatch(_ context.Context, documentID, batchID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.docs[documentID]
	d.ID = documentID
	d.Status = DocumentPendingApproval
	d.CurrentBatch = batchID
	m.docs[documentID] = d
	return nil
}

func (m *MemoryDocuments) CurrentBatch(_ context.Context, documentID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.docs[documentID].CurrentBatch, nil
}

// SetStatus records status, creating the document if it is unknown.
func (m *MemoryDocuments) SetStatus(_ context.Context, documentID string, status DocumentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.docs[documentID]
	d.ID = documentID
	d.Status = status
	m.docs[documentID] = d
	return nil
}

// UpsertMeeting stores title and URL, keeping status and current batch.
func (m *MemoryDocuments) UpsertMeeting(_ context.Context, doc Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.docs[doc.ID]
	d.ID = doc.ID
	d.Title = doc.Title
	d.URL = doc.URL
	m.docs[doc.ID] = d
	return nil
}

// Get returns the stored document.
func (m *MemoryDocuments) Get(documentID string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[documentID]
	return d, ok
}
