// Package testutil provides shared test helpers for vaults, databases and a
// scripted memo store.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/GraysonCAdams/dex-contacts/internal/index"
	"github.com/GraysonCAdams/dex-contacts/internal/memo"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
	"github.com/GraysonCAdams/dex-contacts/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.FS.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}

// WriteNote writes a note into the vault directory.
func WriteNote(t *testing.T, vaultDir, rel, text string) {
	t.Helper()
	abs := filepath.Join(vaultDir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(text), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ReadNote returns the text of a note in the vault directory.
func ReadNote(t *testing.T, vaultDir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(vaultDir, rel))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// MemoStore is an in-memory memo.Store and contact source. Memo ids are
// "m1", "m2", ... in creation order.
type MemoStore struct {
	mu       sync.Mutex
	Contacts []models.Contact
	Bodies   map[string]string
	Creates  int
	Updates  int
	// CreateErr, when set, fails every CreateMemo call.
	CreateErr error
	// ListErr, when set, fails every ListContacts call.
	ListErr error
}

// NewMemoStore returns a store serving contacts.
func NewMemoStore(contacts ...models.Contact) *MemoStore {
	return &MemoStore{Contacts: contacts, Bodies: map[string]string{}}
}

var _ memo.Store = (*MemoStore)(nil)

// CreateMemo implements memo.Store.
func (m *MemoStore) CreateMemo(_ context.Context, _ string, body string) (memo.Created, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return memo.Created{}, m.CreateErr
	}
	m.Creates++
	id := fmt.Sprintf("m%d", m.Creates)
	m.Bodies[id] = body
	return memo.Created{ID: id}, nil
}

// UpdateMemo implements memo.Store. Unknown ids are soft failures.
func (m *MemoStore) UpdateMemo(_ context.Context, memoID, _ string, body string) (memo.Updated, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Bodies[memoID]; !ok {
		return memo.Updated{Success: false}, nil
	}
	m.Updates++
	m.Bodies[memoID] = body
	return memo.Updated{Success: true, WasUpdated: true, ID: memoID}, nil
}

// ListContacts serves Contacts with offset pagination.
func (m *MemoStore) ListContacts(_ context.Context, limit, offset int) ([]models.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	if offset >= len(m.Contacts) {
		return nil, nil
	}
	end := offset + limit
	if end > len(m.Contacts) {
		end = len(m.Contacts)
	}
	return m.Contacts[offset:end], nil
}

// Counts returns the number of creates and updates so far.
func (m *MemoStore) Counts() (creates, updates int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Creates, m.Updates
}
