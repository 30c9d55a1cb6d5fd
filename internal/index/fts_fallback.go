//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/GraysonCAdams/dex-contacts/internal/models"
)

func initFTS(_ *sql.DB) error {
	// Without FTS5 contact search uses LIKE over the contacts table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ models.Contact) error { return nil }

func ftsClear(_ *sql.Tx) error { return nil }

// SearchContacts matches query against names and company with LIKE.
func (db *DB) SearchContacts(query string, limit int) ([]models.Contact, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + escapeLike(query) + "%"
	rows, err := db.conn.Query(`
		SELECT `+contactColumns+`
		FROM contacts
		WHERE (first_name || ' ' || last_name) LIKE ? ESCAPE '\'
		   OR company LIKE ? ESCAPE '\'
		ORDER BY first_name, last_name
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search contacts: %w", err)
	}
	return scanContacts(rows, fetchedAt(db))
}
