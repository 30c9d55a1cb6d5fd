//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/GraysonCAdams/dex-contacts/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS contacts_fts USING fts5(
			id UNINDEXED,
			name,
			company,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, c models.Contact) error {
	_, _ = tx.Exec(`DELETE FROM contacts_fts WHERE id = ?`, c.ID)
	_, err := tx.Exec(`INSERT INTO contacts_fts (id, name, company) VALUES (?, ?, ?)`,
		c.ID, c.FullName(), c.Company)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsClear(tx *sql.Tx) error {
	if _, err := tx.Exec(`DELETE FROM contacts_fts`); err != nil {
		return fmt.Errorf("index: clear fts: %w", err)
	}
	return nil
}

// ftsQuery turns free text into a prefix query: "jan do" → "jan"* "do"*.
func ftsQuery(q string) string {
	var parts []string
	for _, f := range strings.Fields(q) {
		parts = append(parts, `"`+strings.ReplaceAll(f, `"`, `""`)+`"*`)
	}
	return strings.Join(parts, " ")
}

// SearchContacts ranks contacts by an FTS5 prefix match.
func (db *DB) SearchContacts(query string, limit int) ([]models.Contact, error) {
	if limit <= 0 {
		limit = 20
	}
	q := ftsQuery(query)
	if q == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT c.id, c.first_name, c.last_name, c.company, c.avatar_url, c.profile_url
		FROM contacts_fts f
		JOIN contacts c ON c.id = f.id
		WHERE contacts_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search contacts: %w", err)
	}
	return scanContacts(rows, fetchedAt(db))
}
