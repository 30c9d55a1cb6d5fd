package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GraysonCAdams/dex-contacts/internal/models"
)

const fetchedAtKey = "contacts_fetched_at"

// SaveContacts replaces the persisted contact list.
func (db *DB) SaveContacts(list []models.Contact, fetchedAt time.Time) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM contacts`); err != nil {
		return fmt.Errorf("index: clear contacts: %w", err)
	}
	if err := ftsClear(tx); err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO contacts (id, first_name, last_name, company, avatar_url, profile_url)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare contact insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range list {
		if _, err := stmt.Exec(c.ID, c.FirstName, c.LastName, c.Company, c.AvatarURL, c.ProfileURL); err != nil {
			return fmt.Errorf("index: insert contact %s: %w", c.ID, err)
		}
		if err := ftsUpsert(tx, c); err != nil {
			return err
		}
	}

	_, err = tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fetchedAtKey, fetchedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("index: store fetch time: %w", err)
	}
	return tx.Commit()
}

// LoadContacts returns the persisted list and when it was fetched. An empty
// index yields no contacts and the zero time.
func (db *DB) LoadContacts() ([]models.Contact, time.Time, error) {
	var at time.Time
	var raw string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, fetchedAtKey).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, time.Time{}, nil
	case err != nil:
		return nil, time.Time{}, fmt.Errorf("index: load fetch time: %w", err)
	}
	if at, err = time.Parse(time.RFC3339Nano, raw); err != nil {
		return nil, time.Time{}, fmt.Errorf("index: parse fetch time: %w", err)
	}

	rows, err := db.conn.Query(`SELECT ` + contactColumns + ` FROM contacts ORDER BY first_name, last_name`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("index: load contacts: %w", err)
	}
	list, err := scanContacts(rows, at)
	if err != nil {
		return nil, time.Time{}, err
	}
	return list, at, nil
}

const contactColumns = `id, first_name, last_name, company, avatar_url, profile_url`

func scanContacts(rows *sql.Rows, at time.Time) ([]models.Contact, error) {
	defer rows.Close()
	var out []models.Contact
	for rows.Next() {
		c := models.Contact{FetchedAt: at}
		if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Company, &c.AvatarURL, &c.ProfileURL); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// fetchedAt returns the stored fetch time, or the zero time.
func fetchedAt(db *DB) time.Time {
	var raw string
	if err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, fetchedAtKey).Scan(&raw); err != nil {
		return time.Time{}
	}
	at, _ := time.Parse(time.RFC3339Nano, raw)
	return at
}
