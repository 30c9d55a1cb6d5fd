package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GraysonCAdams/dex-contacts/internal/models"
)

// NoteRow represents a row in the notes table.
type NoteRow struct {
	Path      string
	Title     string
	Checksum  string
	ContactID string
	UpdatedAt time.Time
}

// MentionFilter narrows ListMentions. Zero fields match everything.
type MentionFilter struct {
	ContactID string
	Status    string
	Limit     int
}

// UpsertNote replaces a note and all of its mention rows in one transaction.
func (db *DB) UpsertNote(n NoteRow, mentions []models.MentionStatus) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO notes (path, title, checksum, contact_id, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			contact_id = excluded.contact_id,
			updated_at = excluded.updated_at
	`, n.Path, n.Title, n.Checksum, n.ContactID, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM mentions WHERE path = ?`, n.Path); err != nil {
		return fmt.Errorf("index: clear mentions: %w", err)
	}
	if len(mentions) > 0 {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO mentions
				(path, start_line, position, end_line, contact_id, display, memo_id, hash, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare mention insert: %w", err)
		}
		defer stmt.Close()

		pos := map[int]int{}
		for _, m := range mentions {
			p := pos[m.StartLine]
			pos[m.StartLine]++
			if _, err := stmt.Exec(n.Path, m.StartLine, p, m.EndLine, m.ContactID, m.Display, m.MemoID, m.Hash, m.Status); err != nil {
				return fmt.Errorf("index: insert mention: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note and its mentions.
func (db *DB) DeleteNote(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, _ = tx.Exec(`DELETE FROM mentions WHERE path = ?`, path)
	_, _ = tx.Exec(`DELETE FROM notes WHERE path = ?`, path)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a note, or "" if not indexed.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns path → checksum for every indexed note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

const mentionColumns = `path, start_line, end_line, contact_id, display, memo_id, hash, status`

func scanMentions(rows *sql.Rows) ([]models.MentionStatus, error) {
	defer rows.Close()
	var out []models.MentionStatus
	for rows.Next() {
		var m models.MentionStatus
		if err := rows.Scan(&m.Path, &m.StartLine, &m.EndLine, &m.ContactID, &m.Display, &m.MemoID, &m.Hash, &m.Status); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// NoteMentions returns the mentions of one note in document order.
func (db *DB) NoteMentions(path string) ([]models.MentionStatus, error) {
	rows, err := db.conn.Query(`SELECT `+mentionColumns+` FROM mentions WHERE path = ? ORDER BY start_line, position`, path)
	if err != nil {
		return nil, fmt.Errorf("index: note mentions: %w", err)
	}
	return scanMentions(rows)
}

// ListMentions returns mentions across the vault ordered by path and line.
func (db *DB) ListMentions(f MentionFilter) ([]models.MentionStatus, error) {
	var (
		where []string
		args  []any
	)
	if f.ContactID != "" {
		where = append(where, "contact_id = ?")
		args = append(args, f.ContactID)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	q := `SELECT ` + mentionColumns + ` FROM mentions`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY path, start_line, position"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := db.conn.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list mentions: %w", err)
	}
	return scanMentions(rows)
}

// StatusCounts returns the number of mentions per status.
func (db *DB) StatusCounts() (map[string]int, error) {
	rows, err := db.conn.Query(`SELECT status, count(*) FROM mentions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("index: status counts: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}

// ContactForPage returns the contact id declared in the frontmatter of the
// page called name, or "" when no such page exists.
func (db *DB) ContactForPage(name string) (string, error) {
	var id string
	err := db.conn.QueryRow(`
		SELECT contact_id FROM notes
		WHERE contact_id != ''
		  AND (path = ? OR path LIKE ? ESCAPE '\' OR title = ? COLLATE NOCASE)
		ORDER BY path
		LIMIT 1
	`, name+".md", "%/"+escapeLike(name)+".md", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: contact for page: %w", err)
	}
	return id, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
