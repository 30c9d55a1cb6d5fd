package index

import (
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/GraysonCAdams/dex-contacts/internal/annotation"
	"github.com/GraysonCAdams/dex-contacts/internal/block"
	"github.com/GraysonCAdams/dex-contacts/internal/checksum"
	"github.com/GraysonCAdams/dex-contacts/internal/mention"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
	"github.com/GraysonCAdams/dex-contacts/internal/parser"
	"github.com/GraysonCAdams/dex-contacts/internal/storage"
	"github.com/GraysonCAdams/dex-contacts/internal/syncstate"
)

// Scan parses a note and classifies every contact mention m finds in it.
// Mentions sharing a line share that line's block.
func Scan(p string, data []byte, m mention.Matcher) (NoteRow, []models.MentionStatus, error) {
	res, err := parser.Parse(data, m)
	if err != nil {
		return NoteRow{}, nil, err
	}
	title := res.Title
	if title == "" {
		title = strings.TrimSuffix(path.Base(p), ".md")
	}
	row := NoteRow{
		Path:      p,
		Title:     title,
		Checksum:  checksum.Sum(data),
		ContactID: res.ContactID,
		UpdatedAt: time.Now(),
	}

	lines := block.FromText(string(data))
	var out []models.MentionStatus
	for _, occ := range res.Mentions {
		b := block.Detect(lines, occ.Line)
		current := b.Hash()
		for _, l := range occ.Links {
			id := l.ContactID()
			if id == "" {
				if f, ok := annotation.After(lines[occ.Line], l.End); ok {
					id = f.ContactID
				}
			}
			memoID, stored, has := b.StateFor(id)
			out = append(out, models.MentionStatus{
				Path:      p,
				StartLine: b.Start,
				EndLine:   b.End,
				ContactID: id,
				Display:   l.PageName(),
				MemoID:    memoID,
				Hash:      current,
				Status:    string(syncstate.Classify(has, memoID, stored, current)),
			})
		}
	}
	return row, out, nil
}

// Sync walks the vault and brings the index up to date:
//   - new/changed notes are scanned and upserted
//   - notes removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, m mention.Matcher, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, meta := range metas {
		disk[meta.Path] = struct{}{}

		if checksums[meta.Path] == meta.Checksum {
			continue
		}

		data, err := store.Read(meta.Path)
		if err != nil {
			logger.Warn("index: read failed", slog.String("path", meta.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, meta.Path, data, m); err != nil {
			logger.Warn("index: scan failed", slog.String("path", meta.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("index: scanned", slog.String("path", meta.Path))
		}
	}

	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("index: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("index: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// Reindex rescans one note regardless of its stored checksum.
func Reindex(db *DB, store storage.Provider, m mention.Matcher, p string) error {
	data, err := store.Read(p)
	if err != nil {
		return err
	}
	return indexFile(db, p, data, m)
}

func indexFile(db *DB, p string, data []byte, m mention.Matcher) error {
	row, mentions, err := Scan(p, data, m)
	if err != nil {
		return err
	}
	return db.UpsertNote(row, mentions)
}
