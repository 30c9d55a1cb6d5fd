// Package noteservice coordinates the vault store, the mention index, the
// contact cache and the memo syncer behind one API used by HTTP, MCP and
// the CLI.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/GraysonCAdams/dex-contacts/internal/annotation"
	"github.com/GraysonCAdams/dex-contacts/internal/apperr"
	"github.com/GraysonCAdams/dex-contacts/internal/block"
	"github.com/GraysonCAdams/dex-contacts/internal/document"
	"github.com/GraysonCAdams/dex-contacts/internal/index"
	"github.com/GraysonCAdams/dex-contacts/internal/memo"
	"github.com/GraysonCAdams/dex-contacts/internal/mention"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
	"github.com/GraysonCAdams/dex-contacts/internal/storage"
	"github.com/GraysonCAdams/dex-contacts/internal/syncstate"
)

// Directory is the contact lookup the service depends on.
type Directory interface {
	Get(ctx context.Context, id string) (models.Contact, error)
	FindByName(ctx context.Context, name string) (models.Contact, error)
	Lookup(name string) (models.Contact, bool)
	Search(ctx context.Context, query string, limit int) ([]models.Contact, error)
	Refresh(ctx context.Context) error
}

// Links configures how mentions are recognised and written.
type Links struct {
	// URLBase prefixes contact ids in direct links.
	URLBase string
	// Folder holds one page per contact for internal links.
	Folder string
	// Style is mention.StyleDirect or mention.StyleInternal.
	Style string
}

// StripResult reports annotations removed from one note.
type StripResult struct {
	Path    string `json:"path"`
	Removed int    `json:"removed"`
}

// VaultStatus summarises mention statuses across the vault.
type VaultStatus struct {
	Counts   map[string]int         `json:"counts"`
	Mentions []models.MentionStatus `json:"mentions"`
}

// Service is the use-case layer over the vault.
type Service struct {
	store  storage.Provider
	db     *index.DB
	dir    Directory
	syncer *memo.Syncer
	links  Links
	logger *slog.Logger
}

// NewService creates a service.
func NewService(store storage.Provider, db *index.DB, dir Directory, syncer *memo.Syncer, links Links, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, db: db, dir: dir, syncer: syncer, links: links, logger: logger}
}

// Matcher returns the mention matcher for the configured link settings. An
// internal link counts as a mention when its page name is a cached contact or
// a page declaring a contact id.
func (s *Service) Matcher() mention.Matcher {
	return mention.Matcher{
		URLBase: s.links.URLBase,
		Folder:  s.links.Folder,
		Known: func(name string) bool {
			if _, ok := s.dir.Lookup(name); ok {
				return true
			}
			id, err := s.db.ContactForPage(name)
			return err == nil && id != ""
		},
	}
}

func (s *Service) read(path string) ([]byte, error) {
	data, err := s.store.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("noteservice: %s: %w", path, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

func (s *Service) open(path string) (*document.File, error) {
	if _, err := s.read(path); err != nil {
		return nil, err
	}
	return document.Open(s.store, path)
}

// NoteStatus rescans a note and returns its mentions with their statuses.
func (s *Service) NoteStatus(_ context.Context, path string) ([]models.MentionStatus, error) {
	data, err := s.read(path)
	if err != nil {
		return nil, err
	}
	row, mentions, err := index.Scan(path, data, s.Matcher())
	if err != nil {
		return nil, err
	}
	if err := s.db.UpsertNote(row, mentions); err != nil {
		return nil, err
	}
	if mentions == nil {
		mentions = []models.MentionStatus{}
	}
	return mentions, nil
}

// VaultStatus returns indexed mentions matching f and per-status totals.
func (s *Service) VaultStatus(_ context.Context, f index.MentionFilter) (*VaultStatus, error) {
	counts, err := s.db.StatusCounts()
	if err != nil {
		return nil, err
	}
	mentions, err := s.db.ListMentions(f)
	if err != nil {
		return nil, err
	}
	if mentions == nil {
		mentions = []models.MentionStatus{}
	}
	return &VaultStatus{Counts: counts, Mentions: mentions}, nil
}

// Reindex brings the whole index up to date with the vault.
func (s *Service) Reindex(_ context.Context) error {
	return index.Sync(s.db, s.store, s.Matcher(), s.logger)
}

// SyncBlock syncs the block starting at line. When contactID is empty the
// contact is taken from the line: its first annotation, else its first
// mention link.
func (s *Service) SyncBlock(ctx context.Context, path string, line int, contactID string, silent bool) (memo.Result, error) {
	f, err := s.open(path)
	if err != nil {
		return memo.Result{}, err
	}
	if line < 0 || line >= f.LineCount() {
		return memo.Result{}, fmt.Errorf("noteservice: %s: line %d: %w", path, line, apperr.ErrNotFound)
	}

	var contact models.Contact
	if contactID != "" {
		contact, err = s.dir.Get(ctx, contactID)
	} else {
		contact, err = s.contactOnLine(ctx, f.Line(line))
	}
	if err != nil {
		return memo.Result{}, err
	}

	res, err := s.syncer.SyncBlock(ctx, contact, line, f, silent)
	if rerr := index.Reindex(s.db, s.store, s.Matcher(), path); rerr != nil {
		s.logger.Warn("noteservice: reindex failed", slog.String("path", path), slog.String("error", rerr.Error()))
	}
	return res, err
}

// SyncNote syncs every mention in a note that is not already synced.
// Failures are collected; the remaining mentions are still attempted.
func (s *Service) SyncNote(ctx context.Context, path string, silent bool) ([]memo.Result, error) {
	f, err := s.open(path)
	if err != nil {
		return nil, err
	}
	_, mentions, err := index.Scan(path, []byte(f.Text()), s.Matcher())
	if err != nil {
		return nil, err
	}

	var (
		out  []memo.Result
		errs []error
	)
	seen := map[int]bool{}
	for _, m := range mentions {
		// Only the first mention on a line owns the line's sync state.
		if seen[m.StartLine] {
			continue
		}
		seen[m.StartLine] = true
		if m.Status == string(syncstate.Synced) {
			continue
		}
		contact, err := s.contactFor(ctx, m)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", m.StartLine, err))
			continue
		}
		res, err := s.syncer.SyncBlock(ctx, contact, m.StartLine, f, silent)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", m.StartLine, err))
			continue
		}
		out = append(out, res)
	}

	if rerr := index.Reindex(s.db, s.store, s.Matcher(), path); rerr != nil {
		s.logger.Warn("noteservice: reindex failed", slog.String("path", path), slog.String("error", rerr.Error()))
	}
	return out, errors.Join(errs...)
}

func (s *Service) contactFor(ctx context.Context, m models.MentionStatus) (models.Contact, error) {
	if m.ContactID != "" {
		return s.dir.Get(ctx, m.ContactID)
	}
	return s.contactByName(ctx, m.Display)
}

// contactOnLine identifies the contact a line refers to.
func (s *Service) contactOnLine(ctx context.Context, line string) (models.Contact, error) {
	if f := annotation.Parse(line); f.ContactID != "" {
		return s.dir.Get(ctx, f.ContactID)
	}
	links := s.Matcher().Mentions(line)
	if len(links) > 0 {
		if id := links[0].ContactID(); id != "" {
			return s.dir.Get(ctx, id)
		}
		return s.contactByName(ctx, links[0].PageName())
	}
	// Page links to contacts not cached yet.
	for _, l := range mention.Find(line) {
		if l.Kind != mention.Internal {
			continue
		}
		if c, err := s.contactByName(ctx, l.PageName()); err == nil {
			return c, nil
		}
	}
	return models.Contact{}, apperr.ErrNoMention
}

func (s *Service) contactByName(ctx context.Context, name string) (models.Contact, error) {
	if id, err := s.db.ContactForPage(name); err == nil && id != "" {
		return s.dir.Get(ctx, id)
	}
	return s.dir.FindByName(ctx, name)
}

// PreviewStrip returns the note text before and after removing every
// annotation, without writing anything.
func (s *Service) PreviewStrip(_ context.Context, path string) (before, after string, err error) {
	data, err := s.read(path)
	if err != nil {
		return "", "", err
	}
	return string(data), annotation.StripAll(string(data)), nil
}

// StripAnnotations removes every annotation from a note. Notes without
// annotations are not rewritten.
func (s *Service) StripAnnotations(_ context.Context, path string) (StripResult, error) {
	data, err := s.read(path)
	if err != nil {
		return StripResult{}, err
	}
	n := annotation.Count(string(data))
	if n == 0 {
		return StripResult{Path: path}, nil
	}
	if err := s.store.Write(path, []byte(annotation.StripAll(string(data)))); err != nil {
		return StripResult{}, err
	}
	if err := index.Reindex(s.db, s.store, s.Matcher(), path); err != nil {
		s.logger.Warn("noteservice: reindex failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	s.logger.Info("noteservice: annotations stripped", slog.String("path", path), slog.Int("removed", n))
	return StripResult{Path: path, Removed: n}, nil
}

// StripVault removes annotations from every note in the vault.
func (s *Service) StripVault(ctx context.Context) ([]StripResult, error) {
	metas, err := s.store.List("")
	if err != nil {
		return nil, err
	}
	out := []StripResult{}
	for _, m := range metas {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := s.StripAnnotations(ctx, m.Path)
		if err != nil {
			return out, err
		}
		if res.Removed > 0 {
			out = append(out, res)
		}
	}
	return out, nil
}

// ResolveMention replaces "@query" on line with a link to contactID.
func (s *Service) ResolveMention(ctx context.Context, path string, line int, query, contactID string) (string, error) {
	f, err := s.open(path)
	if err != nil {
		return "", err
	}
	if line < 0 || line >= f.LineCount() {
		return "", fmt.Errorf("noteservice: %s: line %d: %w", path, line, apperr.ErrNotFound)
	}
	contact, err := s.dir.Get(ctx, contactID)
	if err != nil {
		return "", err
	}
	link := mention.FormatLink(contact, s.links.Style, s.links.URLBase, s.links.Folder)
	out, ok := mention.Resolve(f.Line(line), query, link)
	if !ok {
		return "", fmt.Errorf("noteservice: @%s on line %d: %w", query, line, apperr.ErrMentionNotFound)
	}
	if err := f.SetLine(line, out); err != nil {
		return "", err
	}
	if err := index.Reindex(s.db, s.store, s.Matcher(), path); err != nil {
		s.logger.Warn("noteservice: reindex failed", slog.String("path", path), slog.String("error", err.Error()))
	}
	return out, nil
}

// Contacts searches the contact cache. When Dex cannot be reached a
// non-empty query is answered from the contacts persisted in the index.
func (s *Service) Contacts(ctx context.Context, query string, limit int) ([]models.Contact, error) {
	list, err := s.dir.Search(ctx, query, limit)
	if err != nil {
		if strings.TrimSpace(query) == "" {
			return nil, err
		}
		indexed, ierr := s.db.SearchContacts(query, limit)
		if ierr != nil || len(indexed) == 0 {
			return nil, err
		}
		s.logger.Warn("noteservice: contact search served from index", slog.String("error", err.Error()))
		list = indexed
	}
	if list == nil {
		list = []models.Contact{}
	}
	return list, nil
}

// RefreshContacts forces a contact list refresh.
func (s *Service) RefreshContacts(ctx context.Context) error {
	return s.dir.Refresh(ctx)
}

// BlockAt returns the block starting at line, for previews.
func (s *Service) BlockAt(_ context.Context, path string, line int) (block.Block, error) {
	data, err := s.read(path)
	if err != nil {
		return block.Block{}, err
	}
	b := block.Detect(block.FromText(string(data)), line)
	if len(b.Lines) == 0 {
		return block.Block{}, fmt.Errorf("noteservice: %s: line %d: %w", path, line, apperr.ErrNotFound)
	}
	return b, nil
}
