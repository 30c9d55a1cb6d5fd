// Package memo keeps the memo attached to a contact mention in step with the
// content block below it. The annotation on the mention's line is the only
// sync state; every decision is recomputed from the current text.
package memo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/GraysonCAdams/dex-contacts/internal/annotation"
	"github.com/GraysonCAdams/dex-contacts/internal/apperr"
	"github.com/GraysonCAdams/dex-contacts/internal/block"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
	"github.com/GraysonCAdams/dex-contacts/internal/syncstate"
)

// FallbackPrefix marks a memo id that was generated locally and does not
// reference a remote record. Such ids are always replaced by a create.
const FallbackPrefix = "local-"

// IsFallbackID reports whether id is a local placeholder.
func IsFallbackID(id string) bool {
	return strings.HasPrefix(id, FallbackPrefix)
}

// Created is the result of a remote memo create.
type Created struct {
	ID string
}

// Updated is the result of a remote memo update. Success is false when the
// record no longer exists. Success with WasUpdated false means the remote
// side created a new record instead; ID then holds the new id.
type Updated struct {
	Success    bool
	WasUpdated bool
	ID         string
}

// Store is the remote memo service.
type Store interface {
	CreateMemo(ctx context.Context, contactID, body string) (Created, error)
	UpdateMemo(ctx context.Context, memoID, contactID, body string) (Updated, error)
}

// Editor is a line-addressable document the syncer reads and rewrites.
type Editor interface {
	block.Lines
	// ID identifies the document for the in-flight guard.
	ID() string
	SetLine(i int, text string) error
}

// Reloader is implemented by editors whose text may change underneath the
// syncer (files on disk). Reload is called right before the annotation is
// rewritten.
type Reloader interface {
	Reload() error
}

// Describer supplies template context for an editor.
type Describer interface {
	Title() string
	Path() string
}

// Result describes a finished sync.
type Result struct {
	MemoID   string           `json:"memo_id"`
	Action   Action           `json:"action"`
	Status   syncstate.Status `json:"status"`             // status before the sync
	Fallback bool             `json:"fallback,omitempty"` // update degraded to create
}

// Action is what a sync did remotely.
type Action string

const (
	ActionNone    Action = "none"
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
)

// Syncer orchestrates memo creation and update for mention blocks.
type Syncer struct {
	store    Store
	tmpl     Template
	vault    string
	logger   *slog.Logger
	notifier Notifier
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithTemplate sets the memo template.
func WithTemplate(t Template) Option { return func(s *Syncer) { s.tmpl = t } }

// WithVault sets the vault name used in back-links.
func WithVault(name string) Option { return func(s *Syncer) { s.vault = name } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(s *Syncer) { s.logger = l } }

// WithNotifier sets the receiver of user-facing notices.
func WithNotifier(n Notifier) Option { return func(s *Syncer) { s.notifier = n } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Syncer) { s.now = now } }

// NewSyncer creates a Syncer backed by store.
func NewSyncer(store Store, opts ...Option) *Syncer {
	s := &Syncer{
		store:    store,
		logger:   slog.Default(),
		notifier: nopNotifier{},
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync pushes the block starting at startLine to the memo attached to
// contact and returns the memo id. Unchanged content returns the existing id
// without any remote call. Remote errors are returned as is, and the line is
// only rewritten after the remote call succeeded.
func (s *Syncer) Sync(ctx context.Context, contact models.Contact, startLine int, ed Editor, silent bool) (string, error) {
	res, err := s.SyncBlock(ctx, contact, startLine, ed, silent)
	return res.MemoID, err
}

// SyncBlock is Sync with the full result.
func (s *Syncer) SyncBlock(ctx context.Context, contact models.Contact, startLine int, ed Editor, silent bool) (Result, error) {
	key := ed.ID() + ":" + strconv.Itoa(startLine)
	if !s.acquire(key) {
		return Result{}, fmt.Errorf("memo: sync %s: %w", key, apperr.ErrSyncInProgress)
	}
	defer s.release(key)

	b := block.Detect(ed, startLine)
	if len(b.Lines) == 0 {
		return Result{}, fmt.Errorf("memo: line %d: %w", startLine, apperr.ErrNotFound)
	}

	if b.ContactID != "" && b.ContactID != contact.ID {
		err := fmt.Errorf("memo: line %d owned by contact %s: %w", startLine, b.ContactID, apperr.ErrNotLineOwner)
		s.fail(ed, contact, startLine, err)
		return Result{}, err
	}
	memoID, stored, has := b.StateFor(contact.ID)

	current := b.Hash()
	status := syncstate.Classify(has, memoID, stored, current)
	logger := s.logger.With(slog.String("doc", ed.ID()), slog.Int("line", startLine), slog.String("contact_id", contact.ID))

	if status == syncstate.Synced {
		logger.Debug("memo: already synced", slog.String("memo_id", memoID))
		return Result{MemoID: memoID, Action: ActionNone, Status: status}, nil
	}

	body := s.render(ed, b)
	res := Result{Status: status}

	if memoID != "" && !IsFallbackID(memoID) {
		up, err := s.store.UpdateMemo(ctx, memoID, contact.ID, body)
		if err != nil {
			s.fail(ed, contact, startLine, err)
			return Result{}, fmt.Errorf("memo: update %s: %w", memoID, err)
		}
		switch {
		case up.Success && up.WasUpdated:
			res.MemoID, res.Action = memoID, ActionUpdated
			if up.ID != "" {
				res.MemoID = up.ID
			}
		case up.Success && up.ID != "":
			logger.Warn("memo: update fell back to create", slog.String("memo_id", memoID), slog.String("new_memo_id", up.ID), slog.Bool("implicit", true))
			res.MemoID, res.Action, res.Fallback = up.ID, ActionCreated, true
		default:
			logger.Warn("memo: update fell back to create", slog.String("memo_id", memoID))
			res.Fallback = true
		}
	}

	if res.MemoID == "" {
		created, err := s.store.CreateMemo(ctx, contact.ID, body)
		if err != nil {
			s.fail(ed, contact, startLine, err)
			return Result{}, fmt.Errorf("memo: create: %w", err)
		}
		if created.ID == "" {
			err := errors.New("remote returned an empty memo id")
			s.fail(ed, contact, startLine, err)
			return Result{}, fmt.Errorf("memo: create: %w", err)
		}
		res.MemoID, res.Action = created.ID, ActionCreated
	}

	if err := s.writeAnnotation(ed, contact, startLine, res.MemoID, current); err != nil {
		logger.Warn("memo: annotation not written", slog.String("memo_id", res.MemoID), slog.String("error", err.Error()))
		s.fail(ed, contact, startLine, err)
		return res, fmt.Errorf("memo: annotate line %d: %w", startLine, err)
	}

	logger.Info("memo: synced", slog.String("memo_id", res.MemoID), slog.String("action", string(res.Action)), slog.String("hash", current))
	if !silent {
		s.notifier.Notify(Notice{
			Kind:      NoticeKind(res.Action),
			DocID:     ed.ID(),
			Line:      startLine,
			ContactID: contact.ID,
			MemoID:    res.MemoID,
			Fallback:  res.Fallback,
		})
	}
	return res, nil
}

// writeAnnotation re-reads the start line and rewrites the mention's
// annotation. hash is the token of the content that was sent.
func (s *Syncer) writeAnnotation(ed Editor, contact models.Contact, line int, memoID, hash string) error {
	if r, ok := ed.(Reloader); ok {
		if err := r.Reload(); err != nil {
			return err
		}
	}
	if line >= ed.LineCount() {
		return apperr.ErrMentionNotFound
	}
	target := annotation.Target{ContactID: contact.ID, Name: contact.FullName()}
	out, err := annotation.Write(ed.Line(line), target, memoID, hash)
	if err != nil {
		return err
	}
	return ed.SetLine(line, out)
}

func (s *Syncer) render(ed Editor, b block.Block) string {
	v := Vars{
		Content: ToHTML(b.Lines),
		Vault:   s.vault,
		Time:    s.now(),
	}
	if d, ok := ed.(Describer); ok {
		v.Title, v.Path = d.Title(), d.Path()
	} else {
		v.Title = ed.ID()
	}
	return s.tmpl.Render(v)
}

func (s *Syncer) fail(ed Editor, contact models.Contact, line int, err error) {
	s.notifier.Notify(Notice{
		Kind:      NoticeFailed,
		DocID:     ed.ID(),
		Line:      line,
		ContactID: contact.ID,
		Err:       err.Error(),
	})
}

func (s *Syncer) acquire(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Syncer) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}
