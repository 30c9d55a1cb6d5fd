package memo

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GraysonCAdams/dex-contacts/internal/annotation"
	"github.com/GraysonCAdams/dex-contacts/internal/apperr"
	"github.com/GraysonCAdams/dex-contacts/internal/block"
	"github.com/GraysonCAdams/dex-contacts/internal/document"
	"github.com/GraysonCAdams/dex-contacts/internal/mention"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
	"github.com/GraysonCAdams/dex-contacts/internal/syncstate"
)

type fakeStore struct {
	mu      sync.Mutex
	creates int
	updates int
	bodies  []string
	nextID  int

	createErr error
	updateErr error
	updateRes *Updated

	// entered and gate let a test hold a remote call open.
	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeStore) wait() {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
}

func (f *fakeStore) CreateMemo(_ context.Context, contactID, body string) (Created, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return Created{}, f.createErr
	}
	f.nextID++
	f.bodies = append(f.bodies, body)
	return Created{ID: "m" + strconv.Itoa(f.nextID)}, nil
}

func (f *fakeStore) UpdateMemo(_ context.Context, memoID, contactID, body string) (Updated, error) {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.updateErr != nil {
		return Updated{}, f.updateErr
	}
	f.bodies = append(f.bodies, body)
	if f.updateRes != nil {
		return *f.updateRes, nil
	}
	return Updated{Success: true, WasUpdated: true}, nil
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates + f.updates
}

var jane = models.Contact{ID: "c1", FirstName: "Jane", LastName: "Doe"}

func newSyncer(store Store, opts ...Option) *Syncer {
	clock := func() time.Time { return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC) }
	return NewSyncer(store, append([]Option{WithClock(clock)}, opts...)...)
}

func statusOf(buf *document.Buffer, line int) syncstate.Status {
	b := block.Detect(buf, line)
	return syncstate.Classify(b.HasAnnotation, b.MemoID, b.StoredHash, b.Hash())
}

func TestSync_CreateThenIdempotent(t *testing.T) {
	store := &fakeStore{}
	s := newSyncer(store)
	buf := document.NewBuffer("note.md", "Met [Jane Doe](https://getdex.com/contacts/c1) today\n  discussed Q3 budget")

	id, err := s.Sync(context.Background(), jane, 0, buf, false)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	assert.Equal(t, 1, store.calls())

	f := annotation.Parse(buf.Line(0))
	assert.Equal(t, annotation.Fields{ContactID: "c1", MemoID: "m1", Hash: block.Detect(buf, 0).Hash()}, f)
	assert.Equal(t, syncstate.Synced, statusOf(buf, 0))

	before := buf.Text()
	id, err = s.Sync(context.Background(), jane, 0, buf, false)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	assert.Equal(t, 1, store.calls(), "second sync must not reach the remote")
	assert.Equal(t, before, buf.Text())
}

func TestSync_EndToEndScenario(t *testing.T) {
	store := &fakeStore{}
	s := newSyncer(store)
	buf := document.NewBuffer("note.md", "Met @Jane Doe today\n  discussed Q3 budget")

	link := mention.FormatLink(jane, mention.StyleDirect, "https://getdex.com/contacts", "")
	resolved, ok := mention.Resolve(buf.Line(0), "Jane Doe", link)
	require.True(t, ok)
	require.NoError(t, buf.SetLine(0, resolved))
	assert.Equal(t, syncstate.NotSynced, statusOf(buf, 0))

	id, err := s.Sync(context.Background(), jane, 0, buf, false)
	require.NoError(t, err)
	require.Equal(t, "m1", id)
	h := block.Detect(buf, 0).Hash()
	assert.Equal(t, "Met [Jane Doe](https://getdex.com/contacts/c1)%%dex:contact-id=c1,memo-id=m1,hash="+h+"%% today", buf.Line(0))

	require.NoError(t, buf.SetLine(1, "  discussed Q4 budget"))
	assert.Equal(t, syncstate.NeedsResync, statusOf(buf, 0))

	id, err = s.Sync(context.Background(), jane, 0, buf, false)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	assert.Equal(t, 1, store.updates)

	h2 := annotation.Parse(buf.Line(0)).Hash
	assert.NotEqual(t, h, h2)
	assert.Equal(t, syncstate.Synced, statusOf(buf, 0))
}

func TestSync_UpdateSoftFailureFallsBackToCreate(t *testing.T) {
	store := &fakeStore{updateRes: &Updated{Success: false}}
	var notices []Notice
	s := newSyncer(store, WithNotifier(NotifierFunc(func(n Notice) { notices = append(notices, n) })))
	buf := document.NewBuffer("n.md", "[Jane Doe](https://x/c1)%%dex:contact-id=c1,memo-id=gone,hash=old%%")

	res, err := s.SyncBlock(context.Background(), jane, 0, buf, false)
	require.NoError(t, err)
	assert.Equal(t, "m1", res.MemoID)
	assert.True(t, res.Fallback)
	assert.Equal(t, ActionCreated, res.Action)
	assert.Equal(t, 1, store.updates)
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, "m1", annotation.Parse(buf.Line(0)).MemoID)
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeCreated, notices[0].Kind)
	assert.True(t, notices[0].Fallback)
}

func TestSync_ImplicitCreateAdoptsNewID(t *testing.T) {
	store := &fakeStore{updateRes: &Updated{Success: true, WasUpdated: false, ID: "m-new"}}
	s := newSyncer(store)
	buf := document.NewBuffer("n.md", "[Jane Doe](https://x/c1)%%dex:contact-id=c1,memo-id=old,hash=zz%%")

	id, err := s.Sync(context.Background(), jane, 0, buf, false)
	require.NoError(t, err)
	assert.Equal(t, "m-new", id)
	assert.Zero(t, store.creates)
	assert.Equal(t, "m-new", annotation.Parse(buf.Line(0)).MemoID)
}

func TestSync_FallbackIDForcesCreate(t *testing.T) {
	store := &fakeStore{}
	s := newSyncer(store)
	buf := document.NewBuffer("n.md", "[Jane Doe](https://x/c1)%%dex:contact-id=c1,memo-id=local-123,hash=zz%%")

	id, err := s.Sync(context.Background(), jane, 0, buf, false)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
	assert.Zero(t, store.updates)
	assert.Equal(t, 1, store.creates)
}

func TestSync_LegacyAnnotationWithoutHashResyncs(t *testing.T) {
	store := &fakeStore{}
	s := newSyncer(store)
	buf := document.NewBuffer("n.md", "[Jane Doe](https://x/c1)%%dex:contact-id=c1,memo-id=m9%%")

	res, err := s.SyncBlock(context.Background(), jane, 0, buf, false)
	require.NoError(t, err)
	assert.Equal(t, syncstate.NeedsResync, res.Status)
	assert.Equal(t, ActionUpdated, res.Action)
	assert.NotEmpty(t, annotation.Parse(buf.Line(0)).Hash)
}

func TestSync_RemoteErrorLeavesLine(t *testing.T) {
	boom := errors.New("503 service unavailable")
	store := &fakeStore{createErr: boom}
	var notices []Notice
	s := newSyncer(store, WithNotifier(NotifierFunc(func(n Notice) { notices = append(notices, n) })))
	original := "Met [Jane Doe](https://x/c1) today"
	buf := document.NewBuffer("n.md", original)

	_, err := s.Sync(context.Background(), jane, 0, buf, true)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, original, buf.Line(0))
	assert.Equal(t, syncstate.NotSynced, statusOf(buf, 0))
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeFailed, notices[0].Kind)
	assert.Contains(t, notices[0].Message(), "503")

	store.createErr = nil
	id, err := s.Sync(context.Background(), jane, 0, buf, true)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
}

func TestSync_UpdateErrorPropagates(t *testing.T) {
	boom := errors.New("401 unauthorized")
	store := &fakeStore{updateErr: boom}
	s := newSyncer(store)
	original := "[Jane Doe](https://x/c1)%%dex:contact-id=c1,memo-id=m1,hash=old%%"
	buf := document.NewBuffer("n.md", original)

	_, err := s.Sync(context.Background(), jane, 0, buf, false)
	require.ErrorIs(t, err, boom)
	assert.Zero(t, store.creates, "no create after a hard update failure")
	assert.Equal(t, original, buf.Line(0))
}

func TestSync_ConcurrentSameBlockGuarded(t *testing.T) {
	store := &fakeStore{entered: make(chan struct{}, 1), gate: make(chan struct{})}
	s := newSyncer(store)
	buf := document.NewBuffer("n.md", "[Jane Doe](https://x/c1) lunch")

	done := make(chan error, 1)
	go func() {
		_, err := s.Sync(context.Background(), jane, 0, buf, false)
		done <- err
	}()
	<-store.entered

	_, err := s.Sync(context.Background(), jane, 0, buf, false)
	assert.ErrorIs(t, err, apperr.ErrSyncInProgress)

	close(store.gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, store.creates)

	// The guard is released after completion.
	store.entered = nil
	id, err := s.Sync(context.Background(), jane, 0, buf, false)
	require.NoError(t, err)
	assert.Equal(t, "m1", id)
}

func TestSync_MentionMissingReportsWithoutMutation(t *testing.T) {
	store := &fakeStore{}
	s := newSyncer(store)
	buf := document.NewBuffer("n.md", "Jane Doe with no link")

	id, err := s.Sync(context.Background(), jane, 0, buf, false)
	require.ErrorIs(t, err, apperr.ErrMentionNotFound)
	assert.Equal(t, "m1", id)
	assert.Equal(t, "Jane Doe with no link", buf.Line(0))
}

func TestSync_LineOwnedByOtherContact(t *testing.T) {
	store := &fakeStore{}
	var notices []Notice
	s := newSyncer(store, WithNotifier(NotifierFunc(func(n Notice) { notices = append(notices, n) })))
	line := "[John](https://x/c2)%%dex:contact-id=c2,memo-id=mj,hash=h%% and [Jane Doe](https://x/c1)"
	buf := document.NewBuffer("n.md", line+"\n  follow up next week")

	for i := 0; i < 3; i++ {
		_, err := s.Sync(context.Background(), jane, 0, buf, true)
		require.ErrorIs(t, err, apperr.ErrNotLineOwner)
	}
	assert.Zero(t, store.creates)
	assert.Zero(t, store.updates)
	assert.Equal(t, line, buf.Line(0), "line left untouched")
	require.Len(t, notices, 3)
	assert.Equal(t, NoticeFailed, notices[0].Kind)
}

func TestSync_OutOfRange(t *testing.T) {
	s := newSyncer(&fakeStore{})
	_, err := s.Sync(context.Background(), jane, 4, document.NewBuffer("n.md", "x"), false)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSync_RendersTemplate(t *testing.T) {
	store := &fakeStore{}
	s := newSyncer(store, WithTemplate(Template{Text: "{{content}}|{{title}}|{{date}}"}))
	buf := document.NewBuffer("Meetings.md", "- [Jane Doe](https://x/c1)\n    - **budget** review")

	_, err := s.Sync(context.Background(), jane, 0, buf, false)
	require.NoError(t, err)
	require.Len(t, store.bodies, 1)
	assert.Equal(t, `<ul><li><a href="https://x/c1">Jane Doe</a></li><li><strong>budget</strong> review</li></ul>|Meetings|2026-10-19`, store.bodies[0])
}
