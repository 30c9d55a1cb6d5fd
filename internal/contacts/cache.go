// Package contacts holds a time-limited local copy of the Dex contact list.
package contacts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/GraysonCAdams/dex-contacts/internal/apperr"
	"github.com/GraysonCAdams/dex-contacts/internal/mention"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
)

const (
	DefaultTTL      = 5 * time.Minute
	DefaultPageSize = 100

	// maxPages bounds a refresh when the remote keeps returning full pages.
	maxPages = 500
)

// Source lists contacts page by page using offset pagination.
type Source interface {
	ListContacts(ctx context.Context, limit, offset int) ([]models.Contact, error)
}

// Persister stores the last fetched contact list across restarts.
type Persister interface {
	SaveContacts(contacts []models.Contact, fetchedAt time.Time) error
	LoadContacts() ([]models.Contact, time.Time, error)
}

// Cache is a TTL-bounded contact cache. Concurrent refreshes are collapsed
// into one remote listing.
type Cache struct {
	src      Source
	persist  Persister
	ttl      time.Duration
	pageSize int
	now      func() time.Time
	logger   *slog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	list    []models.Contact
	byID    map[string]models.Contact
	fetched time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets how long a fetched list stays fresh.
func WithTTL(d time.Duration) Option { return func(c *Cache) { c.ttl = d } }

// WithPageSize sets the listing page size.
func WithPageSize(n int) Option { return func(c *Cache) { c.pageSize = n } }

// WithPersister stores fetched lists and warms the cache from them.
func WithPersister(p Persister) Option { return func(c *Cache) { c.persist = p } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Cache) { c.logger = l } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(c *Cache) { c.now = now } }

// New creates a cache over src.
func New(src Source, opts ...Option) *Cache {
	c := &Cache{
		src:      src,
		ttl:      DefaultTTL,
		pageSize: DefaultPageSize,
		now:      time.Now,
		logger:   slog.Default(),
		byID:     map[string]models.Contact{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pageSize <= 0 {
		c.pageSize = DefaultPageSize
	}
	return c
}

// Warm loads the persisted list, if any. A stale persisted list is loaded
// too; it is refreshed on first use.
func (c *Cache) Warm() error {
	if c.persist == nil {
		return nil
	}
	list, at, err := c.persist.LoadContacts()
	if err != nil {
		return fmt.Errorf("contacts: warm: %w", err)
	}
	if len(list) == 0 {
		return nil
	}
	c.store(list, at)
	c.logger.Debug("contacts: warmed from index", slog.Int("count", len(list)))
	return nil
}

func (c *Cache) fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.fetched.IsZero() && c.now().Sub(c.fetched) < c.ttl
}

// All returns every contact, refreshing first when the cache is stale.
func (c *Cache) All(ctx context.Context) ([]models.Contact, error) {
	if !c.fresh() {
		if err := c.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Contact, len(c.list))
	copy(out, c.list)
	return out, nil
}

// Get returns the contact with id.
func (c *Cache) Get(ctx context.Context, id string) (models.Contact, error) {
	if !c.fresh() {
		if err := c.Refresh(ctx); err != nil {
			return models.Contact{}, err
		}
	}
	c.mu.RLock()
	ct, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok {
		return models.Contact{}, fmt.Errorf("contacts: %s: %w", id, apperr.ErrNotFound)
	}
	return ct, nil
}

// FindByName returns the first contact whose full name matches name.
func (c *Cache) FindByName(ctx context.Context, name string) (models.Contact, error) {
	all, err := c.All(ctx)
	if err != nil {
		return models.Contact{}, err
	}
	for _, ct := range all {
		if mention.SameName(ct.FullName(), name) {
			return ct, nil
		}
	}
	return models.Contact{}, fmt.Errorf("contacts: %q: %w", name, apperr.ErrNotFound)
}

// Lookup matches name against the cached list without refreshing it.
func (c *Cache) Lookup(name string) (models.Contact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ct := range c.list {
		if mention.SameName(ct.FullName(), name) {
			return ct, true
		}
	}
	return models.Contact{}, false
}

// Search returns contacts whose name or company contains query, ignoring
// case. An empty query returns everything.
func (c *Cache) Search(ctx context.Context, query string, limit int) ([]models.Contact, error) {
	all, err := c.All(ctx)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(query))
	var out []models.Contact
	for _, ct := range all {
		if q == "" ||
			strings.Contains(strings.ToLower(ct.FullName()), q) ||
			strings.Contains(strings.ToLower(ct.Company), q) {
			out = append(out, ct)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// Invalidate marks the cache stale; the next read refreshes it.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fetched = time.Time{}
	c.mu.Unlock()
}

// Refresh fetches the whole contact list from the source.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err, shared := c.group.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	if shared {
		c.logger.Debug("contacts: refresh shared with concurrent caller")
	}
	return err
}

func (c *Cache) refresh(ctx context.Context) error {
	var all []models.Contact
	for page := 0; page < maxPages; page++ {
		batch, err := c.src.ListContacts(ctx, c.pageSize, page*c.pageSize)
		if err != nil {
			return fmt.Errorf("contacts: refresh page %d: %w", page, err)
		}
		all = append(all, batch...)
		if len(batch) < c.pageSize {
			break
		}
	}

	at := c.now()
	c.store(all, at)
	c.logger.Info("contacts: refreshed", slog.Int("count", len(all)))

	if c.persist != nil {
		if err := c.persist.SaveContacts(all, at); err != nil {
			c.logger.Warn("contacts: persist failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (c *Cache) store(list []models.Contact, at time.Time) {
	sorted := make([]models.Contact, len(list))
	copy(sorted, list)
	sort.SliceStable(sorted, func(i, j int) bool {
		return strings.ToLower(sorted[i].FullName()) < strings.ToLower(sorted[j].FullName())
	})
	byID := make(map[string]models.Contact, len(sorted))
	for _, ct := range sorted {
		byID[ct.ID] = ct
	}
	c.mu.Lock()
	c.list = sorted
	c.byID = byID
	c.fetched = at
	c.mu.Unlock()
}
