// Package dex is a client for the Dex contact-management REST API. It
// implements the memo store and contact source used by the sync layer.
package dex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/GraysonCAdams/dex-contacts/internal/memo"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
)

// DefaultBaseURL is the public Dex REST endpoint.
const DefaultBaseURL = "https://api.getdex.com/api/rest"

const (
	apiKeyHeader = "x-hasura-dex-api-key"

	// httpClientTimeout applies when no http.Client is supplied.
	httpClientTimeout = 30 * time.Second

	// maxResponseBytes caps response reads.
	maxResponseBytes = 4 << 20
)

// TransientError wraps an error that is likely temporary.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// StatusError is a non-2xx response.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("dex: %s returned status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Client talks to the Dex REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	profileURL string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") } }

// WithProfileURL sets the prefix used to build contact profile URLs.
func WithProfileURL(u string) Option { return func(c *Client) { c.profileURL = u } }

// NewClient creates a client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: httpClientTimeout},
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ memo.Store = (*Client)(nil)

// ListContacts returns one page of contacts.
func (c *Client) ListContacts(ctx context.Context, limit, offset int) ([]models.Contact, error) {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))

	body, err := c.do(ctx, http.MethodGet, "/contacts?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}

	now := time.Now()
	var out []models.Contact
	gjson.GetBytes(body, "contacts").ForEach(func(_, v gjson.Result) bool {
		id := v.Get("id").String()
		if id == "" {
			return true
		}
		company := v.Get("company").String()
		if company == "" {
			company = v.Get("job_title").String()
		}
		out = append(out, models.Contact{
			ID:         id,
			FirstName:  v.Get("first_name").String(),
			LastName:   v.Get("last_name").String(),
			Company:    company,
			AvatarURL:  v.Get("image_url").String(),
			ProfileURL: c.contactURL(id),
			FetchedAt:  now,
		})
		return true
	})
	return out, nil
}

func (c *Client) contactURL(id string) string {
	if c.profileURL == "" {
		return ""
	}
	return strings.TrimRight(c.profileURL, "/") + "/" + id
}

type timelineContacts struct {
	Data []contactRef `json:"data"`
}

type contactRef struct {
	ContactID      string `json:"contact_id"`
	TimelineItemID string `json:"timeline_item_id,omitempty"`
}

type timelineEvent struct {
	Note                  string            `json:"note"`
	EventTime             string            `json:"event_time"`
	MeetingType           string            `json:"meeting_type"`
	TimelineItemsContacts *timelineContacts `json:"timeline_items_contacts,omitempty"`
}

// CreateMemo creates a timeline note attached to contactID.
func (c *Client) CreateMemo(ctx context.Context, contactID, body string) (memo.Created, error) {
	payload := map[string]any{
		"timeline_event": timelineEvent{
			Note:        body,
			EventTime:   time.Now().UTC().Format(time.RFC3339),
			MeetingType: "note",
			TimelineItemsContacts: &timelineContacts{
				Data: []contactRef{{ContactID: contactID}},
			},
		},
	}
	resp, err := c.do(ctx, http.MethodPost, "/timeline_items", payload)
	if err != nil {
		return memo.Created{}, fmt.Errorf("creating memo: %w", err)
	}
	id := gjson.GetBytes(resp, "insert_timeline_items_one.id").String()
	if id == "" {
		return memo.Created{}, fmt.Errorf("creating memo: response carries no id: %s", sanitize(resp))
	}
	return memo.Created{ID: id}, nil
}

// UpdateMemo replaces the note of an existing timeline item. A missing item
// is reported as Success false rather than an error.
func (c *Client) UpdateMemo(ctx context.Context, memoID, contactID, body string) (memo.Updated, error) {
	payload := map[string]any{
		"changes": timelineEvent{
			Note:        body,
			EventTime:   time.Now().UTC().Format(time.RFC3339),
			MeetingType: "note",
		},
		"timeline_items_contacts": []contactRef{{ContactID: contactID, TimelineItemID: memoID}},
	}
	resp, err := c.do(ctx, http.MethodPut, "/timeline_items/"+url.PathEscape(memoID), payload)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return memo.Updated{Success: false}, nil
		}
		return memo.Updated{}, fmt.Errorf("updating memo %s: %w", memoID, err)
	}

	item := gjson.GetBytes(resp, "update_timeline_items_by_pk")
	if !item.Exists() || item.Type == gjson.Null {
		return memo.Updated{Success: false}, nil
	}
	id := item.Get("id").String()
	if id != "" && id != memoID {
		return memo.Updated{Success: true, WasUpdated: false, ID: id}, nil
	}
	return memo.Updated{Success: true, WasUpdated: true, ID: memoID}, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshalling request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("sending request to %s: %w", endpoint, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(respBody, "error").String()
		if msg == "" {
			msg = sanitize(respBody)
		}
		se := &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: msg}
		if isTransientStatus(resp.StatusCode) {
			return nil, &TransientError{Err: se}
		}
		return nil, se
	}
	return respBody, nil
}

func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// sanitize truncates a response body for error messages and replaces
// control characters.
func sanitize(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}
	var b strings.Builder
	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		switch {
		case r == utf8.RuneError && size <= 1:
			b.WriteByte('?')
		case r < 0x20 && r != '\n' && r != '\t':
			b.WriteByte('?')
		default:
			b.Write(body[:size])
		}
		body = body[size:]
	}
	return b.String()
}
