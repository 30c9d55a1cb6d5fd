package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/GraysonCAdams/dex-contacts/internal/mention"
	"github.com/GraysonCAdams/dex-contacts/internal/models"
)

var testMatcher = mention.Matcher{URLBase: "https://getdex.com/contacts", Folder: "People"}

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	for _, table := range []string{"notes", "mentions", "contacts", "meta"} {
		var count int
		if err := db.conn.QueryRow(`SELECT count(*) FROM ` + table).Scan(&count); err != nil {
			t.Fatalf("%s table missing: %v", table, err)
		}
	}
}

func TestUpsertAndGetChecksum(t *testing.T) {
	db := testDB(t)
	row := NoteRow{Path: "daily.md", Title: "Daily", Checksum: "abc123", UpdatedAt: time.Now()}
	mentions := []models.MentionStatus{
		{Path: "daily.md", StartLine: 2, EndLine: 3, ContactID: "c1", Display: "Jane", Hash: "h", Status: "not-synced"},
		{Path: "daily.md", StartLine: 2, EndLine: 3, ContactID: "c2", Display: "John", Hash: "h", Status: "not-synced"},
	}
	if err := db.UpsertNote(row, mentions); err != nil {
		t.Fatalf("UpsertNote: %v", err)
	}
	cs, err := db.GetChecksum("daily.md")
	if err != nil {
		t.Fatalf("GetChecksum: %v", err)
	}
	if cs != "abc123" {
		t.Errorf("checksum = %q, want %q", cs, "abc123")
	}
	got, err := db.NoteMentions("daily.md")
	if err != nil {
		t.Fatalf("NoteMentions: %v", err)
	}
	if len(got) != 2 || got[0].ContactID != "c1" || got[1].ContactID != "c2" {
		t.Errorf("mentions = %+v", got)
	}
}

func TestUpsertReplacesMentions(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNote(NoteRow{Path: "n.md", Checksum: "1", UpdatedAt: now},
		[]models.MentionStatus{{StartLine: 0, ContactID: "old", Status: "synced"}})
	_ = db.UpsertNote(NoteRow{Path: "n.md", Checksum: "2", UpdatedAt: now},
		[]models.MentionStatus{{StartLine: 4, ContactID: "new", Status: "needs-resync"}})

	got, _ := db.NoteMentions("n.md")
	if len(got) != 1 || got[0].ContactID != "new" || got[0].StartLine != 4 {
		t.Errorf("mentions = %+v", got)
	}
}

func TestDeleteNote(t *testing.T) {
	db := testDB(t)
	_ = db.UpsertNote(NoteRow{Path: "del.md", Checksum: "x", UpdatedAt: time.Now()},
		[]models.MentionStatus{{ContactID: "c1", Status: "synced"}})

	if err := db.DeleteNote("del.md"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if cs, _ := db.GetChecksum("del.md"); cs != "" {
		t.Errorf("deleted note still has checksum %q", cs)
	}
	if got, _ := db.ListMentions(MentionFilter{ContactID: "c1"}); len(got) != 0 {
		t.Errorf("expected no mentions after delete, got %d", len(got))
	}
}

func TestGetChecksum_NotFound(t *testing.T) {
	db := testDB(t)
	cs, err := db.GetChecksum("nonexistent.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cs != "" {
		t.Errorf("expected empty checksum, got %q", cs)
	}
}

func TestListMentionsAndCounts(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNote(NoteRow{Path: "a.md", Checksum: "1", UpdatedAt: now}, []models.MentionStatus{
		{StartLine: 0, ContactID: "c1", Status: "synced"},
		{StartLine: 5, ContactID: "c2", Status: "not-synced"},
	})
	_ = db.UpsertNote(NoteRow{Path: "b.md", Checksum: "2", UpdatedAt: now}, []models.MentionStatus{
		{StartLine: 1, ContactID: "c1", Status: "needs-resync"},
	})

	got, err := db.ListMentions(MentionFilter{ContactID: "c1"})
	if err != nil {
		t.Fatalf("ListMentions: %v", err)
	}
	if len(got) != 2 || got[0].Path != "a.md" || got[1].Path != "b.md" {
		t.Errorf("by contact = %+v", got)
	}

	got, _ = db.ListMentions(MentionFilter{Status: "not-synced"})
	if len(got) != 1 || got[0].ContactID != "c2" {
		t.Errorf("by status = %+v", got)
	}

	got, _ = db.ListMentions(MentionFilter{Limit: 1})
	if len(got) != 1 {
		t.Errorf("limit ignored: %d rows", len(got))
	}

	counts, err := db.StatusCounts()
	if err != nil {
		t.Fatalf("StatusCounts: %v", err)
	}
	if counts["synced"] != 1 || counts["not-synced"] != 1 || counts["needs-resync"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestContactForPage(t *testing.T) {
	db := testDB(t)
	now := time.Now()
	_ = db.UpsertNote(NoteRow{Path: "People/Jane Doe.md", Title: "Jane Doe", Checksum: "1", ContactID: "c1", UpdatedAt: now}, nil)
	_ = db.UpsertNote(NoteRow{Path: "Projects/Apollo.md", Title: "Apollo", Checksum: "2", UpdatedAt: now}, nil)

	id, err := db.ContactForPage("Jane Doe")
	if err != nil {
		t.Fatalf("ContactForPage: %v", err)
	}
	if id != "c1" {
		t.Errorf("id = %q, want c1", id)
	}
	if id, _ := db.ContactForPage("Apollo"); id != "" {
		t.Errorf("page without contact id resolved to %q", id)
	}
	if id, _ := db.ContactForPage("Jane_Doe"); id != "" {
		t.Errorf("underscore matched as wildcard: %q", id)
	}
}

func TestContactsRoundTrip(t *testing.T) {
	db := testDB(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	list, loadedAt, err := db.LoadContacts()
	if err != nil || len(list) != 0 || !loadedAt.IsZero() {
		t.Fatalf("empty load = %v, %v, %v", list, loadedAt, err)
	}

	in := []models.Contact{
		{ID: "c1", FirstName: "Jane", LastName: "Doe", Company: "Acme"},
		{ID: "c2", FirstName: "John", LastName: "Roe"},
	}
	if err := db.SaveContacts(in, at); err != nil {
		t.Fatalf("SaveContacts: %v", err)
	}
	list, loadedAt, err = db.LoadContacts()
	if err != nil {
		t.Fatalf("LoadContacts: %v", err)
	}
	if len(list) != 2 || !loadedAt.Equal(at) {
		t.Fatalf("loaded %d contacts at %v", len(list), loadedAt)
	}

	if err := db.SaveContacts(in[:1], at.Add(time.Hour)); err != nil {
		t.Fatalf("SaveContacts: %v", err)
	}
	list, _, _ = db.LoadContacts()
	if len(list) != 1 {
		t.Errorf("save should replace the list, got %d", len(list))
	}
}

func TestSearchContacts(t *testing.T) {
	db := testDB(t)
	_ = db.SaveContacts([]models.Contact{
		{ID: "c1", FirstName: "Jane", LastName: "Doe", Company: "Acme"},
		{ID: "c2", FirstName: "John", LastName: "Roe"},
	}, time.Now())

	got, err := db.SearchContacts("jane", 10)
	if err != nil {
		t.Fatalf("SearchContacts: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Errorf("results = %+v", got)
	}
}

func TestScan_ClassifiesMentions(t *testing.T) {
	text := "# Standup\n" +
		"Met [Jane](https://getdex.com/contacts/c1) today\n" +
		"\n" +
		"- [[People/John Roe|John]] %%dex:contact-id=c2,memo-id=m2,hash=stale%%\n" +
		"  follow up\n"
	row, got, err := Scan("standup.md", []byte(text), testMatcher)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if row.Title != "Standup" || row.Checksum == "" {
		t.Errorf("row = %+v", row)
	}
	if len(got) != 2 {
		t.Fatalf("mentions = %+v", got)
	}
	if got[0].ContactID != "c1" || got[0].Status != "not-synced" || got[0].StartLine != 1 {
		t.Errorf("first = %+v", got[0])
	}
	if got[1].ContactID != "c2" || got[1].MemoID != "m2" || got[1].Status != "needs-resync" || got[1].EndLine != 4 {
		t.Errorf("second = %+v", got[1])
	}
	if got[1].Display != "John Roe" {
		t.Errorf("display = %q", got[1].Display)
	}
}

func TestSync_IndexesAndRemovesStale(t *testing.T) {
	vaultDir, store, db := watcherTestEnv(t)
	_ = os.WriteFile(filepath.Join(vaultDir, "a.md"), []byte("[Jane](https://getdex.com/contacts/c1)"), 0o644)
	_ = os.WriteFile(filepath.Join(vaultDir, "b.md"), []byte("no mentions"), 0o644)

	if err := Sync(db, store, testMatcher, discardLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if got, _ := db.NoteMentions("a.md"); len(got) != 1 {
		t.Errorf("a.md mentions = %+v", got)
	}

	_ = os.Remove(filepath.Join(vaultDir, "a.md"))
	if err := Sync(db, store, testMatcher, discardLogger()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if cs, _ := db.GetChecksum("a.md"); cs != "" {
		t.Error("stale note not removed")
	}
	if cs, _ := db.GetChecksum("b.md"); cs == "" {
		t.Error("b.md should stay indexed")
	}
}
