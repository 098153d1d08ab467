package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/mharlow/annex/internal/annotation"
	"github.com/mharlow/annex/internal/index"
	"github.com/mharlow/annex/internal/masterindex"
	"github.com/mharlow/annex/internal/models"
	"github.com/mharlow/annex/internal/storage"
)

// testEnv sets up a temp corpus, SQLite DB, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*annotation.Service, http.Handler) {
	t.Helper()

	corpusDir := t.TempDir()
	store, err := storage.NewFS(corpusDir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}

	dbFile, err := os.CreateTemp("", "annex-api-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := index.Open(dbFile.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := annotation.NewService(store, db, masterindex.NewHolder(), "api-analyst", logger)
	router := NewRouter(svc, authToken != "", authToken, nil)
	return svc, router
}

func doJSON(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const apiCardFixture = `UUID: card-api
KEYVALUE_PAIRS:
CONTENT:
=== ORIGINAL CONTENT START ===
The quick brown fox jumps over the lazy dog.
=== ORIGINAL CONTENT END ===
TAGS:
=== END CARD ===
`

func TestCreateAndGetDocument(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/documents", map[string]string{
		"path": "hello.txt", "content": "plain body",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodGet, "/documents/hello.txt", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var doc DocumentDetail
	_ = json.Unmarshal(w.Body.Bytes(), &doc)
	if doc.Path != "hello.txt" || doc.Class != models.ClassSourceDocument {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Content != "plain body" {
		t.Errorf("content = %q", doc.Content)
	}
}

func TestCreateDuplicateDocument(t *testing.T) {
	_, router := testEnv(t, "")

	body := map[string]string{"path": "dup.txt", "content": "a"}
	if w := doJSON(t, router, http.MethodPost, "/documents", body); w.Code != http.StatusCreated {
		t.Fatalf("first create = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodPost, "/documents", body); w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
}

func TestUpdateWithOptimisticLocking(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/documents", map[string]string{"path": "lock.txt", "content": "v1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}
	var created DocumentDetail
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	// Update with correct checksum.
	req := httptest.NewRequest(http.MethodPut, "/documents/lock.txt", bytes.NewReader([]byte(`{"content":"v2"}`)))
	req.Header.Set("If-Match", created.Checksum)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d, body = %s", w.Code, w.Body.String())
	}

	// Update with the now-stale checksum is rejected.
	req = httptest.NewRequest(http.MethodPut, "/documents/lock.txt", bytes.NewReader([]byte(`{"content":"v3"}`)))
	req.Header.Set("If-Match", created.Checksum)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("stale update = %d, want 409", w.Code)
	}
}

func TestDeleteDocument(t *testing.T) {
	_, router := testEnv(t, "")

	doJSON(t, router, http.MethodPost, "/documents", map[string]string{"path": "del.txt", "content": "x"})
	if w := doJSON(t, router, http.MethodDelete, "/documents/del.txt", nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/documents/del.txt", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestReferences(t *testing.T) {
	_, router := testEnv(t, "")

	doJSON(t, router, http.MethodPost, "/documents", map[string]string{
		"path":    "meet.txt",
		"content": "Saw [[person:Robert Richard Renasco|Bob]] at [[Union Station]].",
	})

	w := doJSON(t, router, http.MethodGet, "/references?path=meet.txt", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("references = %d, body = %s", w.Code, w.Body.String())
	}
	var links annotation.DocumentLinks
	_ = json.Unmarshal(w.Body.Bytes(), &links)
	if len(links.Links) != 2 {
		t.Fatalf("links = %+v", links.Links)
	}
	if links.Links[0].DisplayName != "Bob" {
		t.Errorf("first = %+v", links.Links[0])
	}
}

func TestSearch(t *testing.T) {
	_, router := testEnv(t, "")

	doJSON(t, router, http.MethodPost, "/documents", map[string]string{"path": "s.txt", "content": "searchable narwhal content"})

	w := doJSON(t, router, http.MethodGet, "/search?q=narwhal", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search = %d", w.Code)
	}
	var resp struct {
		Results []index.SearchResult `json:"results"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Path != "s.txt" {
		t.Errorf("results = %+v", resp.Results)
	}

	if w := doJSON(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing q = %d, want 400", w.Code)
	}
}

func TestEntityLifecycle(t *testing.T) {
	_, router := testEnv(t, "")

	w := doJSON(t, router, http.MethodPost, "/entities", map[string]any{"name": "Acme Corp", "type": "org"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create entity = %d, body = %s", w.Code, w.Body.String())
	}
	var created models.Entity
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	// Duplicate blocked with candidates.
	w = doJSON(t, router, http.MethodPost, "/entities", map[string]any{"name": "Acme Corp", "type": "org"})
	if w.Code != http.StatusConflict {
		t.Fatalf("dup entity = %d", w.Code)
	}
	var conflict EntityConflictResponse
	_ = json.Unmarshal(w.Body.Bytes(), &conflict)
	if len(conflict.Matches) == 0 {
		t.Error("conflict response should carry candidates")
	}

	// Force wins.
	w = doJSON(t, router, http.MethodPost, "/entities", map[string]any{"name": "Acme Corp", "type": "org", "force": true})
	if w.Code != http.StatusCreated {
		t.Errorf("forced entity = %d", w.Code)
	}

	// Snapshot queries.
	w = doJSON(t, router, http.MethodGet, "/entities/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Errorf("get entity = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/entities/"+created.ID+"/links", nil)
	if w.Code != http.StatusOK {
		t.Errorf("entity links = %d", w.Code)
	}
	w = doJSON(t, router, http.MethodGet, "/entities/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("missing entity = %d, want 404", w.Code)
	}

	// Legacy type aliases are normalized on the way in.
	w = doJSON(t, router, http.MethodGet, "/entities/similar?name=Acme+Corp&type=organisation", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("similar = %d", w.Code)
	}
	var sim SimilarEntitiesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sim)
	if len(sim.Matches) == 0 {
		t.Error("expected similarity matches")
	}
}

func TestLinkAndSnippetEndpoints(t *testing.T) {
	_, router := testEnv(t, "")

	doJSON(t, router, http.MethodPost, "/documents", map[string]string{"path": "a.card.txt", "content": apiCardFixture})

	w := doJSON(t, router, http.MethodPost, "/entities", map[string]any{"name": "Jane", "type": "person"})
	var src models.Entity
	_ = json.Unmarshal(w.Body.Bytes(), &src)
	w = doJSON(t, router, http.MethodPost, "/entities", map[string]any{"name": "Acme", "type": "org"})
	var dst models.Entity
	_ = json.Unmarshal(w.Body.Bytes(), &dst)

	w = doJSON(t, router, http.MethodPost, "/links", map[string]any{
		"source_entity_id": src.ID,
		"target_entity_id": dst.ID,
		"predicate":        "works_at",
		"is_relationship":  true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create link = %d, body = %s", w.Code, w.Body.String())
	}

	w = doJSON(t, router, http.MethodPost, "/links", map[string]any{
		"source_entity_id": src.ID,
		"target_entity_id": "missing",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("link to missing entity = %d, want 404", w.Code)
	}

	w = doJSON(t, router, http.MethodPost, "/snippets", map[string]any{
		"card_id": "card-api",
		"start":   4,
		"end":     19,
		"comment": "key phrase",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create snippet = %d, body = %s", w.Code, w.Body.String())
	}
	var sn models.Snippet
	_ = json.Unmarshal(w.Body.Bytes(), &sn)
	if sn.Text != "quick brown fox" {
		t.Errorf("snippet text = %q", sn.Text)
	}

	w = doJSON(t, router, http.MethodPost, "/snippets", map[string]any{
		"card_id": "card-api",
		"start":   0,
		"end":     9999,
	})
	if w.Code != http.StatusConflict {
		t.Errorf("out-of-range snippet = %d, want 409", w.Code)
	}
}

func TestBrokenRefsAndStats(t *testing.T) {
	_, router := testEnv(t, "")

	doJSON(t, router, http.MethodPost, "/entities", map[string]any{"name": "Solo", "type": "person"})

	w := doJSON(t, router, http.MethodGet, "/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats = %d", w.Code)
	}
	var stats struct {
		Version int `json:"version"`
		Stats   struct {
			TotalEntities int `json:"total_entities"`
		} `json:"stats"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &stats)
	if stats.Stats.TotalEntities != 1 {
		t.Errorf("stats = %+v", stats)
	}

	w = doJSON(t, router, http.MethodGet, "/broken-refs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("broken-refs = %d", w.Code)
	}
	var broken struct {
		BrokenReferences []models.BrokenReference `json:"broken_references"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &broken)
	if broken.BrokenReferences == nil {
		t.Error("broken_references must be a JSON array, not null")
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, router := testEnv(t, "sekrit")

	// No token.
	if w := doJSON(t, router, http.MethodGet, "/stats", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	// Wrong token.
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token = %d, want 401", w.Code)
	}

	// Correct token.
	req = httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("valid token = %d, want 200", w.Code)
	}
}
