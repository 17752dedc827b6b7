package v1_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/helixml/filegraph"
	"github.com/helixml/filegraph/application/service"
	"github.com/helixml/filegraph/domain/graph"
	"github.com/helixml/filegraph/domain/merge"
	v1 "github.com/helixml/filegraph/infrastructure/api/v1"
	"github.com/helixml/filegraph/internal/config"
)

func newTestClient(t *testing.T, opts ...filegraph.Option) *filegraph.Client {
	t.Helper()
	tmpDir := t.TempDir()
	opts = append([]filegraph.Option{
		filegraph.WithSQLite(filepath.Join(tmpDir, "test.db")),
		filegraph.WithDataDir(tmpDir),
	}, opts...)
	client, err := filegraph.New(opts...)
	if err != nil {
		t.Fatalf("create client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func observeFile(t *testing.T, client *filegraph.Client, content, path string) graph.File {
	t.Helper()
	sum := sha256.Sum256([]byte(content))
	file, _, err := client.Files.Observe(context.Background(), service.FileObserveParams{
		Digest: hex.EncodeToString(sum[:]),
		Path:   path,
	})
	if err != nil {
		t.Fatalf("observe file: %v", err)
	}
	return file
}

func observeEntity(t *testing.T, client *filegraph.Client, et graph.EntityType, name string) graph.Entity {
	t.Helper()
	e, err := client.Entities.Observe(context.Background(), service.EntityObserveParams{Type: et, Name: name})
	if err != nil {
		t.Fatalf("observe entity: %v", err)
	}
	return e
}

type resource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes"`
	Meta       map[string]any `json:"meta"`
}

type singleDoc struct {
	Data resource       `json:"data"`
	Meta map[string]any `json:"meta"`
}

type listDoc struct {
	Data  []resource     `json:"data"`
	Meta  map[string]any `json:"meta"`
	Links map[string]any `json:"links"`
}

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/vnd.api+json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(dst); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestFilesRouter_List(t *testing.T) {
	client := newTestClient(t)
	observeFile(t, client, "a", "/srv/a.txt")
	observeFile(t, client, "b", "/srv/b.txt")

	routes := v1.NewFilesRouter(client).Routes()
	w := serve(t, routes, http.MethodGet, "/?page_size=1", "")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.api+json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var doc listDoc
	decodeBody(t, w, &doc)
	if len(doc.Data) != 1 {
		t.Fatalf("expected 1 file, got %d", len(doc.Data))
	}
	if doc.Data[0].Type != "file" {
		t.Errorf("type = %q, want file", doc.Data[0].Type)
	}
	if doc.Meta["total_count"] != float64(2) {
		t.Errorf("total_count = %v, want 2", doc.Meta["total_count"])
	}
	if doc.Links["next"] == nil {
		t.Error("expected next link")
	}
}

func TestFilesRouter_ListInvalidStatus(t *testing.T) {
	client := newTestClient(t)
	routes := v1.NewFilesRouter(client).Routes()

	w := serve(t, routes, http.MethodGet, "/?status=lost", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestFilesRouter_Get(t *testing.T) {
	client := newTestClient(t)
	file := observeFile(t, client, "invoice", "/srv/inbox/invoice.pdf")
	routes := v1.NewFilesRouter(client).Routes()

	t.Run("found", func(t *testing.T) {
		w := serve(t, routes, http.MethodGet, "/"+file.CanonicalID(), "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
		}
		var doc singleDoc
		decodeBody(t, w, &doc)
		if doc.Data.ID != file.CanonicalID() {
			t.Errorf("id = %q, want %q", doc.Data.ID, file.CanonicalID())
		}
		if doc.Data.Attributes["original_path"] != "/srv/inbox/invoice.pdf" {
			t.Errorf("original_path = %v", doc.Data.Attributes["original_path"])
		}
	})

	t.Run("unknown", func(t *testing.T) {
		w := serve(t, routes, http.MethodGet, "/urn:sha256:"+strings.Repeat("a", 64), "")
		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("malformed id", func(t *testing.T) {
		w := serve(t, routes, http.MethodGet, "/not-an-id", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestFilesRouter_UpdateStatus(t *testing.T) {
	client := newTestClient(t)
	file := observeFile(t, client, "x", "/srv/x")
	routes := v1.NewFilesRouter(client).Routes()

	w := serve(t, routes, http.MethodPatch, "/"+file.CanonicalID()+"/status",
		`{"data":{"type":"file","attributes":{"status":"error","reason":"unreadable"}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var doc singleDoc
	decodeBody(t, w, &doc)
	if doc.Data.Attributes["status"] != "error" {
		t.Errorf("status = %v, want error", doc.Data.Attributes["status"])
	}
	if doc.Data.Attributes["status_reason"] != "unreadable" {
		t.Errorf("status_reason = %v", doc.Data.Attributes["status_reason"])
	}

	w = serve(t, routes, http.MethodPatch, "/"+file.CanonicalID()+"/status",
		`{"data":{"type":"file","attributes":{"status":"bogus"}}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = serve(t, routes, http.MethodPatch, "/"+file.CanonicalID()+"/status", `not json`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestFilesRouter_RelationshipsAndRelated(t *testing.T) {
	client := newTestClient(t)
	a := observeFile(t, client, "draft", "/srv/draft.docx")
	b := observeFile(t, client, "final", "/srv/final.docx")
	routes := v1.NewFilesRouter(client).Routes()

	w := serve(t, routes, http.MethodPost, "/"+a.CanonicalID()+"/relationships",
		`{"data":{"type":"relationship","attributes":{"target":"`+b.CanonicalID()+`","type":"version","confidence":0.9}}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	w = serve(t, routes, http.MethodGet, "/"+a.CanonicalID()+"/related?type=version", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var doc listDoc
	decodeBody(t, w, &doc)
	if len(doc.Data) != 1 || doc.Data[0].ID != b.CanonicalID() {
		t.Fatalf("unexpected related files: %+v", doc.Data)
	}
	if doc.Data[0].Meta["relationship_type"] != "version" {
		t.Errorf("relationship_type = %v", doc.Data[0].Meta["relationship_type"])
	}

	w = serve(t, routes, http.MethodGet, "/"+a.CanonicalID()+"/related?depth=x", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestFilesRouter_SelfRelationshipRejected(t *testing.T) {
	client := newTestClient(t)
	a := observeFile(t, client, "solo", "/srv/solo")
	routes := v1.NewFilesRouter(client).Routes()

	w := serve(t, routes, http.MethodPost, "/"+a.CanonicalID()+"/relationships",
		`{"data":{"type":"relationship","attributes":{"target":"`+a.CanonicalID()+`","type":"similar"}}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestEntitiesRouter(t *testing.T) {
	client := newTestClient(t)
	file := observeFile(t, client, "contract", "/srv/contract.pdf")
	acme := observeEntity(t, client, graph.EntityTypeCompany, "Acme Corp")
	acmeInc := observeEntity(t, client, graph.EntityTypeCompany, "ACME Inc")

	ctx := context.Background()
	if _, err := client.Entities.Link(ctx, service.LinkParams{
		FileID:     file.CanonicalID(),
		EntityID:   acmeInc.CanonicalID(),
		Source:     graph.AttributionManual,
		Confidence: 1,
	}); err != nil {
		t.Fatalf("link: %v", err)
	}

	merges := v1.NewMergesRouter(client).Routes()
	w := serve(t, merges, http.MethodPost, "/", `{"data":{"type":"merge_event","attributes":{`+
		`"entity_type":"company","a":"`+acme.CanonicalID()+`","b":"`+acmeInc.CanonicalID()+`",`+
		`"survivor":"`+acme.CanonicalID()+`","reason":"same company"}}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("merge status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	routes := v1.NewEntitiesRouter(client).Routes()

	t.Run("get returns absorbed entity as stored", func(t *testing.T) {
		w := serve(t, routes, http.MethodGet, "/"+acmeInc.CanonicalID(), "")
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
		}
		var doc singleDoc
		decodeBody(t, w, &doc)
		if doc.Data.Attributes["merged_into"] != acme.CanonicalID() {
			t.Errorf("merged_into = %v, want %s", doc.Data.Attributes["merged_into"], acme.CanonicalID())
		}
	})

	t.Run("live follows the merge", func(t *testing.T) {
		w := serve(t, routes, http.MethodGet, "/"+acmeInc.CanonicalID()+"/live", "")
		var doc singleDoc
		decodeBody(t, w, &doc)
		if doc.Data.ID != acme.CanonicalID() {
			t.Errorf("live id = %s, want %s", doc.Data.ID, acme.CanonicalID())
		}
	})

	t.Run("files of survivor include absorbed links", func(t *testing.T) {
		w := serve(t, routes, http.MethodGet, "/"+acme.CanonicalID()+"/files", "")
		var doc listDoc
		decodeBody(t, w, &doc)
		if len(doc.Data) != 1 || doc.Data[0].ID != file.CanonicalID() {
			t.Errorf("unexpected files: %+v", doc.Data)
		}
	})

	t.Run("merge history", func(t *testing.T) {
		w := serve(t, routes, http.MethodGet, "/"+acmeInc.CanonicalID()+"/merges", "")
		var doc listDoc
		decodeBody(t, w, &doc)
		if len(doc.Data) != 1 || doc.Data[0].Type != "merge_event" {
			t.Errorf("unexpected history: %+v", doc.Data)
		}
	})

	t.Run("list hides absorbed by default", func(t *testing.T) {
		w := serve(t, routes, http.MethodGet, "/?type=company", "")
		var doc listDoc
		decodeBody(t, w, &doc)
		if len(doc.Data) != 1 {
			t.Errorf("expected 1 live company, got %d", len(doc.Data))
		}

		w = serve(t, routes, http.MethodGet, "/?type=company&include_absorbed=true", "")
		decodeBody(t, w, &doc)
		if len(doc.Data) != 2 {
			t.Errorf("expected 2 companies, got %d", len(doc.Data))
		}
	})

	t.Run("list requires a type", func(t *testing.T) {
		w := serve(t, routes, http.MethodGet, "/", "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func mergeBody(t graph.EntityType, a, b, survivor graph.Entity) string {
	return `{"data":{"type":"merge_event","attributes":{"entity_type":"` + string(t) + `","a":"` +
		a.CanonicalID() + `","b":"` + b.CanonicalID() + `","survivor":"` + survivor.CanonicalID() + `"}}}`
}

func mergeRequest(a, b graph.Entity, confidence float64) merge.Request {
	return merge.Request{
		EntityType:  a.Type(),
		A:           a.CanonicalID(),
		B:           b.CanonicalID(),
		Confidence:  confidence,
		PerformedBy: "test",
	}
}

func TestMergesRouter_ReplayAndAlreadyMerged(t *testing.T) {
	client := newTestClient(t)
	a := observeEntity(t, client, graph.EntityTypePerson, "Jane Doe")
	b := observeEntity(t, client, graph.EntityTypePerson, "Jane M. Doe")
	c := observeEntity(t, client, graph.EntityTypePerson, "J. Doe")
	routes := v1.NewMergesRouter(client).Routes()

	w := serve(t, routes, http.MethodPost, "/", mergeBody(graph.EntityTypePerson, a, b, a))
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	var first singleDoc
	decodeBody(t, w, &first)

	w = serve(t, routes, http.MethodPost, "/", mergeBody(graph.EntityTypePerson, a, b, a))
	if w.Code != http.StatusOK {
		t.Fatalf("replay status = %d, want %d; body: %s", w.Code, http.StatusOK, w.Body.String())
	}
	var replay singleDoc
	decodeBody(t, w, &replay)
	if replay.Data.ID != first.Data.ID {
		t.Errorf("replay event = %s, want %s", replay.Data.ID, first.Data.ID)
	}

	w = serve(t, routes, http.MethodPost, "/", mergeBody(graph.EntityTypePerson, c, b, c))
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusConflict, w.Body.String())
	}

	w = serve(t, routes, http.MethodGet, "/", "")
	var doc listDoc
	decodeBody(t, w, &doc)
	if len(doc.Data) != 1 {
		t.Errorf("expected 1 merge event, got %d", len(doc.Data))
	}
}

func TestMergesRouter_TypeMismatch(t *testing.T) {
	client := newTestClient(t)
	person := observeEntity(t, client, graph.EntityTypePerson, "Jane Doe")
	company := observeEntity(t, client, graph.EntityTypeCompany, "Jane Doe Ltd")
	routes := v1.NewMergesRouter(client).Routes()

	w := serve(t, routes, http.MethodPost, "/", `{"data":{"type":"merge_event","attributes":{"entity_type":"person","a":"`+
		person.CanonicalID()+`","b":"`+company.CanonicalID()+`"}}}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestReviewsRouter_QueueAndApprove(t *testing.T) {
	client := newTestClient(t, filegraph.WithMergeConfig(
		config.NewMergeConfigWithOptions(config.WithAutoAcceptConfidence(0.9)),
	))
	a := observeEntity(t, client, graph.EntityTypeLocation, "London")
	b := observeEntity(t, client, graph.EntityTypeLocation, "London, UK")

	merges := v1.NewMergesRouter(client).Routes()
	w := serve(t, merges, http.MethodPost, "/", `{"data":{"type":"merge_event","attributes":{"entity_type":"location","a":"`+
		a.CanonicalID()+`","b":"`+b.CanonicalID()+`","survivor":"`+a.CanonicalID()+`","confidence":0.5}}}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body: %s", w.Code, http.StatusAccepted, w.Body.String())
	}
	var queued singleDoc
	decodeBody(t, w, &queued)
	if queued.Data.Type != "review" {
		t.Fatalf("type = %q, want review", queued.Data.Type)
	}

	routes := v1.NewReviewsRouter(client).Routes()

	w = serve(t, routes, http.MethodGet, "/?state=pending", "")
	var pending listDoc
	decodeBody(t, w, &pending)
	if len(pending.Data) != 1 {
		t.Fatalf("expected 1 pending review, got %d", len(pending.Data))
	}

	w = serve(t, routes, http.MethodPost, "/"+queued.Data.ID+"/approve", `{"data":{"type":"review","attributes":{"by":"alice"}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("approve status = %d; body: %s", w.Code, w.Body.String())
	}
	var approved singleDoc
	decodeBody(t, w, &approved)
	if approved.Data.Attributes["state"] != "approved" {
		t.Errorf("state = %v, want approved", approved.Data.Attributes["state"])
	}
	if approved.Meta["merge_event"] == nil {
		t.Error("expected merge_event in meta")
	}

	w = serve(t, routes, http.MethodPost, "/"+queued.Data.ID+"/reject", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("reject after approve status = %d, want %d; body: %s", w.Code, http.StatusBadRequest, w.Body.String())
	}
}

func TestReviewsRouter_Reject(t *testing.T) {
	client := newTestClient(t, filegraph.WithMergeConfig(
		config.NewMergeConfigWithOptions(config.WithAutoAcceptConfidence(0.9)),
	))
	a := observeEntity(t, client, graph.EntityTypePerson, "Sam Smith")
	b := observeEntity(t, client, graph.EntityTypePerson, "Samantha Smith")

	_, item, err := client.Merges.Request(context.Background(), mergeRequest(a, b, 0.4))
	if err == nil {
		t.Fatal("expected merge to be queued")
	}

	routes := v1.NewReviewsRouter(client).Routes()
	w := serve(t, routes, http.MethodPost, "/"+item.ID()+"/reject", `{"data":{"type":"review","attributes":{"note":"different people"}}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	var doc singleDoc
	decodeBody(t, w, &doc)
	if doc.Data.Attributes["state"] != "rejected" {
		t.Errorf("state = %v, want rejected", doc.Data.Attributes["state"])
	}
	if doc.Data.Attributes["resolved_by"] != v1.DefaultPerformer {
		t.Errorf("resolved_by = %v, want %s", doc.Data.Attributes["resolved_by"], v1.DefaultPerformer)
	}

	w = serve(t, routes, http.MethodGet, "/missing", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestCategoriesRouter_Tree(t *testing.T) {
	client := newTestClient(t)
	if _, err := client.Entities.Observe(context.Background(), service.EntityObserveParams{
		Type:      graph.EntityTypeCategory,
		Name:      "Invoices",
		ParentKey: "finance",
	}); err != nil {
		t.Fatalf("observe category: %v", err)
	}

	routes := v1.NewCategoriesRouter(client).Routes()
	w := serve(t, routes, http.MethodGet, "/tree", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "invoices") && !strings.Contains(w.Body.String(), "Invoices") {
		t.Errorf("expected category in tree, got %s", w.Body.String())
	}
}

func TestStatsRouter(t *testing.T) {
	client := newTestClient(t)
	observeFile(t, client, "s", "/srv/s")

	routes := v1.NewStatsRouter(client).Routes()
	w := serve(t, routes, http.MethodGet, "/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", w.Code, w.Body.String())
	}

	var doc struct {
		Data struct {
			Attributes struct {
				Graph graph.Stats `json:"graph"`
				KV    struct {
					Backend string `json:"backend"`
				} `json:"kv"`
			} `json:"attributes"`
		} `json:"data"`
	}
	decodeBody(t, w, &doc)
	if doc.Data.Attributes.Graph.Files != 1 {
		t.Errorf("files = %d, want 1", doc.Data.Attributes.Graph.Files)
	}
	if doc.Data.Attributes.KV.Backend != "sql" {
		t.Errorf("backend = %q, want sql", doc.Data.Attributes.KV.Backend)
	}
}
