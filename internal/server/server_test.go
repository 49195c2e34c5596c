package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alfredjeanlab/gatekeep/internal/blob"
	"github.com/alfredjeanlab/gatekeep/internal/docstore"
	"github.com/alfredjeanlab/gatekeep/internal/docstore/memstore"
	"github.com/alfredjeanlab/gatekeep/internal/events"
)

// published is one recorded Publish call.
type published struct {
	topic string
	snap  docstore.Snapshot
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{topic: topic, snap: event.(docstore.Snapshot)})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) last(t *testing.T) published {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.msgs) == 0 {
		t.Fatal("nothing published")
	}
	return p.msgs[len(p.msgs)-1]
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.msgs)
}

func newTestServer(t *testing.T, token string) (*httptest.Server, *memstore.Store, *recordingPublisher) {
	t.Helper()
	store := memstore.New()
	pub := &recordingPublisher{}
	blobs := blob.Static{BaseURL: "https://img.example.com"}
	srv := httptest.NewServer(NewGateServer(store, pub, blobs, nil).NewHTTPHandler(token))
	t.Cleanup(srv.Close)
	return srv, store, pub
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	resp, body := do(t, srv, http.MethodGet, "/v1/health", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}
}

func TestGateLifecycle(t *testing.T) {
	srv, store, pub := newTestServer(t, "")

	resp, _ := do(t, srv, http.MethodPatch, "/v1/gates/g1", `{"status":"idle"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("PATCH absent gate = %d, want 404", resp.StatusCode)
	}

	resp, body := do(t, srv, http.MethodPut, "/v1/gates/g1", `{"status":"idle","height_sensor":170}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT = %d %v", resp.StatusCode, body)
	}
	if body["id"] != "g1" {
		t.Errorf("id = %v", body["id"])
	}
	msg := pub.last(t)
	if msg.topic != events.GateTopic("g1") || !msg.snap.Exists() {
		t.Errorf("published %q exists=%v", msg.topic, msg.snap.Exists())
	}

	resp, _ = do(t, srv, http.MethodPatch, "/v1/gates/g1", `{"front_flap":true,"status":"entering"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH = %d", resp.StatusCode)
	}
	doc, err := store.Get(context.Background(), "gates/g1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var g map[string]any
	_ = json.Unmarshal(doc.Data, &g)
	if g["height_sensor"] != 170.0 || g["front_flap"] != true {
		t.Errorf("merged doc = %v", g)
	}

	resp, body = do(t, srv, http.MethodGet, "/v1/gates", "")
	if resp.StatusCode != http.StatusOK || len(body["docs"].([]any)) != 1 {
		t.Fatalf("list = %d %v", resp.StatusCode, body)
	}

	resp, body = do(t, srv, http.MethodDelete, "/v1/gates/g1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE = %d", resp.StatusCode)
	}
	msg = pub.last(t)
	if msg.snap.Exists() || msg.snap.Revision != int64(body["revision"].(float64)) {
		t.Errorf("tombstone = %+v, body %v", msg.snap, body)
	}

	resp, _ = do(t, srv, http.MethodGet, "/v1/gates/g1", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET deleted = %d, want 404", resp.StatusCode)
	}
}

func TestGateValidation(t *testing.T) {
	srv, _, pub := newTestServer(t, "")
	for _, tc := range []struct {
		name, path, body string
	}{
		{"BadStatus", "/v1/gates/g1", `{"status":"open"}`},
		{"NotObject", "/v1/gates/g1", `[1,2]`},
		{"Garbage", "/v1/gates/g1", `{`},
		{"BadID", "/v1/gates/g.1", `{"status":"idle"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			resp, _ := do(t, srv, http.MethodPut, tc.path, tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
	if n := pub.count(); n != 0 {
		t.Errorf("rejected writes published %d snapshots", n)
	}
}

func TestUsers(t *testing.T) {
	srv, _, pub := newTestServer(t, "")

	resp, body := do(t, srv, http.MethodPost, "/v1/gates/g1/users", `{"name":"Ada","scan_status":""}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST = %d %v", resp.StatusCode, body)
	}
	uid, _ := body["id"].(string)
	if !strings.HasPrefix(uid, "u-") {
		t.Fatalf("generated id = %q", uid)
	}
	msg := pub.last(t)
	if msg.topic != events.UsersTopic("g1") || len(msg.snap.Docs) != 1 {
		t.Fatalf("published %q with %d docs", msg.topic, len(msg.snap.Docs))
	}

	resp, _ = do(t, srv, http.MethodPatch, "/v1/gates/g1/users/"+uid, `{"scan_status":"Approved"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH user = %d", resp.StatusCode)
	}
	resp, body = do(t, srv, http.MethodGet, "/v1/gates/g1/users/"+uid, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET user = %d", resp.StatusCode)
	}
	if data := body["data"].(map[string]any); data["scan_status"] != "Approved" || data["name"] != "Ada" {
		t.Errorf("user data = %v", data)
	}

	resp, _ = do(t, srv, http.MethodPatch, "/v1/gates/g1/users/u-x", `{"age":-3}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid user fields = %d, want 400", resp.StatusCode)
	}

	resp, _ = do(t, srv, http.MethodPut, "/v1/gates/g1/users/u2", `{"name":"Grace"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT user = %d", resp.StatusCode)
	}
	resp, _ = do(t, srv, http.MethodDelete, "/v1/gates/g1/users/u2", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE user = %d", resp.StatusCode)
	}
	if n := len(pub.last(t).snap.Docs); n != 1 {
		t.Errorf("after user delete published %d docs, want 1", n)
	}

	resp, _ = do(t, srv, http.MethodDelete, "/v1/gates/g1/users", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DELETE users = %d", resp.StatusCode)
	}
	if n := len(pub.last(t).snap.Docs); n != 0 {
		t.Errorf("after session end published %d docs, want 0", n)
	}
	resp, body = do(t, srv, http.MethodGet, "/v1/gates/g1/users", "")
	if resp.StatusCode != http.StatusOK || body["docs"] != nil && len(body["docs"].([]any)) != 0 {
		t.Errorf("list after end = %d %v", resp.StatusCode, body)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	srv, _, pub := newTestServer(t, "")
	pub.mu.Lock()
	pub.err = errors.New("bus down")
	pub.mu.Unlock()
	resp, _ := do(t, srv, http.MethodPut, "/v1/gates/g1", `{"status":"idle"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT = %d, want 200", resp.StatusCode)
	}
}

func TestStoreFailure(t *testing.T) {
	srv, store, _ := newTestServer(t, "")
	store.SetFailWrites(errors.New("disk full"))
	resp, body := do(t, srv, http.MethodPut, "/v1/gates/g1", `{"status":"idle"}`)
	if resp.StatusCode != http.StatusInternalServerError || body["error"] != "disk full" {
		t.Fatalf("PUT = %d %v", resp.StatusCode, body)
	}
}

func TestBlobURL(t *testing.T) {
	srv, _, _ := newTestServer(t, "")
	resp, body := do(t, srv, http.MethodGet, "/v1/blobs/url?path=u1/passport.jpg", "")
	if resp.StatusCode != http.StatusOK || body["url"] != "https://img.example.com/u1/passport.jpg" {
		t.Fatalf("blob url = %d %v", resp.StatusCode, body)
	}
	resp, _ = do(t, srv, http.MethodGet, "/v1/blobs/url", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing path = %d, want 400", resp.StatusCode)
	}

	bare := httptest.NewServer(NewGateServer(memstore.New(), nil, nil, nil).NewHTTPHandler(""))
	defer bare.Close()
	resp, _ = do(t, bare, http.MethodGet, "/v1/blobs/url?path=a.jpg", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unconfigured blobs = %d, want 503", resp.StatusCode)
	}
}
