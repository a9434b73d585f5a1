package web

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ritzau/forward-chain/pkg/layout"
	"github.com/ritzau/forward-chain/pkg/legend"
	"github.com/ritzau/forward-chain/pkg/model"
	"github.com/ritzau/forward-chain/pkg/pubsub"
)

func testNetwork() *model.Network {
	net := model.NewNetwork()
	net.Nodes = []*model.Node{
		{ID: "AAA1234", Attributes: model.Attributes{"major": "Computer Science"}, Group: "1", ComponentGroup: 0},
		{ID: "BBB5678", Attributes: model.Attributes{"major": "Unknown"}, Group: "1", ComponentGroup: 0, Placeholder: true},
		{ID: "CCC0001", Attributes: model.Attributes{"major": "History"}, Group: "2", ComponentGroup: 1},
	}
	net.Links = []*model.Link{
		{Source: "AAA1234", Target: "BBB5678", Type: "first", Depth: 1, Group: "1"},
	}
	return net
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(layout.DefaultOptions())
	t.Cleanup(s.Close)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerBeforeNetwork(t *testing.T) {
	s := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/network", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var net model.Network
	if err := json.Unmarshal(rec.Body.Bytes(), &net); err != nil {
		t.Fatalf("Expected network JSON: %v", err)
	}
	if len(net.Nodes) != 0 || len(net.Links) != 0 {
		t.Errorf("Expected empty network, got %d nodes", len(net.Nodes))
	}

	if rec := do(t, s, http.MethodGet, "/api/layout", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for layout before a network, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/layout/drag/start", `{"id":"AAA1234"}`); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 for drag before a network, got %d", rec.Code)
	}
}

func TestServerNetworkAndLegends(t *testing.T) {
	s := newTestServer(t)
	if err := s.SetNetwork(testNetwork(), map[string]int{"nodes": 3}); err != nil {
		t.Fatalf("SetNetwork failed: %v", err)
	}

	rec := do(t, s, http.MethodGet, "/api/network", "")
	var net model.Network
	if err := json.Unmarshal(rec.Body.Bytes(), &net); err != nil {
		t.Fatalf("Expected network JSON: %v", err)
	}
	if len(net.Nodes) != 3 || len(net.Links) != 1 {
		t.Errorf("Expected 3 nodes and 1 link, got %d and %d", len(net.Nodes), len(net.Links))
	}

	var attrs []string
	json.Unmarshal(do(t, s, http.MethodGet, "/api/attributes", "").Body.Bytes(), &attrs)
	if strings.Join(attrs, ",") != "group,major" {
		t.Errorf("Expected attributes group,major, got %v", attrs)
	}

	var entries []legend.Entry
	json.Unmarshal(do(t, s, http.MethodGet, "/api/legend/major", "").Body.Bytes(), &entries)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 major entries, got %+v", entries)
	}
	if last := entries[len(entries)-1]; last.Value != model.Unknown || last.Color != legend.UnknownColor {
		t.Errorf("Expected Unknown last and gray, got %+v", last)
	}

	var links []legend.Entry
	json.Unmarshal(do(t, s, http.MethodGet, "/api/legend/links", "").Body.Bytes(), &links)
	if len(links) != 1 || links[0].Value != "first" || links[0].Color != "#FF0000" {
		t.Errorf("Expected one red first entry, got %+v", links)
	}

	var summary map[string]int
	json.Unmarshal(do(t, s, http.MethodGet, "/api/summary", "").Body.Bytes(), &summary)
	if summary["nodes"] != 3 {
		t.Errorf("Expected summary passed through, got %v", summary)
	}
}

func TestServerLayoutInteraction(t *testing.T) {
	s := newTestServer(t)
	if err := s.SetNetwork(testNetwork(), nil); err != nil {
		t.Fatalf("SetNetwork failed: %v", err)
	}

	var snap layout.Snapshot
	json.Unmarshal(do(t, s, http.MethodGet, "/api/layout", "").Body.Bytes(), &snap)
	if len(snap.Positions) != 3 {
		t.Fatalf("Expected 3 positions, got %d", len(snap.Positions))
	}

	rec := do(t, s, http.MethodPost, "/api/layout/drag/start", `{"id":"AAA1234"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for drag start, got %d: %s", rec.Code, rec.Body)
	}
	rec = do(t, s, http.MethodPost, "/api/layout/drag/move", `{"id":"AAA1234","x":400,"y":300}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 for drag move, got %d", rec.Code)
	}
	json.Unmarshal(rec.Body.Bytes(), &snap)
	if snap.Dragging != "AAA1234" {
		t.Errorf("Expected AAA1234 dragging, got %q", snap.Dragging)
	}

	rec = do(t, s, http.MethodPost, "/api/layout/drag/end", `{"id":"AAA1234"}`)
	json.Unmarshal(rec.Body.Bytes(), &snap)
	if snap.Dragging != "" {
		t.Errorf("Expected no drag after end, got %q", snap.Dragging)
	}

	if rec := do(t, s, http.MethodPost, "/api/layout/drag/start", `{"id":"ZZZ9999"}`); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown node, got %d", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/layout/release", `not json`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for a bad body, got %d", rec.Code)
	}

	if rec := do(t, s, http.MethodPut, "/api/layout/canvas", `{"width":0,"height":100}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid bounds, got %d", rec.Code)
	}
	rec = do(t, s, http.MethodPut, "/api/layout/canvas", `{"width":800,"height":600}`)
	json.Unmarshal(rec.Body.Bytes(), &snap)
	if snap.Width != 800 || snap.Height != 600 {
		t.Errorf("Expected 800x600 canvas, got %gx%g", snap.Width, snap.Height)
	}
	for id, p := range snap.Positions {
		if p.X < 0 || p.X > 800 || p.Y < 0 || p.Y > 600 {
			t.Errorf("Expected %s inside the canvas, got %+v", id, p)
		}
	}
}

func TestServerStatusStream(t *testing.T) {
	s := newTestServer(t)
	if err := s.PublishStatus("building", "building network", 2, 4); err != nil {
		t.Fatalf("PublishStatus failed: %v", err)
	}

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/subscribe/status", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected text/event-stream, got %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event pubsub.Event
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
			t.Fatalf("Expected event JSON: %v", err)
		}
		var status pubsub.Status
		json.Unmarshal(event.Data, &status)
		if event.Topic != pubsub.TopicStatus || status.State != "building" || status.Step != 2 {
			t.Errorf("Expected replayed building 2/4, got %+v / %+v", event, status)
		}
		return
	}
	t.Fatal("Expected a replayed status event")
}

func TestServerStaticViewer(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "app.js") {
		t.Errorf("Expected the viewer page, got %d", rec.Code)
	}
}

func TestServerLegendFollowsNetwork(t *testing.T) {
	s := newTestServer(t)
	if err := s.SetNetwork(testNetwork(), nil); err != nil {
		t.Fatalf("SetNetwork failed: %v", err)
	}

	var entries []legend.Entry
	json.Unmarshal(do(t, s, http.MethodGet, "/api/legend/major", "").Body.Bytes(), &entries)
	json.Unmarshal(do(t, s, http.MethodGet, "/api/legend/major", "").Body.Bytes(), &entries)
	if len(entries) != 3 {
		t.Fatalf("Expected 3 major entries, got %d", len(entries))
	}

	next := testNetwork()
	next.Nodes = next.Nodes[:1]
	next.Links = nil
	if err := s.SetNetwork(next, nil); err != nil {
		t.Fatalf("SetNetwork failed: %v", err)
	}
	json.Unmarshal(do(t, s, http.MethodGet, "/api/legend/major", "").Body.Bytes(), &entries)
	if len(entries) != 1 || entries[0].Value != "Computer Science" {
		t.Errorf("Expected the legend of the new network, got %+v", entries)
	}
}
