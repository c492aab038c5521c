package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeSource struct {
	leader     string
	isLeader   bool
	liveNodes  []string
	stableCnt  int
}

func (f fakeSource) CurrentLeader() string  { return f.leader }
func (f fakeSource) IsLeader() bool         { return f.isLeader }
func (f fakeSource) LiveNodes() []string    { return f.liveNodes }
func (f fakeSource) StabilizedCount() int   { return f.stableCnt }

func TestHealthzReturnsOK(t *testing.T) {
	router := NewRouter("node-1", fakeSource{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestStatusReportsNodeState(t *testing.T) {
	src := fakeSource{leader: "node-2", isLeader: false, liveNodes: []string{"node-1", "node-2"}, stableCnt: 7}
	router := NewRouter("node-1", src)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["currentLeader"] != "node-2" {
		t.Fatalf("currentLeader = %v, want node-2", body["currentLeader"])
	}
	if body["stabilizedCount"].(float64) != 7 {
		t.Fatalf("stabilizedCount = %v, want 7", body["stabilizedCount"])
	}
}
