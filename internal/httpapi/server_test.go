package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/taskmesh/dispatch/application"
	"github.com/taskmesh/dispatch/domain/scheduler"
	"github.com/taskmesh/dispatch/infrastructure/storage/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, scheduler.ProblemStore) {
	t.Helper()
	store := memory.NewProblemStore()
	registry := memory.NewTaskRegistry(store)
	srv := New(registry, Config{})
	return httptest.NewServer(srv.Handler()), store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	return resp
}

func TestServer_AssignNoProblems(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/task/assign", nil)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestServer_EndToEnd(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t)
	defer ts.Close()

	if _, err := store.GenerateProblem(context.Background()); err != nil {
		t.Fatalf("GenerateProblem: %v", err)
	}

	resp := postJSON(t, ts.URL+"/task/assign", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("assign status = %d, want 200", resp.StatusCode)
	}
	var assigned AssignResponse
	if err := json.NewDecoder(resp.Body).Decode(&assigned); err != nil {
		t.Fatalf("decode assign response: %v", err)
	}
	if assigned.ID == "" {
		t.Fatal("expected a non-empty task id")
	}

	hbResp := postJSON(t, ts.URL+"/task/heartbeat", HeartbeatRequest{TaskID: assigned.ID, Progress: 0.5})
	defer hbResp.Body.Close()
	if hbResp.StatusCode != http.StatusOK {
		t.Fatalf("heartbeat status = %d, want 200", hbResp.StatusCode)
	}

	submitResp := postJSON(t, ts.URL+"/task/submit", SubmitRequest{TaskID: assigned.ID, XSquared: assigned.Problem.X * assigned.Problem.X})
	defer submitResp.Body.Close()
	if submitResp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d, want 200", submitResp.StatusCode)
	}

	// Heartbeat against a completed task is now invalid.
	hbAfter := postJSON(t, ts.URL+"/task/heartbeat", HeartbeatRequest{TaskID: assigned.ID, Progress: 0.9})
	defer hbAfter.Body.Close()
	if hbAfter.StatusCode != http.StatusBadRequest {
		t.Fatalf("post-completion heartbeat status = %d, want 400", hbAfter.StatusCode)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(hbAfter.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Kind != kindInvalidTaskStatus {
		t.Errorf("kind = %q, want %q", errResp.Kind, kindInvalidTaskStatus)
	}
}

func TestServer_SubmitUnknownTask(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/task/submit", SubmitRequest{TaskID: "does-not-exist", XSquared: 4})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Kind != kindTaskNotFound {
		t.Errorf("kind = %q, want %q", errResp.Kind, kindTaskNotFound)
	}
}

func TestServer_HeartbeatUnknownTask(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/task/heartbeat", HeartbeatRequest{TaskID: "does-not-exist", Progress: 0.1})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestServer_AssignsProblemsInAscendingOrder(t *testing.T) {
	t.Parallel()

	ts, store := newTestServer(t)
	defer ts.Close()

	for i := 0; i < 6; i++ {
		if _, err := store.GenerateProblem(context.Background()); err != nil {
			t.Fatalf("GenerateProblem: %v", err)
		}
	}

	for want := uint64(0); want < 6; want++ {
		resp := postJSON(t, ts.URL+"/task/assign", nil)
		var assigned AssignResponse
		err := json.NewDecoder(resp.Body).Decode(&assigned)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("decode assign response: %v", err)
		}
		if assigned.Problem.X != want {
			t.Fatalf("assign #%d: problem.x = %d, want %d", want, assigned.Problem.X, want)
		}
	}
}

func TestServer_RevocationReassignsSameProblem(t *testing.T) {
	t.Parallel()

	store := memory.NewProblemStore()
	registry := memory.NewTaskRegistry(store)
	srv := New(registry, Config{})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	if _, err := store.GenerateProblem(context.Background()); err != nil {
		t.Fatalf("GenerateProblem: %v", err)
	}

	// Worker A assigns and never heartbeats.
	firstResp := postJSON(t, ts.URL+"/task/assign", nil)
	var first AssignResponse
	if err := json.NewDecoder(firstResp.Body).Decode(&first); err != nil {
		t.Fatalf("decode first assign: %v", err)
	}
	firstResp.Body.Close()

	reaper := application.NewReaper(registry, scheduler.Timeouts{
		ReaperPeriod:     time.Millisecond,
		HeartbeatTimeout: 0, // the lease is immediately stale
	}, nil)
	reapCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	reaper.Run(reapCtx)
	cancel()

	// Worker B assigns next; still the same Problem (x=0), a fresh task id.
	secondResp := postJSON(t, ts.URL+"/task/assign", nil)
	var second AssignResponse
	if err := json.NewDecoder(secondResp.Body).Decode(&second); err != nil {
		t.Fatalf("decode second assign: %v", err)
	}
	secondResp.Body.Close()

	if second.Problem.X != first.Problem.X {
		t.Fatalf("second assign problem.x = %d, want %d (same problem re-handed-out)", second.Problem.X, first.Problem.X)
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh task id on reassignment, got the same one")
	}

	submitResp := postJSON(t, ts.URL+"/task/submit", SubmitRequest{TaskID: second.ID, XSquared: second.Problem.X * second.Problem.X})
	submitResp.Body.Close()
	if submitResp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d, want 200", submitResp.StatusCode)
	}

	// Worker A's original lease is gone; its late submission still
	// succeeds, per spec: submission against a revoked task is valuable.
	lateResp := postJSON(t, ts.URL+"/task/submit", SubmitRequest{TaskID: first.ID, XSquared: first.Problem.X * first.Problem.X})
	defer lateResp.Body.Close()
	if lateResp.StatusCode != http.StatusOK {
		t.Fatalf("late submit status = %d, want 200", lateResp.StatusCode)
	}

	count, err := store.UnsolvedCount(context.Background())
	if err != nil {
		t.Fatalf("UnsolvedCount: %v", err)
	}
	if count != 0 {
		t.Errorf("unsolved count = %d, want 0", count)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/task/assign")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}
