package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/reelforge/reelforge/internal/config"
	"github.com/reelforge/reelforge/internal/credits"
	"github.com/reelforge/reelforge/internal/gen"
	"github.com/reelforge/reelforge/internal/runstore"
	"github.com/reelforge/reelforge/internal/validator"
	"github.com/reelforge/reelforge/internal/workflowstore"
	"github.com/reelforge/reelforge/pkg/types"
)

type fakeGenerator struct{}

func (fakeGenerator) Generate(_ context.Context, req gen.Request) (string, error) {
	ext := "png"
	if req.Kind == gen.KindVideo {
		ext = "mp4"
	}
	return fmt.Sprintf("https://cdn.test/%s.%s", strings.ReplaceAll(req.Prompt, " ", "-"), ext), nil
}

func newTestServer(t *testing.T, ledger credits.Ledger) (*httptest.Server, *Handlers) {
	t.Helper()

	v, err := validator.New()
	if err != nil {
		t.Fatalf("validator.New: %v", err)
	}

	var pricer credits.Pricer
	if ledger != nil {
		pricer = credits.StaticPricer{Default: 1}
	}

	h := NewHandlers(Deps{
		Workflows: workflowstore.NewMemoryStore(),
		Runs:      runstore.NewMemoryStore(nil),
		Validator: v,
		Generator: fakeGenerator{},
		Ledger:    ledger,
		Pricer:    pricer,
		Config: &config.Config{
			CORSOrigins:      []string{"*"},
			BatchConcurrency: 2,
			RunTimeout:       time.Minute,
		},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	srv := httptest.NewServer(NewServer(h).Router())
	t.Cleanup(srv.Close)
	return srv, h
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		buf = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func pipelineGraph() map[string]any {
	return map[string]any{
		"nodes": []map[string]any{
			{"id": "in", "type": "input", "data": map[string]any{"name": "topic", "inputType": "string", "required": true}},
			{"id": "t1", "type": "text", "data": map[string]any{"value": "a story about {topic}"}},
			{"id": "out", "type": "output", "data": map[string]any{"name": "result", "outputType": "text"}},
		},
		"edges": []map[string]any{
			{"id": "e1", "source": "in", "target": "t1", "targetHandle": "topic"},
			{"id": "e2", "source": "t1", "target": "out", "targetHandle": "value"},
		},
	}
}

func TestHealthAndReady(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, _ := doJSON(t, "GET", srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health = %d", resp.StatusCode)
	}

	resp, body := doJSON(t, "GET", srv.URL+"/ready", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ready = %d: %s", resp.StatusCode, body)
	}
}

func TestWorkflowCRUDHTTP(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := doJSON(t, "POST", srv.URL+"/api/v1/workflows", map[string]any{
		"name":  "story pipeline",
		"graph": pipelineGraph(),
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create = %d: %s", resp.StatusCode, body)
	}
	var wf workflowstore.Workflow
	if err := json.Unmarshal(body, &wf); err != nil {
		t.Fatalf("decode workflow: %v", err)
	}
	if wf.ID == "" || wf.Version != 1 {
		t.Errorf("workflow = %+v", wf)
	}

	resp, body = doJSON(t, "GET", srv.URL+"/api/v1/workflows/"+wf.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get = %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, "PUT", srv.URL+"/api/v1/workflows/"+wf.ID, map[string]any{"name": "renamed"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update = %d: %s", resp.StatusCode, body)
	}
	var updated workflowstore.Workflow
	json.Unmarshal(body, &updated)
	if updated.Name != "renamed" || updated.Version != 2 {
		t.Errorf("updated = %+v", updated)
	}

	resp, body = doJSON(t, "GET", srv.URL+"/api/v1/workflows", nil)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("renamed")) {
		t.Errorf("list = %d: %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, "DELETE", srv.URL+"/api/v1/workflows/"+wf.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, "GET", srv.URL+"/api/v1/workflows/"+wf.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d", resp.StatusCode)
	}
}

func TestCreateWorkflowRejectsInvalidGraph(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := doJSON(t, "POST", srv.URL+"/api/v1/workflows", map[string]any{
		"name": "bad",
		"graph": map[string]any{
			"nodes": []map[string]any{
				{"id": "x", "type": "teleport", "data": map[string]any{}},
			},
		},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("create invalid = %d: %s", resp.StatusCode, body)
	}
}

func TestWorkflowSchemaEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	_, body := doJSON(t, "POST", srv.URL+"/api/v1/workflows", map[string]any{
		"name":  "wf",
		"graph": pipelineGraph(),
	})
	var wf workflowstore.Workflow
	json.Unmarshal(body, &wf)

	resp, body := doJSON(t, "GET", srv.URL+"/api/v1/workflows/"+wf.ID+"/schema", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("schema = %d: %s", resp.StatusCode, body)
	}

	var s struct {
		Inputs  []map[string]any `json:"inputs"`
		Outputs []map[string]any `json:"outputs"`
	}
	if err := json.Unmarshal(body, &s); err != nil {
		t.Fatalf("decode schema: %v", err)
	}
	if len(s.Inputs) != 1 || s.Inputs[0]["name"] != "topic" {
		t.Errorf("inputs = %v", s.Inputs)
	}
	if len(s.Outputs) != 1 || s.Outputs[0]["name"] != "result" {
		t.Errorf("outputs = %v", s.Outputs)
	}
}

func TestRunWorkflowSync(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	_, body := doJSON(t, "POST", srv.URL+"/api/v1/workflows", map[string]any{
		"name":  "wf",
		"graph": pipelineGraph(),
	})
	var wf workflowstore.Workflow
	json.Unmarshal(body, &wf)

	resp, body := doJSON(t, "POST", srv.URL+"/api/v1/workflows/"+wf.ID+"/run", map[string]any{
		"inputs": map[string]any{"topic": "dogs"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run = %d: %s", resp.StatusCode, body)
	}

	var run types.Run
	if err := json.Unmarshal(body, &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != types.RunStatusCompleted {
		t.Fatalf("status = %q, error = %q", run.Status, run.Error)
	}
	if got := run.Result.Outputs["result"].Value; got != "a story about dogs" {
		t.Errorf("output = %q", got)
	}
}

func TestRunWorkflowMissingRequiredInput(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	_, body := doJSON(t, "POST", srv.URL+"/api/v1/workflows", map[string]any{
		"name":  "wf",
		"graph": pipelineGraph(),
	})
	var wf workflowstore.Workflow
	json.Unmarshal(body, &wf)

	resp, body := doJSON(t, "POST", srv.URL+"/api/v1/workflows/"+wf.ID+"/run", map[string]any{
		"inputs": map[string]any{},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("run = %d: %s", resp.StatusCode, body)
	}
	if !bytes.Contains(body, []byte("required input")) {
		t.Errorf("body = %s", body)
	}
}

func waitForRun(t *testing.T, srv *httptest.Server, runID string) *types.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, body := doJSON(t, "GET", srv.URL+"/api/v1/runs/"+runID, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("get run = %d: %s", resp.StatusCode, body)
		}
		var run types.Run
		if err := json.Unmarshal(body, &run); err != nil {
			t.Fatalf("decode run: %v", err)
		}
		switch run.Status {
		case types.RunStatusCompleted, types.RunStatusFailed, types.RunStatusCancelled:
			return &run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not finish in time")
	return nil
}

func TestExecuteGraphAsyncAndEvents(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := doJSON(t, "POST", srv.URL+"/api/v1/runs", map[string]any{
		"graph": pipelineGraph(),
		"inputs": map[string]any{
			"topic": "cats",
		},
		"async": true,
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("async run = %d: %s", resp.StatusCode, body)
	}
	var accepted struct {
		RunID string `json:"runId"`
	}
	json.Unmarshal(body, &accepted)
	if accepted.RunID == "" {
		t.Fatalf("accepted = %s", body)
	}

	run := waitForRun(t, srv, accepted.RunID)
	if run.Status != types.RunStatusCompleted {
		t.Fatalf("status = %q, error = %q", run.Status, run.Error)
	}

	// Finished run: the event stream replays history and closes.
	resp, body = doJSON(t, "GET", srv.URL+"/api/v1/runs/"+accepted.RunID+"/events", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("events = %d", resp.StatusCode)
	}
	text := string(body)
	if !strings.Contains(text, "event: node_status") {
		t.Errorf("stream missing node events: %s", text)
	}
	if !strings.Contains(text, "event: stream_end") {
		t.Errorf("stream missing end marker: %s", text)
	}
}

func TestCancelRunNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, _ := doJSON(t, "POST", srv.URL+"/api/v1/runs/missing/cancel", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("cancel = %d", resp.StatusCode)
	}
}

func TestValidateEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, body := doJSON(t, "POST", srv.URL+"/api/v1/validate", map[string]any{
		"graph": map[string]any{
			"nodes": []map[string]any{
				{"id": "img", "type": "image", "data": map[string]any{"value": "https://x.test/a.png"}},
				{"id": "t1", "type": "text", "data": map[string]any{"value": "hello"}},
			},
			"edges": []map[string]any{
				// image into a text node is a legal media-as-text coercion
				{"id": "e1", "source": "img", "target": "t1"},
			},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate = %d: %s", resp.StatusCode, body)
	}
	var result validator.ValidationResult
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Valid {
		t.Errorf("result = %+v", result)
	}
}

func TestCreditsEndpoints(t *testing.T) {
	ledger := credits.NewMemoryLedger()
	srv, _ := newTestServer(t, ledger)

	resp, body := doJSON(t, "POST", srv.URL+"/api/v1/credits/grant", map[string]any{"amount": 5.0})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("grant = %d: %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, "GET", srv.URL+"/api/v1/credits/balance", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("balance = %d: %s", resp.StatusCode, body)
	}
	var account credits.Account
	json.Unmarshal(body, &account)
	if account.Balance != 5 {
		t.Errorf("balance = %v", account.Balance)
	}
}

func TestRunDeductsCredits(t *testing.T) {
	ledger := credits.NewMemoryLedger()
	srv, _ := newTestServer(t, ledger)

	doJSON(t, "POST", srv.URL+"/api/v1/credits/grant", map[string]any{"amount": 5.0})

	resp, body := doJSON(t, "POST", srv.URL+"/api/v1/runs", map[string]any{
		"graph": map[string]any{
			"nodes": []map[string]any{
				{"id": "t1", "type": "text", "data": map[string]any{"value": "a beach at dusk"}},
				{"id": "g1", "type": "imageGen", "data": map[string]any{}},
			},
			"edges": []map[string]any{
				{"id": "e1", "source": "t1", "target": "g1", "targetHandle": "prompt"},
			},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run = %d: %s", resp.StatusCode, body)
	}
	var run types.Run
	json.Unmarshal(body, &run)
	if run.Status != types.RunStatusCompleted {
		t.Fatalf("status = %q, error = %q", run.Status, run.Error)
	}

	account, err := ledger.Balance(context.Background(), "anonymous")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if account.Balance != 4 {
		t.Errorf("balance after run = %v", account.Balance)
	}
}

func TestInsufficientCreditsFailsGeneration(t *testing.T) {
	ledger := credits.NewMemoryLedger()
	srv, _ := newTestServer(t, ledger)

	// No grant: the generative node cannot pay and fails, while the run
	// still finishes with its other outputs.
	resp, body := doJSON(t, "POST", srv.URL+"/api/v1/runs", map[string]any{
		"graph": map[string]any{
			"nodes": []map[string]any{
				{"id": "t1", "type": "text", "data": map[string]any{"value": "a beach"}},
				{"id": "g1", "type": "imageGen", "data": map[string]any{}},
			},
			"edges": []map[string]any{
				{"id": "e1", "source": "t1", "target": "g1", "targetHandle": "prompt"},
			},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run = %d: %s", resp.StatusCode, body)
	}
	var run types.Run
	json.Unmarshal(body, &run)
	if run.Status != types.RunStatusFailed {
		t.Fatalf("status = %q", run.Status)
	}

	state := run.Result.NodeStates["g1"]
	if state.Status != types.NodeStatusFailed {
		t.Errorf("g1 state = %+v", state)
	}
}

func TestPresignWithoutMediaStore(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp, _ := doJSON(t, "POST", srv.URL+"/api/v1/uploads/presign", map[string]any{"ext": "png"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("presign = %d", resp.StatusCode)
	}
}
