package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jaskrrish/Go-QLab/internal/config"
	"github.com/jaskrrish/Go-QLab/internal/quantum"
	"github.com/jaskrrish/Go-QLab/internal/store"
)

func newTestServer(t *testing.T, sim quantum.Simulator) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", HomeHandler)
	mux.HandleFunc("/health", HealthHandler)
	NewLabHandler(sim, store.New(), config.Default().BB84, nil).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

type runEnvelope struct {
	RunID   string          `json:"run_id"`
	Kind    string          `json:"kind"`
	Backend string          `json:"backend"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
}

func post(t *testing.T, srv *httptest.Server, path, body string) (int, runEnvelope) {
	t.Helper()
	resp, err := http.Post(srv.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env runEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, env
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, quantum.NewLocalSimulator(quantum.WithSeed(1)))

	for _, path := range []string{"/", "/health", "/api/v1/lab/health"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status %d", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: content type %q", path, ct)
		}
	}

	resp, err := http.Get(srv.URL + "/nowhere")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestLabOperations(t *testing.T) {
	srv := newTestServer(t, quantum.NewLocalSimulator(quantum.WithSeed(4)))

	tests := []struct {
		name  string
		path  string
		body  string
		check func(t *testing.T, result map[string]interface{})
	}{
		{
			"Rotate right",
			"/api/v1/lab/rotate",
			`{"bits":"1011","direction":"right","shots":64}`,
			func(t *testing.T, r map[string]interface{}) {
				if r["output"] != "1101" || r["expected"] != "1101" {
					t.Errorf("unexpected rotation %v", r)
				}
			},
		},
		{
			"Bernstein-Vazirani",
			"/api/v1/lab/bv",
			`{"secret":"10110","shots":32}`,
			func(t *testing.T, r map[string]interface{}) {
				if r["recovered"] != "10110" {
					t.Errorf("recovered %v", r["recovered"])
				}
			},
		},
		{
			"Phase estimation",
			"/api/v1/lab/qpe",
			`{"theta":0.25,"counting":3,"shots":128}`,
			func(t *testing.T, r map[string]interface{}) {
				if r["outcome"] != "010" || r["phase"].(float64) != 0.25 {
					t.Errorf("unexpected estimate %v", r)
				}
			},
		},
		{
			"Key exchange",
			"/api/v1/lab/bb84",
			`{"key_length":32,"seed":5}`,
			func(t *testing.T, r map[string]interface{}) {
				if r["secure"] != true {
					t.Errorf("expected secure exchange: %v", r["message"])
				}
				if key, _ := r["key_hex"].(string); len(key) != 8 {
					t.Errorf("expected 32-bit hex key, got %q", key)
				}
				if _, ok := r["key"]; ok {
					t.Error("raw key bytes should not be serialised")
				}
			},
		},
		{
			"Distance",
			"/api/v1/lab/distance",
			`{"a":[1,0],"b":[1,0],"shots":100}`,
			func(t *testing.T, r map[string]interface{}) {
				if r["distance"].(float64) != 0 {
					t.Errorf("expected zero distance, got %v", r["distance"])
				}
			},
		},
		{
			"Nearest neighbour",
			"/api/v1/lab/knn",
			`{"query":[1,0.1],"samples":[{"label":"x","vector":[1,0]},{"label":"y","vector":[0,1]}],"k":1,"shots":500}`,
			func(t *testing.T, r map[string]interface{}) {
				if r["label"] != "x" {
					t.Errorf("classified as %v", r["label"])
				}
			},
		},
		{
			"Bell lesson with program",
			"/api/v1/lab/circuits",
			`{"lesson":"bell","qasm":true,"shots":200}`,
			func(t *testing.T, r map[string]interface{}) {
				if r["consistent"] != true {
					t.Errorf("inconsistent bell outcomes %v", r["counts"])
				}
				if q, _ := r["qasm"].(string); !strings.HasPrefix(q, "OPENQASM 2.0;") {
					t.Errorf("missing program: %q", q)
				}
			},
		},
		{
			"Wide GHZ lesson",
			"/api/v1/lab/circuits",
			`{"lesson":"ghz","qubits":5,"shots":200}`,
			func(t *testing.T, r map[string]interface{}) {
				counts := r["counts"].(map[string]interface{})
				for outcome := range counts {
					if outcome != "00000" && outcome != "11111" {
						t.Errorf("unexpected outcome %s", outcome)
					}
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := post(t, srv, tt.path, tt.body)
			if status != http.StatusOK {
				t.Fatalf("status %d: %s", status, env.Error)
			}
			if env.RunID == "" {
				t.Error("missing run id")
			}
			if env.Backend != "local-statevector" {
				t.Errorf("backend %q", env.Backend)
			}
			var result map[string]interface{}
			if err := json.Unmarshal(env.Result, &result); err != nil {
				t.Fatal(err)
			}
			tt.check(t, result)
		})
	}
}

func TestValidationErrors(t *testing.T) {
	srv := newTestServer(t, quantum.NewLocalSimulator(quantum.WithSeed(2)))

	tests := []struct {
		name string
		path string
		body string
	}{
		{"Malformed JSON", "/api/v1/lab/rotate", `{"bits":`},
		{"Missing bits", "/api/v1/lab/rotate", `{"direction":"left"}`},
		{"Invalid direction", "/api/v1/lab/rotate", `{"bits":"10","direction":"up"}`},
		{"Invalid bits", "/api/v1/lab/rotate", `{"bits":"10a","direction":"left"}`},
		{"Secret too wide", "/api/v1/lab/bv", `{"secret":"111111111111"}`},
		{"Phase out of range", "/api/v1/lab/qpe", `{"theta":1.5}`},
		{"Counting register too wide", "/api/v1/lab/qpe", `{"theta":0.5,"counting":12}`},
		{"Key length zero", "/api/v1/lab/bb84", `{"key_length":0}`},
		{"Unknown amplification", "/api/v1/lab/bb84", `{"key_length":8,"post_processing":true,"method":"MD5"}`},
		{"Oversampling that overflows", "/api/v1/lab/bb84", `{"key_length":4096,"oversampling":2251799813685248}`},
		{"Oversampling above limit", "/api/v1/lab/bb84", `{"key_length":8,"oversampling":17}`},
		{"Too many samples", "/api/v1/lab/knn", `{"query":[1,0],"samples":[` +
			strings.TrimSuffix(strings.Repeat(`{"label":"a","vector":[1,0]},`, 65), ",") + `]}`},
		{"Zero vector", "/api/v1/lab/distance", `{"a":[0,0],"b":[1,0]}`},
		{"Unknown lesson", "/api/v1/lab/circuits", `{"lesson":"teleport"}`},
		{"GHZ too wide", "/api/v1/lab/circuits", `{"lesson":"ghz","qubits":40}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := post(t, srv, tt.path, tt.body)
			if status != http.StatusBadRequest {
				t.Errorf("expected 400, got %d (%s)", status, env.Error)
			}
			if env.Error == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestConfiguredDefaultShots(t *testing.T) {
	mux := http.NewServeMux()
	h := NewLabHandler(quantum.NewLocalSimulator(quantum.WithSeed(3)), store.New(), config.Default().BB84, nil)
	h.SetDefaultShots(7)
	h.Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	tests := []struct {
		body string
		want int
	}{
		{`{"secret":"101"}`, 7},
		{`{"secret":"101","shots":12}`, 12},
	}
	for _, tt := range tests {
		status, env := post(t, srv, "/api/v1/lab/bv", tt.body)
		if status != http.StatusOK {
			t.Fatalf("status %d: %s", status, env.Error)
		}
		var result struct {
			Counts quantum.Counts `json:"counts"`
		}
		if err := json.Unmarshal(env.Result, &result); err != nil {
			t.Fatal(err)
		}
		if got := result.Counts.Shots(); got != tt.want {
			t.Errorf("%s: ran %d shots, want %d", tt.body, got, tt.want)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, quantum.NewLocalSimulator(quantum.WithSeed(2)))

	resp, err := http.Get(srv.URL + "/api/v1/lab/rotate")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", resp.StatusCode)
	}
}

func TestBackendFailure(t *testing.T) {
	failing := quantum.SimulatorFunc(func(ctx context.Context, c *quantum.Circuit, shots int) (quantum.Counts, error) {
		return nil, errors.New("device offline")
	})
	srv := newTestServer(t, failing)

	status, env := post(t, srv, "/api/v1/lab/bv", `{"secret":"101"}`)
	if status != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", status)
	}
	if !strings.Contains(env.Error, "device offline") {
		t.Errorf("error should carry the backend cause: %q", env.Error)
	}
}

func TestRunLifecycle(t *testing.T) {
	srv := newTestServer(t, quantum.NewLocalSimulator(quantum.WithSeed(9)))

	status, env := post(t, srv, "/api/v1/lab/rotate", `{"bits":"0011","direction":"left","shots":16}`)
	if status != http.StatusOK {
		t.Fatalf("status %d", status)
	}

	resp, err := http.Get(srv.URL + RunsPath + env.RunID)
	if err != nil {
		t.Fatal(err)
	}
	var rec store.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || rec.Kind != "rotate" || rec.ID.String() != env.RunID {
		t.Fatalf("unexpected record %d %+v", resp.StatusCode, rec)
	}
	var input map[string]interface{}
	if err := json.Unmarshal(rec.Input, &input); err != nil {
		t.Fatal(err)
	}
	if input["bits"] != "0011" {
		t.Errorf("stored input %v", input)
	}

	resp, err = http.Get(srv.URL + "/api/v1/lab/runs?kind=rotate")
	if err != nil {
		t.Fatal(err)
	}
	var list struct {
		Runs []store.Summary `json:"runs"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	resp.Body.Close()
	if len(list.Runs) != 1 {
		t.Errorf("expected one listed run, got %d", len(list.Runs))
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+RunsPath+env.RunID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete status %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + RunsPath + env.RunID)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + RunsPath + "not-a-uuid")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed id, got %d", resp.StatusCode)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{quantum.ErrInvalidBitString, http.StatusBadRequest},
		{store.ErrRunNotFound, http.StatusNotFound},
		{store.ErrRunExpired, http.StatusGone},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{quantum.ErrJobFailed, http.StatusBadGateway},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
