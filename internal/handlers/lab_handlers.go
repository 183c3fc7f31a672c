package handlers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jaskrrish/Go-QLab/internal/bv"
	"github.com/jaskrrish/Go-QLab/internal/config"
	"github.com/jaskrrish/Go-QLab/internal/models/lab"
	"github.com/jaskrrish/Go-QLab/internal/primer"
	"github.com/jaskrrish/Go-QLab/internal/qft"
	"github.com/jaskrrish/Go-QLab/internal/qkd"
	"github.com/jaskrrish/Go-QLab/internal/qkd/crypto"
	"github.com/jaskrrish/Go-QLab/internal/qknn"
	"github.com/jaskrrish/Go-QLab/internal/quantum"
	"github.com/jaskrrish/Go-QLab/internal/shifter"
	"github.com/jaskrrish/Go-QLab/internal/store"
)

// RunsPath is the prefix under which stored runs are served.
const RunsPath = "/api/v1/lab/runs/"

const maxBodyBytes = 1 << 20

// LabHandler serves the lab API on top of a Simulator and a RunStore.
type LabHandler struct {
	sim    quantum.Simulator
	runs   *store.RunStore
	bb84   config.BB84Config
	shots  int
	logger *zap.Logger
}

// NewLabHandler creates a handler. bb84 supplies the key exchange defaults.
func NewLabHandler(sim quantum.Simulator, runs *store.RunStore, bb84 config.BB84Config, logger *zap.Logger) *LabHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LabHandler{sim: sim, runs: runs, bb84: bb84, shots: lab.DefaultShots, logger: logger}
}

// SetDefaultShots sets the shots used when a request leaves them out.
func (h *LabHandler) SetDefaultShots(n int) {
	if n > 0 {
		h.shots = n
	}
}

// Register adds every lab route to mux.
func (h *LabHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/lab/health", h.HealthCheckHandler)
	mux.HandleFunc("/api/v1/lab/rotate", h.RotateHandler)
	mux.HandleFunc("/api/v1/lab/bv", h.BVHandler)
	mux.HandleFunc("/api/v1/lab/qpe", h.QPEHandler)
	mux.HandleFunc("/api/v1/lab/bb84", h.BB84Handler)
	mux.HandleFunc("/api/v1/lab/distance", h.DistanceHandler)
	mux.HandleFunc("/api/v1/lab/knn", h.KNNHandler)
	mux.HandleFunc("/api/v1/lab/circuits", h.CircuitHandler)
	mux.HandleFunc("/api/v1/lab/runs", h.ListRunsHandler)
	mux.HandleFunc(RunsPath, h.RunHandler)
}

// badRequest lists the errors caused by the caller's input.
var badRequest = []error{
	quantum.ErrInvalidBitString,
	quantum.ErrInvalidCircuit,
	quantum.ErrInvalidShots,
	shifter.ErrInvalidDirection,
	qft.ErrInvalidPhase,
	qft.ErrInvalidSize,
	qknn.ErrInvalidVector,
	qknn.ErrInvalidProbability,
	qkd.ErrInvalidBasis,
	qkd.ErrLengthMismatch,
	primer.ErrUnknownLesson,
}

// statusFor maps an error to an HTTP status. Anything not caused by the
// request or the run store is a backend failure.
func statusFor(err error) int {
	var reqErr *lab.RequestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest
	}
	for _, target := range badRequest {
		if errors.Is(err, target) {
			return http.StatusBadRequest
		}
	}
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrRunExpired):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (h *LabHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("lab request failed",
			zap.String("path", r.URL.Path),
			zap.String("backend", h.sim.Name()),
			zap.Error(err))
	}
	respondWithError(w, status, err.Error())
}

// shotDefaulter is implemented by requests that carry a shot count.
type shotDefaulter interface {
	ApplyDefaultShots(n int)
}

// decode reads a JSON body into req, fills in the default shots and
// validates it.
func (h *LabHandler) decode(w http.ResponseWriter, r *http.Request, req interface{ Validate() error }) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if d, ok := req.(shotDefaulter); ok {
		d.ApplyDefaultShots(h.shots)
	}
	if err := req.Validate(); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

// record stores a finished run and writes it back to the client.
func (h *LabHandler) record(w http.ResponseWriter, kind lab.RunKind, input, result interface{}) {
	rec, err := h.runs.Put(string(kind), input, result)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to store run")
		return
	}

	h.logger.Info("lab run completed",
		zap.String("kind", string(kind)),
		zap.String("run_id", rec.ID.String()),
		zap.String("backend", h.sim.Name()))

	respondWithJSON(w, http.StatusOK, lab.RunResponse{
		RunID:     rec.ID.String(),
		Kind:      kind,
		Backend:   h.sim.Name(),
		Result:    result,
		CreatedAt: rec.CreatedAt,
		ExpiresAt: rec.ExpiresAt,
	})
}

// RotateHandler handles POST /api/v1/lab/rotate
func (h *LabHandler) RotateHandler(w http.ResponseWriter, r *http.Request) {
	var req lab.RotateRequest
	if !h.decode(w, r, &req) {
		return
	}

	dir, err := shifter.ParseDirection(req.Direction)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := shifter.Run(r.Context(), h.sim, req.Bits, dir, req.Shots)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(w, lab.KindRotate, req, result)
}

// BVHandler handles POST /api/v1/lab/bv
func (h *LabHandler) BVHandler(w http.ResponseWriter, r *http.Request) {
	var req lab.BVRequest
	if !h.decode(w, r, &req) {
		return
	}

	secret, err := bv.ParseSecret(req.Secret)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := bv.Recover(r.Context(), h.sim, secret, req.Shots)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(w, lab.KindBV, req, result)
}

// QPEHandler handles POST /api/v1/lab/qpe
func (h *LabHandler) QPEHandler(w http.ResponseWriter, r *http.Request) {
	var req lab.QPERequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := qft.EstimatePhase(r.Context(), h.sim, req.Theta, req.Counting, req.Shots)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(w, lab.KindQPE, req, result)
}

// bb84Response replaces the raw key bytes with hex.
type bb84Response struct {
	*qkd.KeyExchangeResult
	Key    []byte `json:"key,omitempty"`
	KeyHex string `json:"key_hex,omitempty"`
}

// BB84Handler handles POST /api/v1/lab/bb84
func (h *LabHandler) BB84Handler(w http.ResponseWriter, r *http.Request) {
	var req lab.BB84Request
	if !h.decode(w, r, &req) {
		return
	}

	method := req.Method
	if method == "" {
		method = h.bb84.Amplification
	}
	if req.PostProcessing {
		if _, err := crypto.NewPrivacyAmplifier(crypto.AmplificationMethod(method)); err != nil {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	oversampling := req.Oversampling
	if oversampling == 0 {
		oversampling = h.bb84.Oversampling
	}
	opts := []qkd.Option{
		qkd.WithLogger(h.logger),
		qkd.WithEavesdropper(req.Eavesdropper),
		qkd.WithChannelNoise(req.Noise),
		qkd.WithOversampling(oversampling),
	}
	if req.Seed != 0 {
		opts = append(opts, qkd.WithSeed(req.Seed))
	}
	if req.PostProcessing {
		opts = append(opts, qkd.WithPostProcessing(crypto.AmplificationMethod(method)))
	}

	protocol, err := qkd.NewBB84Protocol(h.sim, req.KeyLength, opts...)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	protocol.SetQBERThreshold(h.bb84.QBERThreshold)
	protocol.SetSampleSize(h.bb84.SampleFraction)

	result, err := protocol.PerformKeyExchange(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(w, lab.KindBB84, req, bb84Response{
		KeyExchangeResult: result,
		KeyHex:            hex.EncodeToString(result.Key),
	})
}

// DistanceHandler handles POST /api/v1/lab/distance
func (h *LabHandler) DistanceHandler(w http.ResponseWriter, r *http.Request) {
	var req lab.DistanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := qknn.EstimateDistance(r.Context(), h.sim, qknn.Vector(req.A), qknn.Vector(req.B), req.Shots)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(w, lab.KindDistance, req, result)
}

// KNNHandler handles POST /api/v1/lab/knn
func (h *LabHandler) KNNHandler(w http.ResponseWriter, r *http.Request) {
	var req lab.KNNRequest
	if !h.decode(w, r, &req) {
		return
	}

	samples := make([]qknn.Sample, len(req.Samples))
	for i, p := range req.Samples {
		samples[i] = qknn.Sample{Label: p.Label, Vector: qknn.Vector(p.Vector)}
	}
	result, err := qknn.Classify(r.Context(), h.sim, qknn.Vector(req.Query), samples, req.K, req.Shots)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(w, lab.KindKNN, req, result)
}

// circuitResponse adds the emitted program to a lesson result.
type circuitResponse struct {
	*primer.Result
	Consistent bool   `json:"consistent"`
	QASM       string `json:"qasm,omitempty"`
}

// CircuitHandler handles POST /api/v1/lab/circuits
func (h *LabHandler) CircuitHandler(w http.ResponseWriter, r *http.Request) {
	var req lab.CircuitRequest
	if !h.decode(w, r, &req) {
		return
	}

	lesson, err := primer.Lookup(req.Lesson)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Lesson == "ghz" && req.Qubits != 0 {
		n := req.Qubits
		lesson = primer.Lesson{
			Name:     "ghz",
			Expected: primer.GHZOutcomes(n),
			Build:    func() (*quantum.Circuit, error) { return primer.GHZ(n) },
		}
	}

	result, err := lesson.Run(r.Context(), h.sim, req.Shots)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := circuitResponse{Result: result, Consistent: result.Consistent()}
	if req.QASM {
		c, err := lesson.Build()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.QASM = c.QASM()
	}
	h.record(w, lab.KindCircuit, req, resp)
}

// ListRunsHandler handles GET /api/v1/lab/runs?kind=
func (h *LabHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"runs": h.runs.List(r.URL.Query().Get("kind")),
	})
}

// RunHandler handles GET and DELETE /api/v1/lab/runs/{id}
func (h *LabHandler) RunHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(strings.TrimPrefix(r.URL.Path, RunsPath))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := h.runs.Get(id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, rec)
	case http.MethodDelete:
		if err := h.runs.Delete(id); err != nil {
			h.fail(w, r, err)
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]string{
			"message": "Run deleted",
		})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HealthCheckHandler handles GET /api/v1/lab/health
func (h *LabHandler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"service":   "Quantum Lab",
		"version":   Version,
		"backend":   h.sim.Name(),
		"runs":      h.runs.Len(),
		"lessons":   primer.Names(),
		"timestamp": time.Now().Format(time.RFC3339),
	}

	respondWithJSON(w, http.StatusOK, health)
}
