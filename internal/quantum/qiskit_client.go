package quantum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// QiskitConfig holds IBM Quantum REST API configuration
type QiskitConfig struct {
	// IBM Cloud API Key
	APIKey string

	// Base URL for IBM Quantum API
	BaseURL string

	// Backend name (e.g., "ibmq_qasm_simulator", "ibm_kyoto")
	BackendName string

	// PollInterval between job status checks
	PollInterval time.Duration

	// MaxWait bounds a synchronous execution
	MaxWait time.Duration

	// HTTP client with timeout
	HTTPClient *http.Client
}

// QiskitClient handles IBM Quantum REST API interactions
type QiskitClient struct {
	config *QiskitConfig
	logger *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// QiskitJob represents a quantum job
type QiskitJob struct {
	ID        string    `json:"id"`
	Backend   string    `json:"backend"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created"`
}

// QiskitResult represents job execution results
type QiskitResult struct {
	Counts        map[string]int `json:"counts"`
	Success       bool           `json:"success"`
	StatusMsg     string         `json:"status"`
	JobID         string         `json:"job_id"`
	ExecutionTime float64        `json:"execution_time"`
}

// QiskitCircuit is a job submission payload
type QiskitCircuit struct {
	QASM    string `json:"qasm"`
	Shots   int    `json:"shots"`
	Backend string `json:"backend"`
}

// IBM Quantum API endpoints
const (
	DefaultQiskitURL = "https://api.quantum-computing.ibm.com"
	TokenEndpoint    = "/api/auth/login"
	JobsEndpoint     = "/api/Network/ibm-q/Groups/open/Projects/main/Jobs"
	BackendsEndpoint = "/api/Network/ibm-q/Groups/open/Projects/main/devices"
)

// Job status constants
const (
	JobStatusQueued    = "QUEUED"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusCancelled = "CANCELLED"
)

// ErrJobFailed is returned when a remote job ends in FAILED or CANCELLED.
var ErrJobFailed = errors.New("remote job did not complete")

// NewQiskitClient creates a new API client. Authentication happens on first
// use.
func NewQiskitClient(config *QiskitConfig, logger *zap.Logger) (*QiskitClient, error) {
	if config.APIKey == "" {
		return nil, errors.New("IBM Cloud API key is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultQiskitURL
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	if config.MaxWait <= 0 {
		config.MaxWait = 5 * time.Minute
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QiskitClient{config: config, logger: logger}, nil
}

// do sends a JSON request and decodes a JSON response into out when out is
// non-nil. auth adds the bearer token.
func (c *QiskitClient) do(ctx context.Context, method, path string, body, out interface{}, auth bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.WithStack(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return errors.WithStack(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+c.token())
	}

	resp, err := c.config.HTTPClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return errors.Errorf("%s %s: %s (status: %d)", method, path, bytes.TrimSpace(msg), resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return errors.Wrapf(json.NewDecoder(resp.Body).Decode(out), "decode %s", path)
}

func (c *QiskitClient) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// authenticate obtains an access token from IBM Cloud
func (c *QiskitClient) authenticate(ctx context.Context) error {
	var result struct {
		ID          string `json:"id"`
		TTL         int    `json:"ttl"`
		AccessToken string `json:"access_token"`
	}

	payload := map[string]string{"apiToken": c.config.APIKey}
	if err := c.do(ctx, http.MethodPost, TokenEndpoint, payload, &result, false); err != nil {
		return errors.Wrap(err, "authentication failed")
	}

	c.mu.Lock()
	c.accessToken = result.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(result.TTL) * time.Second)
	c.mu.Unlock()

	c.logger.Debug("qiskit token refreshed", zap.Int("ttl_seconds", result.TTL))
	return nil
}

// ensureAuthenticated refreshes the token five minutes before expiry
func (c *QiskitClient) ensureAuthenticated(ctx context.Context) error {
	c.mu.Lock()
	expired := c.accessToken == "" || time.Now().After(c.tokenExpiry.Add(-5*time.Minute))
	c.mu.Unlock()

	if expired {
		return c.authenticate(ctx)
	}
	return nil
}

// SubmitJob submits a quantum circuit for execution
func (c *QiskitClient) SubmitJob(ctx context.Context, circuit *QiskitCircuit) (*QiskitJob, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var job QiskitJob
	if err := c.do(ctx, http.MethodPost, JobsEndpoint, circuit, &job, true); err != nil {
		return nil, errors.Wrap(err, "job submission failed")
	}
	return &job, nil
}

// GetJobStatus retrieves the status of a quantum job
func (c *QiskitClient) GetJobStatus(ctx context.Context, jobID string) (*QiskitJob, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var job QiskitJob
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%s", JobsEndpoint, jobID), nil, &job, true); err != nil {
		return nil, errors.Wrap(err, "get job status failed")
	}
	return &job, nil
}

// WaitForJob polls until the job leaves the queue or ctx ends.
func (c *QiskitClient) WaitForJob(ctx context.Context, jobID string) (*QiskitJob, error) {
	ticker := time.NewTicker(c.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(ctx.Err(), "job %s", jobID)

		case <-ticker.C:
			job, err := c.GetJobStatus(ctx, jobID)
			if err != nil {
				return nil, err
			}

			switch job.Status {
			case JobStatusCompleted:
				return job, nil
			case JobStatusFailed, JobStatusCancelled:
				return job, errors.Wrapf(ErrJobFailed, "job %s: %s", jobID, job.Status)
			}
			c.logger.Debug("qiskit job pending", zap.String("job_id", jobID), zap.String("status", job.Status))
		}
	}
}

// GetJobResult retrieves the results of a completed job
func (c *QiskitClient) GetJobResult(ctx context.Context, jobID string) (*QiskitResult, error) {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return nil, err
	}

	var result QiskitResult
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%s/results", JobsEndpoint, jobID), nil, &result, true); err != nil {
		return nil, errors.Wrap(err, "get job result failed")
	}
	return &result, nil
}

// CancelJob cancels a running or queued job
func (c *QiskitClient) CancelJob(ctx context.Context, jobID string) error {
	if err := c.ensureAuthenticated(ctx); err != nil {
		return err
	}
	return errors.Wrap(
		c.do(ctx, http.MethodPost, fmt.Sprintf("%s/%s/cancel", JobsEndpoint, jobID), nil, nil, true),
		"cancel job failed")
}

// ExecuteCircuitSync submits, waits and fetches results. The wait is bounded
// by MaxWait; a job abandoned by timeout is cancelled on a best-effort basis.
func (c *QiskitClient) ExecuteCircuitSync(ctx context.Context, circuit *QiskitCircuit) (*QiskitResult, error) {
	job, err := c.SubmitJob(ctx, circuit)
	if err != nil {
		return nil, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, c.config.MaxWait)
	defer cancel()

	completed, err := c.WaitForJob(waitCtx, job.ID)
	if err != nil {
		if waitCtx.Err() != nil {
			cancelCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
			if cerr := c.CancelJob(cancelCtx, job.ID); cerr != nil {
				c.logger.Warn("cancel abandoned job", zap.String("job_id", job.ID), zap.Error(cerr))
			}
			stop()
		}
		return nil, errors.Wrap(err, "job execution failed")
	}

	result, err := c.GetJobResult(ctx, completed.ID)
	if err != nil {
		return nil, errors.Wrap(err, "result retrieval failed")
	}
	if !result.Success {
		return nil, errors.Wrapf(ErrJobFailed, "job %s: %s", completed.ID, result.StatusMsg)
	}
	return result, nil
}

// QiskitBackend runs circuits on a remote Qiskit-compatible service.
type QiskitBackend struct {
	client *QiskitClient
}

// NewQiskitBackend wraps a client as a Simulator.
func NewQiskitBackend(client *QiskitClient) *QiskitBackend {
	return &QiskitBackend{client: client}
}

// Name returns the backend name.
func (q *QiskitBackend) Name() string {
	return "qiskit-" + q.client.config.BackendName
}

// Run emits c as OpenQASM 2.0 and executes it remotely.
func (q *QiskitBackend) Run(ctx context.Context, c *Circuit, shots int) (Counts, error) {
	if err := CheckRunnable(c, shots); err != nil {
		return nil, err
	}

	result, err := q.client.ExecuteCircuitSync(ctx, &QiskitCircuit{
		QASM:    c.QASM(),
		Shots:   shots,
		Backend: q.client.config.BackendName,
	})
	if err != nil {
		return nil, err
	}
	return Counts(result.Counts), nil
}
