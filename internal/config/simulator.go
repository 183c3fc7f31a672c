package config

import (
	pkgerrors "github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jaskrrish/Go-QLab/internal/quantum"
)

// NewSimulator builds the executor selected by c.Simulator.Backend.
func (c *Config) NewSimulator(logger *zap.Logger) (quantum.Simulator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch c.Simulator.Backend {
	case BackendLocal:
		opts := []quantum.LocalOption{quantum.WithLogger(logger)}
		if c.Simulator.Seed != 0 {
			opts = append(opts, quantum.WithSeed(c.Simulator.Seed))
		}
		return quantum.NewLocalSimulator(opts...), nil

	case BackendQiskit:
		client, err := quantum.NewQiskitClient(&quantum.QiskitConfig{
			APIKey:       c.Qiskit.APIKey,
			BaseURL:      c.Qiskit.BaseURL,
			BackendName:  c.Qiskit.BackendName,
			PollInterval: c.Qiskit.PollInterval,
			MaxWait:      c.Qiskit.MaxWait,
		}, logger)
		if err != nil {
			return nil, err
		}
		return quantum.NewQiskitBackend(client), nil

	default:
		return nil, pkgerrors.Wrapf(ErrInvalidConfig, "unknown simulator backend %q", c.Simulator.Backend)
	}
}
