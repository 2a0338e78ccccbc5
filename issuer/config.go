package issuer

import (
	"time"

	"github.com/TEENet-io/splminter-go/agreement"
)

type Config struct {
	// Commitment a tx must reach before the next step runs
	Commitment agreement.Commitment

	// Frequency to poll the status of a submitted tx
	PollInterval time.Duration

	// Timeout on waiting for one tx to be confirmed
	ConfirmTimeout time.Duration

	// Cluster name, only used to build explorer links in logs
	Cluster string
}

func DefaultConfig() *Config {
	return &Config{
		Commitment:     agreement.CommitmentConfirmed,
		PollInterval:   500 * time.Millisecond,
		ConfirmTimeout: 60 * time.Second,
		Cluster:        "devnet",
	}
}

func (cfg *Config) withDefaults() *Config {
	c := *cfg
	def := DefaultConfig()
	if c.Commitment == "" {
		c.Commitment = def.Commitment
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = def.ConfirmTimeout
	}
	if c.Cluster == "" {
		c.Cluster = def.Cluster
	}
	return &c
}
