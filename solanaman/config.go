package solanaman

import (
	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/blocto/solana-go-sdk/rpc"
)

// SolanamanConfig holds the parameters for talking to one cluster.
type SolanamanConfig struct {
	// Cluster name: mainnet-beta, testnet, devnet, localnet
	Cluster string

	// RPC endpoint. Empty means the public endpoint of Cluster.
	URL string

	// Commitment used for reads (balances, account lookups)
	Commitment agreement.Commitment
}

const (
	ClusterMainnet  = "mainnet-beta"
	ClusterTestnet  = "testnet"
	ClusterDevnet   = "devnet"
	ClusterLocalnet = "localnet"
)

// GetClusterEndpoint maps a cluster name to its public RPC endpoint.
// Unknown names fall back to devnet.
func GetClusterEndpoint(cluster string) string {
	switch cluster {
	case ClusterMainnet, "mainnet":
		return rpc.MainnetRPCEndpoint
	case ClusterTestnet:
		return rpc.TestnetRPCEndpoint
	case ClusterLocalnet:
		return rpc.LocalnetRPCEndpoint
	default:
		return rpc.DevnetRPCEndpoint
	}
}

func (cfg *SolanamanConfig) endpoint() string {
	if cfg.URL != "" {
		return cfg.URL
	}
	return GetClusterEndpoint(cfg.Cluster)
}

func toRPCCommitment(c agreement.Commitment) rpc.Commitment {
	switch c {
	case agreement.CommitmentProcessed:
		return rpc.CommitmentProcessed
	case agreement.CommitmentFinalized:
		return rpc.CommitmentFinalized
	default:
		return rpc.CommitmentConfirmed
	}
}

func fromRPCCommitment(c rpc.Commitment) agreement.Commitment {
	switch c {
	case rpc.CommitmentProcessed:
		return agreement.CommitmentProcessed
	case rpc.CommitmentConfirmed:
		return agreement.CommitmentConfirmed
	case rpc.CommitmentFinalized:
		return agreement.CommitmentFinalized
	default:
		return ""
	}
}
