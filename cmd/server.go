// Server = solana network + wallet + issuance db + issuer + http reporter.
// All components are configured via environment variables (strings!).

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logger "github.com/sirupsen/logrus"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/issuancedb"
	"github.com/TEENet-io/splminter-go/issuer"
	"github.com/TEENet-io/splminter-go/metrics"
	"github.com/TEENet-io/splminter-go/reporter"
	"github.com/TEENet-io/splminter-go/solanaman"
)

// Default params for server.
// More often we don't recommend users to tweak those.
const (
	shutdownTimeout = 10 * time.Second
)

var (
	ErrNoWallet    = errors.New("either a wallet keypair path or a signer address is required")
	ErrBothWallets = errors.New("wallet keypair path and signer address are mutually exclusive")
)

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type ServerConfig struct {
	// solana side
	SolanaCluster  string // mainnet-beta, testnet, devnet, localnet
	SolanaRpcUrl   string // json rpc url, empty = public endpoint of the cluster
	Commitment     string // processed, confirmed, finalized
	ConfirmTimeout string // eg. 60s
	PollInterval   string // eg. 500ms

	// wallet side, exactly one of the two
	WalletKeypairPath string // solana-keygen json file
	WalletSignerAddr  string // remote signer, host:port
	// optional TLS towards the remote signer
	WalletSignerCert   string
	WalletSignerKey    string
	WalletSignerCACert string

	// state side
	DbFilePath string // empty = in memory

	// Http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080
}

// IssuerConfig turns the text fields into an issuer.Config.
func (sc *ServerConfig) IssuerConfig() (*issuer.Config, error) {
	cfg := issuer.DefaultConfig()
	if sc.Commitment != "" {
		c, err := agreement.ParseCommitment(sc.Commitment)
		if err != nil {
			return nil, err
		}
		cfg.Commitment = c
	}
	if err := parseDuration(sc.ConfirmTimeout, &cfg.ConfirmTimeout); err != nil {
		return nil, fmt.Errorf("confirm timeout: %w", err)
	}
	if err := parseDuration(sc.PollInterval, &cfg.PollInterval); err != nil {
		return nil, fmt.Errorf("poll interval: %w", err)
	}
	if sc.SolanaCluster != "" {
		cfg.Cluster = sc.SolanaCluster
	}
	return cfg, nil
}

// Server holds the objects that the splminter server consists of.
type Server struct {
	Network  *solanaman.Solanaman
	Wallet   agreement.WalletSigner
	Db       issuancedb.IssuanceDB
	Issuer   *issuer.Issuer
	Metrics  *metrics.Metrics
	Reporter *reporter.HttpReporter

	closers []func() error
}

// NewIssuerStack wires network, wallet, db and issuer, without the http side.
// The CLI one-shot commands use it directly.
func NewIssuerStack(sc *ServerConfig) (*Server, error) {
	cfg, err := sc.IssuerConfig()
	if err != nil {
		return nil, err
	}

	// 1) network
	net, err := solanaman.NewSolanaman(&solanaman.SolanamanConfig{
		Cluster:    cfg.Cluster,
		URL:        sc.SolanaRpcUrl,
		Commitment: cfg.Commitment,
	})
	if err != nil {
		return nil, err
	}
	srv := &Server{Network: net}

	// 2) wallet
	switch {
	case sc.WalletKeypairPath != "" && sc.WalletSignerAddr != "":
		return nil, ErrBothWallets
	case sc.WalletKeypairPath != "":
		w, err := solanaman.NewLocalWalletFromFile(sc.WalletKeypairPath, net)
		if err != nil {
			return nil, fmt.Errorf("cannot load wallet keypair: %w", err)
		}
		srv.Wallet = w
	case sc.WalletSignerAddr != "":
		w, err := solanaman.NewRemoteWallet(&solanaman.RemoteWalletConfig{
			ServerAddress: sc.WalletSignerAddr,
			Cert:          sc.WalletSignerCert,
			Key:           sc.WalletSignerKey,
			ServerCACert:  sc.WalletSignerCACert,
		}, net)
		if err != nil {
			return nil, fmt.Errorf("cannot reach remote signer: %w", err)
		}
		srv.Wallet = w
		srv.closers = append(srv.closers, w.Close)
	default:
		return nil, ErrNoWallet
	}

	// 3) issuance db
	if sc.DbFilePath != "" {
		db, err := issuancedb.OpenSQLiteIssuanceDB(sc.DbFilePath)
		if err != nil {
			srv.Close()
			return nil, fmt.Errorf("cannot open issuance db: %w", err)
		}
		srv.Db = db
	} else {
		logger.Warn("no db file path, issuance state kept in memory")
		srv.Db = issuancedb.NewMemoryIssuanceDB()
	}
	srv.closers = append(srv.closers, srv.Db.Close)

	// 4) issuer + metrics
	srv.Issuer, err = issuer.New(cfg, net, srv.Wallet, srv.Db)
	if err != nil {
		srv.Close()
		return nil, err
	}
	srv.Metrics = metrics.New()
	srv.Issuer.SetRecorder(srv.Metrics)

	return srv, nil
}

// NewServer builds the issuer stack and turns on the http reporter.
func NewServer(ctx context.Context, sc *ServerConfig) (*Server, error) {
	srv, err := NewIssuerStack(sc)
	if err != nil {
		return nil, err
	}

	newLogger := logger.WithFields(logger.Fields{
		"cluster":  srv.Network.Cluster(),
		"endpoint": sc.SolanaRpcUrl,
	})
	if owner, err := srv.Issuer.Owner(ctx); err != nil {
		newLogger.Warnf("wallet not available yet: err=%v", err)
	} else {
		newLogger = newLogger.WithField("owner", owner.ToBase58())
	}

	// Left over from a previous run, see POST /tokens/:mint/resume
	if stuck, err := srv.Issuer.Incomplete(ctx); err != nil {
		newLogger.Errorf("failed to list incomplete issuances: err=%v", err)
	} else {
		for _, rec := range stuck {
			newLogger.WithFields(logger.Fields{
				"mint":  rec.Mint.ToBase58(),
				"stage": rec.Stage,
			}).Warn("issuance waiting for its initial supply")
		}
	}
	if unsettled, err := srv.Issuer.Unsettled(ctx); err != nil {
		newLogger.Errorf("failed to list unsettled txs: err=%v", err)
	} else {
		for _, mt := range unsettled {
			newLogger.WithFields(logger.Fields{
				"sig":    mt.Signature,
				"mint":   mt.RefMint.ToBase58(),
				"kind":   mt.Kind,
				"status": mt.Status,
			}).Warn("tx outcome never observed")
		}
	}

	srv.Reporter = reporter.NewHttpReporter(sc.HttpIp, sc.HttpPort, srv.Network.Cluster(), srv.Issuer, srv.Metrics)
	if err := srv.Reporter.Start(); err != nil {
		srv.Close()
		return nil, err
	}
	srv.closers = append([]func() error{func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Reporter.Shutdown(ctx)
	}}, srv.closers...)

	newLogger.Info("splminter server started")
	return srv, nil
}

// Close stops the reporter first, then the wallet and db.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Create, then start the server and wait.
// Press Ctrl-C to kill the server.
func StartServerAndWait(sc *ServerConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := NewServer(ctx, sc)
	if err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("received signal, shutting down")
	return srv.Close()
}
