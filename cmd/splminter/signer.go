package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	logger "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/TEENet-io/splminter-go/common"
	"github.com/TEENet-io/splminter-go/solanaman"
)

var cmdSigner = &cobra.Command{
	Use:   "signer",
	Short: "Run a remote wallet signer over a keypair file",
	Long: `Serve the wallet signing service over gRPC so that the key never
leaves this host. Point other instances at it with --signer / WALLET_SIGNER_ADDR.`,
	Args: cobra.NoArgs,
	RunE: runSigner,
}

var flagSigner struct {
	Listen string
	Cert   string
	Key    string
}

func init() {
	cmdSigner.Flags().StringVar(&flagSigner.Listen, "listen", "127.0.0.1:9090", "Listen address")
	cmdSigner.Flags().StringVar(&flagSigner.Cert, "cert", "", "Server TLS certificate, plaintext when empty")
	cmdSigner.Flags().StringVar(&flagSigner.Key, "key", "", "Server TLS private key")
}

func runSigner(_ *cobra.Command, _ []string) error {
	keypairPath := viper.GetString("WALLET_KEYPAIR_PATH")
	if keypairPath == "" {
		return fmt.Errorf("signer needs --keypair or WALLET_KEYPAIR_PATH")
	}
	account, err := common.LoadKeypairFile(keypairPath)
	if err != nil {
		return err
	}

	var opts []grpc.ServerOption
	if flagSigner.Cert != "" || flagSigner.Key != "" {
		creds, err := credentials.NewServerTLSFromFile(flagSigner.Cert, flagSigner.Key)
		if err != nil {
			return fmt.Errorf("failed to load server TLS: %w", err)
		}
		opts = append(opts, grpc.Creds(creds))
	}

	lis, err := net.Listen("tcp", flagSigner.Listen)
	if err != nil {
		return err
	}
	srv := grpc.NewServer(opts...)
	solanaman.RegisterWalletServer(srv, solanaman.NewKeypairSigner(account))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	logger.WithFields(logger.Fields{
		"addr":   lis.Addr().String(),
		"pubkey": account.PublicKey.ToBase58(),
		"tls":    len(opts) > 0,
	}).Info("wallet signer listening")
	return srv.Serve(lis)
}
