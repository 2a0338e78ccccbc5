package solanaman

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/TEENet-io/splminter-go/agreement"
	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/types"
	logger "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	walletServiceName       = "splminter.wallet.v1.Wallet"
	walletPublicKeyMethod   = "/" + walletServiceName + "/PublicKey"
	walletSignMessageMethod = "/" + walletServiceName + "/SignMessage"
)

var ErrBadRemoteResponse = errors.New("malformed response from remote wallet")

type RemoteWalletConfig struct {
	// host:port of the signer daemon
	ServerAddress string

	// Optional TLS. Leave ServerCACert empty for a plaintext connection.
	Cert         string
	Key          string
	ServerCACert string
}

// RemoteWallet asks a signer daemon for the owner signature over gRPC,
// then relays the transaction itself. The owner key never leaves the daemon.
type RemoteWallet struct {
	conn grpc.ClientConnInterface
	net  agreement.NetworkClient

	closer func() error
}

var _ agreement.WalletSigner = (*RemoteWallet)(nil)

func NewRemoteWallet(cfg *RemoteWalletConfig, net agreement.NetworkClient) (*RemoteWallet, error) {
	creds := insecure.NewCredentials()
	if cfg.ServerCACert != "" {
		tlsConfig, err := createTLSConfig(cfg.Cert, cfg.Key, cfg.ServerCACert)
		if err != nil {
			return nil, err
		}
		creds = credentials.NewTLS(tlsConfig)
	}

	conn, err := grpc.NewClient(cfg.ServerAddress, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, err
	}

	w := NewRemoteWalletFromConn(conn, net)
	w.closer = conn.Close
	return w, nil
}

// NewRemoteWalletFromConn wraps an existing connection. Closing the
// wallet does not close conn.
func NewRemoteWalletFromConn(conn grpc.ClientConnInterface, net agreement.NetworkClient) *RemoteWallet {
	return &RemoteWallet{conn: conn, net: net}
}

func (w *RemoteWallet) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer()
}

func (w *RemoteWallet) PublicKey(ctx context.Context) (solcommon.PublicKey, error) {
	out := &wrapperspb.BytesValue{}
	if err := w.conn.Invoke(ctx, walletPublicKeyMethod, &emptypb.Empty{}, out); err != nil {
		return solcommon.PublicKey{}, translateRemoteErr(err)
	}
	if len(out.GetValue()) != solcommon.PublicKeyLength {
		return solcommon.PublicKey{}, fmt.Errorf("%w: public key of %d bytes", ErrBadRemoteResponse, len(out.GetValue()))
	}
	return solcommon.PublicKeyFromBytes(out.GetValue()), nil
}

func (w *RemoteWallet) SignAndSend(ctx context.Context, tx *types.Transaction) (string, error) {
	return signAndRelay(ctx, tx, w.signMessage, w.net)
}

func (w *RemoteWallet) signMessage(ctx context.Context, message []byte) ([]byte, error) {
	out := &wrapperspb.BytesValue{}
	if err := w.conn.Invoke(ctx, walletSignMessageMethod, wrapperspb.Bytes(message), out); err != nil {
		return nil, translateRemoteErr(err)
	}
	if len(out.GetValue()) != 64 {
		return nil, fmt.Errorf("%w: signature of %d bytes", ErrBadRemoteResponse, len(out.GetValue()))
	}
	return out.GetValue(), nil
}

func translateRemoteErr(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", agreement.ErrWalletNotConnected, st.Message())
	case codes.PermissionDenied:
		return fmt.Errorf("%w: %s", agreement.ErrWalletRejected, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return err
	}
}

// Create a TLS config, from loading the cert, key, and CA cert files (paths)
func createTLSConfig(certFilePath, keyFilePath, serverCaCertFilePath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(serverCaCertFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("no certificate found in %s", serverCaCertFilePath)
	}

	tlsConfig := &tls.Config{RootCAs: caCertPool}
	if certFilePath != "" {
		cert, err := tls.LoadX509KeyPair(certFilePath, keyFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate and key: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

// MessageSigner is the key holder behind the signer daemon.
type MessageSigner interface {
	PublicKey() solcommon.PublicKey
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// KeypairSigner signs every message with one keypair.
type KeypairSigner struct {
	account types.Account
}

func NewKeypairSigner(account types.Account) *KeypairSigner {
	return &KeypairSigner{account: account}
}

func (s *KeypairSigner) PublicKey() solcommon.PublicKey {
	return s.account.PublicKey
}

func (s *KeypairSigner) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	return s.account.Sign(message), nil
}

type walletServer interface {
	publicKey(ctx context.Context, in *emptypb.Empty) (*wrapperspb.BytesValue, error)
	signMessage(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
}

type walletService struct {
	signer MessageSigner
}

func (s *walletService) publicKey(_ context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	pk := s.signer.PublicKey()
	return wrapperspb.Bytes(pk.Bytes()), nil
}

func (s *walletService) signMessage(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	if len(in.GetValue()) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty message")
	}
	sig, err := s.signer.SignMessage(ctx, in.GetValue())
	if err != nil {
		if errors.Is(err, agreement.ErrWalletRejected) {
			return nil, status.Error(codes.PermissionDenied, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	logger.WithField("bytes", len(in.GetValue())).Debug("signed message")
	return wrapperspb.Bytes(sig), nil
}

// RegisterWalletServer exposes signer on s.
func RegisterWalletServer(s *grpc.Server, signer MessageSigner) {
	s.RegisterService(&walletServiceDesc, &walletService{signer: signer})
}

var walletServiceDesc = grpc.ServiceDesc{
	ServiceName: walletServiceName,
	HandlerType: (*walletServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PublicKey",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(emptypb.Empty)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(walletServer).publicKey(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: walletPublicKeyMethod}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(walletServer).publicKey(ctx, req.(*emptypb.Empty))
				})
			},
		},
		{
			MethodName: "SignMessage",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := new(wrapperspb.BytesValue)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(walletServer).signMessage(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: walletSignMessageMethod}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return srv.(walletServer).signMessage(ctx, req.(*wrapperspb.BytesValue))
				})
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "splminter/wallet/v1/wallet.proto",
}
