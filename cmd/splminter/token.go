package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/spf13/cobra"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/cmd"
	"github.com/TEENet-io/splminter-go/common"
	"github.com/TEENet-io/splminter-go/issuer"
)

var cmdIssue = &cobra.Command{
	Use:   "issue",
	Short: "Create a new mint and mint its initial supply to the wallet",
	Args:  cobra.NoArgs,
	RunE:  runIssue,
}

var cmdMint = &cobra.Command{
	Use:   "mint <mint> <amount>",
	Short: "Mint more supply of an existing mint to the wallet",
	Args:  cobra.ExactArgs(2),
	RunE:  runMint,
}

var cmdResume = &cobra.Command{
	Use:   "resume <mint>",
	Short: "Finish an issuance whose initial supply was never minted",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

var cmdBalance = &cobra.Command{
	Use:   "balance <mint>",
	Short: "Show the wallet's holding of a mint",
	Args:  cobra.ExactArgs(1),
	RunE:  runBalance,
}

var flagIssue struct {
	Name     string
	Symbol   string
	Decimals uint8
	Supply   string
}

var flagMint struct {
	BaseUnits bool
	Decimals  int
}

func init() {
	cmdIssue.Flags().StringVar(&flagIssue.Name, "name", "", "Token name, kept off chain")
	cmdIssue.Flags().StringVar(&flagIssue.Symbol, "symbol", "", "Token symbol, kept off chain")
	cmdIssue.Flags().Uint8Var(&flagIssue.Decimals, "decimals", 9, "Mint decimals, 0 to 9")
	cmdIssue.Flags().StringVar(&flagIssue.Supply, "supply", "1", "Initial supply in whole tokens, e.g. 1000.5")

	cmdMint.Flags().BoolVar(&flagMint.BaseUnits, "base-units", false, "Amount is given in base units")
	cmdMint.Flags().IntVar(&flagMint.Decimals, "decimals", -1, "Mint decimals, needed for a mint issued elsewhere")
}

// withIssuer builds the issuer stack for one command and tears it down after.
func withIssuer(fn func(ctx context.Context, srv *cmd.Server) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := cmd.NewIssuerStack(PrepareServerConfig())
	if err != nil {
		return err
	}
	defer srv.Close()
	return fn(ctx, srv)
}

func runIssue(_ *cobra.Command, _ []string) error {
	supply, err := common.ToBaseUnits(flagIssue.Supply, flagIssue.Decimals)
	if err != nil {
		return err
	}

	return withIssuer(func(ctx context.Context, srv *cmd.Server) error {
		cluster := srv.Network.Cluster()
		mint, err := srv.Issuer.Issue(ctx, &agreement.IssuanceRequest{
			Name:          flagIssue.Name,
			Symbol:        flagIssue.Symbol,
			Decimals:      flagIssue.Decimals,
			InitialSupply: supply,
		})
		if err != nil {
			printIssuerError(err, cluster)
			var e *issuer.Error
			if errors.As(err, &e) && e.Mint != "" {
				fmt.Fprintf(os.Stderr, "Mint %s exists without its supply, finish it with: splminter resume %s\n", e.Mint, e.Mint)
			}
			return err
		}

		fmt.Printf("Mint:     %s\n", mint.ToBase58())
		fmt.Printf("Supply:   %s (%d base units)\n", flagIssue.Supply, supply)
		fmt.Printf("Explorer: %s\n", common.ExplorerAddressURL(mint.ToBase58(), cluster))
		return nil
	})
}

func runMint(_ *cobra.Command, args []string) error {
	mint, err := common.ParsePublicKey(args[0])
	if err != nil {
		return err
	}

	return withIssuer(func(ctx context.Context, srv *cmd.Server) error {
		amount, err := parseMintAmount(ctx, srv.Issuer, mint, args[1])
		if err != nil {
			return err
		}

		cluster := srv.Network.Cluster()
		receipt, err := srv.Issuer.MintMore(ctx, &agreement.MintRequest{Mint: mint, Amount: amount})
		if err != nil {
			printIssuerError(err, cluster)
			return err
		}
		printReceipt(receipt, cluster)
		return nil
	})
}

// parseMintAmount reads raw base units, or a UI amount given the mint
// decimals from --decimals or the issuance record.
func parseMintAmount(ctx context.Context, is *issuer.Issuer, mint solcommon.PublicKey, s string) (uint64, error) {
	if flagMint.BaseUnits {
		return strconv.ParseUint(s, 10, 64)
	}
	decimals := flagMint.Decimals
	if decimals < 0 {
		rec, err := is.Issuance(ctx, mint)
		if err != nil {
			return 0, err
		}
		if rec == nil {
			return 0, fmt.Errorf("mint %s not on record, give --decimals or --base-units", mint.ToBase58())
		}
		decimals = int(rec.Decimals)
	}
	if decimals > common.MaxDecimals {
		return 0, agreement.ErrInvalidDecimals
	}
	return common.ToBaseUnits(s, uint8(decimals))
}

func runResume(_ *cobra.Command, args []string) error {
	mint, err := common.ParsePublicKey(args[0])
	if err != nil {
		return err
	}
	return withIssuer(func(ctx context.Context, srv *cmd.Server) error {
		cluster := srv.Network.Cluster()
		receipt, err := srv.Issuer.Resume(ctx, mint)
		if err != nil {
			printIssuerError(err, cluster)
			return err
		}
		printReceipt(receipt, cluster)
		return nil
	})
}

func runBalance(_ *cobra.Command, args []string) error {
	mint, err := common.ParsePublicKey(args[0])
	if err != nil {
		return err
	}
	return withIssuer(func(ctx context.Context, srv *cmd.Server) error {
		h, err := srv.Issuer.Balance(ctx, mint)
		if err != nil {
			return err
		}
		fmt.Printf("Owner:   %s\n", h.Owner.ToBase58())
		fmt.Printf("Account: %s\n", h.Account.ToBase58())
		if !h.Exists {
			fmt.Println("Balance: account does not exist")
			return nil
		}

		rec, err := srv.Issuer.Issuance(ctx, mint)
		if err == nil && rec != nil {
			fmt.Printf("Balance: %s (%d base units)\n", common.FormatBaseUnits(h.Amount, rec.Decimals), h.Amount)
		} else {
			fmt.Printf("Balance: %d base units\n", h.Amount)
		}
		return nil
	})
}

func printReceipt(r *agreement.TxReceipt, cluster string) {
	fmt.Printf("Signature: %s\n", r.Signature)
	fmt.Printf("Slot:      %d\n", r.Slot)
	fmt.Printf("Explorer:  %s\n", common.ExplorerTxURL(r.Signature, cluster))
}

func printIssuerError(err error, cluster string) {
	var e *issuer.Error
	if !errors.As(err, &e) {
		return
	}
	if e.Signature != "" {
		fmt.Fprintf(os.Stderr, "Last transaction: %s\n", common.ExplorerTxURL(e.Signature, cluster))
	}
}
