package issuer

import (
	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/associated_token_account"
	"github.com/blocto/solana-go-sdk/program/system"
	"github.com/blocto/solana-go-sdk/program/token"
	"github.com/blocto/solana-go-sdk/types"
)

// initializedMint is a mint whose creating tx reached the wanted
// commitment. It carries no private key. The initial supply tx can
// only be built from one, so T2 can never precede T1's confirmation.
type initializedMint struct {
	mint     solcommon.PublicKey
	owner    solcommon.PublicKey
	decimals uint8
	initSig  string
}

// T1: allocate the mint account and initialize it with owner as both
// mint and freeze authority. The mint keypair co-signs here, the owner
// signature is left for the wallet.
func buildInitMintTx(owner solcommon.PublicKey, mint types.Account, decimals uint8, rent uint64, blockhash string) (*types.Transaction, error) {
	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        owner,
			RecentBlockhash: blockhash,
			Instructions: []types.Instruction{
				system.CreateAccount(system.CreateAccountParam{
					From:     owner,
					New:      mint.PublicKey,
					Owner:    solcommon.TokenProgramID,
					Lamports: rent,
					Space:    token.MintAccountSize,
				}),
				token.InitializeMint(token.InitializeMintParam{
					Decimals:   decimals,
					Mint:       mint.PublicKey,
					MintAuth:   owner,
					FreezeAuth: &owner,
				}),
			},
		}),
		Signers: []types.Account{mint},
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// T2: create the owner's holding account (no-op if it exists) and mint
// the initial supply into it.
func buildInitialSupplyTx(im *initializedMint, ata solcommon.PublicKey, amount uint64, blockhash string) (*types.Transaction, error) {
	return buildOwnerTx(im.owner, blockhash,
		associated_token_account.CreateIdempotent(associated_token_account.CreateIdempotentParam{
			Funder:                 im.owner,
			Owner:                  im.owner,
			Mint:                   im.mint,
			AssociatedTokenAccount: ata,
		}),
		mintToIx(im.owner, im.mint, ata, amount),
	)
}

func buildMintMoreTx(owner, mint, ata solcommon.PublicKey, amount uint64, blockhash string) (*types.Transaction, error) {
	return buildOwnerTx(owner, blockhash, mintToIx(owner, mint, ata, amount))
}

func mintToIx(owner, mint, ata solcommon.PublicKey, amount uint64) types.Instruction {
	return token.MintTo(token.MintToParam{
		Mint:   mint,
		To:     ata,
		Auth:   owner,
		Amount: amount,
	})
}

// A tx whose only signer is the owner.
func buildOwnerTx(owner solcommon.PublicKey, blockhash string, ixs ...types.Instruction) (*types.Transaction, error) {
	tx, err := types.NewTransaction(types.NewTransactionParam{
		Message: types.NewMessage(types.NewMessageParam{
			FeePayer:        owner,
			RecentBlockhash: blockhash,
			Instructions:    ixs,
		}),
	})
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func deriveHoldingAccount(owner, mint solcommon.PublicKey) (solcommon.PublicKey, error) {
	ata, _, err := solcommon.FindAssociatedTokenAddress(owner, mint)
	return ata, err
}
