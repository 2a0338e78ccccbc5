package agreement

import "errors"

var (
	ErrInvalidRequest  = errors.New("invalid request")
	ErrInvalidDecimals = errors.New("decimals out of range [0,9]")
	ErrInvalidAmount   = errors.New("invalid amount")

	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrWalletRejected     = errors.New("wallet rejected the signature request")
)
