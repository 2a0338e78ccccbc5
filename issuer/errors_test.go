package issuer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/stretchr/testify/assert"
)

func TestErrorMatching(t *testing.T) {
	cause := fmt.Errorf("%w: decimals=10", agreement.ErrInvalidDecimals)
	err := error(newError(KindBuild, ErrInvalidRequest, cause))

	assert.ErrorIs(t, err, ErrInvalidRequest)
	assert.ErrorIs(t, err, agreement.ErrInvalidDecimals)
	assert.NotErrorIs(t, err, ErrRejected)
	assert.Equal(t, KindBuild, KindOf(err))
	assert.Equal(t, KindBuild, KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, Kind(""), KindOf(errors.New("other")))

	e := newError(KindSubmission, ErrInitialMintFailed, nil)
	e.Mint = "Mint111"
	assert.Equal(t, "submission: "+ErrInitialMintFailed.Error()+" (mint=Mint111)", e.Error())
}

func TestClassify(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, KindConnection, classify(ctx, ErrRejected, agreement.ErrWalletNotConnected).Kind)
	assert.Equal(t, KindConfirmationTimeout, classify(ctx, ErrRejected, ErrConfirmationTimeout).Kind)
	assert.Equal(t, KindBuild, classify(ctx, ErrRejected, agreement.ErrInvalidAmount).Kind)
	assert.Equal(t, KindSubmission, classify(ctx, ErrRejected, agreement.ErrWalletRejected).Kind)
	assert.Equal(t, KindSubmission, classify(ctx, ErrRejected, errors.New("insufficient funds")).Kind)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	e := classify(canceled, ErrMintInitFailed, canceled.Err())
	assert.Equal(t, KindCanceled, e.Kind)
	assert.ErrorIs(t, e, context.Canceled)
	assert.ErrorIs(t, e, ErrMintInitFailed)
}
