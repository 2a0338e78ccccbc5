package issuer

import (
	"context"
	"fmt"
	"time"

	"github.com/TEENet-io/splminter-go/agreement"
	"github.com/TEENet-io/splminter-go/common"
	"github.com/TEENet-io/splminter-go/issuancedb"
	solcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/types"
	logger "github.com/sirupsen/logrus"
)

// Recorder observes submitted txs and their outcome.
type Recorder interface {
	TxSubmitted(kind issuancedb.TxKind)
	TxFinished(kind issuancedb.TxKind, status agreement.TxStatus, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) TxSubmitted(issuancedb.TxKind) {}
func (nopRecorder) TxFinished(issuancedb.TxKind, agreement.TxStatus, time.Duration) {}

// submit hands tx to the wallet and starts monitoring the returned signature.
func (is *Issuer) submit(ctx context.Context, tx *types.Transaction, mint solcommon.PublicKey, kind issuancedb.TxKind) (string, error) {
	sig, err := is.wallet.SignAndSend(ctx, tx)
	if err != nil {
		return "", err
	}
	is.recorder.TxSubmitted(kind)

	err = is.db.InsertMonitoredTx(ctx, &issuancedb.MonitoredTx{
		Signature: sig,
		RefMint:   mint,
		Kind:      kind,
		Status:    agreement.TxPending,
		Blockhash: tx.Message.RecentBlockHash,
		SentAt:    time.Now(),
	})
	if err != nil {
		logger.WithField("sig", sig).Errorf("failed to insert monitored tx: err=%v", err)
	}

	logger.WithFields(logger.Fields{
		"kind": kind,
		"mint": mint.ToBase58(),
		"sig":  sig,
		"link": common.ExplorerTxURL(sig, is.cfg.Cluster),
	}).Info("tx sent")
	return sig, nil
}

// waitForConfirmation polls sig until it reaches the configured
// commitment, fails, or ConfirmTimeout elapses. A caller cancellation is
// returned as ctx.Err(), an elapsed window as ErrConfirmationTimeout.
func (is *Issuer) waitForConfirmation(ctx context.Context, sig string, kind issuancedb.TxKind) (*agreement.SignatureStatus, error) {
	start := time.Now()
	newLogger := logger.WithFields(logger.Fields{"sig": common.Shorten(sig, 8), "kind": kind})

	finish := func(st *agreement.SignatureStatus) {
		is.recorder.TxFinished(kind, st.Status, time.Since(start))
		// the caller's ctx may be done already, the record still has to land
		err := is.db.UpdateMonitoredTxStatus(context.WithoutCancel(ctx), sig, st.Status, st.Slot, st.Err)
		if err != nil {
			newLogger.Errorf("failed to update monitored tx: err=%v", err)
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, is.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(is.cfg.PollInterval)
	defer ticker.Stop()

	var last *agreement.SignatureStatus
	for {
		st, err := is.net.GetSignatureStatus(waitCtx, sig, is.cfg.Commitment)
		if err != nil {
			// transient, keep polling until the window closes
			newLogger.Debugf("failed to get signature status: err=%v", err)
		} else {
			last = st
			switch st.Status {
			case agreement.TxConfirmed:
				newLogger.WithField("slot", st.Slot).Debug("tx confirmed")
				finish(st)
				return st, nil
			case agreement.TxFailed:
				newLogger.WithField("err", st.Err).Warn("tx failed on chain")
				finish(st)
				return st, fmt.Errorf("%w: %s", errTxFailed, st.Err)
			}
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			timeout := &agreement.SignatureStatus{Status: agreement.TxTimeout}
			if last != nil {
				timeout.Slot = last.Slot
			}
			newLogger.Warnf("tx not confirmed after %v", is.cfg.ConfirmTimeout)
			finish(timeout)
			return timeout, ErrConfirmationTimeout
		case <-ticker.C:
		}
	}
}

// recheck asks the network about an earlier tx once more and records what
// changed. A tx the network has not seen is only reported failed after its
// blockhash expired; until then it may still land and stays pending.
func (is *Issuer) recheck(ctx context.Context, mt *issuancedb.MonitoredTx) (*agreement.SignatureStatus, error) {
	// asked before the status, so an expired blockhash plus limbo means
	// the tx can no longer land
	expired := false
	if mt.Blockhash != "" {
		valid, err := is.net.IsBlockhashValid(ctx, mt.Blockhash)
		if err != nil {
			return nil, err
		}
		expired = !valid
	}

	st, err := is.net.GetSignatureStatus(ctx, mt.Signature, is.cfg.Commitment)
	if err != nil {
		return nil, err
	}
	if st.Status == agreement.TxLimbo {
		if expired {
			st = &agreement.SignatureStatus{Status: agreement.TxFailed, Err: errBlockhashExpired.Error()}
		} else {
			st = &agreement.SignatureStatus{Status: agreement.TxPending}
		}
	}

	if st.Status != mt.Status || st.Slot != mt.Slot {
		if err := is.db.UpdateMonitoredTxStatus(ctx, mt.Signature, st.Status, st.Slot, st.Err); err != nil {
			logger.WithField("sig", mt.Signature).Errorf("failed to update monitored tx: err=%v", err)
		}
	}
	logger.WithFields(logger.Fields{
		"sig":     common.Shorten(mt.Signature, 8),
		"kind":    mt.Kind,
		"status":  st.Status,
		"expired": expired,
	}).Debug("rechecked tx")
	return st, nil
}
