package payments

import (
	"context"

	"github.com/temikng/email-attestation-bot/internal/ledger"
)

// typicalFeeBytes is left on a receiving address to cover the unit fee.
const typicalFeeBytes = 1000

// FundsSweeper periodically moves funds accumulated on receiving addresses to
// the attestor address. Skipped entirely while the node is still syncing.
type FundsSweeper struct {
	r               *Reconciler
	attestorAddress string
}

func NewFundsSweeper(r *Reconciler, attestorAddress string) *FundsSweeper {
	return &FundsSweeper{r: r, attestorAddress: attestorAddress}
}

// Sweep drains every receiving address with a spendable balance. Failures are
// only logged; the next sweep retries.
func (fs *FundsSweeper) Sweep(ctx context.Context) {
	syncing, err := fs.r.node.IsSyncing(ctx)
	if err != nil {
		fs.r.log.Error("sync status", "error", err)
		return
	}
	if syncing {
		fs.r.log.Debug("funds sweep skipped: node is syncing")
		return
	}

	addresses, err := fs.r.store.ListReceivingAddresses()
	if err != nil {
		fs.r.log.Error("list receiving addresses", "error", err)
		return
	}

	for _, addr := range addresses {
		balance, err := fs.r.node.ReadBalance(ctx, addr)
		if err != nil {
			fs.r.log.Warn("read balance", "address", addr, "error", err)
			continue
		}
		if balance <= typicalFeeBytes {
			continue
		}

		unit, err := fs.r.node.ComposeAndBroadcast(ctx, addr,
			[]ledger.Output{{Address: fs.attestorAddress, Amount: balance - typicalFeeBytes}}, nil)
		if err != nil {
			fs.r.log.Warn("sweep funds", "address", addr, "error", err)
			continue
		}
		fs.r.log.Info("funds swept", "address", addr, "amount", balance-typicalFeeBytes, "unit", unit)
	}
}
