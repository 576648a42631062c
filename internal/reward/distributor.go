// Package reward pays the one-time first-attestation reward and referral
// bonuses without duplication.
package reward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/temikng/email-attestation-bot/internal/commitment"
	"github.com/temikng/email-attestation-bot/internal/keylock"
	"github.com/temikng/email-attestation-bot/internal/ledger"
	"github.com/temikng/email-attestation-bot/internal/storage"
	"github.com/temikng/email-attestation-bot/internal/texts"
)

// Messenger delivers a chat message to a device.
type Messenger interface {
	SendToDevice(ctx context.Context, deviceID int64, text string) error
}

// Distributor inserts reward rows under store-level uniqueness and drives
// payouts from the distribution address.
type Distributor struct {
	store               *storage.Storage
	node                ledger.API
	eng                 *commitment.Engine
	msgr                Messenger
	locks               *keylock.KeyLock
	rewardBytes         int64
	referralRewardBytes int64
	distributionAddress string
	log                 *slog.Logger
}

func New(store *storage.Storage, node ledger.API, eng *commitment.Engine, msgr Messenger,
	locks *keylock.KeyLock, rewardBytes, referralRewardBytes int64, distributionAddress string,
	log *slog.Logger) *Distributor {

	return &Distributor{
		store:               store,
		node:                node,
		eng:                 eng,
		msgr:                msgr,
		locks:               locks,
		rewardBytes:         rewardBytes,
		referralRewardBytes: referralRewardBytes,
		distributionAddress: distributionAddress,
		log:                 log,
	}
}

// HandleAttested runs after a successful attestation post. It pays the
// first-attestation reward when this is the first posted attestation for the
// claim address, then looks up and pays the referrer. A uniqueness-rejected
// insert means "already rewarded" and is not an error.
func (d *Distributor) HandleAttested(ctx context.Context, pa storage.PendingAttestation) {
	if d.rewardBytes <= 0 || d.distributionAddress == "" {
		return
	}

	count, err := d.store.CountPostedAttestations(pa.UserAddress)
	if err != nil {
		d.log.Error("count posted attestations", "address", pa.UserAddress, "error", err)
		return
	}
	if count != 1 {
		return
	}

	userID := d.eng.UserID(map[string]string{"email": pa.UserEmail})
	isNew, err := d.store.InsertReward(pa.TransactionID, pa.UserAddress, userID, d.rewardBytes)
	if err != nil {
		d.log.Error("insert reward", "transaction_id", pa.TransactionID, "error", err)
		return
	}
	if !isNew {
		return
	}

	if err := d.msgr.SendToDevice(ctx, pa.DeviceID, texts.AttestedFirstTimeBonus(d.rewardBytes)); err != nil {
		d.log.Error("send message", "device_id", pa.DeviceID, "error", err)
	}

	if err := d.payReward(ctx, pa.TransactionID); err != nil {
		d.log.Warn("pay reward", "transaction_id", pa.TransactionID, "error", err)
	}

	d.handleReferral(ctx, pa, userID)
}

func (d *Distributor) handleReferral(ctx context.Context, pa storage.PendingAttestation, newUserID string) {
	if d.referralRewardBytes <= 0 {
		return
	}

	referrer, err := d.node.FundingAddress(ctx, pa.UserAddress)
	if err != nil {
		d.log.Warn("funding address lookup", "address", pa.UserAddress, "error", err)
		return
	}
	referrer = ledger.NormalizeAddress(referrer)
	if referrer == "" || referrer == ledger.NormalizeAddress(pa.UserAddress) {
		return
	}

	refSess, err := d.store.GetLatestSessionByUserAddress(referrer)
	if errors.Is(err, storage.ErrNotFound) {
		return
	}
	if err != nil {
		d.log.Error("resolve referrer session", "address", referrer, "error", err)
		return
	}

	refUserID := d.eng.UserID(map[string]string{"email": refSess.UserEmail})
	isNew, err := d.store.InsertReferralReward(pa.TransactionID, referrer, refUserID,
		pa.UserAddress, newUserID, d.referralRewardBytes)
	if err != nil {
		d.log.Error("insert referral reward", "transaction_id", pa.TransactionID, "error", err)
		return
	}
	if !isNew {
		return
	}

	d.log.Info("referral reward recorded",
		"transaction_id", pa.TransactionID,
		"referrer", referrer,
		"new_address", pa.UserAddress,
	)

	if err := d.msgr.SendToDevice(ctx, refSess.DeviceID, texts.ReferredNewUser(d.referralRewardBytes)); err != nil {
		d.log.Error("send message", "device_id", refSess.DeviceID, "error", err)
	}

	if err := d.payReferralReward(ctx, pa.TransactionID); err != nil {
		d.log.Warn("pay referral reward", "transaction_id", pa.TransactionID, "error", err)
	}
}

// payReward broadcasts the payout and records its unit. Like attestation
// posting, the outbound broadcast is not idempotent, so the re-read happens
// under the per-reward lock.
func (d *Distributor) payReward(ctx context.Context, transactionID int64) error {
	lockKey := fmt.Sprintf("reward-%d", transactionID)
	d.locks.Lock(lockKey)
	defer d.locks.Unlock(lockKey)

	r, err := d.store.GetReward(transactionID)
	if err != nil {
		return fmt.Errorf("get reward: %w", err)
	}
	if r.RewardUnit != "" {
		return nil
	}

	unit, err := d.node.ComposeAndBroadcast(ctx, d.distributionAddress,
		[]ledger.Output{{Address: r.UserAddress, Amount: r.Amount}}, nil)
	if err != nil {
		return fmt.Errorf("broadcast reward: %w", err)
	}

	if err := d.store.MarkRewardPaid(transactionID, unit); err != nil {
		return fmt.Errorf("record reward payout: %w", err)
	}

	d.log.Info("reward paid", "transaction_id", transactionID, "address", r.UserAddress, "unit", unit)
	return nil
}

func (d *Distributor) payReferralReward(ctx context.Context, transactionID int64) error {
	lockKey := fmt.Sprintf("referral-%d", transactionID)
	d.locks.Lock(lockKey)
	defer d.locks.Unlock(lockKey)

	r, err := d.store.GetReferralReward(transactionID)
	if err != nil {
		return fmt.Errorf("get referral reward: %w", err)
	}
	if r.RewardUnit != "" {
		return nil
	}

	unit, err := d.node.ComposeAndBroadcast(ctx, d.distributionAddress,
		[]ledger.Output{{Address: r.UserAddress, Amount: r.Amount}}, nil)
	if err != nil {
		return fmt.Errorf("broadcast referral reward: %w", err)
	}

	if err := d.store.MarkReferralRewardPaid(transactionID, unit); err != nil {
		return fmt.Errorf("record referral payout: %w", err)
	}

	d.log.Info("referral reward paid", "transaction_id", transactionID, "address", r.UserAddress, "unit", unit)
	return nil
}

// RetrySweep re-drives payouts for inserted but not yet paid rewards.
func (d *Distributor) RetrySweep(ctx context.Context) {
	rewards, err := d.store.ListUnpaidRewards()
	if err != nil {
		d.log.Error("list unpaid rewards", "error", err)
		return
	}
	for _, r := range rewards {
		if err := d.payReward(ctx, r.TransactionID); err != nil {
			d.log.Warn("retry reward payout", "transaction_id", r.TransactionID, "error", err)
		}
	}

	referrals, err := d.store.ListUnpaidReferralRewards()
	if err != nil {
		d.log.Error("list unpaid referral rewards", "error", err)
		return
	}
	for _, r := range referrals {
		if err := d.payReferralReward(ctx, r.TransactionID); err != nil {
			d.log.Warn("retry referral payout", "transaction_id", r.TransactionID, "error", err)
		}
	}
}
