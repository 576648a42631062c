// Package poster publishes attestation commitments to the ledger, exactly
// once per transaction.
package poster

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/temikng/email-attestation-bot/internal/commitment"
	"github.com/temikng/email-attestation-bot/internal/keylock"
	"github.com/temikng/email-attestation-bot/internal/ledger"
	"github.com/temikng/email-attestation-bot/internal/mailer"
	"github.com/temikng/email-attestation-bot/internal/storage"
	"github.com/temikng/email-attestation-bot/internal/texts"
)

// Messenger delivers a chat message to a device.
type Messenger interface {
	SendToDevice(ctx context.Context, deviceID int64, text string) error
}

// AfterPostFunc runs once per successful post, after the unit is persisted.
type AfterPostFunc func(ctx context.Context, pa storage.PendingAttestation)

// Poster drives the post-and-record protocol plus its retry sweep.
type Poster struct {
	store           *storage.Storage
	node            ledger.API
	eng             *commitment.Engine
	msgr            Messenger
	mail            mailer.Sender
	locks           *keylock.KeyLock
	attestorAddress string
	afterPost       AfterPostFunc
	log             *slog.Logger
}

func New(store *storage.Storage, node ledger.API, eng *commitment.Engine, msgr Messenger,
	mail mailer.Sender, locks *keylock.KeyLock, attestorAddress string, log *slog.Logger) *Poster {

	return &Poster{
		store:           store,
		node:            node,
		eng:             eng,
		msgr:            msgr,
		mail:            mail,
		locks:           locks,
		attestorAddress: attestorAddress,
		log:             log,
	}
}

// SetAfterPost installs the hook invoked on every successful post.
func (p *Poster) SetAfterPost(fn AfterPostFunc) {
	p.afterPost = fn
}

// Post publishes the commitment for one code-verified transaction. Broadcast
// is not idempotent, so the whole read-post-record protocol runs under the
// per-transaction lock: the posted-unit re-read after acquiring the lock is
// the sole de-duplication guard.
func (p *Poster) Post(ctx context.Context, pa storage.PendingAttestation) error {
	lockKey := fmt.Sprintf("tx-%d", pa.TransactionID)
	p.locks.Lock(lockKey)
	defer p.locks.Unlock(lockKey)

	att, err := p.store.GetAttestation(pa.TransactionID)
	if err != nil {
		return fmt.Errorf("get attestation: %w", err)
	}
	if att.Unit != "" {
		return nil
	}

	var payload commitment.Payload
	var bundle string
	if pa.PostPublicly {
		payload = p.eng.PublicPayload(pa.UserAddress, pa.UserEmail)
	} else {
		var src commitment.SrcProfile
		payload, src, err = p.eng.PrivatePayload(pa.UserAddress, pa.UserEmail)
		if err != nil {
			return fmt.Errorf("build private payload: %w", err)
		}
		bundle, err = commitment.EncodeSrcProfile(src)
		if err != nil {
			return fmt.Errorf("encode src profile: %w", err)
		}
	}

	unit, err := p.node.ComposeAndBroadcast(ctx, p.attestorAddress, nil,
		[]ledger.Message{{App: "attestation", Payload: payload}})
	if err != nil {
		p.escalatePostFailure(ctx, pa, err)
		return err
	}

	if err := p.store.MarkAttestationPosted(pa.TransactionID, unit); err != nil {
		// the broadcast went out; the sweep must NOT re-post
		p.log.Error("record posted attestation", "transaction_id", pa.TransactionID, "unit", unit, "error", err)
		return fmt.Errorf("record posted attestation: %w", err)
	}

	p.log.Info("attestation posted", "transaction_id", pa.TransactionID, "unit", unit)

	if err := p.msgr.SendToDevice(ctx, pa.DeviceID, texts.UnitPosted(unit)); err != nil {
		p.log.Error("send message", "device_id", pa.DeviceID, "error", err)
	}
	if bundle != "" {
		if err := p.msgr.SendToDevice(ctx, pa.DeviceID, texts.PrivateProfileBundle(bundle)); err != nil {
			p.log.Error("send message", "device_id", pa.DeviceID, "error", err)
		}
	}

	if p.afterPost != nil {
		p.afterPost(ctx, pa)
	}
	return nil
}

// escalatePostFailure surfaces a posting failure to the operator with the
// attestor balance for diagnosis. The user keeps seeing "in attestation".
func (p *Poster) escalatePostFailure(ctx context.Context, pa storage.PendingAttestation, postErr error) {
	p.log.Error("post attestation", "transaction_id", pa.TransactionID, "error", postErr)

	balanceLine := "balance unknown"
	if balance, err := p.node.ReadBalance(ctx, p.attestorAddress); err == nil {
		balanceLine = fmt.Sprintf("attestor balance: %d Bytes", balance)
	}

	if err := p.mail.NotifyAdmin(
		"Attestation posting failed",
		fmt.Sprintf("Posting attestation for transaction %d failed: %v\n%s", pa.TransactionID, postErr, balanceLine),
	); err != nil {
		p.log.Error("notify admin", "error", err)
	}
}

// Sweep re-drives every attestation record with no posted unit. Safe to run
// concurrently with message-driven posting: Post re-checks under the lock.
func (p *Poster) Sweep(ctx context.Context) {
	pending, err := p.store.ListUnpostedAttestations()
	if err != nil {
		p.log.Error("list unposted attestations", "error", err)
		return
	}

	for _, pa := range pending {
		if err := p.Post(ctx, pa); err != nil {
			p.log.Warn("retry posting", "transaction_id", pa.TransactionID, "error", err)
		}
	}
}
