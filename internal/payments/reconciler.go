// Package payments reconciles ledger payment events against open sessions.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/temikng/email-attestation-bot/internal/ledger"
	"github.com/temikng/email-attestation-bot/internal/storage"
	"github.com/temikng/email-attestation-bot/internal/texts"
	"github.com/temikng/email-attestation-bot/internal/verification"
)

// Messenger delivers a chat message to a device.
type Messenger interface {
	SendToDevice(ctx context.Context, deviceID int64, text string) error
}

// Reconciler matches observed payment units to sessions, classifies them and
// drives confirmation into the verification lifecycle.
type Reconciler struct {
	store        *storage.Storage
	node         ledger.API
	msgr         Messenger
	verif        *verification.Lifecycle
	priceBytes   int64
	priceTimeout time.Duration
	ownAddresses map[string]bool
	log          *slog.Logger
}

func New(store *storage.Storage, node ledger.API, msgr Messenger, verif *verification.Lifecycle,
	priceBytes int64, priceTimeout time.Duration, ownAddresses []string, log *slog.Logger) *Reconciler {

	own := make(map[string]bool, len(ownAddresses))
	for _, a := range ownAddresses {
		if a != "" {
			own[ledger.NormalizeAddress(a)] = true
		}
	}

	return &Reconciler{
		store:        store,
		node:         node,
		msgr:         msgr,
		verif:        verif,
		priceBytes:   priceBytes,
		priceTimeout: priceTimeout,
		ownAddresses: own,
		log:          log,
	}
}

// HandleObserved processes a batch of newly observed payment units.
func (r *Reconciler) HandleObserved(ctx context.Context, units []ledger.PaymentUnit) {
	for _, unit := range units {
		if r.authoredByUs(unit) {
			continue
		}
		for _, out := range unit.Outputs {
			sess, err := r.store.GetSessionByReceivingAddress(out.Address)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				r.log.Error("resolve session", "address", out.Address, "error", err)
				continue
			}
			r.processPayment(ctx, sess, unit, out)
		}
	}
}

func (r *Reconciler) authoredByUs(unit ledger.PaymentUnit) bool {
	for _, a := range unit.Authors {
		if r.ownAddresses[ledger.NormalizeAddress(a)] {
			return true
		}
	}
	return false
}

func (r *Reconciler) processPayment(ctx context.Context, sess *storage.Session, unit ledger.PaymentUnit, out ledger.UnitOutput) {
	rejection, delay, err := r.checkPayment(ctx, sess, unit, out)
	if err != nil {
		r.log.Error("check payment", "unit", unit.Unit, "error", err)
		return
	}

	if rejection != "" {
		if err := r.store.InsertRejectedPayment(sess.ReceivingAddress, sess.Price, out.Amount, delay, unit.Unit, rejection); err != nil {
			r.log.Error("record rejected payment", "unit", unit.Unit, "error", err)
		}
		r.log.Info("payment rejected",
			"unit", unit.Unit,
			"session_id", sess.ID,
			"amount", out.Amount,
		)
		if err := r.msgr.SendToDevice(ctx, sess.DeviceID, rejection); err != nil {
			r.log.Error("send message", "device_id", sess.DeviceID, "error", err)
		}
		return
	}

	isNew, err := r.store.InsertTransaction(sess.ID, sess.Price, out.Amount, unit.Unit)
	if err != nil {
		r.log.Error("insert transaction", "unit", unit.Unit, "error", err)
		return
	}
	if !isNew {
		return
	}

	r.log.Info("payment accepted",
		"unit", unit.Unit,
		"session_id", sess.ID,
		"amount", out.Amount,
	)
	if err := r.msgr.SendToDevice(ctx, sess.DeviceID, texts.ReceivedYourPayment(out.Amount)); err != nil {
		r.log.Error("send message", "device_id", sess.DeviceID, "error", err)
	}
}

// checkPayment applies the payment policy. A non-empty rejection text means
// the unit is refused; delay is the seconds since the price was last quoted.
func (r *Reconciler) checkPayment(ctx context.Context, sess *storage.Session, unit ledger.PaymentUnit, out ledger.UnitOutput) (string, int64, error) {
	delay := int64(time.Since(sess.LastPriceDate) / time.Second)
	late := delay > int64(r.priceTimeout/time.Second)

	if out.Asset != "" {
		return texts.ReceivedPaymentInWrongAsset(), delay, nil
	}

	// a stale quote no longer binds us; the current price applies
	expected := sess.Price
	if late {
		expected = r.priceBytes
	}
	if out.Amount < expected {
		if err := r.store.RefreshPrice(sess.ID, r.priceBytes); err != nil {
			return "", 0, fmt.Errorf("refresh price: %w", err)
		}
		return texts.ReceivedLessThanExpected(out.Amount, sess.Price, late) + "\n\n" +
			texts.PleasePay(sess.ReceivingAddress, r.priceBytes), delay, nil
	}

	authors := unit.Authors
	if len(authors) == 0 {
		var err error
		authors, err = r.node.UnitAuthors(ctx, unit.Unit)
		if err != nil {
			return "", 0, fmt.Errorf("unit authors: %w", err)
		}
	}
	if len(authors) != 1 {
		return texts.ReceivedPaymentFromMultipleAddresses() + "\n\n" +
			texts.PleasePay(sess.ReceivingAddress, r.priceBytes), delay, nil
	}
	if ledger.NormalizeAddress(authors[0]) != ledger.NormalizeAddress(sess.UserAddress) {
		return texts.ReceivedPaymentNotFromExpectedAddress(sess.UserAddress) + "\n\n" +
			texts.PleasePay(sess.ReceivingAddress, r.priceBytes), delay, nil
	}

	return "", delay, nil
}

// HandleConfirmed processes confirmation-of-stability events for previously
// accepted transactions. Duplicate events for the same unit are harmless:
// only the caller that flips the confirmed flag issues the code.
func (r *Reconciler) HandleConfirmed(ctx context.Context, units []ledger.PaymentUnit) {
	for _, unit := range units {
		tx, err := r.store.GetTransactionByUnit(unit.Unit)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			r.log.Error("resolve transaction", "unit", unit.Unit, "error", err)
			continue
		}

		confirmedNow, err := r.store.ConfirmTransaction(tx.ID)
		if err != nil {
			r.log.Error("confirm transaction", "unit", unit.Unit, "error", err)
			continue
		}
		if !confirmedNow {
			continue
		}

		sess, err := r.store.GetSessionByID(tx.SessionID)
		if err != nil {
			r.log.Error("resolve session", "session_id", tx.SessionID, "error", err)
			continue
		}

		r.log.Info("transaction confirmed", "unit", unit.Unit, "transaction_id", tx.ID)
		if err := r.msgr.SendToDevice(ctx, sess.DeviceID, texts.PaymentIsConfirmed()); err != nil {
			r.log.Error("send message", "device_id", sess.DeviceID, "error", err)
		}

		if err := r.verif.Issue(ctx, tx.ID, sess.DeviceID, sess.UserEmail); err != nil {
			r.log.Error("issue verification code", "transaction_id", tx.ID, "error", err)
		}
	}
}
