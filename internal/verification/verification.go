// Package verification issues and checks the one-time email codes.
package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/temikng/email-attestation-bot/internal/mailer"
	"github.com/temikng/email-attestation-bot/internal/storage"
	"github.com/temikng/email-attestation-bot/internal/texts"
)

// CodeLength is fixed; codes are generated once per transaction and never
// rotated.
const CodeLength = 6

// codeAlphabet is compact and avoids easily confused characters.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CheckOutcome classifies one code entry.
type CheckOutcome int

const (
	CheckCorrect CheckOutcome = iota
	CheckWrong
	CheckExhausted
)

// Messenger delivers a chat message to a device.
type Messenger interface {
	SendToDevice(ctx context.Context, deviceID int64, text string) error
}

// Lifecycle drives issue, send, resend and check of verification codes.
type Lifecycle struct {
	store       *storage.Storage
	mail        mailer.Sender
	msgr        Messenger
	maxAttempts int
	log         *slog.Logger
}

func New(store *storage.Storage, mail mailer.Sender, msgr Messenger, maxAttempts int, log *slog.Logger) *Lifecycle {
	return &Lifecycle{
		store:       store,
		mail:        mail,
		msgr:        msgr,
		maxAttempts: maxAttempts,
		log:         log,
	}
}

// GenerateCode draws a fresh code from a cryptographically strong source.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// Issue generates and stores the code for a confirmed transaction, then sends
// it. Safe under duplicate confirmation events: only the first caller creates
// the record and triggers the email.
func (l *Lifecycle) Issue(ctx context.Context, transactionID, deviceID int64, email string) error {
	code, err := GenerateCode()
	if err != nil {
		return err
	}

	isNew, err := l.store.CreateVerification(transactionID, email, code)
	if err != nil {
		return fmt.Errorf("create verification: %w", err)
	}
	if !isNew {
		return nil
	}

	return l.send(ctx, transactionID, deviceID, email, code)
}

// Resend clears the sent flag and re-delivers the stored code. The code is
// never regenerated.
func (l *Lifecycle) Resend(ctx context.Context, transactionID, deviceID int64, email string) error {
	v, err := l.store.GetVerification(transactionID, email)
	if err != nil {
		return fmt.Errorf("get verification: %w", err)
	}

	if err := l.store.SetVerificationSent(transactionID, email, false); err != nil {
		return fmt.Errorf("mark unsent: %w", err)
	}

	return l.send(ctx, transactionID, deviceID, email, v.Code)
}

// send delivers the code email and marks the record sent only on success. A
// failed record stays eligible for the resend sweep and is escalated to the
// operator.
func (l *Lifecycle) send(ctx context.Context, transactionID, deviceID int64, email, code string) error {
	err := l.mail.Send(email, texts.EmailSubjectVerification(), texts.EmailBodyVerification(code))
	if err != nil {
		l.log.Error("send verification email", "transaction_id", transactionID, "email", email, "error", err)
		if notifyErr := l.mail.NotifyAdmin(
			"Verification email failed",
			fmt.Sprintf("Sending verification code for transaction %d to %s failed: %v", transactionID, email, err),
		); notifyErr != nil {
			l.log.Error("notify admin", "error", notifyErr)
		}
		return err
	}

	if err := l.store.SetVerificationSent(transactionID, email, true); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	if err := l.msgr.SendToDevice(ctx, deviceID, texts.EmailWasSent(email)); err != nil {
		l.log.Error("send message", "device_id", deviceID, "error", err)
	}
	return nil
}

// Check evaluates one code entry. The attempt counter grows monotonically and
// reaching the cap is irreversible.
func (l *Lifecycle) Check(ctx context.Context, transactionID int64, email, input string) (CheckOutcome, int, error) {
	v, err := l.store.GetVerification(transactionID, email)
	if err != nil {
		return CheckWrong, 0, fmt.Errorf("get verification: %w", err)
	}
	if v.Result != nil {
		return CheckExhausted, 0, nil
	}

	if input == v.Code {
		if _, err := l.store.SetVerificationResult(transactionID, email, storage.ResultSuccess); err != nil {
			return CheckWrong, 0, fmt.Errorf("set result: %w", err)
		}
		return CheckCorrect, 0, nil
	}

	attempts, err := l.store.IncrementVerificationAttempts(transactionID, email)
	if err != nil {
		return CheckWrong, 0, fmt.Errorf("increment attempts: %w", err)
	}

	left := l.maxAttempts - attempts
	if left > 0 {
		return CheckWrong, left, nil
	}

	if _, err := l.store.SetVerificationResult(transactionID, email, storage.ResultFailure); err != nil {
		return CheckExhausted, 0, fmt.Errorf("set result: %w", err)
	}
	return CheckExhausted, 0, nil
}

// ResendSweep re-drives every unresolved verification whose email was never
// delivered.
func (l *Lifecycle) ResendSweep(ctx context.Context) {
	pending, err := l.store.ListUnsentVerifications()
	if err != nil {
		l.log.Error("list unsent verifications", "error", err)
		return
	}

	for _, uv := range pending {
		if err := l.send(ctx, uv.TransactionID, uv.DeviceID, uv.UserEmail, uv.Code); err != nil {
			l.log.Warn("resend sweep", "transaction_id", uv.TransactionID, "error", err)
		}
	}
}
