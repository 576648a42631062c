package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/temikng/email-attestation-bot/internal/keylock"
	"github.com/temikng/email-attestation-bot/internal/ledger"
	"github.com/temikng/email-attestation-bot/internal/poster"
	"github.com/temikng/email-attestation-bot/internal/storage"
	"github.com/temikng/email-attestation-bot/internal/texts"
	"github.com/temikng/email-attestation-bot/internal/verification"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// command is the closed enumeration of literal chat commands. Unrecognized
// input falls through to the state-based dispatch.
type command int

const (
	cmdNone command = iota
	cmdPrivate
	cmdPublic
	cmdAgain
	cmdResend
)

func parseCommand(text string) command {
	switch text {
	case "private":
		return cmdPrivate
	case "public":
		return cmdPublic
	case "again":
		return cmdAgain
	case "send email again":
		return cmdResend
	}
	return cmdNone
}

// Messenger delivers a chat message to a device.
type Messenger interface {
	SendToDevice(ctx context.Context, deviceID int64, text string) error
}

// Responder resolves each incoming message against session state and
// dispatches to the engine components.
type Responder struct {
	store       *storage.Storage
	node        ledger.API
	verif       *verification.Lifecycle
	post        *poster.Poster
	locks       *keylock.KeyLock
	msgr        Messenger
	priceBytes  int64
	rewardBytes int64
	log         *slog.Logger
}

func NewResponder(store *storage.Storage, node ledger.API, verif *verification.Lifecycle,
	post *poster.Poster, locks *keylock.KeyLock, msgr Messenger,
	priceBytes, rewardBytes int64, log *slog.Logger) *Responder {

	return &Responder{
		store:       store,
		node:        node,
		verif:       verif,
		post:        post,
		locks:       locks,
		msgr:        msgr,
		priceBytes:  priceBytes,
		rewardBytes: rewardBytes,
		log:         log,
	}
}

// HandlePaired greets a freshly paired device.
func (r *Responder) HandlePaired(ctx context.Context, deviceID int64) {
	r.reply(ctx, deviceID, texts.Greeting(r.priceBytes, r.rewardBytes))
}

// Respond runs the input resolution order: claim address, email, session,
// visibility, then the payment/verification state machine.
func (r *Responder) Respond(ctx context.Context, deviceID int64, text string) {
	text = strings.TrimSpace(text)

	user, err := r.store.GetOrCreateUser(deviceID)
	if err != nil {
		r.log.Error("read user", "device_id", deviceID, "error", err)
		return
	}

	var response []string

	// 1. claim address
	if ledger.IsValidAddress(text) {
		addr := ledger.NormalizeAddress(text)
		if err := r.store.SetUserAddress(deviceID, addr); err != nil {
			r.log.Error("set user address", "device_id", deviceID, "error", err)
			return
		}
		user.UserAddress = addr
		response = append(response, texts.GoingToAttestAddress(ledger.FriendlyAddress(addr)))
	} else if user.UserAddress == "" {
		r.reply(ctx, deviceID, joinWith(response, texts.InsertMyAddress()))
		return
	}

	// 2. email
	if emailRegex.MatchString(text) {
		email := strings.ToLower(text)
		if err := r.store.SetUserEmail(deviceID, email); err != nil {
			r.log.Error("set user email", "device_id", deviceID, "error", err)
			return
		}
		user.UserEmail = email
		response = append(response, texts.GoingToAttestEmail(email))
	} else if user.UserEmail == "" {
		r.reply(ctx, deviceID, joinWith(response, texts.InsertMyEmail()))
		return
	}

	// 3. session, serialized per device
	sess, err := r.readOrCreateSession(ctx, deviceID, user.UserAddress, user.UserEmail)
	if err != nil {
		r.log.Error("resolve session", "device_id", deviceID, "error", err)
		return
	}

	// 4. visibility
	cmd := parseCommand(text)
	if cmd == cmdPrivate || cmd == cmdPublic {
		public := cmd == cmdPublic
		if err := r.store.SetPostPublicly(sess.ID, public); err != nil {
			r.log.Error("set visibility", "session_id", sess.ID, "error", err)
			return
		}
		sess.PostPublicly = &public
		if public {
			response = append(response, texts.PublicChosen(sess.UserEmail))
		} else {
			response = append(response, texts.PrivateChosen())
		}
	}
	if sess.PostPublicly == nil {
		r.reply(ctx, deviceID, joinWith(response, texts.PrivateOrPublic()))
		return
	}

	// 5. "again" re-emits the prompt without mutating anything
	if cmd == cmdAgain {
		r.reply(ctx, deviceID, joinWith(response,
			texts.PleasePayOrPrivacy(sess.ReceivingAddress, sess.Price, sess.PostPublicly)))
		return
	}

	// 6. payment/verification state machine on the most recent transaction
	st, err := r.store.GetSessionStatus(sess.ID)
	if errors.Is(err, storage.ErrNotFound) {
		if err := r.store.RefreshPrice(sess.ID, r.priceBytes); err != nil {
			r.log.Error("refresh price", "session_id", sess.ID, "error", err)
		}
		r.reply(ctx, deviceID, joinWith(response,
			texts.PleasePayOrPrivacy(sess.ReceivingAddress, r.priceBytes, sess.PostPublicly)))
		return
	}
	if err != nil {
		r.log.Error("session status", "session_id", sess.ID, "error", err)
		return
	}

	r.reply(ctx, deviceID, joinWith(response, r.dispatchStatus(ctx, deviceID, sess, st, text, cmd)))
}

// dispatchStatus evaluates the per-transaction state machine and returns the
// reply for the final step.
func (r *Responder) dispatchStatus(ctx context.Context, deviceID int64, sess *storage.Session,
	st *storage.SessionStatus, text string, cmd command) string {

	if !st.IsConfirmed {
		return texts.ReceivedYourPayment(st.ReceivedAmount)
	}

	if !st.HasVerification {
		// confirmed but the code is not issued yet; the confirmation event
		// handler will catch up
		return texts.PaymentIsConfirmed()
	}

	if st.Result == nil {
		if cmd == cmdResend {
			if err := r.verif.Resend(ctx, st.TransactionID, deviceID, sess.UserEmail); err != nil {
				r.log.Error("resend code", "transaction_id", st.TransactionID, "error", err)
			}
			// Resend reports to the device itself on success
			return ""
		}

		outcome, left, err := r.verif.Check(ctx, st.TransactionID, sess.UserEmail, text)
		if err != nil {
			r.log.Error("check code", "transaction_id", st.TransactionID, "error", err)
			return ""
		}

		switch outcome {
		case verification.CheckCorrect:
			if err := r.store.CreateAttestationPlaceholder(st.TransactionID); err != nil {
				r.log.Error("create attestation placeholder", "transaction_id", st.TransactionID, "error", err)
				return ""
			}
			pa := storage.PendingAttestation{
				TransactionID: st.TransactionID,
				DeviceID:      deviceID,
				UserAddress:   sess.UserAddress,
				UserEmail:     sess.UserEmail,
				PostPublicly:  *sess.PostPublicly,
			}
			if err := r.post.Post(ctx, pa); err != nil {
				// the retry sweep picks it up; the user only sees "in attestation"
				r.log.Warn("post attestation", "transaction_id", st.TransactionID, "error", err)
			}
			return texts.InAttestation()
		case verification.CheckWrong:
			return texts.WrongVerificationCode(left)
		default:
			return texts.WrongVerificationCode(0) + "\n\n" + texts.CurrentAttestationFailed()
		}
	}

	if *st.Result == storage.ResultFailure {
		return texts.PreviousAttestationFailed()
	}

	if st.AttestationUnit == "" || st.AttestationDate == nil {
		return texts.InAttestation()
	}

	return texts.AlreadyAttested(*st.AttestationDate)
}

// readOrCreateSession resolves the session for the tuple, issuing a fresh
// receiving address on first use. Serialized per device so two quick messages
// never create duplicate rows.
func (r *Responder) readOrCreateSession(ctx context.Context, deviceID int64, userAddress, userEmail string) (*storage.Session, error) {
	lockKey := fmt.Sprintf("device-%d", deviceID)
	r.locks.Lock(lockKey)
	defer r.locks.Unlock(lockKey)

	sess, err := r.store.GetSession(deviceID, userAddress, userEmail)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	receivingAddress, err := r.node.IssueAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("issue address: %w", err)
	}

	return r.store.CreateSession(deviceID, userAddress, userEmail, receivingAddress, r.priceBytes)
}

func (r *Responder) reply(ctx context.Context, deviceID int64, text string) {
	if text == "" {
		return
	}
	if err := r.msgr.SendToDevice(ctx, deviceID, text); err != nil {
		r.log.Error("send message", "device_id", deviceID, "error", err)
	}
}

func joinWith(response []string, tail string) string {
	if tail != "" {
		response = append(response, tail)
	}
	return strings.Join(response, "\n\n")
}
