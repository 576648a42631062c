package storage

import "time"

// Verification results. NULL in the database means the code is still unresolved.
const (
	ResultFailure = 0
	ResultSuccess = 1
)

// User is one paired device. At most one chosen claim address and email at
// a time, both mutable until a session commits to a payment.
type User struct {
	DeviceID    int64
	UserAddress string
	UserEmail   string
	CreatedAt   time.Time
}

// Session binds (device, claim address, email) to one receiving address and
// one visibility flag. PostPublicly is nil until the user chooses.
type Session struct {
	ID               int64
	DeviceID         int64
	UserAddress      string
	UserEmail        string
	ReceivingAddress string
	PostPublicly     *bool
	Price            int64
	LastPriceDate    time.Time
	CreatedAt        time.Time
}

// Transaction is one accepted payment unit against a session.
type Transaction struct {
	ID               int64
	SessionID        int64
	Price            int64
	ReceivedAmount   int64
	PaymentUnit      string
	IsConfirmed      bool
	ConfirmationDate *time.Time
	CreatedAt        time.Time
}

// Verification is the one-time code issued for a confirmed transaction.
type Verification struct {
	TransactionID int64
	UserEmail     string
	Code          string
	IsSent        bool
	Attempts      int
	Result        *int
	ResultDate    *time.Time
}

// Attestation records the ledger post for a transaction. A non-empty Unit is
// the single source of truth for "already attested".
type Attestation struct {
	TransactionID   int64
	Unit            string
	AttestationDate *time.Time
}

// Reward is the one-time first-attestation reward for a claim address.
type Reward struct {
	TransactionID int64
	UserAddress   string
	UserID        string
	Amount        int64
	RewardUnit    string
	RewardDate    *time.Time
}

// ReferralReward is the one-time bonus for the user who funded a newly
// attested address.
type ReferralReward struct {
	TransactionID  int64
	UserAddress    string
	UserID         string
	NewUserAddress string
	NewUserID      string
	Amount         int64
	RewardUnit     string
	RewardDate     *time.Time
}

// SessionStatus is the most recent transaction for a session joined with its
// verification and attestation rows. The conversation state machine branches
// on it.
type SessionStatus struct {
	TransactionID   int64
	Price           int64
	ReceivedAmount  int64
	IsConfirmed     bool
	HasVerification bool
	Code            string
	Attempts        int
	Result          *int
	AttestationUnit string
	AttestationDate *time.Time
}

// PendingAttestation is an attestation row with no posted unit yet, joined
// with what the poster needs to build and address the payload.
type PendingAttestation struct {
	TransactionID int64
	DeviceID      int64
	UserAddress   string
	UserEmail     string
	PostPublicly  bool
	PaymentUnit   string
}

// UnsentVerification is a verification row eligible for the resend sweep.
type UnsentVerification struct {
	TransactionID int64
	DeviceID      int64
	UserEmail     string
	Code          string
}
