package storage

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// Storage handles all database operations
type Storage struct {
	db *sql.DB
}

// New creates a new Storage instance and initializes the database
func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			device_id INTEGER PRIMARY KEY,
			user_address TEXT,
			user_email TEXT,
			created_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			device_id INTEGER NOT NULL,
			user_address TEXT NOT NULL,
			user_email TEXT NOT NULL,
			receiving_address TEXT NOT NULL UNIQUE,
			post_publicly INTEGER,
			price INTEGER NOT NULL,
			last_price_date INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE (device_id, user_address, user_email)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user_address ON sessions(user_address)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id INTEGER NOT NULL,
			price INTEGER NOT NULL,
			received_amount INTEGER NOT NULL,
			payment_unit TEXT NOT NULL UNIQUE,
			is_confirmed INTEGER NOT NULL DEFAULT 0,
			confirmation_date INTEGER,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_session_id ON transactions(session_id)`,

		`CREATE TABLE IF NOT EXISTS verifications (
			transaction_id INTEGER NOT NULL,
			user_email TEXT NOT NULL,
			code TEXT NOT NULL,
			is_sent INTEGER NOT NULL DEFAULT 0,
			attempts INTEGER NOT NULL DEFAULT 0,
			result INTEGER,
			result_date INTEGER,
			PRIMARY KEY (transaction_id, user_email)
		)`,

		`CREATE TABLE IF NOT EXISTS attestations (
			transaction_id INTEGER PRIMARY KEY,
			attestation_unit TEXT,
			attestation_date INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS rewards (
			transaction_id INTEGER PRIMARY KEY,
			user_address TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL UNIQUE,
			amount INTEGER NOT NULL,
			reward_unit TEXT,
			reward_date INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS referral_rewards (
			transaction_id INTEGER PRIMARY KEY,
			user_address TEXT NOT NULL,
			user_id TEXT NOT NULL,
			new_user_address TEXT NOT NULL UNIQUE,
			new_user_id TEXT NOT NULL UNIQUE,
			amount INTEGER NOT NULL,
			reward_unit TEXT,
			reward_date INTEGER
		)`,

		`CREATE TABLE IF NOT EXISTS rejected_payments (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			receiving_address TEXT NOT NULL,
			price INTEGER NOT NULL,
			received_amount INTEGER NOT NULL,
			delay INTEGER NOT NULL,
			payment_unit TEXT NOT NULL UNIQUE,
			error TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}

	return nil
}

// --- Users ---

// GetOrCreateUser returns the user for a device, creating it on first contact.
func (s *Storage) GetOrCreateUser(deviceID int64) (*User, error) {
	u := &User{DeviceID: deviceID}
	var address, email sql.NullString
	var createdAt int64

	err := s.db.QueryRow(
		"SELECT user_address, user_email, created_at FROM users WHERE device_id = ?",
		deviceID,
	).Scan(&address, &email, &createdAt)

	if err == sql.ErrNoRows {
		now := time.Now().Unix()
		if _, err := s.db.Exec(
			"INSERT OR IGNORE INTO users (device_id, created_at) VALUES (?, ?)",
			deviceID, now,
		); err != nil {
			return nil, err
		}
		u.CreatedAt = time.Unix(now, 0)
		return u, nil
	}
	if err != nil {
		return nil, err
	}

	u.UserAddress = address.String
	u.UserEmail = email.String
	u.CreatedAt = time.Unix(createdAt, 0)
	return u, nil
}

// SetUserAddress overwrites the chosen claim address for a device.
func (s *Storage) SetUserAddress(deviceID int64, address string) error {
	_, err := s.db.Exec("UPDATE users SET user_address = ? WHERE device_id = ?", address, deviceID)
	return err
}

// SetUserEmail overwrites the chosen email for a device.
func (s *Storage) SetUserEmail(deviceID int64, email string) error {
	_, err := s.db.Exec("UPDATE users SET user_email = ? WHERE device_id = ?", email, deviceID)
	return err
}

// --- Sessions ---

const sessionColumns = `id, device_id, user_address, user_email, receiving_address,
	post_publicly, price, last_price_date, created_at`

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	var sess Session
	var postPublicly sql.NullInt64
	var lastPriceDate, createdAt int64

	err := row.Scan(&sess.ID, &sess.DeviceID, &sess.UserAddress, &sess.UserEmail,
		&sess.ReceivingAddress, &postPublicly, &sess.Price, &lastPriceDate, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if postPublicly.Valid {
		public := postPublicly.Int64 != 0
		sess.PostPublicly = &public
	}
	sess.LastPriceDate = time.Unix(lastPriceDate, 0)
	sess.CreatedAt = time.Unix(createdAt, 0)
	return &sess, nil
}

// GetSession returns the session for the (device, address, email) tuple.
func (s *Storage) GetSession(deviceID int64, userAddress, userEmail string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE device_id = ? AND user_address = ? AND user_email = ?`,
		deviceID, userAddress, userEmail,
	)
	return scanSession(row)
}

// CreateSession inserts a session with a freshly issued receiving address.
func (s *Storage) CreateSession(deviceID int64, userAddress, userEmail, receivingAddress string, price int64) (*Session, error) {
	now := time.Now().Unix()
	result, err := s.db.Exec(
		`INSERT INTO sessions
		 (device_id, user_address, user_email, receiving_address, price, last_price_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		deviceID, userAddress, userEmail, receivingAddress, price, now, now,
	)
	if err != nil {
		return nil, err
	}

	id, _ := result.LastInsertId()
	return &Session{
		ID:               id,
		DeviceID:         deviceID,
		UserAddress:      userAddress,
		UserEmail:        userEmail,
		ReceivingAddress: receivingAddress,
		Price:            price,
		LastPriceDate:    time.Unix(now, 0),
		CreatedAt:        time.Unix(now, 0),
	}, nil
}

// GetSessionByID returns a session by its row ID.
func (s *Storage) GetSessionByID(sessionID int64) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`,
		sessionID,
	)
	return scanSession(row)
}

// GetSessionByReceivingAddress resolves the session a payment was sent to.
func (s *Storage) GetSessionByReceivingAddress(receivingAddress string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions WHERE receiving_address = ?`,
		receivingAddress,
	)
	return scanSession(row)
}

// GetLatestSessionByUserAddress returns the most recent session attached to a
// claim address, used to reach the referrer's device.
func (s *Storage) GetLatestSessionByUserAddress(userAddress string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_address = ? ORDER BY id DESC LIMIT 1`,
		userAddress,
	)
	return scanSession(row)
}

// SetPostPublicly sets the session visibility flag.
func (s *Storage) SetPostPublicly(sessionID int64, public bool) error {
	val := 0
	if public {
		val = 1
	}
	_, err := s.db.Exec("UPDATE sessions SET post_publicly = ? WHERE id = ?", val, sessionID)
	return err
}

// RefreshPrice re-quotes the price for a session and restarts the timeout window.
func (s *Storage) RefreshPrice(sessionID, price int64) error {
	_, err := s.db.Exec(
		"UPDATE sessions SET price = ?, last_price_date = ? WHERE id = ?",
		price, time.Now().Unix(), sessionID,
	)
	return err
}

// ListReceivingAddresses returns every receiving address ever issued.
func (s *Storage) ListReceivingAddresses() ([]string, error) {
	rows, err := s.db.Query("SELECT receiving_address FROM sessions")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, rows.Err()
}

// --- Transactions ---

// InsertTransaction records an accepted payment unit, returns false if the
// unit was already recorded.
func (s *Storage) InsertTransaction(sessionID, price, receivedAmount int64, paymentUnit string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO transactions
		 (session_id, price, received_amount, payment_unit, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, price, receivedAmount, paymentUnit, time.Now().Unix(),
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetTransactionByUnit returns the transaction for a payment unit.
func (s *Storage) GetTransactionByUnit(paymentUnit string) (*Transaction, error) {
	var tx Transaction
	var confirmed int
	var confirmationDate sql.NullInt64
	var createdAt int64

	err := s.db.QueryRow(
		`SELECT id, session_id, price, received_amount, payment_unit, is_confirmed, confirmation_date, created_at
		 FROM transactions WHERE payment_unit = ?`,
		paymentUnit,
	).Scan(&tx.ID, &tx.SessionID, &tx.Price, &tx.ReceivedAmount, &tx.PaymentUnit,
		&confirmed, &confirmationDate, &createdAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	tx.IsConfirmed = confirmed != 0
	if confirmationDate.Valid {
		t := time.Unix(confirmationDate.Int64, 0)
		tx.ConfirmationDate = &t
	}
	tx.CreatedAt = time.Unix(createdAt, 0)
	return &tx, nil
}

// ConfirmTransaction marks a transaction confirmed, returns true only for the
// caller that actually flipped the flag.
func (s *Storage) ConfirmTransaction(transactionID int64) (bool, error) {
	result, err := s.db.Exec(
		"UPDATE transactions SET is_confirmed = 1, confirmation_date = ? WHERE id = ? AND is_confirmed = 0",
		time.Now().Unix(), transactionID,
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetSessionStatus returns the most recent transaction for a session joined
// with its verification and attestation rows.
func (s *Storage) GetSessionStatus(sessionID int64) (*SessionStatus, error) {
	var st SessionStatus
	var confirmed int
	var code sql.NullString
	var attempts, verResult sql.NullInt64
	var attUnit sql.NullString
	var attDate sql.NullInt64

	err := s.db.QueryRow(
		`SELECT t.id, t.price, t.received_amount, t.is_confirmed,
			v.code, v.attempts, v.result,
			a.attestation_unit, a.attestation_date
		 FROM transactions t
		 LEFT JOIN verifications v ON v.transaction_id = t.id
		 LEFT JOIN attestations a ON a.transaction_id = t.id
		 WHERE t.session_id = ?
		 ORDER BY t.id DESC
		 LIMIT 1`,
		sessionID,
	).Scan(&st.TransactionID, &st.Price, &st.ReceivedAmount, &confirmed,
		&code, &attempts, &verResult, &attUnit, &attDate)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	st.IsConfirmed = confirmed != 0
	st.HasVerification = code.Valid
	st.Code = code.String
	st.Attempts = int(attempts.Int64)
	if verResult.Valid {
		result := int(verResult.Int64)
		st.Result = &result
	}
	st.AttestationUnit = attUnit.String
	if attDate.Valid {
		t := time.Unix(attDate.Int64, 0)
		st.AttestationDate = &t
	}
	return &st, nil
}

// CountPostedAttestations counts verified and posted transactions for a claim
// address. The reward is paid only when this count is exactly one.
func (s *Storage) CountPostedAttestations(userAddress string) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*)
		 FROM transactions t
		 JOIN sessions se ON se.id = t.session_id
		 JOIN verifications v ON v.transaction_id = t.id AND v.result = ?
		 JOIN attestations a ON a.transaction_id = t.id
		 WHERE se.user_address = ? AND a.attestation_unit IS NOT NULL`,
		ResultSuccess, userAddress,
	).Scan(&count)
	return count, err
}

// --- Verifications ---

// CreateVerification stores a freshly generated code, returns false if a
// verification already exists for (transaction, email).
func (s *Storage) CreateVerification(transactionID int64, userEmail, code string) (bool, error) {
	result, err := s.db.Exec(
		"INSERT OR IGNORE INTO verifications (transaction_id, user_email, code) VALUES (?, ?, ?)",
		transactionID, userEmail, code,
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// SetVerificationSent flips the sent flag.
func (s *Storage) SetVerificationSent(transactionID int64, userEmail string, sent bool) error {
	val := 0
	if sent {
		val = 1
	}
	_, err := s.db.Exec(
		"UPDATE verifications SET is_sent = ? WHERE transaction_id = ? AND user_email = ?",
		val, transactionID, userEmail,
	)
	return err
}

// IncrementVerificationAttempts bumps the failed-attempt counter and returns
// the new value. The counter only ever grows.
func (s *Storage) IncrementVerificationAttempts(transactionID int64, userEmail string) (int, error) {
	_, err := s.db.Exec(
		`UPDATE verifications SET attempts = attempts + 1
		 WHERE transaction_id = ? AND user_email = ? AND result IS NULL`,
		transactionID, userEmail,
	)
	if err != nil {
		return 0, err
	}

	var attempts int
	err = s.db.QueryRow(
		"SELECT attempts FROM verifications WHERE transaction_id = ? AND user_email = ?",
		transactionID, userEmail,
	).Scan(&attempts)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return attempts, err
}

// SetVerificationResult resolves a verification. The transition is one-way:
// a resolved row is never updated again.
func (s *Storage) SetVerificationResult(transactionID int64, userEmail string, result int) (bool, error) {
	res, err := s.db.Exec(
		`UPDATE verifications SET result = ?, result_date = ?
		 WHERE transaction_id = ? AND user_email = ? AND result IS NULL`,
		result, time.Now().Unix(), transactionID, userEmail,
	)
	if err != nil {
		return false, err
	}

	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// GetVerification returns the verification row for (transaction, email).
func (s *Storage) GetVerification(transactionID int64, userEmail string) (*Verification, error) {
	var v Verification
	var sent int
	var result, resultDate sql.NullInt64

	err := s.db.QueryRow(
		`SELECT transaction_id, user_email, code, is_sent, attempts, result, result_date
		 FROM verifications WHERE transaction_id = ? AND user_email = ?`,
		transactionID, userEmail,
	).Scan(&v.TransactionID, &v.UserEmail, &v.Code, &sent, &v.Attempts, &result, &resultDate)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	v.IsSent = sent != 0
	if result.Valid {
		r := int(result.Int64)
		v.Result = &r
	}
	if resultDate.Valid {
		t := time.Unix(resultDate.Int64, 0)
		v.ResultDate = &t
	}
	return &v, nil
}

// ListUnsentVerifications returns unresolved verifications whose email has not
// been delivered yet, for the resend sweep.
func (s *Storage) ListUnsentVerifications() ([]UnsentVerification, error) {
	rows, err := s.db.Query(
		`SELECT v.transaction_id, se.device_id, v.user_email, v.code
		 FROM verifications v
		 JOIN transactions t ON t.id = v.transaction_id
		 JOIN sessions se ON se.id = t.session_id
		 WHERE v.is_sent = 0 AND v.result IS NULL`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []UnsentVerification
	for rows.Next() {
		var uv UnsentVerification
		if err := rows.Scan(&uv.TransactionID, &uv.DeviceID, &uv.UserEmail, &uv.Code); err != nil {
			return nil, err
		}
		pending = append(pending, uv)
	}
	return pending, rows.Err()
}

// --- Attestations ---

// CreateAttestationPlaceholder inserts the empty attestation row that the
// poster later fills in.
func (s *Storage) CreateAttestationPlaceholder(transactionID int64) error {
	_, err := s.db.Exec(
		"INSERT OR IGNORE INTO attestations (transaction_id) VALUES (?)",
		transactionID,
	)
	return err
}

// GetAttestation returns the attestation row for a transaction.
func (s *Storage) GetAttestation(transactionID int64) (*Attestation, error) {
	var a Attestation
	var unit sql.NullString
	var date sql.NullInt64

	err := s.db.QueryRow(
		"SELECT transaction_id, attestation_unit, attestation_date FROM attestations WHERE transaction_id = ?",
		transactionID,
	).Scan(&a.TransactionID, &unit, &date)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.Unit = unit.String
	if date.Valid {
		t := time.Unix(date.Int64, 0)
		a.AttestationDate = &t
	}
	return &a, nil
}

// MarkAttestationPosted records the accepted ledger unit.
func (s *Storage) MarkAttestationPosted(transactionID int64, unit string) error {
	_, err := s.db.Exec(
		"UPDATE attestations SET attestation_unit = ?, attestation_date = ? WHERE transaction_id = ?",
		unit, time.Now().Unix(), transactionID,
	)
	return err
}

// ListUnpostedAttestations returns attestation rows with no posted unit,
// joined with the session data the poster needs.
func (s *Storage) ListUnpostedAttestations() ([]PendingAttestation, error) {
	rows, err := s.db.Query(
		`SELECT a.transaction_id, se.device_id, se.user_address, se.user_email,
			COALESCE(se.post_publicly, 0), t.payment_unit
		 FROM attestations a
		 JOIN transactions t ON t.id = a.transaction_id
		 JOIN sessions se ON se.id = t.session_id
		 WHERE a.attestation_unit IS NULL`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []PendingAttestation
	for rows.Next() {
		var pa PendingAttestation
		var public int
		if err := rows.Scan(&pa.TransactionID, &pa.DeviceID, &pa.UserAddress, &pa.UserEmail,
			&public, &pa.PaymentUnit); err != nil {
			return nil, err
		}
		pa.PostPublicly = public != 0
		pending = append(pending, pa)
	}
	return pending, rows.Err()
}

// --- Rewards ---

// InsertReward records the one-time reward, returns false if the claim
// address or user identity was already rewarded.
func (s *Storage) InsertReward(transactionID int64, userAddress, userID string, amount int64) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO rewards (transaction_id, user_address, user_id, amount)
		 VALUES (?, ?, ?, ?)`,
		transactionID, userAddress, userID, amount,
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetReward returns the reward row for a transaction.
func (s *Storage) GetReward(transactionID int64) (*Reward, error) {
	var r Reward
	var unit sql.NullString
	var date sql.NullInt64

	err := s.db.QueryRow(
		`SELECT transaction_id, user_address, user_id, amount, reward_unit, reward_date
		 FROM rewards WHERE transaction_id = ?`,
		transactionID,
	).Scan(&r.TransactionID, &r.UserAddress, &r.UserID, &r.Amount, &unit, &date)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.RewardUnit = unit.String
	if date.Valid {
		t := time.Unix(date.Int64, 0)
		r.RewardDate = &t
	}
	return &r, nil
}

// MarkRewardPaid records the payout unit for a reward.
func (s *Storage) MarkRewardPaid(transactionID int64, unit string) error {
	_, err := s.db.Exec(
		"UPDATE rewards SET reward_unit = ?, reward_date = ? WHERE transaction_id = ?",
		unit, time.Now().Unix(), transactionID,
	)
	return err
}

// ListUnpaidRewards returns rewards not yet paid out, for the retry sweep.
func (s *Storage) ListUnpaidRewards() ([]Reward, error) {
	rows, err := s.db.Query(
		`SELECT transaction_id, user_address, user_id, amount
		 FROM rewards WHERE reward_unit IS NULL`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rewards []Reward
	for rows.Next() {
		var r Reward
		if err := rows.Scan(&r.TransactionID, &r.UserAddress, &r.UserID, &r.Amount); err != nil {
			return nil, err
		}
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

// InsertReferralReward records the one-time referral bonus, returns false if
// the new user was already counted for a referral.
func (s *Storage) InsertReferralReward(transactionID int64, userAddress, userID, newUserAddress, newUserID string, amount int64) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO referral_rewards
		 (transaction_id, user_address, user_id, new_user_address, new_user_id, amount)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		transactionID, userAddress, userID, newUserAddress, newUserID, amount,
	)
	if err != nil {
		return false, err
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetReferralReward returns the referral reward row for a transaction.
func (s *Storage) GetReferralReward(transactionID int64) (*ReferralReward, error) {
	var r ReferralReward
	var unit sql.NullString
	var date sql.NullInt64

	err := s.db.QueryRow(
		`SELECT transaction_id, user_address, user_id, new_user_address, new_user_id, amount, reward_unit, reward_date
		 FROM referral_rewards WHERE transaction_id = ?`,
		transactionID,
	).Scan(&r.TransactionID, &r.UserAddress, &r.UserID, &r.NewUserAddress, &r.NewUserID,
		&r.Amount, &unit, &date)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	r.RewardUnit = unit.String
	if date.Valid {
		t := time.Unix(date.Int64, 0)
		r.RewardDate = &t
	}
	return &r, nil
}

// MarkReferralRewardPaid records the payout unit for a referral reward.
func (s *Storage) MarkReferralRewardPaid(transactionID int64, unit string) error {
	_, err := s.db.Exec(
		"UPDATE referral_rewards SET reward_unit = ?, reward_date = ? WHERE transaction_id = ?",
		unit, time.Now().Unix(), transactionID,
	)
	return err
}

// ListUnpaidReferralRewards returns referral rewards not yet paid out.
func (s *Storage) ListUnpaidReferralRewards() ([]ReferralReward, error) {
	rows, err := s.db.Query(
		`SELECT transaction_id, user_address, user_id, new_user_address, new_user_id, amount
		 FROM referral_rewards WHERE reward_unit IS NULL`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rewards []ReferralReward
	for rows.Next() {
		var r ReferralReward
		if err := rows.Scan(&r.TransactionID, &r.UserAddress, &r.UserID,
			&r.NewUserAddress, &r.NewUserID, &r.Amount); err != nil {
			return nil, err
		}
		rewards = append(rewards, r)
	}
	return rewards, rows.Err()
}

// --- Rejected payments ---

// InsertRejectedPayment appends a payment policy violation to the audit log.
func (s *Storage) InsertRejectedPayment(receivingAddress string, price, receivedAmount, delay int64, paymentUnit, errText string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO rejected_payments
		 (receiving_address, price, received_amount, delay, payment_unit, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		receivingAddress, price, receivedAmount, delay, paymentUnit, errText, time.Now().Unix(),
	)
	return err
}
