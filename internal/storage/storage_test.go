package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreateUser(t *testing.T) {
	s := newTestStorage(t)

	u, err := s.GetOrCreateUser(42)
	require.NoError(t, err)
	assert.Empty(t, u.UserAddress)
	assert.Empty(t, u.UserEmail)

	require.NoError(t, s.SetUserAddress(42, "ADDR"))
	require.NoError(t, s.SetUserEmail(42, "a@b.com"))

	u, err = s.GetOrCreateUser(42)
	require.NoError(t, err)
	assert.Equal(t, "ADDR", u.UserAddress)
	assert.Equal(t, "a@b.com", u.UserEmail)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetSession(1, "ADDR", "a@b.com")
	assert.ErrorIs(t, err, ErrNotFound)

	sess, err := s.CreateSession(1, "ADDR", "a@b.com", "RECV", 100)
	require.NoError(t, err)
	assert.Nil(t, sess.PostPublicly)
	assert.EqualValues(t, 100, sess.Price)

	// duplicate tuple is rejected by the unique constraint
	_, err = s.CreateSession(1, "ADDR", "a@b.com", "RECV2", 100)
	assert.Error(t, err)

	require.NoError(t, s.SetPostPublicly(sess.ID, false))
	got, err := s.GetSession(1, "ADDR", "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, got.PostPublicly)
	assert.False(t, *got.PostPublicly)

	byRecv, err := s.GetSessionByReceivingAddress("RECV")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, byRecv.ID)

	addrs, err := s.ListReceivingAddresses()
	require.NoError(t, err)
	assert.Equal(t, []string{"RECV"}, addrs)
}

func TestInsertTransactionIsIdempotentPerUnit(t *testing.T) {
	s := newTestStorage(t)
	sess, err := s.CreateSession(1, "ADDR", "a@b.com", "RECV", 100)
	require.NoError(t, err)

	isNew, err := s.InsertTransaction(sess.ID, 100, 100, "UNIT1")
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = s.InsertTransaction(sess.ID, 100, 100, "UNIT1")
	require.NoError(t, err)
	assert.False(t, isNew)
}

func TestConfirmTransactionFlipsOnce(t *testing.T) {
	s := newTestStorage(t)
	sess, err := s.CreateSession(1, "ADDR", "a@b.com", "RECV", 100)
	require.NoError(t, err)
	_, err = s.InsertTransaction(sess.ID, 100, 100, "UNIT1")
	require.NoError(t, err)

	tx, err := s.GetTransactionByUnit("UNIT1")
	require.NoError(t, err)
	assert.False(t, tx.IsConfirmed)

	flipped, err := s.ConfirmTransaction(tx.ID)
	require.NoError(t, err)
	assert.True(t, flipped)

	flipped, err = s.ConfirmTransaction(tx.ID)
	require.NoError(t, err)
	assert.False(t, flipped)

	tx, err = s.GetTransactionByUnit("UNIT1")
	require.NoError(t, err)
	assert.True(t, tx.IsConfirmed)
	assert.NotNil(t, tx.ConfirmationDate)
}

func TestVerificationAttemptsAndResult(t *testing.T) {
	s := newTestStorage(t)
	sess, err := s.CreateSession(1, "ADDR", "a@b.com", "RECV", 100)
	require.NoError(t, err)
	_, err = s.InsertTransaction(sess.ID, 100, 100, "UNIT1")
	require.NoError(t, err)
	tx, err := s.GetTransactionByUnit("UNIT1")
	require.NoError(t, err)

	isNew, err := s.CreateVerification(tx.ID, "a@b.com", "ABC123")
	require.NoError(t, err)
	assert.True(t, isNew)

	// second code for the same (transaction, email) is never created
	isNew, err = s.CreateVerification(tx.ID, "a@b.com", "XYZ789")
	require.NoError(t, err)
	assert.False(t, isNew)

	v, err := s.GetVerification(tx.ID, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, "ABC123", v.Code)

	for i := 1; i <= 3; i++ {
		attempts, err := s.IncrementVerificationAttempts(tx.ID, "a@b.com")
		require.NoError(t, err)
		assert.Equal(t, i, attempts)
	}

	resolved, err := s.SetVerificationResult(tx.ID, "a@b.com", ResultFailure)
	require.NoError(t, err)
	assert.True(t, resolved)

	// a resolved row is terminal
	resolved, err = s.SetVerificationResult(tx.ID, "a@b.com", ResultSuccess)
	require.NoError(t, err)
	assert.False(t, resolved)

	// the counter stops moving once resolved
	attempts, err := s.IncrementVerificationAttempts(tx.ID, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestSessionStatusJoins(t *testing.T) {
	s := newTestStorage(t)
	sess, err := s.CreateSession(1, "ADDR", "a@b.com", "RECV", 100)
	require.NoError(t, err)

	_, err = s.GetSessionStatus(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.InsertTransaction(sess.ID, 100, 120, "UNIT1")
	require.NoError(t, err)
	tx, err := s.GetTransactionByUnit("UNIT1")
	require.NoError(t, err)

	st, err := s.GetSessionStatus(sess.ID)
	require.NoError(t, err)
	assert.False(t, st.IsConfirmed)
	assert.False(t, st.HasVerification)
	assert.EqualValues(t, 120, st.ReceivedAmount)

	_, err = s.ConfirmTransaction(tx.ID)
	require.NoError(t, err)
	_, err = s.CreateVerification(tx.ID, "a@b.com", "ABC123")
	require.NoError(t, err)
	_, err = s.SetVerificationResult(tx.ID, "a@b.com", ResultSuccess)
	require.NoError(t, err)
	require.NoError(t, s.CreateAttestationPlaceholder(tx.ID))
	require.NoError(t, s.MarkAttestationPosted(tx.ID, "ATTUNIT"))

	st, err = s.GetSessionStatus(sess.ID)
	require.NoError(t, err)
	assert.True(t, st.IsConfirmed)
	assert.True(t, st.HasVerification)
	require.NotNil(t, st.Result)
	assert.Equal(t, ResultSuccess, *st.Result)
	assert.Equal(t, "ATTUNIT", st.AttestationUnit)
	assert.NotNil(t, st.AttestationDate)

	// a newer transaction shadows the posted one
	_, err = s.InsertTransaction(sess.ID, 100, 100, "UNIT2")
	require.NoError(t, err)
	st, err = s.GetSessionStatus(sess.ID)
	require.NoError(t, err)
	assert.False(t, st.IsConfirmed)
	assert.Empty(t, st.AttestationUnit)

	count, err := s.CountPostedAttestations("ADDR")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUnpostedAttestationsSweepView(t *testing.T) {
	s := newTestStorage(t)
	sess, err := s.CreateSession(7, "ADDR", "a@b.com", "RECV", 100)
	require.NoError(t, err)
	require.NoError(t, s.SetPostPublicly(sess.ID, true))
	_, err = s.InsertTransaction(sess.ID, 100, 100, "UNIT1")
	require.NoError(t, err)
	tx, err := s.GetTransactionByUnit("UNIT1")
	require.NoError(t, err)
	require.NoError(t, s.CreateAttestationPlaceholder(tx.ID))

	pending, err := s.ListUnpostedAttestations()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, tx.ID, pending[0].TransactionID)
	assert.EqualValues(t, 7, pending[0].DeviceID)
	assert.True(t, pending[0].PostPublicly)

	require.NoError(t, s.MarkAttestationPosted(tx.ID, "ATTUNIT"))
	pending, err = s.ListUnpostedAttestations()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRewardUniqueness(t *testing.T) {
	s := newTestStorage(t)

	isNew, err := s.InsertReward(1, "ADDR", "uid-1", 200)
	require.NoError(t, err)
	assert.True(t, isNew)

	// same address, different transaction: still one reward per address
	isNew, err = s.InsertReward(2, "ADDR", "uid-2", 200)
	require.NoError(t, err)
	assert.False(t, isNew)

	// same pseudonymous identity re-attesting from another address
	isNew, err = s.InsertReward(3, "ADDR2", "uid-1", 200)
	require.NoError(t, err)
	assert.False(t, isNew)

	unpaid, err := s.ListUnpaidRewards()
	require.NoError(t, err)
	require.Len(t, unpaid, 1)

	require.NoError(t, s.MarkRewardPaid(1, "RWUNIT"))
	unpaid, err = s.ListUnpaidRewards()
	require.NoError(t, err)
	assert.Empty(t, unpaid)
}

func TestReferralRewardUniqueness(t *testing.T) {
	s := newTestStorage(t)

	isNew, err := s.InsertReferralReward(1, "REF", "ref-uid", "NEW", "new-uid", 200)
	require.NoError(t, err)
	assert.True(t, isNew)

	isNew, err = s.InsertReferralReward(2, "REF2", "ref-uid-2", "NEW", "new-uid", 200)
	require.NoError(t, err)
	assert.False(t, isNew)

	unpaid, err := s.ListUnpaidReferralRewards()
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, "REF", unpaid[0].UserAddress)
}

func TestUnsentVerificationsSweepView(t *testing.T) {
	s := newTestStorage(t)
	sess, err := s.CreateSession(3, "ADDR", "a@b.com", "RECV", 100)
	require.NoError(t, err)
	_, err = s.InsertTransaction(sess.ID, 100, 100, "UNIT1")
	require.NoError(t, err)
	tx, err := s.GetTransactionByUnit("UNIT1")
	require.NoError(t, err)
	_, err = s.CreateVerification(tx.ID, "a@b.com", "ABC123")
	require.NoError(t, err)

	pending, err := s.ListUnsentVerifications()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ABC123", pending[0].Code)
	assert.EqualValues(t, 3, pending[0].DeviceID)

	require.NoError(t, s.SetVerificationSent(tx.ID, "a@b.com", true))
	pending, err = s.ListUnsentVerifications()
	require.NoError(t, err)
	assert.Empty(t, pending)
}
