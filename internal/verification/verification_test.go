package verification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temikng/email-attestation-bot/internal/storage"
)

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	failures int
	sent     []sentMail
	admin    []sentMail
}

func (f *fakeMailer) Send(to, subject, body string) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("smtp down")
	}
	f.sent = append(f.sent, sentMail{to, subject, body})
	return nil
}

func (f *fakeMailer) NotifyAdmin(subject, body string) error {
	f.admin = append(f.admin, sentMail{"admin", subject, body})
	return nil
}

type fakeMessenger struct {
	msgs map[int64][]string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{msgs: make(map[int64][]string)}
}

func (f *fakeMessenger) SendToDevice(_ context.Context, deviceID int64, text string) error {
	f.msgs[deviceID] = append(f.msgs[deviceID], text)
	return nil
}

func newTestLifecycle(t *testing.T, maxAttempts int) (*Lifecycle, *storage.Storage, *fakeMailer, *fakeMessenger) {
	t.Helper()
	store, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	mail := &fakeMailer{}
	msgr := newFakeMessenger()
	log := slog.New(slog.NewTextHandler(testWriter{t}, nil))
	return New(store, mail, msgr, maxAttempts, log), store, mail, msgr
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func seedTransaction(t *testing.T, store *storage.Storage) int64 {
	t.Helper()
	sess, err := store.CreateSession(1, "ADDR", "a@b.com", "RECV", 100)
	require.NoError(t, err)
	_, err = store.InsertTransaction(sess.ID, 100, 100, "UNIT1")
	require.NoError(t, err)
	tx, err := store.GetTransactionByUnit("UNIT1")
	require.NoError(t, err)
	return tx.ID
}

func TestGenerateCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, CodeLength)
		for _, c := range code {
			assert.Contains(t, codeAlphabet, string(c))
		}
		seen[code] = true
	}
	// 50 draws from a 32^6 space should not collide
	assert.Greater(t, len(seen), 45)
}

func TestIssueSendsOnce(t *testing.T) {
	l, store, mail, msgr := newTestLifecycle(t, 5)
	txID := seedTransaction(t, store)

	require.NoError(t, l.Issue(context.Background(), txID, 1, "a@b.com"))
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "a@b.com", mail.sent[0].to)
	assert.Len(t, msgr.msgs[1], 1)

	// a duplicate confirmation event issues nothing
	require.NoError(t, l.Issue(context.Background(), txID, 1, "a@b.com"))
	assert.Len(t, mail.sent, 1)

	v, err := store.GetVerification(txID, "a@b.com")
	require.NoError(t, err)
	assert.True(t, v.IsSent)
	assert.Contains(t, mail.sent[0].body, v.Code)
}

func TestIssueFailureEscalatesAndStaysUnsent(t *testing.T) {
	l, store, mail, _ := newTestLifecycle(t, 5)
	txID := seedTransaction(t, store)

	mail.failures = 1
	err := l.Issue(context.Background(), txID, 1, "a@b.com")
	assert.Error(t, err)
	assert.Len(t, mail.admin, 1)

	v, err := store.GetVerification(txID, "a@b.com")
	require.NoError(t, err)
	assert.False(t, v.IsSent)

	// the record is picked up by the resend sweep
	l.ResendSweep(context.Background())
	require.Len(t, mail.sent, 1)
	assert.Contains(t, mail.sent[0].body, v.Code)

	v, err = store.GetVerification(txID, "a@b.com")
	require.NoError(t, err)
	assert.True(t, v.IsSent)

	// nothing left to sweep
	l.ResendSweep(context.Background())
	assert.Len(t, mail.sent, 1)
}

func TestResendKeepsCode(t *testing.T) {
	l, store, mail, _ := newTestLifecycle(t, 5)
	txID := seedTransaction(t, store)

	require.NoError(t, l.Issue(context.Background(), txID, 1, "a@b.com"))
	v, err := store.GetVerification(txID, "a@b.com")
	require.NoError(t, err)

	require.NoError(t, l.Resend(context.Background(), txID, 1, "a@b.com"))
	require.Len(t, mail.sent, 2)
	assert.Contains(t, mail.sent[1].body, v.Code)

	after, err := store.GetVerification(txID, "a@b.com")
	require.NoError(t, err)
	assert.Equal(t, v.Code, after.Code)
}

func TestCheckCorrectCode(t *testing.T) {
	l, store, _, _ := newTestLifecycle(t, 5)
	txID := seedTransaction(t, store)
	require.NoError(t, l.Issue(context.Background(), txID, 1, "a@b.com"))
	v, err := store.GetVerification(txID, "a@b.com")
	require.NoError(t, err)

	outcome, _, err := l.Check(context.Background(), txID, "a@b.com", v.Code)
	require.NoError(t, err)
	assert.Equal(t, CheckCorrect, outcome)

	after, err := store.GetVerification(txID, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, after.Result)
	assert.Equal(t, storage.ResultSuccess, *after.Result)
}

func TestCheckExhaustsAfterMaxAttempts(t *testing.T) {
	const maxAttempts = 5
	l, store, _, _ := newTestLifecycle(t, maxAttempts)
	txID := seedTransaction(t, store)
	require.NoError(t, l.Issue(context.Background(), txID, 1, "a@b.com"))

	for i := 1; i < maxAttempts; i++ {
		outcome, left, err := l.Check(context.Background(), txID, "a@b.com", "WRONG")
		require.NoError(t, err)
		assert.Equal(t, CheckWrong, outcome)
		assert.Equal(t, maxAttempts-i, left)
	}

	outcome, _, err := l.Check(context.Background(), txID, "a@b.com", "WRONG")
	require.NoError(t, err)
	assert.Equal(t, CheckExhausted, outcome)

	v, err := store.GetVerification(txID, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, v.Result)
	assert.Equal(t, storage.ResultFailure, *v.Result)
	assert.Equal(t, maxAttempts, v.Attempts)

	// further entries are rejected even with the right code
	outcome, _, err = l.Check(context.Background(), txID, "a@b.com", v.Code)
	require.NoError(t, err)
	assert.Equal(t, CheckExhausted, outcome)
}
