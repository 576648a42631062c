// Package commitment builds attestation payloads: either the plain profile or
// a blinded per-field commitment that only the holder of the opening data can
// later prove.
package commitment

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const blindingBytes = 16

// Payload is the attestation body posted to the ledger.
type Payload struct {
	Address string            `json:"address"`
	Profile map[string]string `json:"profile"`
}

// SrcProfile is the opening data of a private payload: field -> [value, blinding].
// It is handed to the user and never persisted.
type SrcProfile map[string][2]string

// Engine derives pseudonymous user IDs and blinded commitments. The salt is
// process-wide, fixed and never revealed.
type Engine struct {
	salt string
}

func New(salt string) *Engine {
	return &Engine{salt: salt}
}

// UserID is a stable pseudonymous identifier of the profile: the same person
// re-attesting maps to the same ID without revealing the email.
func (e *Engine) UserID(profile map[string]string) string {
	return hashB64(canonical(profile) + e.salt)
}

// PublicPayload builds the payload with the email in the clear.
func (e *Engine) PublicPayload(address, email string) Payload {
	profile := map[string]string{"email": email}
	return Payload{
		Address: address,
		Profile: map[string]string{
			"email":   email,
			"user_id": e.UserID(profile),
		},
	}
}

// PrivatePayload builds the blinded payload plus its opening data. Each call
// draws fresh blinding values.
func (e *Engine) PrivatePayload(address, email string) (Payload, SrcProfile, error) {
	profile := map[string]string{"email": email}

	src := make(SrcProfile, len(profile))
	hidden := make(map[string]string, len(profile))
	for field, value := range profile {
		blinding, err := newBlinding()
		if err != nil {
			return Payload{}, nil, err
		}
		src[field] = [2]string{value, blinding}
		hidden[field] = HideValue(value, blinding)
	}

	return Payload{
		Address: address,
		Profile: map[string]string{
			"profile_hash": hashB64(canonical(hidden)),
			"user_id":      e.UserID(profile),
		},
	}, src, nil
}

// HideValue commits to a value under a blinding factor.
func HideValue(value, blinding string) string {
	return hashB64(value + blinding)
}

// EncodeSrcProfile renders the opening data as a base64 bundle for delivery
// to the user.
func EncodeSrcProfile(src SrcProfile) (string, error) {
	data, err := json.Marshal(src)
	if err != nil {
		return "", fmt.Errorf("marshal src profile: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func newBlinding() (string, error) {
	buf := make([]byte, blindingBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func hashB64(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// canonical renders a field map deterministically, independent of map order.
func canonical(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(fields[k])
		b.WriteByte('\n')
	}
	return b.String()
}
