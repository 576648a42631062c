package commitment

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserIDIsStableAndSaltBound(t *testing.T) {
	e := New("salt-1")
	profile := map[string]string{"email": "a@b.com"}

	id1 := e.UserID(profile)
	id2 := e.UserID(profile)
	assert.Equal(t, id1, id2)

	other := New("salt-2")
	assert.NotEqual(t, id1, other.UserID(profile))

	assert.NotEqual(t, id1, e.UserID(map[string]string{"email": "c@d.com"}))
}

func TestPublicPayload(t *testing.T) {
	e := New("salt")
	p := e.PublicPayload("ADDR", "a@b.com")

	assert.Equal(t, "ADDR", p.Address)
	assert.Equal(t, "a@b.com", p.Profile["email"])
	assert.Equal(t, e.UserID(map[string]string{"email": "a@b.com"}), p.Profile["user_id"])
}

func TestPrivatePayloadHidesEmail(t *testing.T) {
	e := New("salt")
	p, src, err := e.PrivatePayload("ADDR", "a@b.com")
	require.NoError(t, err)

	assert.NotContains(t, p.Profile, "email")
	assert.NotEmpty(t, p.Profile["profile_hash"])
	assert.Equal(t, e.UserID(map[string]string{"email": "a@b.com"}), p.Profile["user_id"])

	// opening data reproduces the commitment
	opening, ok := src["email"]
	require.True(t, ok)
	assert.Equal(t, "a@b.com", opening[0])
	assert.NotEmpty(t, opening[1])

	hidden := map[string]string{"email": HideValue(opening[0], opening[1])}
	assert.Equal(t, hashB64(canonical(hidden)), p.Profile["profile_hash"])
}

func TestPrivatePayloadDrawsFreshBlindings(t *testing.T) {
	e := New("salt")
	_, src1, err := e.PrivatePayload("ADDR", "a@b.com")
	require.NoError(t, err)
	_, src2, err := e.PrivatePayload("ADDR", "a@b.com")
	require.NoError(t, err)

	assert.NotEqual(t, src1["email"][1], src2["email"][1])
}

func TestEncodeSrcProfileRoundTrips(t *testing.T) {
	e := New("salt")
	_, src, err := e.PrivatePayload("ADDR", "a@b.com")
	require.NoError(t, err)

	bundle, err := EncodeSrcProfile(src)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(bundle)
	require.NoError(t, err)

	var decoded SrcProfile
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, src, decoded)
}
