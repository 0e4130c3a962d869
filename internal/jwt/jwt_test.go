package jwt

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignParse_RoundTrip(t *testing.T) {
	ks, err := NewDevEd25519("k1")
	require.NoError(t, err)
	s := NewSigner(ks)

	now := time.Now()
	tok, err := s.Sign(map[string]any{
		"iss": "https://sso/application/o/app/",
		"sub": "42",
		"exp": now.Add(time.Minute).Unix(),
		"amr": []string{"pwd"},
	})
	require.NoError(t, err)

	claims, err := s.Parse(tok, "https://sso/application/o/app/")
	require.NoError(t, err)
	require.Equal(t, "42", claims["sub"])
	require.Equal(t, []any{"pwd"}, claims["amr"])

	_, err = s.Parse(tok, "https://other/")
	require.ErrorIs(t, err, ErrInvalidIssuer)
}

func TestParse_Rejects(t *testing.T) {
	ks, _ := NewDevEd25519("k1")
	s := NewSigner(ks)

	expired, err := s.Sign(map[string]any{"sub": "1", "exp": time.Now().Add(-time.Hour).Unix()})
	require.NoError(t, err)
	_, err = s.Parse(expired, "")
	require.ErrorIs(t, err, ErrInvalidToken)

	noExp, err := s.Sign(map[string]any{"sub": "1"})
	require.NoError(t, err)
	_, err = s.Parse(noExp, "")
	require.ErrorIs(t, err, ErrInvalidToken)

	other, _ := NewDevEd25519("k2")
	foreign, err := NewSigner(other).Sign(map[string]any{"sub": "1", "exp": time.Now().Add(time.Minute).Unix()})
	require.NoError(t, err)
	_, err = s.Parse(foreign, "")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Parse("not.a.jwt", "")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestFromSeed(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	a, err := FromSeed(base64.StdEncoding.EncodeToString(seed), "k")
	require.NoError(t, err)
	b, err := FromSeed(base64.RawURLEncoding.EncodeToString(seed), "k")
	require.NoError(t, err)
	require.Equal(t, a.Pub, b.Pub)

	_, err = FromSeed("c2hvcnQ=", "k")
	require.Error(t, err)
	_, err = FromSeed("%%%", "k")
	require.Error(t, err)
}

func TestJWKSJSON(t *testing.T) {
	ks, _ := NewDevEd25519("k1")
	var out struct {
		Keys []map[string]string `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(ks.JWKSJSON(), &out))
	require.Len(t, out.Keys, 1)
	require.Equal(t, "k1", out.Keys[0]["kid"])
	require.Equal(t, "OKP", out.Keys[0]["kty"])
	require.False(t, strings.Contains(out.Keys[0]["x"], "="))
}
