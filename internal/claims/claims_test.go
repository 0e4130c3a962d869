package claims

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/expr"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

func alice() *repository.User {
	return &repository.User{
		ID:            "42",
		UUID:          "5f0c7c1e-6d55-4f0b-9d57-2bd4b7a1c001",
		Username:      "alice",
		Name:          "Alice A",
		Email:         "alice@example.com",
		EmailVerified: true,
		Active:        true,
		Groups:        []string{"staff"},
		Attributes:    map[string]any{"department": "eng"},
	}
}

func compileMappings(t *testing.T, extra ...repository.ScopeMapping) Mappings {
	t.Helper()
	env, err := expr.NewEnv()
	require.NoError(t, err)
	ms, err := CompileAll(env, append(DefaultMappings(), extra...))
	require.NoError(t, err)
	return ms
}

func provider(mappings ...string) repository.Provider {
	return repository.Provider{
		ClientID:               "client-1",
		SubMode:                repository.SubUserID,
		IncludeClaimsInIDToken: true,
		PropertyMappings:       mappings,
		TokenValidity:          10 * time.Minute,
	}
}

func TestIssuer(t *testing.T) {
	require.Equal(t, "https://sso.example.com/application/o/grafana/", Issuer("https://sso.example.com/", "grafana"))
	require.Equal(t, "http://localhost:9000/application/o/x/", Issuer("", "x"))
}

func TestBuildClaims_Alice(t *testing.T) {
	ms := compileMappings(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := Input{
		Provider:    provider(DefaultOpenID, DefaultEmail, DefaultProfile, DefaultOfflineAccess),
		Application: repository.Application{Slug: "app", Name: "App"},
		Mappings:    ms,
		User:        alice(),
		Scopes:      []string{"openid", "email", "profile", "offline_access"},
		AMR:         []string{"pwd"},
		AuthTime:    now.Add(-time.Minute),
		Nonce:       "n-1",
		Issuer:      Issuer("https://sso.example.com", "app"),
		Now:         now,
	}

	c, err := NewMaterializer().BuildClaims(context.Background(), in)
	require.NoError(t, err)

	require.Equal(t, "alice@example.com", c.UserInfo["email"])
	require.Equal(t, "Alice A", c.UserInfo["name"])
	require.Equal(t, "42", c.UserInfo["sub"])
	require.Equal(t, []any{"staff"}, c.UserInfo["groups"])
	require.Equal(t, []string{"pwd"}, c.IDToken["amr"])
	require.Equal(t, "https://sso.example.com/application/o/app/", c.IDToken["iss"])
	require.Equal(t, "client-1", c.IDToken["aud"])
	require.Equal(t, now.Unix(), c.IDToken["iat"])
	require.Equal(t, now.Add(10*time.Minute).Unix(), c.IDToken["exp"])
	require.Equal(t, "n-1", c.IDToken["nonce"])
	require.Equal(t, []string{"openid", "email", "profile", "offline_access"}, c.Scopes)

	for k, v := range c.UserInfo {
		require.Equal(t, v, c.IDToken[k], "key %s", k)
	}
	_, hasAMR := c.UserInfo["amr"]
	require.False(t, hasAMR)
}

func TestBuildClaims_ScopeOrderLaterWins(t *testing.T) {
	ms := compileMappings(t,
		repository.ScopeMapping{Name: "a", ScopeName: "email", Expression: `{"team": "from-email"}`},
		repository.ScopeMapping{Name: "b", ScopeName: "profile", Expression: `{"team": "from-profile"}`},
	)
	in := Input{Provider: provider("b", "a"), Mappings: ms, User: alice(), Scopes: []string{"profile", "email"}}
	c, err := NewMaterializer().BuildClaims(context.Background(), in)
	require.NoError(t, err)
	// orden canónico = PropertyMappings: b luego a
	require.Equal(t, "from-email", c.UserInfo["team"])
	require.Equal(t, []string{"profile", "email"}, c.Scopes)

	in.Provider = provider("a", "b")
	c, err = NewMaterializer().BuildClaims(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "from-profile", c.UserInfo["team"])
}

func TestBuildClaims_ReservedDropped(t *testing.T) {
	ms := compileMappings(t, repository.ScopeMapping{Name: "evil", ScopeName: "profile",
		Expression: `{"sub": "admin", "amr": ["mfa"], "iss": "https://evil", "nickname": "al"}`})
	in := Input{Provider: provider("evil"), Mappings: ms, User: alice(), Scopes: []string{"profile"}, AMR: []string{"pwd"}, Issuer: "https://good"}

	c, err := NewMaterializer().BuildClaims(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "42", c.UserInfo["sub"])
	require.Equal(t, "42", c.IDToken["sub"])
	require.Equal(t, []string{"pwd"}, c.IDToken["amr"])
	require.Equal(t, "https://good", c.IDToken["iss"])
	require.Equal(t, "al", c.UserInfo["nickname"])
}

func TestBuildClaims_FailingScopeIsolated(t *testing.T) {
	ms := compileMappings(t,
		repository.ScopeMapping{Name: "broken", ScopeName: "tier", Expression: `{"tier": user.attributes.tier}`},
		repository.ScopeMapping{Name: "not-a-map", ScopeName: "weird", Expression: `"nope"`},
	)
	core, logs := observer.New(zapcore.WarnLevel)
	ctx := logger.ToContext(context.Background(), zap.New(core))

	in := Input{
		Provider: provider(DefaultEmail, "broken", "not-a-map"),
		Mappings: ms,
		User:     alice(),
		Scopes:   []string{"email", "tier", "weird"},
	}
	c, err := NewMaterializer().BuildClaims(ctx, in)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", c.UserInfo["email"])
	require.NotContains(t, c.UserInfo, "tier")

	failed := logs.FilterMessage("scope mapping failed, contributing no claims")
	require.Equal(t, 2, failed.Len())
	scopes := []string{}
	for _, e := range failed.All() {
		scopes = append(scopes, e.ContextMap()["scope"].(string))
	}
	require.ElementsMatch(t, []string{"tier", "weird"}, scopes)
}

func TestBuildClaims_IDTokenWithoutScopeClaims(t *testing.T) {
	ms := compileMappings(t)
	p := provider(DefaultEmail, DefaultProfile)
	p.IncludeClaimsInIDToken = false
	c, err := NewMaterializer().BuildClaims(context.Background(), Input{Provider: p, Mappings: ms, User: alice(), Scopes: []string{"email", "profile"}})
	require.NoError(t, err)
	require.NotContains(t, c.IDToken, "email")
	require.Equal(t, "alice@example.com", c.UserInfo["email"])
	require.Equal(t, c.UserInfo["sub"], c.IDToken["sub"])
}

// Propiedad: para cualquier subconjunto de scopes, toda key compartida coincide.
func TestBuildClaims_ConsistencyRandomScopes(t *testing.T) {
	ms := compileMappings(t,
		repository.ScopeMapping{Name: "dept", ScopeName: "department", Expression: `{"department": user.attributes.department, "name": "override"}`},
		repository.ScopeMapping{Name: "nested", ScopeName: "nested", Expression: `{"org": {"groups": user.groups, "active": user.active}}`},
		repository.ScopeMapping{Name: "broken", ScopeName: "broken", Expression: `{"x": user.attributes.missing}`},
	)
	all := []string{"openid", "email", "profile", "offline_access", "department", "nested", "broken", "unknown"}
	p := provider(DefaultOpenID, DefaultEmail, DefaultProfile, DefaultOfflineAccess, "dept", "nested", "broken")

	rng := rand.New(rand.NewPCG(7, 11))
	m := NewMaterializer()
	for i := 0; i < 200; i++ {
		var scopes []string
		for _, s := range all {
			if rng.IntN(2) == 1 {
				scopes = append(scopes, s)
			}
		}
		rng.Shuffle(len(scopes), func(a, b int) { scopes[a], scopes[b] = scopes[b], scopes[a] })

		c, err := m.BuildClaims(context.Background(), Input{Provider: p, Mappings: ms, User: alice(), Scopes: scopes, AMR: []string{"pwd"}})
		require.NoError(t, err, "scopes %v", scopes)
		for k, v := range c.UserInfo {
			require.Equal(t, v, c.IDToken[k], "scopes %v key %s", scopes, k)
		}
		require.Equal(t, c.Subject, c.UserInfo["sub"])
	}
}

func TestCheckConsistent(t *testing.T) {
	require.NoError(t, checkConsistent(map[string]any{"sub": "1", "iss": "x"}, map[string]any{"sub": "1", "email": "a"}))
	err := checkConsistent(map[string]any{"sub": "1", "email": "b"}, map[string]any{"sub": "1", "email": "a"})
	require.ErrorIs(t, err, ErrClaimsInconsistent)
}

func TestCloneIsolation(t *testing.T) {
	src := map[string]any{"org": map[string]any{"groups": []any{"a"}}}
	cp := cloneMap(src)
	cp["org"].(map[string]any)["groups"].([]any)[0] = "b"
	require.Equal(t, "a", src["org"].(map[string]any)["groups"].([]any)[0])
}

func TestSubject(t *testing.T) {
	u := alice()
	sum := sha256.Sum256([]byte("42"))

	cases := map[repository.SubMode]string{
		repository.SubHashedUserID: hex.EncodeToString(sum[:]),
		"":                         hex.EncodeToString(sum[:]),
		repository.SubUserID:       "42",
		repository.SubUserUUID:     u.UUID,
		repository.SubUsername:     "alice",
		repository.SubEmail:        "alice@example.com",
	}
	for mode, want := range cases {
		got, err := Subject(mode, u)
		require.NoError(t, err)
		require.Equal(t, want, got, "mode %q", mode)
	}

	_, err := Subject(repository.SubEmail, &repository.User{ID: "1"})
	require.ErrorIs(t, err, ErrNoSubject)
	_, err = Subject(repository.SubUserID, nil)
	require.ErrorIs(t, err, ErrNoSubject)
}

func TestCompileAll_Errors(t *testing.T) {
	env, err := expr.NewEnv()
	require.NoError(t, err)

	_, err = CompileAll(env, []repository.ScopeMapping{{Name: "x", ScopeName: "s", Expression: `{`}})
	require.Error(t, err)

	_, err = CompileAll(env, []repository.ScopeMapping{
		{Name: "x", ScopeName: "s", Expression: `{}`},
		{Name: "x", ScopeName: "t", Expression: `{}`},
	})
	require.ErrorContains(t, err, "duplicate")
}
