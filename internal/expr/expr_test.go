package expr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func alice() map[string]any {
	return map[string]any{
		"id":             "1",
		"username":       "alice",
		"name":           "Alice A",
		"email":          "alice@example.com",
		"email_verified": true,
		"groups":         []string{"staff", "admins"},
		"attributes":     map[string]any{"department": "eng"},
	}
}

func mustEnv(t *testing.T) *Env {
	t.Helper()
	env, err := NewEnv()
	require.NoError(t, err)
	return env
}

func TestEvalBool(t *testing.T) {
	env := mustEnv(t)
	p, err := env.Compile(`"admins" in user.groups && request.client_ip.startsWith("10.")`)
	require.NoError(t, err)

	ok, err := p.EvalBool(context.Background(), Vars{User: alice(), Request: map[string]any{"client_ip": "10.0.0.1"}})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = p.EvalBool(context.Background(), Vars{User: alice(), Request: map[string]any{"client_ip": "192.168.0.1"}})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvalBool_WrongType(t *testing.T) {
	p, err := mustEnv(t).Compile(`user.username`)
	require.NoError(t, err)

	_, err = p.EvalBool(context.Background(), Vars{User: alice()})
	require.ErrorIs(t, err, ErrResultType)
}

func TestEvalMap(t *testing.T) {
	p, err := mustEnv(t).Compile(`{"email": user.email, "email_verified": user.email_verified, "groups": user.groups}`)
	require.NoError(t, err)

	got, err := p.EvalMap(context.Background(), Vars{User: alice()})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"email":          "alice@example.com",
		"email_verified": true,
		"groups":         []any{"staff", "admins"},
	}, got)
}

func TestEvalMap_Empty(t *testing.T) {
	p, err := mustEnv(t).Compile(`{}`)
	require.NoError(t, err)

	got, err := p.EvalMap(context.Background(), Vars{})
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestEvalMap_MissingKeyIsEvalError(t *testing.T) {
	p, err := mustEnv(t).Compile(`{"x": user.attributes.nope}`)
	require.NoError(t, err)

	_, err = p.EvalMap(context.Background(), Vars{User: alice()})
	require.ErrorIs(t, err, ErrEval)
}

func TestEvalMap_NotAMap(t *testing.T) {
	p, err := mustEnv(t).Compile(`[1, 2]`)
	require.NoError(t, err)

	_, err = p.EvalMap(context.Background(), Vars{})
	require.ErrorIs(t, err, ErrResultType)
}

func TestCompileError(t *testing.T) {
	_, err := mustEnv(t).Compile(`user.email ==`)
	require.ErrorIs(t, err, ErrCompile)

	_, err = mustEnv(t).Compile(`unknown_var == 1`)
	require.ErrorIs(t, err, ErrCompile)
}

func TestNowVariable(t *testing.T) {
	p, err := mustEnv(t).Compile(`now < timestamp("2030-01-01T00:00:00Z")`)
	require.NoError(t, err)

	ok, err := p.EvalBool(context.Background(), Vars{Now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.True(t, ok)
}
