package policy

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/expr"
)

func aliceRequest() Request {
	return Request{
		User: &repository.User{
			ID:            "1",
			Username:      "alice",
			Name:          "Alice A",
			Email:         "alice@example.com",
			EmailVerified: true,
			Active:        true,
			Groups:        []string{"staff"},
			Attributes:    map[string]any{"department": "eng"},
		},
		Application: repository.Application{Slug: "grafana", Name: "Grafana"},
		ClientID:    "grafana-client",
		ClientIP:    "10.1.2.3",
		Scopes:      []string{"openid", "email"},
		RedirectURI: "http://localhost:3000/login/generic_oauth",
	}
}

func deps(t *testing.T) CompileDeps {
	t.Helper()
	env, err := expr.NewEnv()
	require.NoError(t, err)
	return CompileDeps{Env: env, Scores: NewMemoryScores(time.Hour)}
}

func eval(t *testing.T, p repository.Policy, d CompileDeps, req Request) Outcome {
	t.Helper()
	ev, err := Compile(p, d)
	require.NoError(t, err)
	out, err := ev.Evaluate(context.Background(), req)
	require.NoError(t, err)
	return out
}

func TestExpressionPolicy(t *testing.T) {
	d := deps(t)
	p := repository.Policy{Name: "staff-only", Kind: repository.PolicyExpression,
		Expression: `"staff" in user.groups && application.slug == "grafana"`}
	require.Equal(t, Passes, eval(t, p, d, aliceRequest()).Result)

	p.Expression = `"admins" in user.groups`
	require.Equal(t, Fails, eval(t, p, d, aliceRequest()).Result)
}

func TestExpressionPolicy_InvalidRejectedAtCompile(t *testing.T) {
	_, err := Compile(repository.Policy{Name: "bad", Kind: repository.PolicyExpression, Expression: `user.`}, deps(t))
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestAttributeMatchPolicy(t *testing.T) {
	d := deps(t)
	cases := []struct {
		name string
		s    repository.AttributeMatchSettings
		want Result
	}{
		{"exact email", repository.AttributeMatchSettings{Key: "email", Value: "alice@example.com"}, Passes},
		{"exact mismatch", repository.AttributeMatchSettings{Key: "email", Value: "bob@example.com"}, Fails},
		{"regex domain", repository.AttributeMatchSettings{Key: "email", Value: `@example\.com$`, Mode: repository.AttributeRegex}, Passes},
		{"contains", repository.AttributeMatchSettings{Key: "name", Value: "Alice", Mode: repository.AttributeContains}, Passes},
		{"nested attribute", repository.AttributeMatchSettings{Key: "attributes.department", Value: "eng"}, Passes},
		{"group membership", repository.AttributeMatchSettings{Key: "groups", Value: "staff"}, Passes},
		{"missing key", repository.AttributeMatchSettings{Key: "attributes.nope", Value: "x"}, Fails},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := repository.Policy{Name: tc.name, Kind: repository.PolicyAttributeMatch, AttributeMatch: tc.s}
			require.Equal(t, tc.want, eval(t, p, d, aliceRequest()).Result)
		})
	}
}

func TestAttributeMatchPolicy_NoUserFails(t *testing.T) {
	p := repository.Policy{Name: "p", Kind: repository.PolicyAttributeMatch,
		AttributeMatch: repository.AttributeMatchSettings{Key: "email", Value: "x"}}
	require.Equal(t, Fails, eval(t, p, deps(t), Request{}).Result)
}

func TestReputationPolicy_Memory(t *testing.T) {
	d := deps(t)
	p := repository.Policy{Name: "rep", Kind: repository.PolicyReputation,
		Reputation: repository.ReputationSettings{CheckIP: true, CheckUsername: true, Threshold: -3}}

	require.Equal(t, Passes, eval(t, p, d, aliceRequest()).Result)

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, d.Scores.Adjust(ctx, ScoreUsername, "alice", -1))
	}
	out := eval(t, p, d, aliceRequest())
	require.Equal(t, Fails, out.Result)
	require.Contains(t, out.Messages[0], "username reputation -4")
}

func TestReputationPolicy_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	scores := NewRedisScores(rdb, "cg", time.Hour)
	d := deps(t)
	d.Scores = scores

	p := repository.Policy{Name: "rep", Kind: repository.PolicyReputation,
		Reputation: repository.ReputationSettings{CheckIP: true, Threshold: 0}}
	require.Equal(t, Passes, eval(t, p, d, aliceRequest()).Result)

	ctx := context.Background()
	require.NoError(t, scores.Adjust(ctx, ScoreIP, "10.1.2.3", -2))
	require.True(t, mr.Exists("cg:reputation:ip:10.1.2.3"))
	require.Equal(t, Fails, eval(t, p, d, aliceRequest()).Result)

	require.NoError(t, scores.Adjust(ctx, ScoreIP, "10.1.2.3", 5))
	n, err := scores.Score(ctx, ScoreIP, "10.1.2.3")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestReputationPolicy_MustCheckSomething(t *testing.T) {
	_, err := Compile(repository.Policy{Name: "rep", Kind: repository.PolicyReputation}, deps(t))
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestCedarPolicy(t *testing.T) {
	d := deps(t)
	p := repository.Policy{Name: "cedar", Kind: repository.PolicyCedar, Cedar: repository.CedarSettings{Policies: `
permit (
  principal,
  action == Action::"authorize",
  resource == Application::"grafana"
) when { principal.groups.contains("staff") };

forbid (principal, action, resource) when { context.scopes.contains("offline_access") };
`}}

	require.Equal(t, Passes, eval(t, p, d, aliceRequest()).Result)

	req := aliceRequest()
	req.Scopes = append(req.Scopes, "offline_access")
	require.Equal(t, Fails, eval(t, p, d, req).Result)

	req = aliceRequest()
	req.Application.Slug = "other"
	require.Equal(t, Fails, eval(t, p, d, req).Result)
}

func TestCedarPolicy_ParseError(t *testing.T) {
	_, err := Compile(repository.Policy{Name: "c", Kind: repository.PolicyCedar,
		Cedar: repository.CedarSettings{Policies: "permit ("}}, deps(t))
	require.ErrorIs(t, err, ErrInvalidPolicy)
}

func TestDummyPolicy(t *testing.T) {
	d := deps(t)
	require.Equal(t, Passes, eval(t, repository.Policy{Name: "d", Kind: repository.PolicyDummy,
		Dummy: repository.DummySettings{Result: true}}, d, Request{}).Result)
	require.Equal(t, Fails, eval(t, repository.Policy{Name: "d", Kind: repository.PolicyDummy}, d, Request{}).Result)
}

func TestDummyPolicy_TimesOutThroughEngine(t *testing.T) {
	set, err := CompileAll([]repository.Policy{{Name: "slow", Kind: repository.PolicyDummy,
		Dummy: repository.DummySettings{Result: true, Wait: time.Second}}}, deps(t))
	require.NoError(t, err)

	b := bind("slow", 0, 0)
	b.Timeout = 10 * time.Millisecond
	dec := NewEngine(EngineDeps{}).Evaluate(context.Background(), []repository.PolicyBinding{b}, set, Request{})
	require.False(t, dec.Allow)
	require.ErrorIs(t, dec.Trace[0].Err, ErrTimeout)
}

func TestCompile_UnknownKind(t *testing.T) {
	_, err := Compile(repository.Policy{Name: "x", Kind: "geoip"}, deps(t))
	require.ErrorIs(t, err, ErrUnknownKind)
}
