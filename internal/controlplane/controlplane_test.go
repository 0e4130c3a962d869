package controlplane

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/policy"
)

const sampleDoc = `
users:
  - id: "42"
    username: alice
    name: Alice A
    email: alice@example.com
    email_verified: true
    groups: [staff]

policies:
  - name: staff-only
    kind: expression
    expression: '"staff" in user.groups'
  - name: block-bots
    kind: attribute_match
    attribute_match: {key: username, value: "bot-.*", mode: regex}

scope_mappings:
  - name: department
    scope_name: department
    description: Your department
    expression: '{"department": user.attributes.department}'

flows:
  - slug: implicit-consent
    title: Implicit consent
    stages:
      - kind: authentication
      - kind: policy
      - kind: consent
        consent: {mode: implied, remember: expiring, remember_for: 720h, token_ttl: 2m}

providers:
  - name: Grafana
    client_id: grafana
    client_secret_hash: "$2a$10$abcdefghijklmnopqrstuv"
    authorization_flow: implicit-consent
    redirect_uris:
      - {matching_mode: strict, url: "http://localhost:9009/"}
      - {matching_mode: regex, url: "https://grafana\\.example\\.com/login/.*"}
    property_mappings: [default-openid, default-email, default-profile, department]
  - name: CLI
    client_id: cli
    client_type: public
    authorization_flow: implicit-consent
    include_claims_in_id_token: false

applications:
  - slug: grafana
    name: Grafana
    provider: grafana
    policy_bindings:
      - {policy: staff-only, order: 10}
      - {policy: block-bots, order: 0, negate: true, timeout: 2s}
      - {policy: staff-only, order: 10, enabled: false}
  - slug: cli
    provider: cli
`

func TestParse_Sample(t *testing.T) {
	s, err := Parse([]byte(sampleDoc), BuildDeps{Scores: policy.NewMemoryScores(time.Hour)})
	require.NoError(t, err)
	require.NotEmpty(t, s.Version)

	p, ok := s.Provider("grafana")
	require.True(t, ok)
	require.Equal(t, repository.ClientConfidential, p.ClientType)
	require.Equal(t, repository.SubHashedUserID, p.SubMode)
	require.True(t, p.IncludeClaimsInIDToken)
	require.Equal(t, time.Minute, p.AccessCodeValidity)
	require.Equal(t, 5*time.Minute, p.TokenValidity)

	m, ok := s.Matcher("grafana")
	require.True(t, ok)
	_, matched := m.Match("http://localhost:9009")
	require.False(t, matched)
	_, matched = m.Match("https://grafana.example.com/login/generic_oauth")
	require.True(t, matched)

	app, ok := s.ApplicationFor("grafana")
	require.True(t, ok)
	require.Len(t, app.PolicyBindings, 3)
	require.Equal(t, 1, app.PolicyBindings[1].Seq)
	require.Equal(t, 2*time.Second, app.PolicyBindings[1].Timeout)
	require.False(t, app.PolicyBindings[2].Enabled)

	f, ok := s.Flow("implicit-consent")
	require.True(t, ok)
	cs := f.ConsentStage()
	require.Equal(t, repository.ConsentImplied, cs.Mode)
	require.Equal(t, 720*time.Hour, cs.RememberFor)
	require.Equal(t, 2*time.Minute, cs.TokenTTL)

	cli, _ := s.Provider("cli")
	require.False(t, cli.IncludeClaimsInIDToken)
	require.Equal(t, []string{"openid", "email", "profile", "offline_access"}, s.SupportedScopes(cli))

	require.Equal(t, []ScopeDescription{
		{Scope: "email", Description: "Email address"},
		{Scope: "department", Description: "Your department"},
	}, s.ScopeDescriptions(p, []string{"department", "email", "openid"}))

	users := s.Users()
	require.Len(t, users, 1)
	require.True(t, users[0].Active)
	require.NotEmpty(t, users[0].UUID)
}

func TestParse_Rejects(t *testing.T) {
	cases := map[string]struct{ from, to string }{
		"bad regex":            {`https://grafana\\.example\\.com/login/.*`, `https://(grafana`},
		"unknown flow":         {"authorization_flow: implicit-consent\n    redirect_uris", "authorization_flow: nope\n    redirect_uris"},
		"unknown mapping":      {"department]", "nope]"},
		"unknown policy":       {"{policy: staff-only, order: 10}", "{policy: ghost, order: 10}"},
		"duplicate client":     {"client_id: cli", "client_id: grafana"},
		"confidential no hash": {`client_secret_hash: "$2a$10$abcdefghijklmnopqrstuv"`, ""},
		"stage order":          {"      - kind: authentication\n      - kind: policy", "      - kind: policy\n      - kind: authentication"},
		"consent mode":         {"mode: implied", "mode: sometimes"},
		"bad duration":         {"timeout: 2s", "timeout: soon"},
		"bad expression":       {`'"staff" in user.groups'`, `'"staff" in'`},
		"unknown field":        {"title: Implicit consent", "titel: Implicit consent"},
		"sub mode":             {"client_type: public", "client_type: public\n    sub_mode: random"},
		"bad scope name":       {"scope_name: department", "scope_name: Dept Info"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			doc := strings.Replace(sampleDoc, tc.from, tc.to, 1)
			require.NotEqual(t, sampleDoc, doc, "replacement did not apply")
			_, err := Parse([]byte(doc), BuildDeps{Scores: policy.NewMemoryScores(time.Hour)})
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestParse_PublicWithoutRedirectsIsAllowed(t *testing.T) {
	s, err := Parse([]byte(sampleDoc), BuildDeps{Scores: policy.NewMemoryScores(time.Hour)})
	require.NoError(t, err)
	m, ok := s.Matcher("cli")
	require.True(t, ok)
	require.Zero(t, m.Len())
	_, matched := m.Match("http://localhost:1234/")
	require.False(t, matched)
}

type countingSource struct {
	calls atomic.Int32
	gate  chan struct{}
	raw   []byte
	err   error
}

func (c *countingSource) Read(context.Context) ([]byte, error) {
	c.calls.Add(1)
	if c.gate != nil {
		<-c.gate
	}
	return c.raw, c.err
}

func TestLoader_SingleflightAndInvalidate(t *testing.T) {
	src := &countingSource{raw: []byte(sampleDoc), gate: make(chan struct{})}
	l := NewLoader(LoaderDeps{Source: src, Build: BuildDeps{Scores: policy.NewMemoryScores(time.Hour)}})

	var wg sync.WaitGroup
	snaps := make([]*Snapshot, 8)
	for i := range snaps {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := l.Snapshot(context.Background())
			if err == nil {
				snaps[i] = s
			}
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(src.gate)
	wg.Wait()

	require.EqualValues(t, 1, src.calls.Load())
	for _, s := range snaps {
		require.Same(t, snaps[0], s)
	}

	// cacheado
	s2, err := l.Snapshot(context.Background())
	require.NoError(t, err)
	require.Same(t, snaps[0], s2)

	l.Invalidate()
	s3, err := l.Snapshot(context.Background())
	require.NoError(t, err)
	require.NotSame(t, snaps[0], s3)
	require.EqualValues(t, 2, src.calls.Load())

	// el snapshot viejo sigue intacto
	_, ok := snaps[0].Provider("grafana")
	require.True(t, ok)
}

func TestLoader_ErrorNotCached(t *testing.T) {
	src := &countingSource{err: errors.New("disk on fire")}
	l := NewLoader(LoaderDeps{Source: src})

	_, err := l.Snapshot(context.Background())
	require.Error(t, err)
	_, err = l.Snapshot(context.Background())
	require.Error(t, err)
	require.EqualValues(t, 2, src.calls.Load())
}
