// Package controlplane carga la configuración de providers, applications,
// policies, scope mappings y flows desde YAML y la expone como un Snapshot
// inmutable. Un request usa un único snapshot de principio a fin.
package controlplane

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dropDatabas3/consentgate/internal/claims"
	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/expr"
	"github.com/dropDatabas3/consentgate/internal/policy"
	"github.com/dropDatabas3/consentgate/internal/redirect"
	"github.com/dropDatabas3/consentgate/internal/validation"
)

var ErrInvalid = errors.New("controlplane: invalid configuration")

const (
	defaultAccessCodeValidity = time.Minute
	defaultTokenValidity      = 5 * time.Minute
)

// Snapshot es la configuración validada y compilada. No se modifica tras Build.
type Snapshot struct {
	Version  string
	LoadedAt time.Time

	providers    map[string]repository.Provider // por client_id
	matchers     map[string]*redirect.Matcher
	applications map[string]repository.Application // por slug
	appByClient  map[string]string
	flows        map[string]repository.Flow
	users        []repository.User

	Policies policy.Set
	Mappings claims.Mappings
}

// BuildDeps son los colaboradores necesarios para compilar policies y mappings.
type BuildDeps struct {
	Env    *expr.Env
	Scores policy.ScoreSource
	Now    func() time.Time
}

// Parse decodifica el YAML y construye el snapshot.
func Parse(raw []byte, d BuildDeps) (*Snapshot, error) {
	var doc Document
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalid, err)
	}
	s, err := Build(doc, d)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(raw)
	s.Version = hex.EncodeToString(sum[:8])
	return s, nil
}

// Build valida y compila el documento. Cualquier error rechaza el snapshot entero.
func Build(doc Document, d BuildDeps) (*Snapshot, error) {
	if d.Env == nil {
		env, err := expr.NewEnv()
		if err != nil {
			return nil, err
		}
		d.Env = env
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	s := &Snapshot{
		LoadedAt:     d.Now(),
		providers:    map[string]repository.Provider{},
		matchers:     map[string]*redirect.Matcher{},
		applications: map[string]repository.Application{},
		appByClient:  map[string]string{},
		flows:        map[string]repository.Flow{},
	}

	users, err := buildUsers(doc.Users)
	if err != nil {
		return nil, err
	}
	s.users = users

	policies, err := buildPolicies(doc.Policies)
	if err != nil {
		return nil, err
	}
	s.Policies, err = policy.CompileAll(policies, policy.CompileDeps{Env: d.Env, Scores: d.Scores})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	mappings, err := mergeDefaultMappings(doc.ScopeMappings)
	if err != nil {
		return nil, err
	}
	s.Mappings, err = claims.CompileAll(d.Env, mappings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	for _, fd := range doc.Flows {
		f, err := buildFlow(fd)
		if err != nil {
			return nil, err
		}
		if _, dup := s.flows[f.Slug]; dup {
			return nil, fmt.Errorf("%w: duplicate flow %q", ErrInvalid, f.Slug)
		}
		s.flows[f.Slug] = f
	}

	for _, pd := range doc.Providers {
		p, err := buildProvider(pd)
		if err != nil {
			return nil, err
		}
		if _, dup := s.providers[p.ClientID]; dup {
			return nil, fmt.Errorf("%w: duplicate client_id %q", ErrInvalid, p.ClientID)
		}
		if _, ok := s.flows[p.AuthorizationFlow]; !ok {
			return nil, fmt.Errorf("%w: provider %q: unknown authorization_flow %q", ErrInvalid, p.ClientID, p.AuthorizationFlow)
		}
		for _, name := range p.PropertyMappings {
			if _, ok := s.Mappings[name]; !ok {
				return nil, fmt.Errorf("%w: provider %q: unknown property mapping %q", ErrInvalid, p.ClientID, name)
			}
		}
		m, err := redirect.Compile(p.RedirectURIs)
		if err != nil {
			return nil, fmt.Errorf("%w: provider %q: %v", ErrInvalid, p.ClientID, err)
		}
		s.providers[p.ClientID] = p
		s.matchers[p.ClientID] = m
	}

	for _, ad := range doc.Applications {
		a, err := buildApplication(ad)
		if err != nil {
			return nil, err
		}
		if _, dup := s.applications[a.Slug]; dup {
			return nil, fmt.Errorf("%w: duplicate application %q", ErrInvalid, a.Slug)
		}
		for _, b := range a.PolicyBindings {
			if _, ok := s.Policies[b.Policy]; !ok {
				return nil, fmt.Errorf("%w: application %q: unknown policy %q", ErrInvalid, a.Slug, b.Policy)
			}
		}
		if a.ProviderClientID != "" {
			if _, ok := s.providers[a.ProviderClientID]; !ok {
				return nil, fmt.Errorf("%w: application %q: unknown provider %q", ErrInvalid, a.Slug, a.ProviderClientID)
			}
			if other, taken := s.appByClient[a.ProviderClientID]; taken {
				return nil, fmt.Errorf("%w: provider %q already published by %q", ErrInvalid, a.ProviderClientID, other)
			}
			s.appByClient[a.ProviderClientID] = a.Slug
		}
		s.applications[a.Slug] = a
	}
	return s, nil
}

// ---- lookups ----

func (s *Snapshot) Provider(clientID string) (repository.Provider, bool) {
	p, ok := s.providers[clientID]
	return p, ok
}

func (s *Snapshot) Matcher(clientID string) (*redirect.Matcher, bool) {
	m, ok := s.matchers[clientID]
	return m, ok
}

// ApplicationFor devuelve la application que publica el provider.
func (s *Snapshot) ApplicationFor(clientID string) (repository.Application, bool) {
	slug, ok := s.appByClient[clientID]
	if !ok {
		return repository.Application{}, false
	}
	return s.Application(slug)
}

func (s *Snapshot) Application(slug string) (repository.Application, bool) {
	a, ok := s.applications[slug]
	return a, ok
}

func (s *Snapshot) Flow(slug string) (repository.Flow, bool) {
	f, ok := s.flows[slug]
	return f, ok
}

// Users devuelve una copia de los usuarios sembrados.
func (s *Snapshot) Users() []repository.User { return slices.Clone(s.users) }

// ScopeDescription es lo que muestra la pantalla de consent.
type ScopeDescription struct {
	Scope       string `json:"scope"`
	Description string `json:"description"`
}

// ScopeDescriptions lista, en orden canónico del provider, los scopes pedidos con texto.
func (s *Snapshot) ScopeDescriptions(p repository.Provider, scopes []string) []ScopeDescription {
	var out []ScopeDescription
	for _, m := range s.Mappings.ForProvider(p) {
		if slices.Contains(scopes, m.ScopeName) && m.Description != "" {
			out = append(out, ScopeDescription{Scope: m.ScopeName, Description: m.Description})
		}
	}
	return out
}

// SupportedScopes son los scopes que el provider puede otorgar.
func (s *Snapshot) SupportedScopes(p repository.Provider) []string {
	ms := s.Mappings.ForProvider(p)
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ScopeName)
	}
	return out
}

// ---- builders ----

func parseDur(field, v string, def time.Duration) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: %s: bad duration %q", ErrInvalid, field, v)
	}
	return d, nil
}

func buildUsers(in []UserDoc) ([]repository.User, error) {
	out := make([]repository.User, 0, len(in))
	seen := map[string]bool{}
	for _, u := range in {
		if u.ID == "" || u.Username == "" {
			return nil, fmt.Errorf("%w: user requires id and username", ErrInvalid)
		}
		if seen[u.ID] {
			return nil, fmt.Errorf("%w: duplicate user %q", ErrInvalid, u.ID)
		}
		seen[u.ID] = true
		id := u.UUID
		if id == "" {
			id = uuid.NewSHA1(uuid.NameSpaceURL, []byte("consentgate:user:"+u.ID)).String()
		}
		active := true
		if u.Active != nil {
			active = *u.Active
		}
		out = append(out, repository.User{
			ID: u.ID, UUID: id, Username: u.Username, Name: u.Name, Email: u.Email,
			EmailVerified: u.EmailVerified, Active: active,
			Groups: slices.Clone(u.Groups), Attributes: u.Attributes,
		})
	}
	return out, nil
}

func buildPolicies(in []PolicyDoc) ([]repository.Policy, error) {
	out := make([]repository.Policy, 0, len(in))
	seen := map[string]bool{}
	for _, pd := range in {
		if pd.Name == "" {
			return nil, fmt.Errorf("%w: policy without name", ErrInvalid)
		}
		if seen[pd.Name] {
			return nil, fmt.Errorf("%w: duplicate policy %q", ErrInvalid, pd.Name)
		}
		seen[pd.Name] = true
		wait, err := parseDur("policy "+pd.Name+" dummy.wait", pd.Dummy.Wait, 0)
		if err != nil {
			return nil, err
		}
		p := repository.Policy{
			Name:             pd.Name,
			Kind:             repository.PolicyKind(pd.Kind),
			ExecutionLogging: pd.ExecutionLogging,
			Expression:       pd.Expression,
			AttributeMatch: repository.AttributeMatchSettings{
				Key: pd.AttributeMatch.Key, Value: pd.AttributeMatch.Value,
				Mode: repository.AttributeMatchMode(pd.AttributeMatch.Mode),
			},
			Reputation: repository.ReputationSettings{
				CheckIP: pd.Reputation.CheckIP, CheckUsername: pd.Reputation.CheckUsername,
				Threshold: pd.Reputation.Threshold,
			},
			Cedar: repository.CedarSettings{Policies: pd.Cedar.Policies},
			Dummy: repository.DummySettings{Result: pd.Dummy.Result, Wait: wait},
		}
		out = append(out, p)
	}
	return out, nil
}

// mergeDefaultMappings agrega los mappings default que el documento no redefine.
func mergeDefaultMappings(in []ScopeMappingDoc) ([]repository.ScopeMapping, error) {
	out := make([]repository.ScopeMapping, 0, len(in)+4)
	names := map[string]bool{}
	for _, m := range in {
		if !validation.ValidScopeName(m.ScopeName) {
			return nil, fmt.Errorf("%w: scope mapping %q: invalid scope_name %q", ErrInvalid, m.Name, m.ScopeName)
		}
		names[m.Name] = true
		out = append(out, repository.ScopeMapping{
			Name: m.Name, ScopeName: m.ScopeName, Description: m.Description, Expression: m.Expression,
		})
	}
	for _, m := range claims.DefaultMappings() {
		if !names[m.Name] {
			out = append(out, m)
		}
	}
	return out, nil
}

func buildFlow(fd FlowDoc) (repository.Flow, error) {
	if fd.Slug == "" {
		return repository.Flow{}, fmt.Errorf("%w: flow without slug", ErrInvalid)
	}
	f := repository.Flow{Slug: fd.Slug, Title: fd.Title}
	last := -1
	for i, sd := range fd.Stages {
		kind := repository.StageKind(sd.Kind)
		rank := kind.Rank()
		if rank < 0 {
			return f, fmt.Errorf("%w: flow %q stage %d: unknown kind %q", ErrInvalid, fd.Slug, i, sd.Kind)
		}
		if rank <= last {
			return f, fmt.Errorf("%w: flow %q: stage %q out of order (authentication -> policy -> consent)", ErrInvalid, fd.Slug, sd.Kind)
		}
		last = rank

		st := repository.Stage{Name: sd.Name, Kind: kind}
		if st.Name == "" {
			st.Name = fmt.Sprintf("%s-%s", fd.Slug, sd.Kind)
		}
		if kind == repository.StageConsent {
			cs, err := buildConsent(fd.Slug, sd)
			if err != nil {
				return f, err
			}
			st.Consent = cs
		}
		f.Stages = append(f.Stages, st)
	}
	return f, nil
}

func buildConsent(flow string, sd StageDoc) (repository.ConsentSettings, error) {
	cs := repository.ConsentSettings{
		Mode:     repository.ConsentMode(sd.Consent.Mode),
		Remember: repository.RememberMode(sd.Consent.Remember),
	}
	if cs.Mode == "" {
		cs.Mode = repository.ConsentAlwaysRequire
	}
	switch cs.Mode {
	case repository.ConsentAlwaysRequire, repository.ConsentImplied, repository.ConsentNone:
	default:
		return cs, fmt.Errorf("%w: flow %q: unknown consent mode %q", ErrInvalid, flow, cs.Mode)
	}
	if cs.Remember == "" {
		cs.Remember = repository.RememberNone
	}
	var err error
	switch cs.Remember {
	case repository.RememberNone, repository.RememberPermanent:
	case repository.RememberExpiring:
		cs.RememberFor, err = parseDur("flow "+flow+" consent.remember_for", sd.Consent.RememberFor, 0)
		if err != nil {
			return cs, err
		}
		if cs.RememberFor <= 0 {
			return cs, fmt.Errorf("%w: flow %q: remember=expiring requires remember_for", ErrInvalid, flow)
		}
	default:
		return cs, fmt.Errorf("%w: flow %q: unknown remember mode %q", ErrInvalid, flow, cs.Remember)
	}
	cs.TokenTTL, err = parseDur("flow "+flow+" consent.token_ttl", sd.Consent.TokenTTL, 0)
	return cs, err
}

func buildProvider(pd ProviderDoc) (repository.Provider, error) {
	p := repository.Provider{
		Name:                   pd.Name,
		ClientID:               strings.TrimSpace(pd.ClientID),
		ClientType:             repository.ClientType(pd.ClientType),
		SecretHash:             pd.ClientSecretHash,
		SigningKey:             pd.SigningKey,
		AuthorizationFlow:      pd.AuthorizationFlow,
		PropertyMappings:       slices.Clone(pd.PropertyMappings),
		SubMode:                repository.SubMode(pd.SubMode),
		IncludeClaimsInIDToken: true,
	}
	if p.ClientID == "" {
		return p, fmt.Errorf("%w: provider %q without client_id", ErrInvalid, pd.Name)
	}
	if p.ClientType == "" {
		p.ClientType = repository.ClientConfidential
	}
	switch p.ClientType {
	case repository.ClientConfidential:
		if p.SecretHash == "" {
			return p, fmt.Errorf("%w: confidential provider %q requires client_secret_hash", ErrInvalid, p.ClientID)
		}
		if len(pd.RedirectURIs) == 0 {
			return p, fmt.Errorf("%w: confidential provider %q requires at least one redirect uri", ErrInvalid, p.ClientID)
		}
	case repository.ClientPublic:
	default:
		return p, fmt.Errorf("%w: provider %q: unknown client_type %q", ErrInvalid, p.ClientID, p.ClientType)
	}
	if p.SubMode == "" {
		p.SubMode = repository.SubHashedUserID
	}
	switch p.SubMode {
	case repository.SubHashedUserID, repository.SubUserID, repository.SubUserUUID, repository.SubUsername, repository.SubEmail:
	default:
		return p, fmt.Errorf("%w: provider %q: unknown sub_mode %q", ErrInvalid, p.ClientID, p.SubMode)
	}
	if pd.IncludeClaimsInIDToken != nil {
		p.IncludeClaimsInIDToken = *pd.IncludeClaimsInIDToken
	}
	if len(p.PropertyMappings) == 0 {
		p.PropertyMappings = []string{claims.DefaultOpenID, claims.DefaultEmail, claims.DefaultProfile, claims.DefaultOfflineAccess}
	}
	for _, r := range pd.RedirectURIs {
		mode := repository.MatchingMode(r.MatchingMode)
		if mode == "" {
			mode = repository.MatchStrict
		}
		p.RedirectURIs = append(p.RedirectURIs, repository.RedirectURI{MatchingMode: mode, URL: r.URL})
	}
	var err error
	if p.AccessCodeValidity, err = parseDur("provider "+p.ClientID+" access_code_validity", pd.AccessCodeValidity, defaultAccessCodeValidity); err != nil {
		return p, err
	}
	if p.TokenValidity, err = parseDur("provider "+p.ClientID+" token_validity", pd.TokenValidity, defaultTokenValidity); err != nil {
		return p, err
	}
	return p, nil
}

func buildApplication(ad ApplicationDoc) (repository.Application, error) {
	if ad.Slug == "" {
		return repository.Application{}, fmt.Errorf("%w: application without slug", ErrInvalid)
	}
	a := repository.Application{Slug: ad.Slug, Name: ad.Name, ProviderClientID: ad.Provider}
	if a.Name == "" {
		a.Name = a.Slug
	}
	for i, bd := range ad.PolicyBindings {
		t, err := parseDur("application "+ad.Slug+" binding timeout", bd.Timeout, 0)
		if err != nil {
			return a, err
		}
		enabled := true
		if bd.Enabled != nil {
			enabled = *bd.Enabled
		}
		// Seq = posición en el documento: orden de creación
		a.PolicyBindings = append(a.PolicyBindings, repository.PolicyBinding{
			Policy: bd.Policy, Order: bd.Order, Seq: i, Enabled: enabled,
			Negate: bd.Negate, FailOpen: bd.FailOpen, Timeout: t,
		})
	}
	return a, nil
}
