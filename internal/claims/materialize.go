package claims

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"time"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
	"github.com/dropDatabas3/consentgate/internal/expr"
	"github.com/dropDatabas3/consentgate/internal/metrics"
	"github.com/dropDatabas3/consentgate/internal/observability/logger"
)

var (
	// ErrClaimsInconsistent es fatal: ID token y UserInfo difieren en una key compartida.
	ErrClaimsInconsistent = errors.New("claims: id_token and userinfo disagree")
	ErrNoSubject          = errors.New("claims: subject unavailable for sub mode")
)

// Claims reservados: los inyecta el materializer, nunca un mapping.
var reserved = map[string]struct{}{
	"sub": {}, "iss": {}, "aud": {}, "iat": {}, "exp": {}, "nbf": {},
	"auth_time": {}, "amr": {}, "nonce": {}, "azp": {}, "jti": {},
}

// IsReserved indica si key la controla el servidor.
func IsReserved(key string) bool {
	_, ok := reserved[key]
	return ok
}

const defaultTokenValidity = 5 * time.Minute

// Input es todo lo que necesita una pasada de materialización.
type Input struct {
	Provider    repository.Provider
	Application repository.Application
	Mappings    Mappings
	User        *repository.User
	// Scopes otorgados (ya pasaron policy y consent).
	Scopes      []string
	AMR         []string
	AuthTime    time.Time
	Nonce       string
	Issuer      string
	ClientIP    string
	RedirectURI string
	Now         time.Time
}

// Claims es el resultado de una pasada.
type Claims struct {
	Subject string
	// Scopes efectivamente aplicados, en orden canónico.
	Scopes   []string
	IDToken  map[string]any
	UserInfo map[string]any
}

// Materializer construye ID token claims y UserInfo desde un único merge.
type Materializer struct{}

func NewMaterializer() *Materializer { return &Materializer{} }

// BuildClaims evalúa cada scope otorgado una sola vez, en el orden de
// PropertyMappings del provider, y mergea con "gana el último".
// Un scope que falla contribuye vacío y queda logueado con su nombre.
func (m *Materializer) BuildClaims(ctx context.Context, in Input) (Claims, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("Materializer.BuildClaims"),
		logger.ClientID(in.Provider.ClientID))

	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	sub, err := Subject(in.Provider.SubMode, in.User)
	if err != nil {
		return Claims{}, err
	}

	vars := expr.Vars{
		User: expr.UserMap(in.User),
		Application: map[string]any{
			"slug":      in.Application.Slug,
			"name":      in.Application.Name,
			"client_id": in.Provider.ClientID,
		},
		Request: map[string]any{
			"scopes":       slices.Clone(in.Scopes),
			"client_ip":    in.ClientIP,
			"redirect_uri": in.RedirectURI,
		},
		Now: now,
	}

	merged := map[string]any{}
	applied := make([]string, 0, len(in.Scopes))
	for _, mp := range in.Mappings.ForProvider(in.Provider) {
		if !slices.Contains(in.Scopes, mp.ScopeName) {
			continue
		}
		applied = append(applied, mp.ScopeName)

		out, err := mp.Evaluate(ctx, vars)
		if err != nil {
			metrics.MappingFailures.WithLabelValues(mp.ScopeName).Inc()
			log.Warn("scope mapping failed, contributing no claims",
				logger.Scope(mp.ScopeName), logger.String("mapping", mp.Name), logger.Err(err))
			continue
		}
		for k, v := range out {
			if IsReserved(k) {
				log.Debug("dropping reserved claim from mapping", logger.Scope(mp.ScopeName), logger.String("claim", k))
				continue
			}
			merged[k] = v
		}
	}

	userinfo := cloneMap(merged)
	userinfo["sub"] = sub

	var idt map[string]any
	if in.Provider.IncludeClaimsInIDToken {
		idt = cloneMap(merged)
	} else {
		idt = map[string]any{}
	}
	validity := in.Provider.TokenValidity
	if validity <= 0 {
		validity = defaultTokenValidity
	}
	idt["iss"] = in.Issuer
	idt["sub"] = sub
	idt["aud"] = in.Provider.ClientID
	idt["iat"] = now.Unix()
	idt["exp"] = now.Add(validity).Unix()
	idt["amr"] = slices.Clone(in.AMR)
	if !in.AuthTime.IsZero() {
		idt["auth_time"] = in.AuthTime.Unix()
	}
	if in.Nonce != "" {
		idt["nonce"] = in.Nonce
	}

	if err := checkConsistent(idt, userinfo); err != nil {
		log.Error("claims inconsistency", logger.Err(err))
		return Claims{}, err
	}
	return Claims{Subject: sub, Scopes: applied, IDToken: idt, UserInfo: userinfo}, nil
}

// checkConsistent exige id_token[k] == userinfo[k] para toda key compartida.
func checkConsistent(idToken, userinfo map[string]any) error {
	for k, v := range userinfo {
		iv, ok := idToken[k]
		if !ok {
			continue
		}
		if !reflect.DeepEqual(iv, v) {
			return fmt.Errorf("%w: key %q", ErrClaimsInconsistent, k)
		}
	}
	return nil
}

// Subject resuelve el claim "sub" según el modo del provider.
func Subject(mode repository.SubMode, u *repository.User) (string, error) {
	if u == nil {
		return "", ErrNoSubject
	}
	var v string
	switch mode {
	case repository.SubUserID:
		v = u.ID
	case repository.SubUserUUID:
		v = u.UUID
	case repository.SubUsername:
		v = u.Username
	case repository.SubEmail:
		v = u.Email
	default:
		if u.ID != "" {
			sum := sha256.Sum256([]byte(u.ID))
			v = hex.EncodeToString(sum[:])
		}
	}
	if v == "" {
		return "", fmt.Errorf("%w: %s", ErrNoSubject, mode)
	}
	return v, nil
}

// Valores JSON-like: map[string]any, []any, []string y escalares.
func cloneMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}
