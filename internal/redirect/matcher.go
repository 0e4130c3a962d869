// Package redirect valida el redirect_uri de un authorization request contra
// los URIs registrados del provider.
//
// strict compara byte a byte: "http://localhost:9009/" y "http://localhost:9009"
// son distintos. regex exige que el patrón matchee el candidato completo.
// Gana la primera entrada que matchea, en el orden registrado.
package redirect

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/dropDatabas3/consentgate/internal/domain/repository"
)

var (
	// ErrMismatch: ningún URI registrado matchea. Nunca se redirige en este caso.
	ErrMismatch = errors.New("redirect: uri does not match any registered redirect uri")
	// ErrInvalidPattern: un patrón regex registrado no compila.
	ErrInvalidPattern = errors.New("redirect: invalid pattern")
	// ErrUnknownMode: matching mode no soportado.
	ErrUnknownMode = errors.New("redirect: unknown matching mode")
)

type rule struct {
	uri repository.RedirectURI
	re  *regexp.Regexp
}

// Matcher es el conjunto compilado e inmutable de redirect URIs de un provider.
// Es seguro para uso concurrente.
type Matcher struct {
	rules []rule
}

// Compile valida y precompila los URIs. Un patrón inválido rechaza todo el set.
func Compile(uris []repository.RedirectURI) (*Matcher, error) {
	m := &Matcher{rules: make([]rule, 0, len(uris))}
	for i, u := range uris {
		r := rule{uri: u}
		switch u.MatchingMode {
		case repository.MatchStrict:
		case repository.MatchRegex:
			// anclado: equivalente a un full match
			re, err := regexp.Compile(`^(?:` + u.URL + `)$`)
			if err != nil {
				return nil, fmt.Errorf("%w: #%d %q: %v", ErrInvalidPattern, i, u.URL, err)
			}
			r.re = re
		default:
			return nil, fmt.Errorf("%w: #%d %q", ErrUnknownMode, i, u.MatchingMode)
		}
		m.rules = append(m.rules, r)
	}
	return m, nil
}

// Match devuelve la primera entrada que matchea candidate.
func (m *Matcher) Match(candidate string) (repository.RedirectURI, bool) {
	if m == nil {
		return repository.RedirectURI{}, false
	}
	for _, r := range m.rules {
		switch r.uri.MatchingMode {
		case repository.MatchStrict:
			if candidate == r.uri.URL {
				return r.uri, true
			}
		case repository.MatchRegex:
			if r.re.MatchString(candidate) {
				return r.uri, true
			}
		}
	}
	return repository.RedirectURI{}, false
}

// Len devuelve la cantidad de URIs registrados.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.rules)
}

// Match compila uris y busca candidate. Para usos puntuales (CLI); el camino
// de request usa el Matcher ya compilado del snapshot.
func Match(uris []repository.RedirectURI, candidate string) (repository.RedirectURI, error) {
	m, err := Compile(uris)
	if err != nil {
		return repository.RedirectURI{}, err
	}
	if u, ok := m.Match(candidate); ok {
		return u, nil
	}
	return repository.RedirectURI{}, ErrMismatch
}
