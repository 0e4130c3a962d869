package repository

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

type StageKind string

const (
	StageAuthentication StageKind = "authentication"
	StagePolicy         StageKind = "policy"
	StageConsent        StageKind = "consent"
)

// Rank es la posición canónica del kind dentro de un flow; -1 si no se conoce.
func (k StageKind) Rank() int {
	switch k {
	case StageAuthentication:
		return 0
	case StagePolicy:
		return 1
	case StageConsent:
		return 2
	}
	return -1
}

// Flow es una secuencia ordenada de stages. El loader valida que respeten
// el orden authentication -> policy -> consent.
type Flow struct {
	Slug   string
	Title  string
	Stages []Stage
}

// Stage es una variante taggeada por Kind; Consent sólo aplica a StageConsent.
type Stage struct {
	Name    string
	Kind    StageKind
	Consent ConsentSettings
}

// ConsentMode: always_require | implied | none.
type ConsentMode string

const (
	ConsentAlwaysRequire ConsentMode = "always_require"
	ConsentImplied       ConsentMode = "implied"
	ConsentNone          ConsentMode = "none"
)

// RememberMode controla si un consent aprobado se persiste.
type RememberMode string

const (
	RememberNone      RememberMode = "none"
	RememberPermanent RememberMode = "permanent"
	RememberExpiring  RememberMode = "expiring"
)

type ConsentSettings struct {
	Mode        ConsentMode
	Remember    RememberMode
	RememberFor time.Duration
	// TokenTTL del continuation token; 0 = default de configuración.
	TokenTTL time.Duration
}

// Pipeline devuelve los stages a ejecutar en orden canónico. Authentication,
// policy y consent no son opcionales: los que el flow no declara se agregan
// con su config por defecto (consent en modo none).
func (f Flow) Pipeline() []Stage {
	out := slices.Clone(f.Stages)
	for _, k := range []StageKind{StageAuthentication, StagePolicy, StageConsent} {
		if !slices.ContainsFunc(out, func(s Stage) bool { return s.Kind == k }) {
			st := Stage{Name: fmt.Sprintf("%s-%s", f.Slug, k), Kind: k}
			if k == StageConsent {
				st.Consent = ConsentSettings{Mode: ConsentNone, Remember: RememberNone}
			}
			out = append(out, st)
		}
	}
	slices.SortStableFunc(out, func(a, b Stage) int { return cmp.Compare(a.Kind.Rank(), b.Kind.Rank()) })
	return out
}

// ConsentStage devuelve la config del primer stage de consent; si el flow no
// tiene, equivale a modo none.
func (f Flow) ConsentStage() ConsentSettings {
	for _, s := range f.Stages {
		if s.Kind == StageConsent {
			return s.Consent
		}
	}
	return ConsentSettings{Mode: ConsentNone, Remember: RememberNone}
}
