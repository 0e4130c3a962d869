package repository

import "time"

// Application publica un Provider bajo un slug.
type Application struct {
	Slug             string
	Name             string
	ProviderClientID string
	PolicyBindings   []PolicyBinding
}

// PolicyBinding asocia una Policy a una Application.
//
// Se evalúan sólo los habilitados, por Order ascendente; empates por Seq
// (orden de creación). Seq lo asigna el loader, nunca el orden del slice.
type PolicyBinding struct {
	Policy  string
	Order   int
	Seq     int
	Enabled bool
	Negate  bool
	// FailOpen: un ERRORS (timeout o error del evaluador) cuenta como PASSES.
	FailOpen bool
	// Timeout 0 = default del engine.
	Timeout time.Duration
}
