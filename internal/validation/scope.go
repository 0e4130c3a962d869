// Package validation agrupa reglas sintácticas compartidas por el control plane.
package validation

import "regexp"

// Scope names: minúsculas, empiezan y terminan en [a-z0-9], en el medio
// se permite [a-z0-9:_./-]. 1..64 chars. Sin espacios (el scope de OAuth
// es space-delimited) ni ';'.
//
// Válidos: openid, offline_access, profile:read, example.io/api
// Inválidos: "", "Email", "bad space", ":leader", "trailer/", 65+ chars
var scopeNameRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9:_./-]{0,62}[a-z0-9])?$`)

// ValidScopeName reporta si name puede usarse como scope_name de un mapping.
func ValidScopeName(name string) bool {
	return scopeNameRe.MatchString(name)
}
