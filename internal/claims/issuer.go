// Package claims evalúa los scope mappings de un provider y materializa, en
// una sola pasada, los claims del ID token y el payload de UserInfo.
package claims

import "strings"

const devIssuerFallback = "http://localhost:9000"

// Issuer construye el issuer por aplicación: {base}/application/o/{slug}/
func Issuer(baseURL, slug string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = devIssuerFallback // sólo dev
	}
	return base + "/application/o/" + slug + "/"
}
