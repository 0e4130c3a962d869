package consent

import "time"

// Pending es el estado mínimo para reanudar un flujo suspendido en consent.
// Se serializa en el cache bajo el hash del token.
type Pending struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	AMR          []string  `json:"amr"`
	AuthTime     time.Time `json:"auth_time"`
	Application  string    `json:"application"`
	ClientID     string    `json:"client_id"`
	RedirectURI  string    `json:"redirect_uri"`
	ResponseType string    `json:"response_type"`
	State        string    `json:"state,omitempty"`
	Nonce        string    `json:"nonce,omitempty"`
	Scopes       []string  `json:"scopes"`
	ClientIP     string    `json:"client_ip,omitempty"`
	// ExpiresAt lo fija el servidor; se chequea al consumir además del TTL del cache.
	ExpiresAt time.Time `json:"expires_at"`
}

// Challenge es lo que ve el consent UI.
type Challenge struct {
	Token     string
	ExpiresAt time.Time
}
