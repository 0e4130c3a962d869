package controlplane

// Documento YAML del control plane. Todo lo que no es identidad tiene default;
// las duraciones son strings de time.ParseDuration.

type Document struct {
	Users         []UserDoc         `yaml:"users"`
	Policies      []PolicyDoc       `yaml:"policies"`
	ScopeMappings []ScopeMappingDoc `yaml:"scope_mappings"`
	Flows         []FlowDoc         `yaml:"flows"`
	Providers     []ProviderDoc     `yaml:"providers"`
	Applications  []ApplicationDoc  `yaml:"applications"`
}

// UserDoc siembra el directorio en memoria (modo sin DSN).
type UserDoc struct {
	ID            string         `yaml:"id"`
	UUID          string         `yaml:"uuid"`
	Username      string         `yaml:"username"`
	Name          string         `yaml:"name"`
	Email         string         `yaml:"email"`
	EmailVerified bool           `yaml:"email_verified"`
	Active        *bool          `yaml:"active"`
	Groups        []string       `yaml:"groups"`
	Attributes    map[string]any `yaml:"attributes"`
}

type PolicyDoc struct {
	Name             string `yaml:"name"`
	Kind             string `yaml:"kind"`
	ExecutionLogging bool   `yaml:"execution_logging"`
	Expression       string `yaml:"expression"`
	AttributeMatch   struct {
		Key   string `yaml:"key"`
		Value string `yaml:"value"`
		Mode  string `yaml:"mode"`
	} `yaml:"attribute_match"`
	Reputation struct {
		CheckIP       bool `yaml:"check_ip"`
		CheckUsername bool `yaml:"check_username"`
		Threshold     int  `yaml:"threshold"`
	} `yaml:"reputation"`
	Cedar struct {
		Policies string `yaml:"policies"`
	} `yaml:"cedar"`
	Dummy struct {
		Result bool   `yaml:"result"`
		Wait   string `yaml:"wait"`
	} `yaml:"dummy"`
}

type ScopeMappingDoc struct {
	Name        string `yaml:"name"`
	ScopeName   string `yaml:"scope_name"`
	Description string `yaml:"description"`
	Expression  string `yaml:"expression"`
}

type FlowDoc struct {
	Slug   string     `yaml:"slug"`
	Title  string     `yaml:"title"`
	Stages []StageDoc `yaml:"stages"`
}

type StageDoc struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"`
	Consent struct {
		Mode        string `yaml:"mode"`
		Remember    string `yaml:"remember"`
		RememberFor string `yaml:"remember_for"`
		TokenTTL    string `yaml:"token_ttl"`
	} `yaml:"consent"`
}

type RedirectURIDoc struct {
	MatchingMode string `yaml:"matching_mode"`
	URL          string `yaml:"url"`
}

type ProviderDoc struct {
	Name              string           `yaml:"name"`
	ClientID          string           `yaml:"client_id"`
	ClientType        string           `yaml:"client_type"`
	ClientSecretHash  string           `yaml:"client_secret_hash"`
	SigningKey        string           `yaml:"signing_key"`
	RedirectURIs      []RedirectURIDoc `yaml:"redirect_uris"`
	AuthorizationFlow string           `yaml:"authorization_flow"`
	// Vacío = los mappings default (openid, email, profile, offline_access).
	PropertyMappings       []string `yaml:"property_mappings"`
	SubMode                string   `yaml:"sub_mode"`
	IncludeClaimsInIDToken *bool    `yaml:"include_claims_in_id_token"`
	AccessCodeValidity     string   `yaml:"access_code_validity"`
	TokenValidity          string   `yaml:"token_validity"`
}

type ApplicationDoc struct {
	Slug           string       `yaml:"slug"`
	Name           string       `yaml:"name"`
	Provider       string       `yaml:"provider"` // client_id
	PolicyBindings []BindingDoc `yaml:"policy_bindings"`
}

type BindingDoc struct {
	Policy   string `yaml:"policy"`
	Order    int    `yaml:"order"`
	Enabled  *bool  `yaml:"enabled"`
	Negate   bool   `yaml:"negate"`
	FailOpen bool   `yaml:"fail_open"`
	Timeout  string `yaml:"timeout"`
}
