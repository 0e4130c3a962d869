package repository

import "time"

// PolicyKind es el tag de la variante de policy.
type PolicyKind string

const (
	PolicyExpression     PolicyKind = "expression"
	PolicyAttributeMatch PolicyKind = "attribute_match"
	PolicyReputation     PolicyKind = "reputation"
	PolicyCedar          PolicyKind = "cedar"
	PolicyDummy          PolicyKind = "dummy"
)

// Policy es una regla evaluable: (request) -> PASSES | FAILS | ERRORS.
// Sólo el bloque de settings que corresponde a Kind es relevante.
type Policy struct {
	Name             string
	Kind             PolicyKind
	ExecutionLogging bool

	// Expression es un programa CEL booleano (Kind == expression).
	Expression     string
	AttributeMatch AttributeMatchSettings
	Reputation     ReputationSettings
	Cedar          CedarSettings
	Dummy          DummySettings
}

type AttributeMatchMode string

const (
	AttributeExact    AttributeMatchMode = "exact"
	AttributeRegex    AttributeMatchMode = "regex"
	AttributeContains AttributeMatchMode = "contains"
)

// AttributeMatchSettings compara un campo del usuario contra Value.
// Key puede ser un campo top-level (username, email, ...) o "attributes.<k>".
type AttributeMatchSettings struct {
	Key   string
	Value string
	Mode  AttributeMatchMode
}

// ReputationSettings: pasa si el score es >= Threshold para cada fuente chequeada.
type ReputationSettings struct {
	CheckIP       bool
	CheckUsername bool
	Threshold     int
}

// CedarSettings contiene el texto de uno o más statements Cedar.
type CedarSettings struct {
	Policies string
}

// DummySettings devuelve Result tras esperar Wait.
type DummySettings struct {
	Result bool
	Wait   time.Duration
}
