package repository

// ScopeMapping produce los claims de un scope a partir del usuario.
// Expression es CEL y debe devolver map<string, dyn>.
type ScopeMapping struct {
	Name        string
	ScopeName   string
	Description string
	Expression  string
}
