package expr

import "github.com/dropDatabas3/consentgate/internal/domain/repository"

// UserMap proyecta un User a la forma que ven las expresiones (y cedar).
// Devuelve copias: una expresión nunca puede mutar el usuario.
func UserMap(u *repository.User) map[string]any {
	if u == nil {
		return map[string]any{}
	}
	groups := make([]string, len(u.Groups))
	copy(groups, u.Groups)
	attrs := make(map[string]any, len(u.Attributes))
	for k, v := range u.Attributes {
		attrs[k] = v
	}
	return map[string]any{
		"id":             u.ID,
		"uuid":           u.UUID,
		"username":       u.Username,
		"name":           u.Name,
		"email":          u.Email,
		"email_verified": u.EmailVerified,
		"active":         u.Active,
		"groups":         groups,
		"attributes":     attrs,
	}
}
