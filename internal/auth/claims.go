package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the only supported token shape for the control API. Operators are
// provisioned out of band; tokens only assert identity and role.
type Claims struct {
	jwt.RegisteredClaims

	OperatorID string `json:"operator_id"`
	Role       string `json:"role"`
}
