package jwt

import (
	"github.com/golang-jwt/jwt/v5"
)

// AdminClaims identifies an administrator or a trusted service calling the admin API.
type AdminClaims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}
