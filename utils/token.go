package utils

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
)

const (
	RoleTenant   = "tenant"
	RoleLandlord = "landlord"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)

// JwtCustomClaim is issued by the CRUD layer's login flow; this service only validates it.
type JwtCustomClaim struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	jwt.StandardClaims
}

// jwtSecret is read lazily so that .env loading in config's init has happened.
var jwtSecret []byte

func getJwtSecret() []byte {
	if len(jwtSecret) > 0 {
		return jwtSecret
	}
	return []byte(os.Getenv("API_SECRET"))
}

// JwtGenerate is used by tests and ops tooling.
func JwtGenerate(userID string, role string) (string, error) {
	tokenLifespan, err := strconv.Atoi(os.Getenv("TOKEN_HOUR_LIFESPAN"))
	if err != nil || tokenLifespan <= 0 {
		tokenLifespan = 1
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, &JwtCustomClaim{
		ID:   userID,
		Role: role,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(time.Hour * time.Duration(tokenLifespan)).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	})

	return t.SignedString(getJwtSecret())
}

func JwtValidate(token string) (*jwt.Token, error) {
	secret := getJwtSecret()
	if len(secret) == 0 {
		return nil, fmt.Errorf("API_SECRET is not configured")
	}
	return jwt.ParseWithClaims(token, &JwtCustomClaim{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("there's a problem with the signing method")
		}
		return secret, nil
	})
}

// SetJwtSecret overrides the signing secret; tests use it instead of env.
func SetJwtSecret(secret string) {
	jwtSecret = []byte(secret)
}
