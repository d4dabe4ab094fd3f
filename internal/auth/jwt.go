package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the authenticated caller: a ledger account and its platform
// role. Subject carries the token subject for audit logging.
type Identity struct {
	AccountID string
	Role      Role
	Subject   string
}

var (
	// ErrNoToken is returned when the request carries no bearer token.
	ErrNoToken = errors.New("auth: missing token")
	// ErrBadToken is returned for tokens that fail signature or claim checks.
	ErrBadToken = errors.New("auth: invalid token")
	// ErrBadAccount is returned when account_id is absent or not a ledger
	// account id.
	ErrBadAccount = errors.New("auth: invalid account id")
)

// tokenClaims is the wire shape of our HS256 tokens. Expiry is validated by
// the parser.
type tokenClaims struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

var hs256Parser = jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

// ParseToken validates an HS256 token and resolves the caller's identity.
// The account_id claim must be a well-formed ledger account (shard.realm.num)
// and the role claim one of the platform roles.
func ParseToken(tokenString string, secret []byte) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrNoToken
	}
	if len(secret) == 0 {
		return Identity{}, errors.New("auth: empty secret")
	}

	claims := &tokenClaims{}
	token, err := hs256Parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrBadToken
	}
	if !ValidAccountID(claims.AccountID) {
		return Identity{}, ErrBadAccount
	}
	role, ok := NormalizeRole(claims.Role)
	if !ok {
		return Identity{}, ErrBadToken
	}
	return Identity{AccountID: claims.AccountID, Role: role, Subject: claims.Subject}, nil
}

// ValidAccountID reports whether s is a ledger account id of the form
// shard.realm.num with decimal components.
func ValidAccountID(s string) bool {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}
