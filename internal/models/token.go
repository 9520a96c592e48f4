package models

import (
	"time"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issued by TokenManager, AuthService
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}

// Result of every successful authentication: login, register or rotation
type AuthResult struct {
	User SafeUser
	Pair TokenPair
}
