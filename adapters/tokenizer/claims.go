package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims combines standard claims with the wallet session fields
type SessionClaims struct {
	jwt.RegisteredClaims
	ChainID uint64 `json:"cid"` // chain the wallet was connected to
}
