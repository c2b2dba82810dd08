package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/cred30-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	MemberID uuid.UUID
	Role     enums.MemberRole
	JTI      string
}

// AccessTokenClaims represents the typed JWT presented by clients.
type AccessTokenClaims struct {
	MemberID uuid.UUID        `json:"member_id"`
	Role     enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}
