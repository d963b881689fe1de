package calls

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// contentType marks the JWT as a provider access token.
const contentType = "twilio-fpa;v=1"

// VideoGrant admits the bearer to exactly one room.
type VideoGrant struct {
	Room string `json:"room"`
}

type Grants struct {
	Identity string      `json:"identity"`
	Video    *VideoGrant `json:"video,omitempty"`
}

// AccessClaims is the payload of a video access token: issuer is the API
// key, subject the provider account.
type AccessClaims struct {
	Grants Grants `json:"grants"`
	jwt.RegisteredClaims
}

// Signer mints access tokens with the provider-issued API key. The key
// pair is an opaque external credential.
type Signer struct {
	accountSID string
	apiKeySID  string
	secret     []byte
}

func NewSigner(accountSID, apiKeySID, apiKeySecret string) *Signer {
	return &Signer{accountSID: accountSID, apiKeySID: apiKeySID, secret: []byte(apiKeySecret)}
}

// Sign returns a token for identity scoped to room, valid from issuedAt
// until expiresAt. Both times must already be whole seconds.
func (s *Signer) Sign(identity, room string, issuedAt, expiresAt time.Time) (string, error) {
	claims := AccessClaims{
		Grants: Grants{
			Identity: identity,
			Video:    &VideoGrant{Room: room},
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        s.apiKeySID + "-" + strconv.FormatInt(issuedAt.Unix(), 10),
			Issuer:    s.apiKeySID,
			Subject:   s.accountSID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["cty"] = contentType

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("calls: sign access token: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies a token minted by a Signer with the same
// secret and returns its claims. The video provider performs the same
// check on join; this service only uses it in tooling and tests.
func ParseAccessToken(apiKeySecret, token string, now time.Time) (*AccessClaims, error) {
	claims := &AccessClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(apiKeySecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("calls: parse access token: %w", err)
	}
	if cty, _ := parsed.Header["cty"].(string); cty != contentType {
		return nil, fmt.Errorf("calls: unexpected content type %q", cty)
	}
	if !claims.VerifyExpiresAt(now, true) || !claims.VerifyNotBefore(now, true) {
		return nil, fmt.Errorf("calls: access token not valid at %s", now.UTC().Format(time.RFC3339))
	}
	return claims, nil
}
