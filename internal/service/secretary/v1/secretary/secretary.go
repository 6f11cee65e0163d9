// Package secretary provides methods for ciphering and token issuance.
package secretary

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/danilovkiri/dk-go-cashdesk/internal/config"
	"github.com/danilovkiri/dk-go-cashdesk/internal/models/modelclaims"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

const tokenLifetime = 12 * time.Hour

// Secretary defines object structure and its attributes.
type Secretary struct {
	aesgcm     cipher.AEAD
	nonce      []byte
	signingKey []byte
}

// NewSecretaryService initializes a secretary service with ciphering and token signing functionality.
func NewSecretaryService(c *config.SecretConfig) (*Secretary, error) {
	key := sha256.Sum256([]byte(c.SecretKey))
	aesblock, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(aesblock)
	if err != nil {
		return nil, err
	}
	nonce := key[len(key)-aesgcm.NonceSize():]
	return &Secretary{
		aesgcm:     aesgcm,
		nonce:      nonce,
		signingKey: key[:],
	}, nil
}

// Encode ciphers data using the previously established cipher.
func (s *Secretary) Encode(data string) string {
	encoded := s.aesgcm.Seal(nil, s.nonce, []byte(data), nil)
	return hex.EncodeToString(encoded)
}

// Decode deciphers data using the previously established cipher.
func (s *Secretary) Decode(msg string) (string, error) {
	msgBytes, err := hex.DecodeString(msg)
	if err != nil {
		return "", err
	}
	decoded, err := s.aesgcm.Open(nil, s.nonce, msgBytes, nil)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// NewToken generates a new userID and a corresponding signed token.
func (s *Secretary) NewToken() (string, string, error) {
	userID := uuid.New().String()
	token, err := s.GetTokenForUser(userID, false)
	if err != nil {
		return "", "", err
	}
	return token, userID, nil
}

// GetTokenForUser generates a signed token for a userID.
func (s *Secretary) GetTokenForUser(userID string, isAdmin bool) (string, error) {
	claims := modelclaims.TokenClaims{
		UserID:  userID,
		IsAdmin: isAdmin,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: time.Now().Add(tokenLifetime).Unix(),
			IssuedAt:  time.Now().Unix(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.signingKey)
}

// ValidateToken parses a signed token and returns the userID and admin flag it carries.
func (s *Secretary) ValidateToken(tokenString string) (string, bool, error) {
	claims := modelclaims.TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected token signing method")
		}
		return s.signingKey, nil
	})
	if err != nil {
		return "", false, err
	}
	if !token.Valid {
		return "", false, errors.New("invalid token")
	}
	return claims.UserID, claims.IsAdmin, nil
}
