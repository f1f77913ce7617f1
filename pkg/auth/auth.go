package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/arnavshah/turni-api-go/pkg/config"
	"github.com/arnavshah/turni-api-go/pkg/database"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var jwtAlgorithm = jwt.SigningMethodHS256

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidKey   = errors.New("invalid key format")
	ErrBadSignature = errors.New("invalid signature")

	ErrMissingSecret = errors.New("JWT_SECRET and API_MASTER_SECRET must be set")
)

// Claims represents the JWT claims
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	TenantID uint   `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// Auth signs and verifies tokens and API keys with the configured secrets
type Auth struct {
	jwtSecret    []byte
	masterSecret []byte
	ttl          time.Duration
	now          func() time.Time
}

// New creates an Auth from configuration. Both secrets are required: an empty
// HMAC key would let anyone sign tokens and API keys.
func New(cfg config.Config) (*Auth, error) {
	if cfg.JWTSecret == "" || cfg.APIMasterSecret == "" {
		return nil, ErrMissingSecret
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Auth{
		jwtSecret:    []byte(cfg.JWTSecret),
		masterSecret: []byte(cfg.APIMasterSecret),
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 14)
	return string(bytes), err
}

// CheckPasswordHash compares a password with its hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateToken creates a new JWT token for a user
func (a *Auth) CreateToken(username, role string, tenantID uint) (string, error) {
	now := a.now()
	claims := &Claims{
		Username: username,
		Role:     role,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwtAlgorithm, claims)
	return token.SignedString(a.jwtSecret)
}

// VerifyToken verifies a JWT token
func (a *Auth) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwtAlgorithm {
			return nil, ErrInvalidToken
		}
		return a.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GenerateHMACKey creates a signed API key for a tenant code using HMAC-SHA256.
// Every call yields a fresh key id, so a tenant may hold several keys.
func (a *Auth) GenerateHMACKey(tenantCode string) string {
	return SignKey(a.masterSecret, tenantCode, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// SignKey builds "<tenantCode>.<keyID>.<hex hmac>" with the given secret
func SignKey(secret []byte, tenantCode, keyID string) string {
	payload := tenantCode + "." + keyID
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(payload))
	return payload + "." + hex.EncodeToString(h.Sum(nil))
}

// VerifyHMACKey validates an HMAC-signed API key and returns its tenant code
func (a *Auth) VerifyHMACKey(key string) (string, error) {
	i := strings.LastIndex(key, ".")
	if i <= 0 || i == len(key)-1 {
		return "", ErrInvalidKey
	}
	payload := key[:i]
	j := strings.LastIndex(payload, ".")
	if j <= 0 || j == len(payload)-1 {
		return "", ErrInvalidKey
	}

	tenantCode, keyID := payload[:j], payload[j+1:]
	expected := SignKey(a.masterSecret, tenantCode, keyID)

	// Use constant-time comparison to prevent timing attacks
	if !hmac.Equal([]byte(key), []byte(expected)) {
		return "", ErrBadSignature
	}

	return tenantCode, nil
}

// KeyPreview masks an API key for listings
func KeyPreview(key string) string {
	if len(key) > 8 {
		return key[:3] + "..." + key[len(key)-4:]
	}
	return "****"
}

// EnsureAdminExists creates the bootstrap cross-tenant user when no super admin exists
func EnsureAdminExists(db *gorm.DB, cfg config.Config, log *zap.Logger) error {
	var count int64
	if err := db.Model(&database.User{}).Where("ruolo = ?", database.RoleSuperAdmin).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}

	user := database.User{
		Username:     cfg.AdminUsername,
		PasswordHash: hash,
		Role:         database.RoleSuperAdmin,
	}
	if err := db.Create(&user).Error; err != nil {
		return err
	}
	if log != nil {
		log.Info("default admin user created", zap.String("username", user.Username))
	}
	return nil
}
