package auth

import (
	"testing"
	"time"

	"github.com/arnavshah/turni-api-go/pkg/config"
	"github.com/arnavshah/turni-api-go/pkg/database"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:       "jwt-secret",
		APIMasterSecret: "master-secret",
		AdminUsername:   "root",
		AdminPassword:   "s3cret",
		TokenTTL:        time.Hour,
	}
}

func mustNew(t *testing.T, cfg config.Config) *Auth {
	t.Helper()
	a, err := New(cfg)
	require.NoError(t, err)
	return a
}

func TestNewRequiresSecrets(t *testing.T) {
	for name, mutate := range map[string]func(*config.Config){
		"no jwt secret":    func(c *config.Config) { c.JWTSecret = "" },
		"no master secret": func(c *config.Config) { c.APIMasterSecret = "" },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			mutate(&cfg)
			a, err := New(cfg)
			assert.ErrorIs(t, err, ErrMissingSecret)
			assert.Nil(t, a)
		})
	}
}

func TestVerifyTokenRejectsEmptyKeySignature(t *testing.T) {
	a := mustNew(t, testConfig())

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Username: "x", Role: database.RoleSuperAdmin})
	token, err := forged.SignedString([]byte(""))
	require.NoError(t, err)

	_, err = a.VerifyToken(token)
	assert.Error(t, err)

	_, err = a.VerifyHMACKey(SignKey([]byte(""), "NORD", "k1"))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestTokenRoundTrip(t *testing.T) {
	a := mustNew(t, testConfig())

	token, err := a.CreateToken("mario", database.RoleAdmin, 7)
	require.NoError(t, err)

	claims, err := a.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "mario", claims.Username)
	assert.Equal(t, database.RoleAdmin, claims.Role)
	assert.Equal(t, uint(7), claims.TenantID)
}

func TestVerifyTokenRejects(t *testing.T) {
	a := mustNew(t, testConfig())

	t.Run("wrong secret", func(t *testing.T) {
		other := testConfig()
		other.JWTSecret = "other"
		token, err := mustNew(t, other).CreateToken("mario", database.RoleAdmin, 1)
		require.NoError(t, err)

		_, err = a.VerifyToken(token)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		expired := mustNew(t, testConfig())
		expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, err := expired.CreateToken("mario", database.RoleAdmin, 1)
		require.NoError(t, err)

		_, err = a.VerifyToken(token)
		assert.Error(t, err)
	})

	t.Run("other algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, &Claims{Username: "mario"})
		signed, err := token.SignedString([]byte("jwt-secret"))
		require.NoError(t, err)

		_, err = a.VerifyToken(signed)
		assert.Error(t, err)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := a.VerifyToken("not-a-token")
		assert.Error(t, err)
	})
}

func TestHMACKey(t *testing.T) {
	a := mustNew(t, testConfig())

	key := a.GenerateHMACKey("roma.nord")
	code, err := a.VerifyHMACKey(key)
	require.NoError(t, err)
	assert.Equal(t, "roma.nord", code)

	assert.NotEqual(t, key, a.GenerateHMACKey("roma.nord"), "each key gets its own id")

	_, err = a.VerifyHMACKey("roma.nord.k1.deadbeef")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = a.VerifyHMACKey("nodot")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = a.VerifyHMACKey("onlyone.dot")
	assert.ErrorIs(t, err, ErrInvalidKey)

	other := testConfig()
	other.APIMasterSecret = "different"
	_, err = mustNew(t, other).VerifyHMACKey(key)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestSignKeyIsStable(t *testing.T) {
	a := mustNew(t, testConfig())
	key := SignKey([]byte("master-secret"), "ROMA1", "cli")

	code, err := a.VerifyHMACKey(key)
	require.NoError(t, err)
	assert.Equal(t, "ROMA1", code)
	assert.Equal(t, key, SignKey([]byte("master-secret"), "ROMA1", "cli"))
}

func TestKeyPreview(t *testing.T) {
	assert.Equal(t, "abc...6789", KeyPreview("abcdef0123456789"))
	assert.Equal(t, "****", KeyPreview("short"))
}

func TestEnsureAdminExists(t *testing.T) {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	cfg := testConfig()

	require.NoError(t, EnsureAdminExists(db, cfg, nil))
	require.NoError(t, EnsureAdminExists(db, cfg, nil))

	var users []database.User
	require.NoError(t, db.Find(&users).Error)
	require.Len(t, users, 1)
	assert.Equal(t, "root", users[0].Username)
	assert.Equal(t, database.RoleSuperAdmin, users[0].Role)
	assert.Nil(t, users[0].TenantID)
	assert.True(t, CheckPasswordHash("s3cret", users[0].PasswordHash))
}
