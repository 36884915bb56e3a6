package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/turnstile/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-32-characters-long!!"

func TestTokenManager_RoundTrip(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	token, err := tm.GenerateServiceToken("identity-api")
	require.NoError(t, err)

	claims, err := tm.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, ServiceTokenType, claims.Type)
	assert.Equal(t, "identity-api", claims.Service)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenManager_RequiresServiceName(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Hour)

	_, err := tm.GenerateServiceToken("")
	assert.ErrorIs(t, err, models.ErrBadRequest)
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	token, err := NewTokenManager("another-secret-32-characters-long", time.Hour).GenerateServiceToken("svc")
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).ValidateToken(token)
	assert.Error(t, err)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	tm := NewTokenManager(testSecret, time.Minute)
	issued := time.Now()
	tm.now = func() time.Time { return issued }

	token, err := tm.GenerateServiceToken("svc")
	require.NoError(t, err)

	tm.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = tm.ValidateToken(token)
	assert.True(t, errors.Is(err, jwt.ErrTokenExpired))
}

func TestTokenManager_RejectsOtherTokenTypes(t *testing.T) {
	claims := &models.ServiceClaims{
		Type:    "access",
		Service: "svc",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).ValidateToken(token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	claims := &models.ServiceClaims{Type: ServiceTokenType, Service: "svc"}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewTokenManager(testSecret, time.Hour).ValidateToken(token)
	assert.Error(t, err)
}
