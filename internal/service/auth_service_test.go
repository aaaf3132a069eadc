package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/qs3c/inkpress/config"
	"github.com/qs3c/inkpress/internal/model"
	"github.com/qs3c/inkpress/internal/model/dto"
	"github.com/qs3c/inkpress/internal/pkg/jwt"
	"github.com/qs3c/inkpress/internal/repository"
	"github.com/qs3c/inkpress/internal/testutil"
)

const testJWTSecret = "test-secret-key-for-testing"

func setupAuthService(t *testing.T) (*AuthService, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	userRepo := repository.NewUserRepository(db)

	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:      testJWTSecret,
			ExpireHours: 24,
		},
	}

	service := NewAuthService(userRepo, cfg)

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return service, cleanup
}

func TestAuthService_Register_Success(t *testing.T) {
	service, cleanup := setupAuthService(t)
	defer cleanup()

	resp, err := service.Register(&dto.RegisterRequest{
		Email:       "newuser@example.com",
		Username:    "newuser",
		DisplayName: "New User",
		Password:    "password123",
	})
	require.NoError(t, err)
	assert.NotZero(t, resp.UserID)

	user, err := service.GetUserByID(resp.UserID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, user.Role)
	assert.Equal(t, "New User", user.Name())
	require.NotNil(t, user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte("password123")))
}

func TestAuthService_Register_Duplicates(t *testing.T) {
	service, cleanup := setupAuthService(t)
	defer cleanup()

	_, err := service.Register(&dto.RegisterRequest{Email: "a@example.com", Username: "alice", Password: "password123"})
	require.NoError(t, err)

	_, err = service.Register(&dto.RegisterRequest{Email: "a@example.com", Username: "other", Password: "password123"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = service.Register(&dto.RegisterRequest{Email: "b@example.com", Username: "alice", Password: "password123"})
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestAuthService_Login(t *testing.T) {
	service, cleanup := setupAuthService(t)
	defer cleanup()

	reg, err := service.Register(&dto.RegisterRequest{Email: "login@example.com", Username: "login", Password: "password123"})
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		resp, err := service.Login(&dto.LoginRequest{Email: "login@example.com", Password: "password123"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "login@example.com", resp.User.Email)

		claims, err := jwt.ParseToken(resp.Token, testJWTSecret)
		require.NoError(t, err)
		assert.Equal(t, reg.UserID, claims.UserID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := service.Login(&dto.LoginRequest{Email: "login@example.com", Password: "wrong"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := service.Login(&dto.LoginRequest{Email: "nobody@example.com", Password: "password123"})
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestAuthService_GetUserByID_NotFound(t *testing.T) {
	service, cleanup := setupAuthService(t)
	defer cleanup()

	_, err := service.GetUserByID(99999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
