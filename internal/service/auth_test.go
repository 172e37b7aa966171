package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"liar-game/internal/domain"
	"liar-game/internal/repository"
	"liar-game/internal/repository/mocks"
	"liar-game/internal/service"
)

const (
	testSecret = "very-secret-key"
	testIssuer = "liar-game-test"
)

func newAuthService(t *testing.T) (*service.AuthService, *mocks.UserRepository) {
	t.Helper()
	mockUserRepo := new(mocks.UserRepository)
	authService, err := service.NewAuthService(mockUserRepo, testSecret, 1, testIssuer)
	require.NoError(t, err, "创建 AuthService 不应失败")
	return authService, mockUserRepo
}

// signToken 用测试密钥签一个 token
func signToken(t *testing.T, claims service.Claims, secret string) string {
	t.Helper()
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	}
	if claims.Issuer == "" {
		claims.Issuer = testIssuer
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestNewAuthService_EmptySecret(t *testing.T) {
	_, err := service.NewAuthService(new(mocks.UserRepository), "", 1, "")
	assert.Error(t, err)
}

// --- Register ---

func TestAuthService_Register_Success(t *testing.T) {
	// Arrange
	authService, mockUserRepo := newAuthService(t)
	ctx := context.Background()
	username, password, email := "newbie", "StrongPass123", "newbie@example.com"

	mockUserRepo.On("FindByUsername", ctx, username).Return(nil, repository.ErrUserNotFound).Once()
	mockUserRepo.On("Save", ctx, mock.MatchedBy(func(user *domain.User) bool {
		return user.Username == username &&
			user.Email == email &&
			user.Subject != "" &&
			user.Tier == domain.TierMember &&
			user.Role == domain.RoleUser &&
			bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) == nil
	})).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.User).ID = 5
		}).
		Return(nil).
		Once()

	// Act
	user, err := authService.Register(ctx, username, password, email)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint(5), user.ID)
	assert.Empty(t, user.Password, "返回的用户密码应为空")
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Register_UsernameTaken(t *testing.T) {
	authService, mockUserRepo := newAuthService(t)
	ctx := context.Background()

	mockUserRepo.On("FindByUsername", ctx, "existingUser").Return(&domain.User{ID: 10, Username: "existingUser"}, nil).Once()

	_, err := authService.Register(ctx, "existingUser", "password", "email@test.com")

	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrRegistrationFailed)
	mockUserRepo.AssertExpectations(t)
	mockUserRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestAuthService_Register_SaveFails_DuplicateEntry(t *testing.T) {
	authService, mockUserRepo := newAuthService(t)
	ctx := context.Background()

	mockUserRepo.On("FindByUsername", ctx, "another").Return(nil, repository.ErrUserNotFound).Once()
	mockUserRepo.On("Save", ctx, mock.AnythingOfType("*domain.User")).Return(repository.ErrDuplicateEntry).Once()

	_, err := authService.Register(ctx, "another", "password", "email2@test.com")

	assert.ErrorIs(t, err, service.ErrRegistrationFailed)
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Register_MissingFields(t *testing.T) {
	authService, mockUserRepo := newAuthService(t)

	_, err := authService.Register(context.Background(), "<b></b>", "password", "")

	assert.ErrorIs(t, err, service.ErrValidationFailed)
	mockUserRepo.AssertNotCalled(t, "FindByUsername", mock.Anything, mock.Anything)
}

func TestAuthService_Register_RejectsAlteredOrShortUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
	}{
		{"quote", "o'neil"},
		{"markup", "<i>eve</i>"},
		{"too short after sanitizing", "a';b"},
		{"too short", "ab"},
		{"too long", strings.Repeat("x", domain.UsernameMaxLength+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authService, mockUserRepo := newAuthService(t)

			_, err := authService.Register(context.Background(), tt.username, "password", "")

			var validation *service.ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, "username", validation.Field)
			mockUserRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
		})
	}
}

// --- Login ---

func TestAuthService_Login_Success(t *testing.T) {
	authService, mockUserRepo := newAuthService(t)
	ctx := context.Background()
	hashed, err := bcrypt.GenerateFromPassword([]byte("pw123456"), bcrypt.MinCost)
	require.NoError(t, err)

	user := &domain.User{ID: 3, Subject: "sub-3", Username: "alice", Email: "alice@example.com", Password: string(hashed)}
	mockUserRepo.On("FindByUsername", ctx, "alice").Return(user, nil).Once()

	token, err := authService.Login(ctx, "alice", "pw123456")
	require.NoError(t, err)

	claims, err := authService.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "sub-3", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, testIssuer, claims.Issuer)
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Login_Failures(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("right"), bcrypt.MinCost)
	require.NoError(t, err)

	tests := []struct {
		name     string
		user     *domain.User
		repoErr  error
		password string
	}{
		{name: "user not found", repoErr: repository.ErrUserNotFound, password: "right"},
		{name: "repository error", repoErr: errors.New("db down"), password: "right"},
		{name: "wrong password", user: &domain.User{ID: 1, Username: "bob", Password: string(hashed)}, password: "wrong"},
		{name: "external account without password", user: &domain.User{ID: 1, Username: "bob"}, password: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authService, mockUserRepo := newAuthService(t)
			ctx := context.Background()
			mockUserRepo.On("FindByUsername", ctx, "bob").Return(tt.user, tt.repoErr).Once()

			token, err := authService.Login(ctx, "bob", tt.password)

			assert.ErrorIs(t, err, service.ErrAuthenticationFailed)
			assert.Empty(t, token)
			mockUserRepo.AssertExpectations(t)
		})
	}
}

// --- VerifyToken ---

func TestAuthService_VerifyToken_Rejects(t *testing.T) {
	authService, _ := newAuthService(t)

	expired := signToken(t, service.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "sub",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}, testSecret)
	wrongSecret := signToken(t, service.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub"}}, "other-secret")
	wrongIssuer := signToken(t, service.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub", Issuer: "someone-else"}}, testSecret)
	noSubject := signToken(t, service.Claims{Email: "a@b.c"}, testSecret)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub", Issuer: testIssuer},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, service.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "sub",
		Issuer:    testIssuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":      expired,
		"wrong secret": wrongSecret,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"no expiry":    noExpiry,
		"alg none":     unsigned,
		"garbage":      "not-a-jwt",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := authService.VerifyToken(token)
			assert.Error(t, err)
		})
	}
}

// --- PrincipalFromClaims ---

func TestPrincipalFromClaims_Precedence(t *testing.T) {
	tests := []struct {
		name         string
		claims       service.Claims
		wantRole     domain.Role
		wantTier     domain.Tier
		wantUsername string
	}{
		{
			name: "app metadata wins for role and tier",
			claims: service.Claims{
				Role: "USER", Tier: "MEMBER", Username: "top",
				UserMetadata: &service.ClaimMetadata{Role: "USER", Tier: "MEMBER", Username: "from-user"},
				AppMetadata:  &service.ClaimMetadata{Role: "ADMIN", Tier: "PREMIUM", Username: "from-app"},
			},
			wantRole: domain.RoleAdmin, wantTier: domain.TierPremium, wantUsername: "from-user",
		},
		{
			name: "user metadata before top level",
			claims: service.Claims{
				Role: "USER", Tier: "MEMBER", Username: "top",
				UserMetadata: &service.ClaimMetadata{Role: "admin", Tier: "premium"},
				AppMetadata:  &service.ClaimMetadata{Username: "from-app"},
			},
			wantRole: domain.RoleAdmin, wantTier: domain.TierPremium, wantUsername: "from-app",
		},
		{
			name:     "top level claims",
			claims:   service.Claims{Role: "ADMIN", Tier: "PREMIUM", Username: "top"},
			wantRole: domain.RoleAdmin, wantTier: domain.TierPremium, wantUsername: "top",
		},
		{
			name:     "defaults and email fallback",
			claims:   service.Claims{Email: "carol@example.com"},
			wantRole: domain.RoleUser, wantTier: domain.TierMember, wantUsername: "carol",
		},
		{
			name:     "unknown values fall back",
			claims:   service.Claims{Role: "ROOT", Tier: "GOLD"},
			wantRole: domain.RoleUser, wantTier: domain.TierMember,
		},
		{
			name:     "authenticated caller is never guest tier",
			claims:   service.Claims{Tier: "GUEST"},
			wantRole: domain.RoleUser, wantTier: domain.TierMember,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.claims.Subject = "sub-1"
			p := service.PrincipalFromClaims(&tt.claims)
			assert.Equal(t, "sub-1", p.ID)
			assert.Equal(t, tt.wantRole, p.Role)
			assert.Equal(t, tt.wantTier, p.Tier)
			assert.Equal(t, tt.wantUsername, p.Username)
		})
	}
}

// --- Resolve ---

func TestAuthService_Resolve_GuestFallback(t *testing.T) {
	authService, mockUserRepo := newAuthService(t)
	expired := signToken(t, service.Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "sub",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}}, testSecret)

	for name, header := range map[string]string{
		"missing header": "",
		"not bearer":     "Basic dXNlcjpwYXNz",
		"bad token":      "Bearer not-a-jwt",
		"expired token":  "Bearer " + expired,
	} {
		t.Run(name, func(t *testing.T) {
			p, err := authService.Resolve(context.Background(), header)
			require.NoError(t, err)
			assert.True(t, p.IsGuest())
			assert.Equal(t, domain.TierGuest, p.Tier)
			assert.Equal(t, domain.RoleUser, p.Role)
		})
	}
	mockUserRepo.AssertNotCalled(t, "FindBySubject", mock.Anything, mock.Anything)
}

func TestAuthService_Resolve_ExistingUser(t *testing.T) {
	authService, mockUserRepo := newAuthService(t)
	ctx := context.Background()
	token := signToken(t, service.Claims{
		Email:            "dave@example.com",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-7"},
	}, testSecret)

	stored := &domain.User{ID: 7, Subject: "sub-7", Username: "dave", Email: "dave@example.com", Tier: domain.TierPremium, Role: domain.RoleAdmin}
	mockUserRepo.On("FindBySubject", ctx, "sub-7").Return(stored, nil).Once()

	p, err := authService.Resolve(ctx, "Bearer "+token)

	require.NoError(t, err)
	assert.Equal(t, "7", p.ID)
	assert.Equal(t, uint(7), p.UserID)
	assert.Equal(t, domain.TierPremium, p.Tier)
	assert.Equal(t, domain.RoleAdmin, p.Role)
	assert.False(t, p.IsGuest())
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Resolve_ProvisionsUnknownSubject(t *testing.T) {
	authService, mockUserRepo := newAuthService(t)
	ctx := context.Background()
	token := signToken(t, service.Claims{
		Email:            "erin@example.com",
		AppMetadata:      &service.ClaimMetadata{Tier: "PREMIUM"},
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ext-erin"},
	}, testSecret)

	mockUserRepo.On("FindBySubject", ctx, "ext-erin").Return(nil, repository.ErrUserNotFound).Once()
	mockUserRepo.On("Save", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.Subject == "ext-erin" && u.Username == "erin" && u.Tier == domain.TierPremium && u.Password == ""
	})).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.User).ID = 11 }).
		Return(nil).
		Once()

	p, err := authService.Resolve(ctx, "Bearer "+token)

	require.NoError(t, err)
	assert.Equal(t, uint(11), p.UserID)
	assert.Equal(t, domain.TierPremium, p.Tier)
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Resolve_ProvisionUsernameCollision(t *testing.T) {
	authService, mockUserRepo := newAuthService(t)
	ctx := context.Background()
	token := signToken(t, service.Claims{
		Username:         "frank",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "ext-frank"},
	}, testSecret)

	mockUserRepo.On("FindBySubject", ctx, "ext-frank").Return(nil, repository.ErrUserNotFound).Twice()
	mockUserRepo.On("Save", ctx, mock.MatchedBy(func(u *domain.User) bool { return u.Username == "frank" })).
		Return(repository.ErrDuplicateEntry).Once()
	mockUserRepo.On("Save", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return len(u.Username) == len("frank-")+6 && u.Username[:6] == "frank-"
	})).
		Run(func(args mock.Arguments) { args.Get(1).(*domain.User).ID = 12 }).
		Return(nil).
		Once()

	p, err := authService.Resolve(ctx, "Bearer "+token)

	require.NoError(t, err)
	assert.Equal(t, uint(12), p.UserID)
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Resolve_DeletedAccount(t *testing.T) {
	authService, mockUserRepo := newAuthService(t)
	ctx := context.Background()
	token := signToken(t, service.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-gone"}}, testSecret)

	deleted := &domain.User{ID: 9, Subject: "sub-gone", DeletedAt: gorm.DeletedAt{Time: time.Now(), Valid: true}}
	mockUserRepo.On("FindBySubject", ctx, "sub-gone").Return(deleted, nil).Once()

	p, err := authService.Resolve(ctx, "Bearer "+token)

	assert.Nil(t, p)
	assert.ErrorIs(t, err, service.ErrAuthenticationRequired)
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Resolve_StoreError(t *testing.T) {
	authService, mockUserRepo := newAuthService(t)
	ctx := context.Background()
	token := signToken(t, service.Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "sub-x"}}, testSecret)

	mockUserRepo.On("FindBySubject", ctx, "sub-x").Return(nil, errors.New("connection refused")).Once()

	p, err := authService.Resolve(ctx, "Bearer "+token)

	assert.Nil(t, p)
	assert.ErrorIs(t, err, service.ErrInternalServer)
	mockUserRepo.AssertExpectations(t)
}

func TestBearerToken(t *testing.T) {
	token, err := service.BearerToken("bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)

	_, err = service.BearerToken("")
	assert.ErrorIs(t, err, service.ErrMissingAuthHeader)

	_, err = service.BearerToken("Bearer")
	assert.Error(t, err)
}
