package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"liar-game/internal/domain"
	"liar-game/internal/repository"
	"liar-game/internal/sanitize"
)

// ClaimMetadata 是身份提供方放在 token 里的嵌套声明。
type ClaimMetadata struct {
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	Tier     string `json:"tier,omitempty"`
}

// Claims is the one claim schema accepted from any issuer.
//
// Precedence when building a principal:
//
//	role:     app_metadata.role, user_metadata.role, role
//	tier:     app_metadata.tier, user_metadata.tier, tier
//	username: user_metadata.username, app_metadata.username, username, local part of email
type Claims struct {
	Email        string         `json:"email,omitempty"`
	Username     string         `json:"username,omitempty"`
	Role         string         `json:"role,omitempty"`
	Tier         string         `json:"tier,omitempty"`
	UserMetadata *ClaimMetadata `json:"user_metadata,omitempty"`
	AppMetadata  *ClaimMetadata `json:"app_metadata,omitempty"`
	jwt.RegisteredClaims
}

// ErrMissingAuthHeader 表示请求没有携带 Authorization 头
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// AuthService 负责账号注册登录、token 签发校验以及请求身份解析。
type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
	jwtExpiry time.Duration
	issuer    string
}

// NewAuthService 创建 AuthService 实例。issuer 为空时不校验 iss。
func NewAuthService(userRepo repository.UserRepository, jwtSecretKey string, jwtExpiryHours int, issuer string) (*AuthService, error) {
	if userRepo == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	if jwtSecretKey == "" {
		return nil, fmt.Errorf("JWT secret key cannot be empty")
	}
	if jwtExpiryHours <= 0 {
		jwtExpiryHours = 24
	}
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecretKey),
		jwtExpiry: time.Duration(jwtExpiryHours) * time.Hour,
		issuer:    issuer,
	}, nil
}

// Register 处理本地账号注册。
func (s *AuthService) Register(ctx context.Context, username, password, email string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	logCtx := logrus.WithFields(logrus.Fields{"username": username, "email": email})

	if username == "" || password == "" {
		return nil, &ValidationError{Field: "username", Reason: "and password are required"}
	}
	// 存储的用户名必须和用户输入一致，否则之后无法用同一个名字登录
	if sanitize.Text(username) != username {
		return nil, &ValidationError{Field: "username", Reason: "contains forbidden characters"}
	}
	if n := utf8.RuneCountInString(username); n < domain.UsernameMinLength || n > domain.UsernameMaxLength {
		return nil, &ValidationError{
			Field:  "username",
			Reason: fmt.Sprintf("must be %d-%d characters", domain.UsernameMinLength, domain.UsernameMaxLength),
		}
	}

	if _, err := s.userRepo.FindByUsername(ctx, username); err == nil {
		logCtx.Warn("Registration failed: username already exists")
		return nil, ErrRegistrationFailed
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		logCtx.WithError(err).Error("Database error checking username")
		return nil, ErrInternalServer
	}

	hashedPassword, err := hashPassword(password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, ErrInternalServer
	}

	user := &domain.User{
		Subject:  uuid.NewString(),
		Username: username,
		Password: hashedPassword,
		Email:    email,
		Tier:     domain.TierMember,
		Role:     domain.RoleUser,
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Warn("Registration failed: username or email already exists (repo error)")
			return nil, ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Database error during user creation")
		return nil, ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User registered successfully")
	user.Password = ""
	return user, nil
}

// Login 校验本地账号密码并签发 token。
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	logCtx := logrus.WithField("username", username)

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			logCtx.Warn("Login attempt failed: User not found")
		} else {
			logCtx.WithError(err).Warn("Login attempt failed: Error finding user")
		}
		return "", ErrAuthenticationFailed
	}
	if user.Password == "" || !checkPassword(password, user.Password) {
		logCtx.Warn("Login attempt failed: Invalid password")
		return "", ErrAuthenticationFailed
	}

	token, err := s.generateJWT(user)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate JWT token during login")
		return "", ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User logged in successfully")
	return token, nil
}

// VerifyToken 校验签名、过期时间和签发方，不做任何 IO。
func (s *AuthService) VerifyToken(tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// Resolve 把 Authorization 头解析成 principal。
// 缺失或无效的 token 一律降级为 guest，不返回错误；
// 已软删除的账号返回 ErrAuthenticationRequired。
func (s *AuthService) Resolve(ctx context.Context, authorizationHeader string) (*domain.Principal, error) {
	tokenStr, err := BearerToken(authorizationHeader)
	if err != nil {
		if !errors.Is(err, ErrMissingAuthHeader) {
			logrus.WithError(err).Debug("Resolve: malformed Authorization header, using guest")
		}
		return domain.GuestPrincipal(), nil
	}

	claims, err := s.VerifyToken(tokenStr)
	if err != nil {
		logCtx := logrus.WithError(err)
		if errors.Is(err, jwt.ErrTokenExpired) {
			logCtx.Debug("Resolve: token expired, using guest")
		} else {
			logCtx.Warn("Resolve: token rejected, using guest")
		}
		return domain.GuestPrincipal(), nil
	}

	principal := PrincipalFromClaims(claims)
	logCtx := logrus.WithField("subject", claims.Subject)

	user, err := s.reconcileUser(ctx, claims, principal)
	if err != nil {
		logCtx.WithError(err).Error("Resolve: failed to reconcile local user")
		return nil, ErrInternalServer
	}
	if user.IsDeleted() {
		logCtx.WithField("user_id", user.ID).Warn("Resolve: account is deleted")
		return nil, ErrAuthenticationRequired
	}

	resolved := domain.PrincipalForUser(user)
	if resolved.Email == "" {
		resolved.Email = principal.Email
	}
	logCtx.WithFields(logrus.Fields{"user_id": user.ID, "tier": resolved.Tier, "role": resolved.Role}).
		Debug("Resolve: principal authenticated")
	return resolved, nil
}

// PrincipalFromClaims 按固定优先级把 claims 映射为 principal，纯函数。
func PrincipalFromClaims(c *Claims) *domain.Principal {
	var user, app ClaimMetadata
	if c.UserMetadata != nil {
		user = *c.UserMetadata
	}
	if c.AppMetadata != nil {
		app = *c.AppMetadata
	}

	role := domain.Role(strings.ToUpper(firstNonEmpty(app.Role, user.Role, c.Role)))
	if !role.Valid() {
		role = domain.RoleUser
	}
	tier := domain.Tier(strings.ToUpper(firstNonEmpty(app.Tier, user.Tier, c.Tier)))
	if !tier.Valid() || tier == domain.TierGuest {
		tier = domain.TierMember
	}
	username := firstNonEmpty(user.Username, app.Username, c.Username, emailLocalPart(c.Email))

	return &domain.Principal{
		ID:       c.Subject,
		Tier:     tier,
		Role:     role,
		Email:    c.Email,
		Username: username,
	}
}

// BearerToken 从 "Bearer <token>" 中取出 token
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

// reconcileUser 按 sub 找到本地账号，没有则按 claims 建一个。
// 已存在账号的等级和角色以本地存储为准。
func (s *AuthService) reconcileUser(ctx context.Context, claims *Claims, principal *domain.Principal) (*domain.User, error) {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		user, err := s.userRepo.FindBySubject(ctx, claims.Subject)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}

		username := sanitize.Text(principal.Username)
		if username == "" || attempt > 0 {
			username = fmt.Sprintf("%s-%s", orDefault(username, "player"), uuid.NewString()[:6])
		}
		user = &domain.User{
			Subject:  claims.Subject,
			Username: username,
			Email:    principal.Email,
			Tier:     principal.Tier,
			Role:     principal.Role,
		}
		err = s.userRepo.Save(ctx, user)
		if err == nil {
			logrus.WithFields(logrus.Fields{"user_id": user.ID, "subject": claims.Subject}).
				Info("Provisioned local account for external identity")
			return user, nil
		}
		if !errors.Is(err, repository.ErrDuplicateEntry) {
			return nil, err
		}
		// 用户名冲突或并发创建了同一 subject，下一轮重新查找
	}
	return nil, fmt.Errorf("could not provision user for subject %s after %d attempts", claims.Subject, maxAttempts)
}

// --- 私有辅助函数 ---

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}

func checkPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (s *AuthService) generateJWT(user *domain.User) (string, error) {
	now := time.Now()
	claims := Claims{
		Email:    user.Email,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.Subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.jwtExpiry)),
			ID:        uuid.NewString(),
		},
	}
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func emailLocalPart(email string) string {
	if i := strings.Index(email, "@"); i > 0 {
		return email[:i]
	}
	return ""
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
