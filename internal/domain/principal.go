package domain

import "strconv"

// Tier 是有序的账号等级。
type Tier string

const (
	TierGuest   Tier = "GUEST"
	TierMember  Tier = "MEMBER"
	TierPremium Tier = "PREMIUM"
)

// Role 是与等级无关的账号类别。
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// GuestID is the principal id carried by unauthenticated requests.
const GuestID = "guest"

var tierRanks = map[Tier]int{
	TierGuest:   0,
	TierMember:  1,
	TierPremium: 2,
}

// TierRank returns the position of t in GUEST < MEMBER < PREMIUM.
// Unknown tiers rank below GUEST.
func TierRank(t Tier) int {
	if rank, ok := tierRanks[t]; ok {
		return rank
	}
	return -1
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// HasRequiredTier reports whether tier meets the required minimum.
// An empty requirement always passes.
func HasRequiredTier(tier, required Tier) bool {
	if required == "" {
		return true
	}
	return TierRank(tier) >= TierRank(required)
}

// HasRequiredRole reports whether role is in roles. An empty set always passes.
func HasRequiredRole(role Role, roles []Role) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Principal 是单个请求解析出的身份，每个请求重新构造，不落库。
type Principal struct {
	ID       string `json:"id"`
	UserID   uint   `json:"user_id,omitempty"`
	Tier     Tier   `json:"tier"`
	Role     Role   `json:"role"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// GuestPrincipal returns a fresh guest principal.
func GuestPrincipal() *Principal {
	return &Principal{ID: GuestID, Tier: TierGuest, Role: RoleUser}
}

// IsGuest reports whether the principal is the synthetic guest.
func (p *Principal) IsGuest() bool {
	return p == nil || p.ID == GuestID
}

// PrincipalForUser builds the principal of a stored account.
func PrincipalForUser(u *User) *Principal {
	return &Principal{
		ID:       strconv.FormatUint(uint64(u.ID), 10),
		UserID:   u.ID,
		Tier:     u.Tier,
		Role:     u.Role,
		Email:    u.Email,
		Username: u.Username,
	}
}
