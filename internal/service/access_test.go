package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"liar-game/internal/domain"
	"liar-game/internal/service"
)

var (
	allTiers = []domain.Tier{domain.TierGuest, domain.TierMember, domain.TierPremium}
	allRoles = []domain.Role{domain.RoleUser, domain.RoleAdmin}
)

func TestAuthorize_NilPrincipal(t *testing.T) {
	err := service.Authorize(nil, service.AccessPolicy{})
	assert.ErrorIs(t, err, service.ErrAuthenticationRequired)
}

func TestAuthorize_EmptyPolicyAdmitsEveryone(t *testing.T) {
	for _, tier := range allTiers {
		for _, role := range allRoles {
			p := &domain.Principal{ID: "x", Tier: tier, Role: role}
			assert.NoError(t, service.Authorize(p, service.AccessPolicy{}), "%s/%s", tier, role)
		}
	}
	assert.NoError(t, service.Authorize(domain.GuestPrincipal(), service.AccessPolicy{}))
}

// 角色和等级两个条件都要满足，和检查顺序无关
func TestAuthorize_AllCombinations(t *testing.T) {
	roleSets := [][]domain.Role{nil, {domain.RoleUser}, {domain.RoleAdmin}, {domain.RoleUser, domain.RoleAdmin}}
	minTiers := append([]domain.Tier{""}, allTiers...)

	for _, roles := range roleSets {
		for _, minTier := range minTiers {
			policy := service.AccessPolicy{Roles: roles, MinTier: minTier}
			for _, tier := range allTiers {
				for _, role := range allRoles {
					p := &domain.Principal{ID: "1", Tier: tier, Role: role}
					want := domain.HasRequiredRole(role, roles) && domain.HasRequiredTier(tier, minTier)

					err := service.Authorize(p, policy)

					if want {
						assert.NoError(t, err, "roles=%v min=%s principal=%s/%s", roles, minTier, role, tier)
					} else {
						assert.ErrorIs(t, err, service.ErrPermissionDenied, "roles=%v min=%s principal=%s/%s", roles, minTier, role, tier)
					}
				}
			}
		}
	}
}

func TestAuthorize_TierOrdering(t *testing.T) {
	premium := &domain.Principal{ID: "1", Tier: domain.TierPremium, Role: domain.RoleUser}
	member := &domain.Principal{ID: "2", Tier: domain.TierMember, Role: domain.RoleUser}

	assert.NoError(t, service.Authorize(premium, service.AccessPolicy{MinTier: domain.TierMember}))
	assert.NoError(t, service.Authorize(member, service.AccessPolicy{MinTier: domain.TierMember}))
	assert.ErrorIs(t, service.Authorize(domain.GuestPrincipal(), service.AccessPolicy{MinTier: domain.TierMember}), service.ErrPermissionDenied)

	err := service.Authorize(member, service.AccessPolicy{MinTier: domain.TierPremium})
	var denied *service.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, domain.TierPremium, denied.RequiredTier)
	assert.Equal(t, domain.TierMember, denied.ActualTier)
}

func TestAuthorize_RoleDeniedReportsRoles(t *testing.T) {
	p := &domain.Principal{ID: "1", Tier: domain.TierPremium, Role: domain.RoleUser}

	err := service.Authorize(p, service.AccessPolicy{Roles: []domain.Role{domain.RoleAdmin}})

	var denied *service.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, []domain.Role{domain.RoleAdmin}, denied.RequiredRoles)
	assert.Equal(t, domain.RoleUser, denied.ActualRole)
	assert.Contains(t, err.Error(), "ADMIN")
}
