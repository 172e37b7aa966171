package service

import (
	"errors"
	"fmt"
	"strings"

	"liar-game/internal/domain"
)

// Sentinel errors. The structured error types below match them through errors.Is.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrAuthenticationFailed   = errors.New("authentication failed")
	ErrPermissionDenied       = errors.New("permission denied")
	ErrNotFound               = errors.New("not found")
	ErrInvalidState           = errors.New("invalid state for operation")
	ErrCapacityExceeded       = errors.New("room is full")
	ErrDuplicateMembership    = errors.New("user is already in the room")
	ErrValidationFailed       = errors.New("validation failed")
	ErrRegistrationFailed     = errors.New("registration failed: username or email already exists")
	ErrRateLimited            = errors.New("too many requests") // 由 RateLimit 中间件直接写回 429
	ErrInternalServer         = errors.New("internal server error")
)

// PermissionDeniedError 描述缺少的角色或等级。
type PermissionDeniedError struct {
	RequiredRoles []domain.Role
	RequiredTier  domain.Tier
	ActualRole    domain.Role
	ActualTier    domain.Tier
	Reason        string
}

func (e *PermissionDeniedError) Error() string {
	switch {
	case e.RequiredTier != "":
		return fmt.Sprintf("permission denied: requires tier %s, actual %s", e.RequiredTier, e.ActualTier)
	case len(e.RequiredRoles) > 0:
		roles := make([]string, len(e.RequiredRoles))
		for i, r := range e.RequiredRoles {
			roles[i] = string(r)
		}
		return fmt.Sprintf("permission denied: requires role %s, actual %s", strings.Join(roles, "|"), e.ActualRole)
	case e.Reason != "":
		return "permission denied: " + e.Reason
	default:
		return ErrPermissionDenied.Error()
	}
}

func (e *PermissionDeniedError) Is(target error) bool { return target == ErrPermissionDenied }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string        { return e.Entity + " not found" }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidStateError 表示当前状态不允许该操作。Attempted 是目标状态或操作名。
type InvalidStateError struct {
	Current   domain.RoomStatus
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s while room is %s", e.Attempted, e.Current)
}

func (e *InvalidStateError) Is(target error) bool { return target == ErrInvalidState }

// ValidationError names the rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidationFailed }

func notFound(entity string) error {
	return &NotFoundError{Entity: entity}
}
