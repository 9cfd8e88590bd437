package models

import (
	"fmt"
	"time"
)

// UserStatus gates whether a user may call the API at all.
type UserStatus string

const (
	UserStatusNormal  UserStatus = "NORMAL"
	UserStatusRevoked UserStatus = "REVOKED"
)

// UserRole controls which operations a user may perform.
type UserRole string

const (
	// RoleOperator submits and manages its own jobs.
	RoleOperator UserRole = "OPERATOR"
	// RoleNode is a peer platform instance reporting task progress.
	RoleNode UserRole = "NODE"
	// RoleAdmin may manage any job.
	RoleAdmin UserRole = "ADMIN"
)

// User is an authenticated principal.
type User struct {
	Name       string     `json:"name" badgerhold:"key"`
	Role       UserRole   `json:"role"`
	Status     UserStatus `json:"status"`
	CreateTime time.Time  `json:"create_time"`
}

// Validate checks the user record holds recognized enum values.
func (u *User) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("user name is required")
	}
	switch u.Role {
	case RoleOperator, RoleNode, RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", u.Role)
	}
	switch u.Status {
	case UserStatusNormal, UserStatusRevoked:
	default:
		return fmt.Errorf("unknown user status %q", u.Status)
	}
	return nil
}

// Active reports whether the user may authenticate.
func (u *User) Active() bool {
	return u.Status == UserStatusNormal
}
