package org

import (
	"slices"
	"time"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusInactive  UserStatus = "inactive"
	UserStatusSuspended UserStatus = "suspended"
)

// RoleAdmin marks administrator accounts.
const RoleAdmin = "admin"

// User is an account in the organization directory.
type User struct {
	ID        string     `bson:"_id" json:"id"`
	Username  string     `bson:"username" json:"username"`
	Name      string     `bson:"name" json:"name"`
	Email     string     `bson:"email" json:"email"`
	Status    UserStatus `bson:"status" json:"status"`
	Roles     []string   `bson:"roles" json:"roles"`
	Groups    []string   `bson:"groups,omitempty" json:"groups,omitempty"`         // Group IDs, primary group first
	ReportsTo string     `bson:"reports_to,omitempty" json:"reports_to,omitempty"` // Manager ID
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

func (u *User) IsActive() bool {
	return u != nil && (u.Status == UserStatusActive || u.Status == "")
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

func (u *User) IsAdmin() bool {
	return u.HasRole(RoleAdmin)
}

// PrimaryGroup returns the first group the user belongs to.
func (u *User) PrimaryGroup() string {
	if len(u.Groups) == 0 {
		return ""
	}
	return u.Groups[0]
}

// Group is a node of the group hierarchy. The root group (the company) has
// no parent.
type Group struct {
	ID          string    `bson:"_id" json:"id"`
	Name        string    `bson:"name" json:"name"`
	Description string    `bson:"description,omitempty" json:"description,omitempty"`
	ParentID    string    `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	LeaderID    string    `bson:"leader_id,omitempty" json:"leader_id,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}

func (g *Group) IsRoot() bool {
	return g.ParentID == ""
}
