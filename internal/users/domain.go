package users

import (
	"time"

	"github.com/inventra/inventra/internal/rbac"
	"github.com/inventra/inventra/internal/shared"
)

// User represents a user account for management.
type User struct {
	ID        string    `json:"userId"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	Role      rbac.Role `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Credentials pairs a user with the stored password hash.
type Credentials struct {
	User
	PasswordHash string
}

// CreateInput describes a new account. Username and password are generated.
type CreateInput struct {
	FullName string `json:"fullName" validate:"required,max=120"`
	Email    string `json:"email" validate:"omitempty,email"`
	Role     string `json:"role" validate:"required,oneof=ADMIN OWNER SALES STORE"`
}

// UpdateInput patches an account; nil fields are left untouched.
type UpdateInput struct {
	FullName *string `json:"fullName" validate:"omitempty,min=1,max=120"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Role     *string `json:"role" validate:"omitempty,oneof=ADMIN OWNER SALES STORE"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

// DeleteInput lists the accounts to remove.
type DeleteInput struct {
	UserIDs []string `json:"userIds" validate:"required,min=1,dive,uuid"`
}

// ListFilter narrows the account listing.
type ListFilter struct {
	shared.PageRequest
	Role rbac.Role
}

// Created is returned once after account creation with the clear-text password.
type Created struct {
	User     User   `json:"user"`
	Password string `json:"password"`
}
