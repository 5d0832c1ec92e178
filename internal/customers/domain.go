package customers

import (
	"time"

	"github.com/inventra/inventra/internal/shared"
)

// Customer is a company that places sale orders.
type Customer struct {
	ID                 string    `json:"customerId"`
	CompanyName        string    `json:"companyName"`
	Address            string    `json:"address"`
	PhoneNumber        string    `json:"phoneNumber"`
	RegistrationNumber string    `json:"registrationNumber"`
	PostCode           string    `json:"postCode"`
	Email              string    `json:"email"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// CreateInput describes a new customer.
type CreateInput struct {
	CompanyName        string `json:"companyName" validate:"required,max=200"`
	Address            string `json:"address" validate:"max=500"`
	PhoneNumber        string `json:"phoneNumber" validate:"max=40"`
	RegistrationNumber string `json:"registrationNumber" validate:"max=64"`
	PostCode           string `json:"postCode" validate:"max=16"`
	Email              string `json:"email" validate:"omitempty,email"`
}

// UpdateInput patches a customer; nil fields are left untouched.
type UpdateInput struct {
	CompanyName        *string `json:"companyName" validate:"omitempty,min=1,max=200"`
	Address            *string `json:"address" validate:"omitempty,max=500"`
	PhoneNumber        *string `json:"phoneNumber" validate:"omitempty,max=40"`
	RegistrationNumber *string `json:"registrationNumber" validate:"omitempty,max=64"`
	PostCode           *string `json:"postCode" validate:"omitempty,max=16"`
	Email              *string `json:"email" validate:"omitempty,email"`
}

// DeleteInput lists customers to remove.
type DeleteInput struct {
	CustomerIDs []string `json:"customerIds" validate:"required,min=1,dive,uuid"`
}

// ListFilter narrows the customer listing.
type ListFilter struct {
	shared.PageRequest
}
