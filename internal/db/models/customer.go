package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Customer represents the requesting side of a booking. The engine only
// needs an owner to reference; account management lives elsewhere.
type Customer struct {
	gorm.Model
	Name  string `json:"name" gorm:"not null"`
	Email string `json:"email" gorm:"not null;uniqueIndex"`
}

// Validate ensures that the customer data is valid
func (c *Customer) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("customer name cannot be empty")
	}
	if c.Email == "" {
		return fmt.Errorf("customer email cannot be empty")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new customer
func (c *Customer) BeforeCreate(_ *gorm.DB) error {
	return c.Validate()
}
