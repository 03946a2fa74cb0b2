package models

import (
	"fmt"

	"gorm.io/gorm"
)

// Provider represents an independent service provider. Providers are never
// deleted, only deactivated.
type Provider struct {
	gorm.Model
	Name  string `json:"name" gorm:"not null"`
	Email string `json:"email" gorm:"not null;uniqueIndex"`

	Verified bool `json:"verified" gorm:"not null;default:false;index"`
	Active   bool `json:"active" gorm:"not null;default:true;index"`

	// Performance factors fed back into scoring. Rating is 0..5, the
	// rates and quality score are 0..1.
	Rating          float64 `json:"rating" gorm:"not null;default:0"`
	RatingCount     int     `json:"rating_count" gorm:"not null;default:0"`
	AcceptanceRate  float64 `json:"acceptance_rate" gorm:"not null;default:0"`
	PunctualityRate float64 `json:"punctuality_rate" gorm:"not null;default:1"`
	QualityScore    float64 `json:"quality_score" gorm:"not null;default:0.5"`

	// Lifecycle counters. Rates are recomputed from these after each
	// state-changing event.
	OffersReceived int `json:"offers_received" gorm:"not null;default:0"`
	OffersAccepted int `json:"offers_accepted" gorm:"not null;default:0"`
	JobsCompleted  int `json:"jobs_completed" gorm:"not null;default:0"`
	OnTimeArrivals int `json:"on_time_arrivals" gorm:"not null;default:0"`
	LateArrivals   int `json:"late_arrivals" gorm:"not null;default:0"`

	ServiceRadiusKm float64 `json:"service_radius_km" gorm:"not null;default:10"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
}

// Eligible reports whether the provider may receive offers at all.
func (p *Provider) Eligible() bool {
	return p.Verified && p.Active
}

// Validate ensures that the provider data is valid
func (p *Provider) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if p.Email == "" {
		return fmt.Errorf("provider email cannot be empty")
	}
	if p.ServiceRadiusKm <= 0 {
		return fmt.Errorf("provider service radius must be positive")
	}
	return nil
}

// BeforeCreate is a GORM hook that runs before creating a new provider
func (p *Provider) BeforeCreate(_ *gorm.DB) error {
	return p.Validate()
}
