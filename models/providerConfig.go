package models

import "time"

// LandlordProviderConfig is written by the landlord settings flow. Secret
// columns hold vault ciphertext. There is deliberately no unique index on
// (landlord_id, provider, is_active): older rows violate it.
type LandlordProviderConfig struct {
	ID             string              `gorm:"primary_key;size:36" json:"id"`
	LandlordID     string              `gorm:"size:36;not null;index:idx_provider_config_landlord" json:"landlord_id"`
	Provider       ProviderFamily      `gorm:"size:20;not null;index:idx_provider_config_landlord" json:"provider"`
	Kind           ProviderKind        `gorm:"size:20;not null" json:"kind"`
	Shortcode      string              `gorm:"size:20;index" json:"shortcode"`
	TillNumber     string              `gorm:"size:20;index" json:"till_number"`
	ConsumerKey    string              `gorm:"type:text" json:"-"`
	ConsumerSecret string              `gorm:"type:text" json:"-"`
	Passkey        string              `gorm:"type:text" json:"-"`
	ClientID       string              `gorm:"type:text" json:"-"`
	ClientSecret   string              `gorm:"type:text" json:"-"`
	IsActive       bool                `gorm:"not null;default:true;index" json:"is_active"`
	Environment    ProviderEnvironment `gorm:"size:20;not null;default:sandbox" json:"environment"`
	CreatedAt      time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

type LandlordPaymentPreference struct {
	LandlordID string         `gorm:"primary_key;size:36" json:"landlord_id"`
	Mode       PreferenceMode `gorm:"size:20;not null;default:platform_default" json:"mode"`
	CreatedAt  time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}
