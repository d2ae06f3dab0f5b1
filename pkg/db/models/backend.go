package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mwantia/gostow/pkg/storage"
)

// BackendConfig is a named, typed configuration row for a non-local
// backend. Unique by (backend_type, name); at most one default per
// type; is_active gates usability.
type BackendConfig struct {
	ID          uint   `gorm:"primaryKey"`
	BackendType string `gorm:"type:text;not null;uniqueIndex:idx_backend_type_name"`
	Name        string `gorm:"type:text;not null;uniqueIndex:idx_backend_type_name"`
	IsDefault   bool   `gorm:"not null;default:false"`
	// IsActive deliberately carries no column default: gorm omits
	// zero-valued fields with defaults on insert, which would flip an
	// explicit false back to true.
	IsActive bool `gorm:"not null"`

	// Connection parameters. Which fields apply depends on the type;
	// unused ones stay empty.
	Endpoint     string `gorm:"type:text"`
	Region       string `gorm:"type:text"`
	Bucket       string `gorm:"type:text"` // bucket or container
	Prefix       string `gorm:"type:text"`
	UseSSL       bool   `gorm:"not null"`
	UsePathStyle bool   `gorm:"not null;default:false"`
	// PublicBaseURL serves permanent URLs for public objects (CDN).
	PublicBaseURL string `gorm:"type:text"`

	// Credentials. Access/secret for S3-family, account key for Azure,
	// service-account JSON for GCS.
	AccessKey       string `gorm:"type:text"`
	SecretKey       string `gorm:"type:text"`
	ProjectID       string `gorm:"type:text"`
	CredentialsJSON string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

// Sanitized returns the config with every credential-bearing field
// masked. This is the only shape handed to callers outside the
// registry.
func (c *BackendConfig) Sanitized() map[string]string {
	creds := ""
	if c.CredentialsJSON != "" {
		creds = "****"
	}
	return map[string]string{
		"backend_type":    c.BackendType,
		"name":            c.Name,
		"endpoint":        c.Endpoint,
		"region":          c.Region,
		"bucket":          c.Bucket,
		"prefix":          c.Prefix,
		"public_base_url": c.PublicBaseURL,
		"access_key":      storage.MaskSecret(c.AccessKey),
		"secret_key":      storage.MaskSecret(c.SecretKey),
		"credentials":     creds,
	}
}
