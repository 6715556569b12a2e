package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Guide is a walkthrough video with the stream it plays
type Guide struct {
	ID            string    `gorm:"primaryKey"`
	Slug          string    `gorm:"not null;uniqueIndex"`
	Title         string    `gorm:"not null"`
	Provider      string    `gorm:"not null;default:''"` // cloudflare, bunny or empty to infer
	VideoURL      string    `gorm:"not null"`
	Language      string    `gorm:"not null;default:'en';index"`
	FallbackAsset string    `gorm:"default:''"` // local file played when every tier fails
	CreatedAt     time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// TableName overrides the table name
func (Guide) TableName() string {
	return "guides"
}

// BeforeCreate assigns a UUID to new guides
func (g *Guide) BeforeCreate(*gorm.DB) error {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	return nil
}

// Session records one playback run of a guide
type Session struct {
	ID              uint       `gorm:"primaryKey"`
	GuideID         string     `gorm:"not null;index"`
	ResolvedURL     string     `gorm:"not null"`
	Resolution      int        `gorm:"default:0"` // 0 for adaptive manifests
	PositionSeconds float64    `gorm:"not null;default:0"`
	Exhausted       bool       `gorm:"default:false"` // fell back to the local asset
	StartedAt       time.Time  `gorm:"index;default:CURRENT_TIMESTAMP"`
	EndedAt         *time.Time `gorm:""`
}

// TableName overrides the table name
func (Session) TableName() string {
	return "sessions"
}

// Migrate creates or updates the schema
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Guide{},
		&Session{},
	)
}
