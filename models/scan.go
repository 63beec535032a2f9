package models

import "time"

// Scan is one processed label photograph and the pipeline output derived from
// it. Belongs to the profile that submitted it.
type Scan struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	ProfileID   uint    `gorm:"index;not null;uniqueIndex:idx_profile_scan_file"`
	Profile     Profile `gorm:"foreignKey:ProfileID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	FileName    string  `gorm:"size:255;not null;uniqueIndex:idx_profile_scan_file"`
	StorePath   string  `gorm:"column:store_path;size:512"` // local path of the saved upload
	ContentType string  `gorm:"size:128"`

	OCRText         string `gorm:"column:ocr_text;type:text"`
	IngredientsText string `gorm:"type:text"`
	Allergens       string `gorm:"size:1024"` // comma-joined, sorted
	HealthScore     int    `gorm:"not null;default:0"`
	TokenCount      int    `gorm:"not null;default:0"`

	// Mark scan as failed (keep the record so it can be retried or reviewed)
	Failed       bool   `gorm:"default:false;index"`
	FailedReason string `gorm:"size:255"`
}
