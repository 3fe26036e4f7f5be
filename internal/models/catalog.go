package models

const (
	CategoryGames = "jogos"
	CategoryApps  = "aplicativos"
)

// App is a catalog listing.
type App struct {
	ID          string  `gorm:"primaryKey;size:64;not null" json:"id"`
	Name        string  `gorm:"size:128;not null" json:"name"`
	Description string  `gorm:"type:text" json:"description"`
	Version     string  `gorm:"size:32" json:"version"`
	Category    string  `gorm:"size:32;index;not null" json:"category"` // jogos, aplicativos
	IconURL     string  `gorm:"size:512" json:"icon_url"`
	ApkURL      string  `gorm:"size:512" json:"apk_url"`
	Downloads   int64   `gorm:"index;not null;default:0" json:"downloads"`
	Rating      float64 `json:"rating"`
	Size        string  `gorm:"size:32" json:"size"`
	Developer   string  `gorm:"size:128" json:"developer"`
	AddedOn     string  `gorm:"column:created_at;size:10" json:"created_at"` // YYYY-MM-DD
}

// AppInput is the create/edit form shared by both admin modes.
type AppInput struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Version     string   `json:"version" binding:"required"`
	Category    string   `json:"category" binding:"required"`
	IconURL     string   `json:"icon_url"`
	ApkURL      string   `json:"apk_url" binding:"required"`
	Size        string   `json:"size"`
	Developer   string   `json:"developer"`
	Rating      *float64 `json:"rating,omitempty"`
}
