package handlers

import "github.com/abrezinsky/racetrial/internal/models"

// IDResponse is returned after creating a resource with a numeric ID
type IDResponse struct {
	ID int64 `json:"id"`
}

// SettingsResponse is the response for settings
type SettingsResponse struct {
	models.Settings
	BaseURL string `json:"base_url"`
}

// JoinURLResponse carries the live board link for an event
type JoinURLResponse struct {
	EventID string `json:"event_id"`
	URL     string `json:"url"`
}
