package model

import (
	"time"
)

// GcmApp is one registered client application. The package name is the key;
// the API key authorizes sends to the GCM connection server on behalf of
// this app.
type GcmApp struct {
	Package     string    `db:"package" json:"package"`
	DisplayName string    `db:"display_name" json:"display_name"`
	SenderID    string    `db:"sender_id" json:"sender_id"`
	APIKey      string    `db:"api_key" json:"-"` // credential, hidden from JSON
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CreateAppRequest is the admin request body for registering a new app.
type CreateAppRequest struct {
	Name    string `json:"name"`
	Package string `json:"package"`
	Sender  string `json:"sender"`
	Key     string `json:"key"`
}
