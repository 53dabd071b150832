package model

import (
	"time"
)

// Device is one registered device instance of a client app. The GCM
// registration id is the key: it is issued by Google per app install and is
// the delivery address for pushes.
//
// Devices are never deleted. When the gateway reports a registration id as
// dead (NotRegistered) or replaced by a canonical id, the row is disabled
// instead, so history survives and a re-register of the same id can simply
// flip it back on.
type Device struct {
	RegistrationID string    `db:"registration_id" json:"registration_id"`
	Package        string    `db:"package" json:"package"`
	Version        int       `db:"version" json:"version"`
	UUID           string    `db:"uuid" json:"uuid"`
	Enabled        bool      `db:"enabled" json:"enabled"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// RegisterRequest is the client request body for device registration.
// Timestamp stays a string: it feeds the X-Hash integrity check verbatim.
type RegisterRequest struct {
	UUID           string `json:"uuid"`
	Timestamp      string `json:"timestamp"`
	RegistrationID string `json:"registration_id"`
	Package        string `json:"package"`
	Version        int    `json:"version"`
}
