package entity

import "github.com/google/uuid"

// User is the recipient view of a profile, supplied by the user store.
type User struct {
	ID           uuid.UUID
	Email        string
	DisplayName  string
	Locale       string
	DeviceTokens []string
}

// HasDevice reports whether at least one push token is registered.
func (u *User) HasDevice() bool {
	for _, t := range u.DeviceTokens {
		if t != "" {
			return true
		}
	}
	return false
}
