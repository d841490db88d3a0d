package domain

import "time"

// RefreshToken is an opaque refresh token bound to a user and a client.
type RefreshToken struct {
	Token     string    `bson:"_id"        json:"token"`
	ClientID  string    `bson:"client_id"  json:"clientId"`
	UserID    string    `bson:"user_id"    json:"userId"`
	Expired   bool      `bson:"expired"    json:"expired"`
	ExpiresAt time.Time `bson:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Status reports the lifecycle state of the refresh token at now.
func (t *RefreshToken) Status(now time.Time) TokenStatus {
	if t.Expired || !now.Before(t.ExpiresAt) {
		return StatusExpired
	}
	return StatusValid
}

// OneTimeAccessToken is a login credential that can be used exactly once.
type OneTimeAccessToken struct {
	Token     string    `bson:"_id"        json:"token"`
	UserID    string    `bson:"user_id"    json:"userId"`
	Expired   bool      `bson:"expired"    json:"expired"`
	ExpiresAt time.Time `bson:"expires_at" json:"expiresAt"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// Status reports the lifecycle state of the one-time token at now.
func (t *OneTimeAccessToken) Status(now time.Time) TokenStatus {
	if t.Expired || !now.Before(t.ExpiresAt) {
		return StatusExpired
	}
	return StatusValid
}
