package domain

import "time"

// APIKey is a long-lived credential for the admin API. Only the sha256 hash
// of the key is persisted.
type APIKey struct {
	ID         string     `bson:"_id"                    json:"id"`
	KeyHash    string     `bson:"key_hash"               json:"-"`
	Name       string     `bson:"name"                   json:"name"      validate:"required,min=3,max=50"`
	ExpiresAt  *time.Time `bson:"expires_at,omitempty"   json:"expiresAt,omitempty"`
	LastUsedAt *time.Time `bson:"last_used_at,omitempty" json:"lastUsedAt,omitempty"`
	Revoked    bool       `bson:"revoked"                json:"revoked"`
	CreatedAt  time.Time  `bson:"created_at"             json:"createdAt"`
}

// Status reports the lifecycle state of the key at now. Keys without an
// expiry never expire.
func (k *APIKey) Status(now time.Time) TokenStatus {
	if k.Revoked {
		return StatusRevoked
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return StatusExpired
	}
	return StatusValid
}
