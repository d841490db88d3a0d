package domain

import "time"

// SignupToken is a limited-use, time-boxed invitation gating registration.
//
// UsageCount only ever grows and never passes UsageLimit; repositories enforce
// this with a compare-and-increment.
type SignupToken struct {
	ID         string    `bson:"_id"         json:"id"`
	Token      string    `bson:"token"       json:"token"`
	ExpiresAt  time.Time `bson:"expires_at"  json:"expiresAt"`
	UsageLimit int       `bson:"usage_limit" json:"usageLimit"`
	UsageCount int       `bson:"usage_count" json:"usageCount"`
	CreatedAt  time.Time `bson:"created_at"  json:"createdAt"`
}

// Status reports the lifecycle state at now. Time expiry is checked before
// usage so an expired token that is also used up reports Expired.
func (t *SignupToken) Status(now time.Time) TokenStatus {
	if !now.Before(t.ExpiresAt) {
		return StatusExpired
	}
	if t.UsageCount >= t.UsageLimit {
		return StatusExhausted
	}
	return StatusValid
}

// State maps the token onto the signup state machine.
func (t *SignupToken) State(now time.Time) SignupState {
	switch t.Status(now) {
	case StatusExpired:
		return SignupStateExpired
	case StatusExhausted:
		return SignupStateExhausted
	}
	if t.UsageCount > 0 {
		return SignupStatePartiallyUsed
	}
	return SignupStateActive
}

// Remaining returns how many more signups the token allows.
func (t *SignupToken) Remaining() int {
	if n := t.UsageLimit - t.UsageCount; n > 0 {
		return n
	}
	return 0
}

// SignupState is the position of a signup token in its state machine.
type SignupState string

const (
	SignupStateActive        SignupState = "ACTIVE"
	SignupStatePartiallyUsed SignupState = "PARTIALLY_USED"
	SignupStateExhausted     SignupState = "EXHAUSTED"
	SignupStateExpired       SignupState = "EXPIRED"
)

// Terminal reports whether no further transitions are possible.
func (s SignupState) Terminal() bool {
	return s == SignupStateExhausted || s == SignupStateExpired
}
