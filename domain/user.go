package domain

import "time"

// User represents a user in the system.
type User struct {
	ID        string    `bson:"_id"        json:"id"`
	FirstName string    `bson:"first_name" json:"firstname"  validate:"required,max=50"`
	LastName  string    `bson:"last_name"  json:"lastname"   validate:"max=50"`
	Email     string    `bson:"email"      json:"email"      validate:"required,email"`
	Username  string    `bson:"username"   json:"username"   validate:"required,min=2,max=50,username"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}

// UserGroup is a named set of users. Membership is many-to-many.
type UserGroup struct {
	ID           string    `bson:"_id"           json:"id"`
	FriendlyName string    `bson:"friendly_name" json:"friendlyName" validate:"required,max=50"`
	Name         string    `bson:"name"          json:"name"         validate:"required,min=2,max=255"`
	CreatedAt    time.Time `bson:"created_at"    json:"createdAt"`
}
