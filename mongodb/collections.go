package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	UsersCollection         = "users"
	GroupsCollection        = "user_groups"
	GroupMembersCollection  = "user_group_members"
	ClientsCollection       = "oidc_clients"
	RefreshTokensCollection = "refresh_tokens"
	OneTimeTokensCollection = "one_time_access_tokens"
	APIKeysCollection       = "api_keys"
	SignupTokensCollection  = "signup_tokens"
)

// EnsureIndexes creates the unique indexes the repositories rely on for
// conflict detection. It is idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := func(keys ...string) mongo.IndexModel {
		d := bson.D{}
		for _, k := range keys {
			d = append(d, bson.E{Key: k, Value: 1})
		}
		return mongo.IndexModel{Keys: d, Options: options.Index().SetUnique(true)}
	}

	indexes := map[string][]mongo.IndexModel{
		UsersCollection:        {unique("email"), unique("username")},
		GroupsCollection:       {unique("name")},
		GroupMembersCollection: {unique("group_id", "user_id"), {Keys: bson.D{{Key: "user_id", Value: 1}}}},
		RefreshTokensCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		APIKeysCollection:      {unique("key_hash")},
		SignupTokensCollection: {unique("token")},
	}

	for coll, models := range indexes {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}

	return nil
}
