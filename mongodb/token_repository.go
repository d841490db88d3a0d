package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.pilab.hu/idcore/domain"
)

type RefreshTokenRepository struct {
	coll *mongo.Collection
}

func NewRefreshTokenRepository(db *mongo.Database) *RefreshTokenRepository {
	return &RefreshTokenRepository{coll: db.Collection(RefreshTokensCollection)}
}

func (r *RefreshTokenRepository) CreateRefreshToken(ctx context.Context, token *domain.RefreshToken) error {
	_, err := r.coll.InsertOne(ctx, token)
	return writeErr("create refresh token", err)
}

func (r *RefreshTokenRepository) GetRefreshToken(ctx context.Context, token string) (*domain.RefreshToken, error) {
	var rt domain.RefreshToken
	if err := r.coll.FindOne(ctx, bson.M{"_id": token}).Decode(&rt); err != nil {
		return nil, readErr("refresh token", err)
	}
	return &rt, nil
}

func (r *RefreshTokenRepository) ExpireRefreshToken(ctx context.Context, token string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": token, "expired": false},
		bson.M{"$set": bson.M{"expired": true}},
	)
	if err != nil {
		return fmt.Errorf("expire refresh token: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	if _, err := r.GetRefreshToken(ctx, token); err != nil {
		return err
	}
	return fmt.Errorf("refresh token: %w", domain.ErrExpired)
}

func (r *RefreshTokenRepository) ExpireUserRefreshTokens(ctx context.Context, userID string) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"user_id": userID, "expired": false},
		bson.M{"$set": bson.M{"expired": true}},
	)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Error expiring refresh tokens")
		return 0, fmt.Errorf("expire user refresh tokens: %w", err)
	}
	return res.ModifiedCount, nil
}

type OneTimeAccessTokenRepository struct {
	coll *mongo.Collection
}

func NewOneTimeAccessTokenRepository(db *mongo.Database) *OneTimeAccessTokenRepository {
	return &OneTimeAccessTokenRepository{coll: db.Collection(OneTimeTokensCollection)}
}

func (r *OneTimeAccessTokenRepository) CreateOneTimeAccessToken(ctx context.Context, token *domain.OneTimeAccessToken) error {
	_, err := r.coll.InsertOne(ctx, token)
	return writeErr("create one-time access token", err)
}

func (r *OneTimeAccessTokenRepository) GetOneTimeAccessToken(ctx context.Context, token string) (*domain.OneTimeAccessToken, error) {
	var ot domain.OneTimeAccessToken
	if err := r.coll.FindOne(ctx, bson.M{"_id": token}).Decode(&ot); err != nil {
		return nil, readErr("one-time access token", err)
	}
	return &ot, nil
}

func (r *OneTimeAccessTokenRepository) ConsumeOneTimeAccessToken(ctx context.Context, token string, now time.Time) (*domain.OneTimeAccessToken, error) {
	var ot domain.OneTimeAccessToken
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": token, "expired": false, "expires_at": bson.M{"$gt": now}},
		bson.M{"$set": bson.M{"expired": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&ot)
	if err == nil {
		return &ot, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("consume one-time access token: %w", err)
	}

	current, err := r.GetOneTimeAccessToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := current.Status(now).Err(); err != nil {
		return nil, fmt.Errorf("one-time access token: %w", err)
	}
	// Consumed by someone else between the two reads.
	return nil, fmt.Errorf("one-time access token: %w", domain.ErrExpired)
}

type APIKeyRepository struct {
	coll *mongo.Collection
}

func NewAPIKeyRepository(db *mongo.Database) *APIKeyRepository {
	return &APIKeyRepository{coll: db.Collection(APIKeysCollection)}
}

func (r *APIKeyRepository) CreateAPIKey(ctx context.Context, key *domain.APIKey) error {
	_, err := r.coll.InsertOne(ctx, key)
	return writeErr("create api key", err)
}

func (r *APIKeyRepository) GetAPIKey(ctx context.Context, id string) (*domain.APIKey, error) {
	var key domain.APIKey
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&key); err != nil {
		return nil, readErr("api key "+id, err)
	}
	return &key, nil
}

func (r *APIKeyRepository) GetAPIKeyByHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	var key domain.APIKey
	if err := r.coll.FindOne(ctx, bson.M{"key_hash": keyHash}).Decode(&key); err != nil {
		return nil, readErr("api key", err)
	}
	return &key, nil
}

func (r *APIKeyRepository) RevokeAPIKey(ctx context.Context, id string) (*domain.APIKey, error) {
	var key domain.APIKey
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"revoked": true}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&key)
	if err != nil {
		return nil, readErr("api key "+id, err)
	}
	return &key, nil
}

func (r *APIKeyRepository) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"last_used_at": at}})
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("api key %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
