package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.pilab.hu/idcore/domain"
)

type SignupTokenRepository struct {
	coll *mongo.Collection
}

func NewSignupTokenRepository(db *mongo.Database) *SignupTokenRepository {
	return &SignupTokenRepository{coll: db.Collection(SignupTokensCollection)}
}

func (r *SignupTokenRepository) CreateSignupToken(ctx context.Context, token *domain.SignupToken) error {
	_, err := r.coll.InsertOne(ctx, token)
	return writeErr("create signup token", err)
}

func (r *SignupTokenRepository) GetSignupToken(ctx context.Context, token string) (*domain.SignupToken, error) {
	var st domain.SignupToken
	if err := r.coll.FindOne(ctx, bson.M{"token": token}).Decode(&st); err != nil {
		return nil, readErr("signup token", err)
	}
	return &st, nil
}

func (r *SignupTokenRepository) ListSignupTokens(ctx context.Context) ([]*domain.SignupToken, error) {
	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("list signup tokens: %w", err)
	}
	tokens := []*domain.SignupToken{}
	if err := cursor.All(ctx, &tokens); err != nil {
		return nil, fmt.Errorf("decode signup tokens: %w", err)
	}
	return tokens, nil
}

func (r *SignupTokenRepository) DeleteSignupToken(ctx context.Context, id string) error {
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete signup token: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("signup token %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// IncrementSignupTokenUsage relies on the server evaluating the filter and
// the $inc as one document-level atomic operation.
func (r *SignupTokenRepository) IncrementSignupTokenUsage(ctx context.Context, token string, now time.Time) (*domain.SignupToken, error) {
	filter := bson.M{
		"token":      token,
		"expires_at": bson.M{"$gt": now},
		"$expr":      bson.M{"$lt": bson.A{"$usage_count", "$usage_limit"}},
	}

	var st domain.SignupToken
	err := r.coll.FindOneAndUpdate(ctx, filter,
		bson.M{"$inc": bson.M{"usage_count": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&st)
	if err == nil {
		return &st, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("increment signup token usage: %w", err)
	}

	current, err := r.GetSignupToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		current = nil
	} else if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("signup token: %w", domain.SignupRejection(current, now))
}
