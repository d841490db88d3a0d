package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go.pilab.hu/idcore/domain"
)

type UserRepository struct {
	users   *mongo.Collection
	members *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{
		users:   db.Collection(UsersCollection),
		members: db.Collection(GroupMembersCollection),
	}
}

func (r *UserRepository) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := r.users.InsertOne(ctx, user)
	return writeErr("create user", err)
}

func (r *UserRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return nil, readErr("user "+id, err)
	}
	return &user, nil
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	if err := r.users.FindOne(ctx, bson.M{"username": username}).Decode(&user); err != nil {
		return nil, readErr("user "+username, err)
	}
	return &user, nil
}

func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := r.users.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return nil, readErr("user "+email, err)
	}
	return &user, nil
}

func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	res, err := r.users.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	if _, err := r.members.DeleteMany(ctx, bson.M{"user_id": id}); err != nil {
		return fmt.Errorf("delete user memberships: %w", err)
	}
	return nil
}

type GroupRepository struct {
	groups  *mongo.Collection
	members *mongo.Collection
	users   *mongo.Collection
}

func NewGroupRepository(db *mongo.Database) *GroupRepository {
	return &GroupRepository{
		groups:  db.Collection(GroupsCollection),
		members: db.Collection(GroupMembersCollection),
		users:   db.Collection(UsersCollection),
	}
}

func (r *GroupRepository) CreateGroup(ctx context.Context, group *domain.UserGroup) error {
	_, err := r.groups.InsertOne(ctx, group)
	return writeErr("create group", err)
}

func (r *GroupRepository) GetGroupByName(ctx context.Context, name string) (*domain.UserGroup, error) {
	var group domain.UserGroup
	if err := r.groups.FindOne(ctx, bson.M{"name": name}).Decode(&group); err != nil {
		return nil, readErr("group "+name, err)
	}
	return &group, nil
}

type groupMember struct {
	GroupID string `bson:"group_id"`
	UserID  string `bson:"user_id"`
}

func (r *GroupRepository) AddGroupMember(ctx context.Context, groupID, userID string) error {
	if err := r.groups.FindOne(ctx, bson.M{"_id": groupID}).Err(); err != nil {
		return readErr("group "+groupID, err)
	}
	if err := r.users.FindOne(ctx, bson.M{"_id": userID}).Err(); err != nil {
		return readErr("user "+userID, err)
	}

	m := groupMember{GroupID: groupID, UserID: userID}
	_, err := r.members.UpdateOne(ctx, m, bson.M{"$setOnInsert": m}, options.Update().SetUpsert(true))
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (r *GroupRepository) ListUserGroups(ctx context.Context, userID string) ([]*domain.UserGroup, error) {
	cursor, err := r.members.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	var memberships []groupMember
	if err := cursor.All(ctx, &memberships); err != nil {
		return nil, fmt.Errorf("decode memberships: %w", err)
	}
	if len(memberships) == 0 {
		return nil, nil
	}

	ids := make(bson.A, 0, len(memberships))
	for _, m := range memberships {
		ids = append(ids, m.GroupID)
	}

	cursor, err = r.groups.Find(ctx, bson.M{"_id": bson.M{"$in": ids}},
		options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	var groups []*domain.UserGroup
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, fmt.Errorf("decode groups: %w", err)
	}
	return groups, nil
}

type ClientRepository struct {
	coll *mongo.Collection
}

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{coll: db.Collection(ClientsCollection)}
}

func (r *ClientRepository) CreateClient(ctx context.Context, client *domain.OIDCClient) error {
	_, err := r.coll.InsertOne(ctx, client)
	return writeErr("create client", err)
}

func (r *ClientRepository) GetClient(ctx context.Context, id string) (*domain.OIDCClient, error) {
	var client domain.OIDCClient
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&client); err != nil {
		return nil, readErr("client "+id, err)
	}
	return &client, nil
}
