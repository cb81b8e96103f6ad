package org

import (
	"context"
	"errors"

	"go-approval/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrGroupNotFound = errors.New("group not found")
)

type OrgRepository interface {
	SaveUser(ctx context.Context, user *User) error
	FindUser(ctx context.Context, id string) (*User, error)
	FindUsersByRoles(ctx context.Context, roles []string) ([]User, error)
	ListUsers(ctx context.Context) ([]User, error)
	SaveGroup(ctx context.Context, group *Group) error
	FindGroup(ctx context.Context, id string) (*Group, error)
	ListGroups(ctx context.Context) ([]Group, error)
}

type OrgRepositoryImpl struct {
	users  *mongo.Collection
	groups *mongo.Collection
}

func NewOrgRepository(mongodb *database.MongodbDB) OrgRepository {
	return &OrgRepositoryImpl{
		users:  mongodb.DB.Collection("users"),
		groups: mongodb.DB.Collection("groups"),
	}
}

func (r *OrgRepositoryImpl) SaveUser(ctx context.Context, user *User) error {
	_, err := r.users.ReplaceOne(ctx, bson.M{"_id": user.ID}, user, options.Replace().SetUpsert(true))
	return err
}

func (r *OrgRepositoryImpl) FindUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *OrgRepositoryImpl) FindUsersByRoles(ctx context.Context, roles []string) ([]User, error) {
	cursor, err := r.users.Find(ctx, bson.M{"roles": bson.M{"$in": roles}})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *OrgRepositoryImpl) ListUsers(ctx context.Context) ([]User, error) {
	cursor, err := r.users.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var users []User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (r *OrgRepositoryImpl) SaveGroup(ctx context.Context, group *Group) error {
	_, err := r.groups.ReplaceOne(ctx, bson.M{"_id": group.ID}, group, options.Replace().SetUpsert(true))
	return err
}

func (r *OrgRepositoryImpl) FindGroup(ctx context.Context, id string) (*Group, error) {
	var group Group
	err := r.groups.FindOne(ctx, bson.M{"_id": id}).Decode(&group)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

func (r *OrgRepositoryImpl) ListGroups(ctx context.Context) ([]Group, error) {
	cursor, err := r.groups.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var groups []Group
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, err
	}
	return groups, nil
}
