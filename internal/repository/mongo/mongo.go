// Package mongo implements the repository contracts on MongoDB with the
// official v2 driver. Documents use ObjectIDs; the domain sees their hex
// form. The refresh token collection carries a TTL index on expiresAt so
// expired entries are also purged passively by the server.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iliyamo/task-manager/internal/repository"
)

const (
	usersCollection  = "users"
	tokensCollection = "refreshtokens"
	tasksCollection  = "tasks"
)

// NewStore returns a repository.Store over db. Close disconnects client.
func NewStore(client *mongo.Client, db *mongo.Database) repository.Store {
	return repository.Store{
		Users:  NewUserRepo(db),
		Tokens: NewTokenRepo(db),
		Tasks:  NewTaskRepo(db),
		Close:  client.Disconnect,
	}
}

// EnsureIndexes creates the unique, lookup and TTL indexes. It is safe to
// call on every start.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
		tokensCollection: {
			{Keys: bson.D{{Key: "tokenHash", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "userId", Value: 1}}},
			{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		},
		tasksCollection: {
			{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "assignedTo", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		},
	}
	for coll, models := range specs {
		if _, err := db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", coll, err)
		}
	}
	return nil
}

// objectID parses a hex id; malformed ids map to repository.ErrInvalidID.
func objectID(hex string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.NilObjectID, fmt.Errorf("%w: %s", repository.ErrInvalidID, hex)
	}
	return id, nil
}

// optionalID parses hex or returns nil for an empty string, so that unset
// references are stored as null.
func optionalID(hex string) (*bson.ObjectID, error) {
	if hex == "" {
		return nil, nil
	}
	id, err := objectID(hex)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func hexOf(id *bson.ObjectID) string {
	if id == nil {
		return ""
	}
	return id.Hex()
}

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	return err
}

// now is truncated to BSON datetime precision.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
