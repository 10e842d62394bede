package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
)

type tokenDoc struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	TokenHash string        `bson:"tokenHash"`
	UserID    bson.ObjectID `bson:"userId"`
	ExpiresAt time.Time     `bson:"expiresAt"`
	IsRevoked bool          `bson:"isRevoked"`
	CreatedAt time.Time     `bson:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt"`
}

func (d tokenDoc) toModel() model.RefreshToken {
	return model.RefreshToken{
		ID:        d.ID.Hex(),
		TokenHash: d.TokenHash,
		UserID:    d.UserID.Hex(),
		ExpiresAt: d.ExpiresAt,
		IsRevoked: d.IsRevoked,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// TokenRepo is the refresh token ledger collection.
type TokenRepo struct{ coll *mongo.Collection }

func NewTokenRepo(db *mongo.Database) *TokenRepo {
	return &TokenRepo{coll: db.Collection(tokensCollection)}
}

func (r *TokenRepo) Store(ctx context.Context, t *model.RefreshToken) error {
	uid, err := objectID(t.UserID)
	if err != nil {
		return err
	}
	ts := now()
	doc := tokenDoc{
		ID:        bson.NewObjectID(),
		TokenHash: t.TokenHash,
		UserID:    uid,
		ExpiresAt: t.ExpiresAt.UTC(),
		IsRevoked: t.IsRevoked,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateToken
		}
		return err
	}
	t.ID = doc.ID.Hex()
	t.CreatedAt, t.UpdatedAt = ts, ts
	return nil
}

func (r *TokenRepo) GetByHash(ctx context.Context, tokenHash string) (model.RefreshToken, error) {
	var doc tokenDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "tokenHash", Value: tokenHash}}).Decode(&doc); err != nil {
		return model.RefreshToken{}, notFound(err)
	}
	return doc.toModel(), nil
}

func (r *TokenRepo) IsValidToken(ctx context.Context, tokenHash string) (bool, error) {
	t, err := r.GetByHash(ctx, tokenHash)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return t.Usable(time.Now().UTC()), nil
}

func (r *TokenRepo) RevokeToken(ctx context.Context, tokenHash string) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "tokenHash", Value: tokenHash}, {Key: "isRevoked", Value: false}},
		revokeUpdate())
	return err
}

func (r *TokenRepo) ConsumeToken(ctx context.Context, tokenHash string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.D{{Key: "tokenHash", Value: tokenHash}, {Key: "isRevoked", Value: false}},
		revokeUpdate())
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *TokenRepo) RevokeAllUserTokens(ctx context.Context, userID string) error {
	uid, err := objectID(userID)
	if err != nil {
		return err
	}
	_, err = r.coll.UpdateMany(ctx,
		bson.D{{Key: "userId", Value: uid}, {Key: "isRevoked", Value: false}},
		revokeUpdate())
	return err
}

func (r *TokenRepo) CleanupExpiredTokens(ctx context.Context, at time.Time) (int64, error) {
	res, err := r.coll.DeleteMany(ctx, bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "expiresAt", Value: bson.D{{Key: "$lt", Value: at.UTC()}}}},
		bson.D{{Key: "isRevoked", Value: true}},
	}}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func revokeUpdate() bson.D {
	return bson.D{{Key: "$set", Value: bson.D{
		{Key: "isRevoked", Value: true},
		{Key: "updatedAt", Value: now()},
	}}}
}
