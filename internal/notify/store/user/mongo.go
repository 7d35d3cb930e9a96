package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"bloomence/internal/notify/models"
	"bloomence/pkg/platform/sentinel"
)

const collectionName = "users"

// Mongo is the production user store. Every conditional claim is a filtered
// update so the document predicate is the compare-and-swap; application code
// never reads-then-writes a sentinel.
type Mongo struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{coll: db.Collection(collectionName)}
}

// EnsureIndexes creates the unique uid index. Call once at boot.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "firebaseUid", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensure user indexes: %w", err)
	}
	return nil
}

func (s *Mongo) Create(ctx context.Context, u models.User) error {
	_, err := s.coll.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return sentinel.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Mongo) FindByUID(ctx context.Context, uid string) (*models.User, error) {
	var u models.User
	err := s.coll.FindOne(ctx, bson.M{"firebaseUid": uid}).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &u, nil
}

func (s *Mongo) UpdateProfile(ctx context.Context, uid, email, name string) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"firebaseUid": uid},
		bson.M{"$set": bson.M{"email": email, "name": name}},
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if res.MatchedCount == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// SetEmailPrefs replaces the user's per-category email preferences.
func (s *Mongo) SetEmailPrefs(ctx context.Context, uid string, prefs map[string]bool) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"firebaseUid": uid},
		bson.M{"$set": bson.M{"emailPrefs": prefs}},
	)
	if err != nil {
		return fmt.Errorf("set email prefs: %w", err)
	}
	if res.MatchedCount == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Mongo) TouchLastSeen(ctx context.Context, uid string, now time.Time) (*models.User, error) {
	var u models.User
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{"firebaseUid": uid},
		bson.M{"$set": bson.M{"lastSeen": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("touch last seen: %w", err)
	}
	return &u, nil
}

func (s *Mongo) ClaimFirstLoginEmail(ctx context.Context, uid string, now time.Time) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"firebaseUid": uid, "firstLoginEmailedAt": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"firstLoginEmailedAt": now}},
	)
	if err != nil {
		return false, fmt.Errorf("claim first-login email: %w", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	// Distinguish "already claimed" from "no such user".
	if err := s.exists(ctx, uid); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Mongo) ClaimScoreEmailWindow(ctx context.Context, uid string, now time.Time, window time.Duration) (bool, *time.Time, error) {
	cutoff := now.Add(-window)
	var before models.User
	err := s.coll.FindOneAndUpdate(ctx,
		bson.M{
			"firebaseUid": uid,
			"$or": []bson.M{
				{"lastScoreEmailAt": bson.M{"$exists": false}},
				{"lastScoreEmailAt": bson.M{"$lte": cutoff}},
			},
		},
		bson.M{"$set": bson.M{"lastScoreEmailAt": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// Filter missed: either throttled or the user is gone.
		if err := s.exists(ctx, uid); err != nil {
			return false, nil, err
		}
		return false, nil, nil
	}
	if err != nil {
		return false, nil, fmt.Errorf("claim score-email window: %w", err)
	}
	return true, before.LastScoreEmailAt, nil
}

func (s *Mongo) ReleaseScoreEmailWindow(ctx context.Context, uid string, prev *time.Time, claimedAt time.Time) error {
	update := bson.M{"$unset": bson.M{"lastScoreEmailAt": ""}}
	if prev != nil {
		update = bson.M{"$set": bson.M{"lastScoreEmailAt": *prev}}
	}
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"firebaseUid": uid, "lastScoreEmailAt": claimedAt},
		update,
	)
	if err != nil {
		return fmt.Errorf("release score-email window: %w", err)
	}
	return nil
}

func (s *Mongo) ClaimDormantReminder(ctx context.Context, uid string, now time.Time, window time.Duration) (bool, error) {
	cutoff := now.Add(-window)
	res, err := s.coll.UpdateOne(ctx,
		bson.M{
			"firebaseUid": uid,
			"$or": []bson.M{
				{"lastReminderAt": bson.M{"$exists": false}},
				{"lastReminderAt": bson.M{"$lte": cutoff}},
			},
		},
		bson.M{"$set": bson.M{"lastReminderAt": now}},
	)
	if err != nil {
		return false, fmt.Errorf("claim dormant reminder: %w", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	if err := s.exists(ctx, uid); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Mongo) ListDormant(ctx context.Context, olderThan time.Time, limit int) ([]models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastSeen", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{"lastSeen": bson.M{"$lt": olderThan}}, opts)
	if err != nil {
		return nil, fmt.Errorf("list dormant users: %w", err)
	}
	defer cur.Close(ctx)

	var out []models.User
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode dormant users: %w", err)
	}
	return out, nil
}

func (s *Mongo) exists(ctx context.Context, uid string) error {
	n, err := s.coll.CountDocuments(ctx, bson.M{"firebaseUid": uid}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check user exists: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
