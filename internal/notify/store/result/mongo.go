package result

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"bloomence/internal/notify/models"
	"bloomence/pkg/platform/sentinel"
)

const collectionName = "results"

// Mongo reads the results collection owned by the questionnaire service.
type Mongo struct {
	coll *mongo.Collection
}

func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{coll: db.Collection(collectionName)}
}

func (s *Mongo) LatestByType(ctx context.Context, uid, questionnaireType string) (*models.Result, error) {
	var r models.Result
	err := s.coll.FindOne(ctx,
		bson.M{"firebaseUid": uid, "questionnaireType": questionnaireType},
		options.FindOne().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	).Decode(&r)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find latest %s result: %w", questionnaireType, err)
	}
	return &r, nil
}
