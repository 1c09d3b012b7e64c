package achievement

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig contains connection settings for the progress repository.
type MongoConfig struct {
	URI        string // e.g. mongodb://localhost:27017
	Database   string // e.g. shard_realms
	Collection string // e.g. player_progress
}

// MongoProgressRepo implements ProgressRepo on MongoDB.
// One document per (user_id, achievement_id), enforced by a unique index.
type MongoProgressRepo struct {
	client     *mongo.Client
	collection *mongo.Collection
	ctxTimeout time.Duration
}

// NewMongoProgressRepo establishes connection and returns repository.
func NewMongoProgressRepo(cfg MongoConfig) (*MongoProgressRepo, error) {
	if cfg.URI == "" {
		cfg.URI = "mongodb://localhost:27017"
	}
	if cfg.Database == "" {
		cfg.Database = "shard_realms"
	}
	if cfg.Collection == "" {
		cfg.Collection = "player_progress"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	repo := &MongoProgressRepo{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		ctxTimeout: 5 * time.Second,
	}
	if err := repo.ensureIndexes(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (m *MongoProgressRepo) ensureIndexes() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.ctxTimeout)
	defer cancel()
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "achievement_id", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("user_achievement_unique"),
	})
	return err
}

func key(userID, achievementID uint64) bson.M {
	return bson.M{"user_id": int64(userID), "achievement_id": int64(achievementID)}
}

// Get returns progress or a zero row if the user never progressed.
func (m *MongoProgressRepo) Get(ctx context.Context, userID, achievementID uint64) (Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	var p Progress
	err := m.collection.FindOne(ctx, key(userID, achievementID)).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return Progress{UserID: userID, AchievementID: achievementID}, nil
	}
	return p, err
}

// List returns all progress rows of the user.
func (m *MongoProgressRepo) List(ctx context.Context, userID uint64) ([]Progress, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	cur, err := m.collection.Find(ctx, bson.M{"user_id": int64(userID)},
		options.Find().SetSort(bson.D{{Key: "achievement_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []Progress
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Increment bumps current by one while it is below target (upsert on first progress).
func (m *MongoProgressRepo) Increment(ctx context.Context, userID, achievementID uint64, target int) (Progress, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	filter := key(userID, achievementID)
	filter["current"] = bson.M{"$lt": target}
	res := m.collection.FindOneAndUpdate(ctx, filter,
		bson.M{"$inc": bson.M{"current": 1}, "$setOnInsert": bson.M{"claimed": false}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	)

	var p Progress
	err := res.Decode(&p)
	if mongo.IsDuplicateKeyError(err) {
		// Документ существует, но счётчик уже на цели
		p, err = m.Get(ctx, userID, achievementID)
		return p, false, err
	}
	if err != nil {
		return Progress{}, false, err
	}
	return p, true, nil
}

// MarkClaimed sets claimed=true only on a completed, unclaimed row.
func (m *MongoProgressRepo) MarkClaimed(ctx context.Context, userID, achievementID uint64, target int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()

	filter := key(userID, achievementID)
	filter["claimed"] = false
	filter["current"] = bson.M{"$gte": target}
	res, err := m.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"claimed": true}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

// UnmarkClaimed reverts a claim whose payout failed.
func (m *MongoProgressRepo) UnmarkClaimed(ctx context.Context, userID, achievementID uint64) error {
	ctx, cancel := context.WithTimeout(ctx, m.ctxTimeout)
	defer cancel()
	_, err := m.collection.UpdateOne(ctx, key(userID, achievementID), bson.M{"$set": bson.M{"claimed": false}})
	return err
}

// Close terminates connection.
func (m *MongoProgressRepo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
