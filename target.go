package mongoferry

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Target is the document-store side of a migration: a wire-encodability
// check plus the two bulk commit shapes the executor uses. Both bulk
// operations are unordered — one document's server-side failure must not
// block its siblings.
type Target interface {
	// ValidateDocument reports whether doc can be serialized into the
	// target wire format. Called before any commit is attempted.
	ValidateDocument(doc Document) error

	// ReplaceMany commits docs as replace-or-insert keyed by the "_id"
	// field of each document.
	ReplaceMany(ctx context.Context, collection string, docs []Document) error

	// InsertMany commits docs as plain inserts.
	InsertMany(ctx context.Context, collection string, docs []Document) error
}

// MongoTarget writes converted documents to a MongoDB database.
type MongoTarget struct {
	db *mongo.Database
}

// NewMongoTarget wraps an already-connected database handle.
func NewMongoTarget(db *mongo.Database) *MongoTarget {
	return &MongoTarget{db: db}
}

// ConnectMongoTarget dials uri, verifies the server is reachable, and
// returns the target plus a disconnect function.
func ConnectMongoTarget(ctx context.Context, uri, dbName string) (*MongoTarget, func(context.Context) error, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return NewMongoTarget(client.Database(dbName)), client.Disconnect, nil
}

// ValidateDocument round-trips doc through the BSON encoder.
func (t *MongoTarget) ValidateDocument(doc Document) error {
	if _, err := bson.Marshal(doc); err != nil {
		return fmt.Errorf("encode bson: %w", err)
	}
	return nil
}

func (t *MongoTarget) ReplaceMany(ctx context.Context, collection string, docs []Document) error {
	models := make([]mongo.WriteModel, len(docs))
	for i, d := range docs {
		models[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": d["_id"]}).
			SetReplacement(d).
			SetUpsert(true)
	}
	_, err := t.db.Collection(collection).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false))
	return err
}

func (t *MongoTarget) InsertMany(ctx context.Context, collection string, docs []Document) error {
	payload := make([]any, len(docs))
	for i, d := range docs {
		payload[i] = d
	}
	_, err := t.db.Collection(collection).InsertMany(ctx, payload, options.InsertMany().SetOrdered(false))
	return err
}
