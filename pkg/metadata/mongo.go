package metadata

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kmlstore/pkg/apperr"
	"kmlstore/pkg/config"
	"kmlstore/pkg/log"
	"kmlstore/pkg/models"
)

// MongoStore keeps document records in a MongoDB collection with a unique
// secondary index on admin_id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects, pings and ensures the admin_id index exists.
func NewMongoStore(ctx context.Context, cfg config.MetadataConfig) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	collection := client.Database(cfg.Database).Collection(cfg.Collection)
	_, err = collection.Indexes().CreateOne(connectCtx, mongo.IndexModel{
		Keys:    bson.D{{Key: "admin_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("mongo ensure admin_id index: %w", err)
	}

	return &MongoStore{client: client, collection: collection}, nil
}

func (s *MongoStore) Create(ctx context.Context, doc *models.Document) error {
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return translateMongo(err, doc.ID, "create")
	}
	return nil
}

func (s *MongoStore) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		return nil, translateMongo(err, id, "get")
	}
	return &doc, nil
}

func (s *MongoStore) GetByAdminID(ctx context.Context, adminID string) (*models.Document, error) {
	cursor, err := s.collection.Find(ctx, bson.M{"admin_id": adminID})
	if err != nil {
		return nil, translateMongo(err, "", "get_by_admin_id")
	}

	var docs []models.Document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, translateMongo(err, "", "get_by_admin_id")
	}

	if len(docs) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "Could not find document")
	}
	if len(docs) > 1 {
		// The index is unique, more than one match means the data is in
		// an unexpected state. Answer with the first record anyway.
		log.Error().Int("matches", len(docs)).Msg("Multiple records share one admin_id")
	}
	return &docs[0], nil
}

func (s *MongoStore) Update(ctx context.Context, id string, upd models.DocumentUpdate) (*models.Document, error) {
	after := options.After
	var doc models.Document
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"updated":        upd.Updated,
			"length":         upd.Length,
			"empty":          upd.Empty,
			"author_version": upd.AuthorVersion,
		}},
		options.FindOneAndUpdate().SetReturnDocument(after),
	).Decode(&doc)
	if err != nil {
		return nil, translateMongo(err, id, "update")
	}
	return &doc, nil
}

func (s *MongoStore) Delete(ctx context.Context, id string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return translateMongo(err, id, "delete")
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// translateMongo maps driver errors to the taxonomy: no document found
// becomes NotFound, network and timeout failures become
// UpstreamUnavailable, the rest is re-raised.
func translateMongo(err error, id, op string) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		log.Error().Str("id", id).Str("op", op).Msg("Could not find the kml id in the database")
		return apperr.Wrap(apperr.KindNotFound,
			fmt.Sprintf("Could not find %s within the database.", id), err)
	case mongo.IsNetworkError(err) || mongo.IsTimeout(err):
		log.Error().Err(err).Str("id", id).Str("op", op).Msg("Failed to connect to metadata store")
		return apperr.Wrap(apperr.KindUpstreamUnavailable, "Metadata store not reachable", err)
	default:
		log.Error().Err(err).Str("id", id).Str("op", op).Msg("Metadata store error")
		return fmt.Errorf("metadata %s %s: %w", op, id, err)
	}
}
