package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"vote-ledger/models"
)

// ledgerDocumentID is the _id of the single document holding the ledger state.
const ledgerDocumentID = "ledger"

type ledgerDocument struct {
	ID     string                        `bson:"_id"`
	Chain  []models.Block                `bson:"chain"`
	Voters map[string]models.VoterRecord `bson:"voters"`
}

// MongoStore keeps the ledger state as one document in a MongoDB collection.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" || database == "" || collection == "" {
		return nil, errors.New("mongo store requires uri, database and collection")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (s *MongoStore) Load(ctx context.Context) (*models.LedgerState, error) {
	var doc ledgerDocument
	query := bson.D{{Key: "_id", Value: ledgerDocumentID}}
	err := s.collection.FindOne(ctx, query).Decode(&doc)
	if err != nil {
		// ErrNoDocuments means nothing was saved yet
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load ledger document: %w", err)
	}

	return &models.LedgerState{Chain: doc.Chain, Voters: doc.Voters}, nil
}

func (s *MongoStore) Save(ctx context.Context, state *models.LedgerState) error {
	doc := ledgerDocument{
		ID:     ledgerDocumentID,
		Chain:  state.Chain,
		Voters: state.Voters,
	}

	query := bson.D{{Key: "_id", Value: ledgerDocumentID}}
	_, err := s.collection.ReplaceOne(ctx, query, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save ledger document: %w", err)
	}
	return nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
