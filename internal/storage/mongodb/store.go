// Package mongodb implements storage.KeyRingStore using MongoDB
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sirosfoundation/go-ebics/internal/storage"
)

// Store implements storage.KeyRingStore using MongoDB
type Store struct {
	client   *mongo.Client
	keyrings *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI        string
	Database   string
	Collection string
}

// keyRingDocument is the stored form of a keyring
type keyRingDocument struct {
	ID        string            `bson:"_id"`
	Owner     storage.KeyRingID `bson:"owner"`
	Data      []byte            `bson:"data"`
	UpdatedAt time.Time         `bson:"updated_at"`
}

// NewStore connects to MongoDB and prepares the keyring collection
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "ebics"
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "keyrings"
	}

	s := &Store{
		client:   client,
		keyrings: client.Database(database).Collection(collection),
	}

	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.keyrings.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "owner.host_id", Value: 1},
				{Key: "owner.partner_id", Value: 1},
				{Key: "owner.user_id", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	})
	return err
}

// Load returns the stored keyring document
func (s *Store) Load(ctx context.Context, id storage.KeyRingID) ([]byte, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	var doc keyRingDocument
	err := s.keyrings.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading keyring: %w", err)
	}
	return doc.Data, nil
}

// Save creates or replaces the keyring document
func (s *Store) Save(ctx context.Context, id storage.KeyRingID, data []byte) error {
	if err := id.Validate(); err != nil {
		return err
	}
	doc := keyRingDocument{
		ID:        id.String(),
		Owner:     id,
		Data:      data,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.keyrings.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("saving keyring: %w", err)
	}
	return nil
}

// Delete removes the keyring document
func (s *Store) Delete(ctx context.Context, id storage.KeyRingID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if _, err := s.keyrings.DeleteOne(ctx, bson.M{"_id": id.String()}); err != nil {
		return fmt.Errorf("deleting keyring: %w", err)
	}
	return nil
}

// Close closes the MongoDB connection
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
