package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telegram-bridge/internal/config"
	"telegram-bridge/internal/secret"
	"telegram-bridge/internal/storage"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const sessionID = "protocol-client"

type DB struct {
	Client   *mongo.Client
	Database *mongo.Database
	Sessions *mongo.Collection
}

func Connect(ctx context.Context, cfg *config.Config) (*DB, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoDBURI))
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	database := client.Database(cfg.DatabaseName)
	return &DB{
		Client:   client,
		Database: database,
		Sessions: database.Collection("sessions"),
	}, nil
}

func (d *DB) Close(ctx context.Context) error {
	return d.Client.Disconnect(ctx)
}

type sessionDocument struct {
	ID        string    `bson:"_id"`
	Session   string    `bson:"session"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// sessionCollection is the part of *mongo.Collection the session store uses.
type sessionCollection interface {
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error)
}

// SessionStore keeps the encrypted protocol-client session in MongoDB.
type SessionStore struct {
	coll sessionCollection
	box  *secret.Box
}

func NewSessionStore(d *DB, box *secret.Box) *SessionStore {
	return &SessionStore{coll: d.Sessions, box: box}
}

// Load returns storage.ErrRecordNotFound when no session has been stored.
func (s *SessionStore) Load(ctx context.Context) (string, error) {
	var doc sessionDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) || (err == nil && doc.Session == "") {
		return "", storage.ErrRecordNotFound
	}
	if err != nil {
		return "", err
	}

	plain, err := s.box.Open(doc.Session)
	if err != nil {
		return "", fmt.Errorf("decrypt session: %w", err)
	}
	return plain, nil
}

// Save stores data unless the stored session already decrypts to it.
func (s *SessionStore) Save(ctx context.Context, data string) error {
	if current, err := s.Load(ctx); err == nil && current == data {
		return nil
	}

	sealed, err := s.box.Seal(data)
	if err != nil {
		return fmt.Errorf("encrypt session: %w", err)
	}

	opts := options.UpdateOne().SetUpsert(true)
	update := bson.M{"$set": bson.M{"session": sealed, "updated_at": time.Now().UTC()}}
	_, err = s.coll.UpdateOne(ctx, bson.M{"_id": sessionID}, update, opts)
	return err
}

func (s *SessionStore) Delete(ctx context.Context) error {
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": sessionID})
	return err
}
