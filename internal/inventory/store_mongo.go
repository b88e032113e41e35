package inventory

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const mongoCollection = "documents"

// mongoDocument stores the encoded JSON verbatim so that field order and
// number formatting survive a round trip.
type mongoDocument struct {
	ID   string `bson:"_id"`
	Body string `bson:"body"`
}

type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	name   string
	log    *zap.Logger
}

func NewMongoStore(ctx context.Context, uri, database string, log *zap.Logger) (*MongoStore, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var client *mongo.Client
	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		c, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
		if err != nil {
			return err
		}
		client = c
		return c.Ping(ctx, nil)
	})
	if err != nil {
		if client != nil {
			_ = client.Disconnect(context.Background())
		}
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(mongoCollection),
		name:   defaultDocumentName,
		log:    log,
	}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.client.Ping(ctx, nil)
	})
}

func (s *MongoStore) Load(ctx context.Context) (Document, error) {
	var row mongoDocument

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.coll.FindOne(ctx, bson.M{"_id": s.name}).Decode(&row)
	})
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{Products: Collection{}}, nil
	}
	if err != nil {
		return Document{}, fmt.Errorf("load document: %w", err)
	}

	doc, ok := decodeDocument([]byte(row.Body))
	if !ok {
		s.log.Warn("malformed document, using empty collection", zap.String("name", s.name))
	}
	return doc, nil
}

func (s *MongoStore) Save(ctx context.Context, doc Document) error {
	raw, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	err = withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.coll.ReplaceOne(ctx,
			bson.M{"_id": s.name},
			mongoDocument{ID: s.name, Body: string(raw)},
			options.Replace().SetUpsert(true),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}
