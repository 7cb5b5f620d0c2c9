package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection is where snapshots are upserted, one record per app.
const Collection = "app_data"

// ConnectMongo opens a connection and returns the client. Caller should call client.Disconnect(ctx).
func ConnectMongo(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return client, nil
}

// Mongo upserts the latest snapshot keyed by app name.
type Mongo struct {
	col     *mongo.Collection
	appName string
}

func NewMongo(col *mongo.Collection, appName string) *Mongo {
	return &Mongo{col: col, appName: appName}
}

func (m *Mongo) Name() string { return "mongo" }

// Record is the stored form: the document fields plus bookkeeping.
func Record(appName string, data []byte, at time.Time) (bson.M, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return bson.M{"app": appName, "document": fields, "exportedAt": at}, nil
}

func (m *Mongo) Export(ctx context.Context, data []byte) error {
	rec, err := Record(m.appName, data, time.Now().UTC())
	if err != nil {
		return err
	}
	opts := options.Update().SetUpsert(true)
	if _, err := m.col.UpdateOne(ctx, bson.M{"_id": m.appName}, bson.M{"$set": rec}, opts); err != nil {
		return fmt.Errorf("mongo upsert %s: %w", m.appName, err)
	}
	return nil
}
