package database

import (
	"context"
	"errors"
	"time"

	"wayfarer/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var Client *mongo.Client
var DB *mongo.Database

var Users *mongo.Collection
var Posts *mongo.Collection
var Categories *mongo.Collection
var Destinations *mongo.Collection
var Guides *mongo.Collection
var Photos *mongo.Collection
var Comments *mongo.Collection
var Contacts *mongo.Collection
var Partners *mongo.Collection
var Newsletters *mongo.Collection
var EmailTemplates *mongo.Collection
var SiteSettings *mongo.Collection
var PushSubs *mongo.Collection

var ErrNotConnected = errors.New("database not connected")

func ConnectMongo(uri, dbName string) error {
	if uri == "" {
		logger.Log.Warn("MONGODB_URI not set, using default localhost")
		uri = "mongodb://127.0.0.1:27017"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return err
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return err
	}

	Client = client
	Use(client.Database(dbName))

	logger.Log.WithField("db", dbName).Info("Connected to MongoDB successfully")
	return nil
}

// Use binds the collection handles to db.
func Use(db *mongo.Database) {
	DB = db
	Users = db.Collection("users")
	Posts = db.Collection("posts")
	Categories = db.Collection("categories")
	Destinations = db.Collection("destinations")
	Guides = db.Collection("guides")
	Photos = db.Collection("photos")
	Comments = db.Collection("comments")
	Contacts = db.Collection("contacts")
	Partners = db.Collection("partners")
	Newsletters = db.Collection("newsletters")
	EmailTemplates = db.Collection("emailtemplates")
	SiteSettings = db.Collection("sitesettings")
	PushSubs = db.Collection("push_subscriptions")
}

func DisconnectMongo() error {
	if Client == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := Client.Disconnect(ctx); err != nil {
		return err
	}

	logger.Log.Info("Disconnected from MongoDB")
	return nil
}

// Ping reports whether the primary is reachable.
func Ping(ctx context.Context) error {
	if Client == nil {
		return ErrNotConnected
	}
	return Client.Ping(ctx, nil)
}

// EnsureIndexes creates the unique and query indexes every collection relies on.
func EnsureIndexes(ctx context.Context) error {
	unique := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
	}
	plain := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys}
	}

	indexes := map[*mongo.Collection][]mongo.IndexModel{
		Users: {
			unique(bson.D{{Key: "email", Value: 1}}),
			plain(bson.D{{Key: "role", Value: 1}}),
		},
		Posts: {
			unique(bson.D{{Key: "slug", Value: 1}}),
			plain(bson.D{{Key: "status", Value: 1}, {Key: "publishedAt", Value: -1}}),
			plain(bson.D{{Key: "author", Value: 1}}),
		},
		Categories:   {unique(bson.D{{Key: "slug", Value: 1}})},
		Destinations: {unique(bson.D{{Key: "slug", Value: 1}})},
		Guides:       {unique(bson.D{{Key: "slug", Value: 1}})},
		Photos:       {plain(bson.D{{Key: "destination", Value: 1}})},
		Comments: {
			plain(bson.D{
				{Key: "resourceType", Value: 1},
				{Key: "resourceId", Value: 1},
				{Key: "status", Value: 1},
				{Key: "createdAt", Value: -1},
			}),
			plain(bson.D{{Key: "parentId", Value: 1}}),
		},
		Contacts:       {plain(bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}})},
		Partners:       {plain(bson.D{{Key: "status", Value: 1}, {Key: "createdAt", Value: -1}})},
		Newsletters:    {unique(bson.D{{Key: "email", Value: 1}})},
		EmailTemplates: {unique(bson.D{{Key: "key", Value: 1}})},
		SiteSettings:   {unique(bson.D{{Key: "key", Value: 1}})},
		PushSubs:       {unique(bson.D{{Key: "endpoint", Value: 1}})},
	}

	for coll, models := range indexes {
		if coll == nil {
			return ErrNotConnected
		}
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return err
		}
	}
	return nil
}
