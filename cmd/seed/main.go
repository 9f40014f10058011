package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pulsefeed/pulsefeed-backend/internal/config"
	"github.com/pulsefeed/pulsefeed-backend/internal/db"
	"github.com/pulsefeed/pulsefeed-backend/internal/db/interfaces"

	"go.uber.org/zap"
)

// seed provisions users into the configured storage backend. The API
// only resolves existing users; this tool is how identities get into a
// fresh environment.

var (
	flags = flag.NewFlagSet("seed", flag.ExitOnError)
	users = flags.String("users", "", "comma-separated id:name pairs, e.g. u_1:alice,u_2:bob")
	demo  = flags.Bool("demo", false, "seed a demo data set (users, posts, comments)")
)

func main() {
	flags.Parse(os.Args[1:])

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := zap.NewNop().Sugar()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Open(ctx, db.Config{
		Backend:     cfg.Storage.Backend,
		RedisAddr:   cfg.Storage.RedisAddr,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer database.Close(ctx)

	if *users == "" && !*demo {
		log.Fatal("Usage: seed -users id:name[,id:name...] [-demo]")
	}

	if *users != "" {
		seedUsers(ctx, database, parseUsers(*users))
	}
	if *demo {
		seedUsers(ctx, database, demoUsers())
		seedDemoContent(ctx, database)
	}
}

func parseUsers(pairs string) []interfaces.Document {
	var docs []interfaces.Document
	for _, pair := range strings.Split(pairs, ",") {
		id, name, found := strings.Cut(strings.TrimSpace(pair), ":")
		if id == "" {
			continue
		}
		if !found {
			name = id
		}
		docs = append(docs, userDocument(id, name))
	}
	return docs
}

func demoUsers() []interfaces.Document {
	return []interfaces.Document{
		userDocument("u_alice", "alice"),
		userDocument("u_bob", "bob"),
		userDocument("u_carol", "carol"),
	}
}

func userDocument(id, name string) interfaces.Document {
	return interfaces.Document{
		"_id":            id,
		"user_name":      name,
		"post_ids":       []int64{},
		"liked_post_ids": []int64{},
	}
}

func seedUsers(ctx context.Context, database interfaces.Database, docs []interfaces.Document) {
	coll := database.Collection(db.CollectionUsers)
	for _, doc := range docs {
		err := coll.InsertOne(ctx, doc)
		switch {
		case err == nil:
			fmt.Printf("Created user %v (%v)\n", doc["_id"], doc["user_name"])
		case errors.Is(err, interfaces.ErrDuplicateKey):
			fmt.Printf("User %v already exists, skipping\n", doc["_id"])
		default:
			log.Fatalf("Failed to create user %v: %v", doc["_id"], err)
		}
	}
}

func seedDemoContent(ctx context.Context, database interfaces.Database) {
	now := time.Now().UTC()
	posts := []interfaces.Document{
		{
			"_id":           int64(1),
			"user_id":       "u_alice",
			"content":       "Welcome to the feed. Say hello below.",
			"post_type":     "text",
			"category":      "general",
			"tags":          []string{"welcome"},
			"media_files":   []interface{}{},
			"created_at":    now.Add(-2 * time.Hour).Format(time.RFC3339Nano),
			"updated_at":    now.Add(-2 * time.Hour).Format(time.RFC3339Nano),
			"status":        "published",
			"like_count":    1,
			"liked_by":      []string{"u_bob"},
			"comment_count": 1,
			"comment_ids":   []int64{1},
			"view_count":    0,
		},
		{
			"_id":           int64(2),
			"user_id":       "u_bob",
			"content":       "What is everyone reading this week?",
			"post_type":     "text",
			"category":      "books",
			"tags":          []string{"books", "discussion"},
			"media_files":   []interface{}{},
			"created_at":    now.Add(-time.Hour).Format(time.RFC3339Nano),
			"updated_at":    now.Add(-time.Hour).Format(time.RFC3339Nano),
			"status":        "published",
			"like_count":    0,
			"liked_by":      []string{},
			"comment_count": 0,
			"comment_ids":   []int64{},
			"view_count":    0,
		},
	}
	comments := []interfaces.Document{
		{
			"_id":        int64(1),
			"post_id":    int64(1),
			"user_id":    "u_carol",
			"content":    "hello!",
			"created_at": now.Add(-90 * time.Minute).Format(time.RFC3339Nano),
			"status":     "published",
			"like_count": 0,
			"liked_by":   []string{},
		},
	}

	insertAll(ctx, database.Collection(db.CollectionPosts), posts, "post")
	insertAll(ctx, database.Collection(db.CollectionComments), comments, "comment")
}

func insertAll(ctx context.Context, coll interfaces.Collection, docs []interfaces.Document, kind string) {
	for _, doc := range docs {
		err := coll.InsertOne(ctx, doc)
		switch {
		case err == nil:
			fmt.Printf("Created %s %v\n", kind, doc["_id"])
		case errors.Is(err, interfaces.ErrDuplicateKey):
			fmt.Printf("%s %v already exists, skipping\n", kind, doc["_id"])
		default:
			log.Fatalf("Failed to create %s %v: %v", kind, doc["_id"], err)
		}
	}
}
