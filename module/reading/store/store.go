package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collBooks      = "books"
	collSessions   = "sessions"
	collProfiles   = "profiles"
	collHighlights = "highlights"
	collComments   = "comments"
	collProgress   = "progress"
)

type Repo struct {
	DB *mongo.Database
}

func New(db *mongo.Database) *Repo {
	return &Repo{DB: db}
}

// EnsureIndexes 建唯一索引：进度的 (book, profile) 唯一键是持久层兜底，
// 配合 $max 更新保证重复 flush 幂等
func (r *Repo) EnsureIndexes(ctx context.Context) error {
	_, err := r.DB.Collection(collProgress).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "book_id", Value: 1}, {Key: "profile_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	for _, idx := range []struct {
		coll string
		key  string
	}{
		{collBooks, "book_id"},
		{collSessions, "session_id"},
		{collProfiles, "profile_id"},
		{collHighlights, "highlight_id"},
		{collComments, "comment_id"},
	} {
		_, err := r.DB.Collection(idx.coll).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: idx.key, Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
