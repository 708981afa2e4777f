package store

import (
	"context"
	"time"

	"CoReader/module/reading/model"
	"CoReader/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func (r *Repo) InsertProfile(ctx context.Context, p *model.Profile) error {
	now := time.Now()
	if p.CreateTime.IsZero() {
		p.CreateTime = now
	}
	if p.LastUsed.IsZero() {
		p.LastUsed = now
	}
	_, err := r.DB.Collection(collProfiles).InsertOne(ctx, p)
	return err
}

func (r *Repo) GetProfile(ctx context.Context, profileID string) (*model.Profile, error) {
	var p model.Profile
	err := r.DB.Collection(collProfiles).FindOne(ctx, bson.M{"profile_id": profileID}).Decode(&p)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WithDetail("profile " + profileID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// TouchProfile 重连复用档案时刷新 last_used
func (r *Repo) TouchProfile(ctx context.Context, profileID string) error {
	_, err := r.DB.Collection(collProfiles).UpdateOne(ctx,
		bson.M{"profile_id": profileID},
		bson.M{"$set": bson.M{"last_used": time.Now()}},
	)
	return err
}

// PurgeExpiredProfiles 后台清理：删除超过 TTL 未使用的档案，返回删除数
func (r *Repo) PurgeExpiredProfiles(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	res, err := r.DB.Collection(collProfiles).DeleteMany(ctx,
		bson.M{"last_used": bson.M{"$lt": cutoff}},
	)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
