package store

import (
	"context"
	"time"

	"CoReader/module/reading/model"
	"CoReader/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func (r *Repo) InsertSession(ctx context.Context, s *model.Session) error {
	now := time.Now()
	if s.CreateTime.IsZero() {
		s.CreateTime = now
	}
	s.UpdateTime = now
	_, err := r.DB.Collection(collSessions).InsertOne(ctx, s)
	return err
}

func (r *Repo) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	var s model.Session
	err := r.DB.Collection(collSessions).FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WithDetail("session " + sessionID)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *Repo) GetSessionByBook(ctx context.Context, bookID string) (*model.Session, error) {
	var s model.Session
	err := r.DB.Collection(collSessions).
		FindOne(ctx, bson.M{"book_id": bookID, "active": true}).Decode(&s)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WithDetail("session for book " + bookID)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetParticipantCount 落库的是内存 registry 的权威值，不在数据库侧做加减
func (r *Repo) SetParticipantCount(ctx context.Context, sessionID string, n int) error {
	_, err := r.DB.Collection(collSessions).UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{
			"participant_count": int32(n),
			"last_activity":     time.Now(),
			"update_time":       time.Now(),
		}},
	)
	return err
}

func (r *Repo) TouchSession(ctx context.Context, sessionID string) error {
	_, err := r.DB.Collection(collSessions).UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{"last_activity": time.Now()}},
	)
	return err
}

// MarkIdleSessionsInactive 后台过期：长时间没动静的 session 批量置 inactive
func (r *Repo) MarkIdleSessionsInactive(ctx context.Context, idle time.Duration) (int64, error) {
	cutoff := time.Now().Add(-idle)
	res, err := r.DB.Collection(collSessions).UpdateMany(ctx,
		bson.M{"active": true, "last_activity": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"active": false, "update_time": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// MarkInactive 过期下线：只置标记，历史注解/进度保留
func (r *Repo) MarkInactive(ctx context.Context, sessionID string) error {
	_, err := r.DB.Collection(collSessions).UpdateOne(ctx,
		bson.M{"session_id": sessionID},
		bson.M{"$set": bson.M{"active": false, "update_time": time.Now()}},
	)
	return err
}
