package store

import (
	"context"
	"time"

	"CoReader/module/reading/model"
	"CoReader/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *Repo) InsertComment(ctx context.Context, c *model.Comment) error {
	now := time.Now()
	if c.CreateTime.IsZero() {
		c.CreateTime = now
	}
	c.UpdateTime = now
	_, err := r.DB.Collection(collComments).InsertOne(ctx, c)
	return err
}

func (r *Repo) GetComment(ctx context.Context, commentID string) (*model.Comment, error) {
	var c model.Comment
	err := r.DB.Collection(collComments).FindOne(ctx, bson.M{"comment_id": commentID}).Decode(&c)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WithDetail("comment " + commentID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCommentsByHighlight 整棵线程按时间升序返回，树由前端拼
func (r *Repo) ListCommentsByHighlight(ctx context.Context, highlightID string) ([]model.Comment, error) {
	cur, err := r.DB.Collection(collComments).Find(ctx,
		bson.M{"highlight_id": highlightID},
		options.Find().SetSort(bson.D{{Key: "create_time", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var out []model.Comment
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountTopComments 只数顶层评论（配额按"每高亮评论数"算顶层）
func (r *Repo) CountTopComments(ctx context.Context, highlightID string) (int64, error) {
	return r.DB.Collection(collComments).CountDocuments(ctx,
		bson.M{"highlight_id": highlightID, "parent_id": bson.M{"$in": bson.A{nil, ""}}},
	)
}

// CountReplies 某条评论下的直接回复数
func (r *Repo) CountReplies(ctx context.Context, parentID string) (int64, error) {
	return r.DB.Collection(collComments).CountDocuments(ctx,
		bson.M{"parent_id": parentID},
	)
}
