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

func (r *Repo) InsertHighlight(ctx context.Context, h *model.Highlight) error {
	if h.CreateTime.IsZero() {
		h.CreateTime = time.Now()
	}
	_, err := r.DB.Collection(collHighlights).InsertOne(ctx, h)
	return err
}

func (r *Repo) GetHighlight(ctx context.Context, highlightID string) (*model.Highlight, error) {
	var h model.Highlight
	err := r.DB.Collection(collHighlights).FindOne(ctx, bson.M{"highlight_id": highlightID}).Decode(&h)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WithDetail("highlight " + highlightID)
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHighlightsByBook join 回放用：按创建时间升序
func (r *Repo) ListHighlightsByBook(ctx context.Context, bookID string) ([]model.Highlight, error) {
	cur, err := r.DB.Collection(collHighlights).Find(ctx,
		bson.M{"book_id": bookID},
		options.Find().SetSort(bson.D{{Key: "create_time", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	var out []model.Highlight
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CountHighlights REST 路径的配额检查用（ws 路径用 registry 内存计数）
func (r *Repo) CountHighlights(ctx context.Context, bookID, profileID string) (int64, error) {
	return r.DB.Collection(collHighlights).CountDocuments(ctx,
		bson.M{"book_id": bookID, "profile_id": profileID},
	)
}
