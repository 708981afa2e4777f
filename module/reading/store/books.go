package store

import (
	"context"
	"time"

	"CoReader/module/reading/model"
	"CoReader/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func (r *Repo) InsertBook(ctx context.Context, b *model.Book) error {
	if b.CreateTime.IsZero() {
		b.CreateTime = time.Now()
	}
	_, err := r.DB.Collection(collBooks).InsertOne(ctx, b)
	return err
}

func (r *Repo) GetBook(ctx context.Context, bookID string) (*model.Book, error) {
	var b model.Book
	err := r.DB.Collection(collBooks).FindOne(ctx, bson.M{"book_id": bookID}).Decode(&b)
	if err == mongo.ErrNoDocuments {
		return nil, errs.ErrNotFound.WithDetail("book " + bookID)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) ListBooks(ctx context.Context) ([]model.Book, error) {
	cur, err := r.DB.Collection(collBooks).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	var out []model.Book
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
