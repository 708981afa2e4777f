package store

import (
	"context"
	"time"

	"CoReader/module/reading/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UpsertProgressMax 落库"最远进度"。$max 让重复 flush 幂等：
// 即便 aggregator 重试同一个值，percent 也不会回退。
// location 随 flush 一起覆盖——aggregator 只在 percent 前进时才 flush，
// 所以 location 不会指到比 percent 更早的位置。
func (r *Repo) UpsertProgressMax(ctx context.Context, p *model.ProgressRecord) error {
	if p.UpdateTime.IsZero() {
		p.UpdateTime = time.Now()
	}
	_, err := r.DB.Collection(collProgress).UpdateOne(ctx,
		bson.M{"book_id": p.BookID, "profile_id": p.ProfileID},
		bson.M{
			// upsert 时 book_id/profile_id 由查询等值条件自动写入
			"$max": bson.M{"percent": p.Percent},
			"$set": bson.M{"location": p.Location, "update_time": p.UpdateTime},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *Repo) GetProgress(ctx context.Context, bookID, profileID string) (*model.ProgressRecord, error) {
	var p model.ProgressRecord
	err := r.DB.Collection(collProgress).
		FindOne(ctx, bson.M{"book_id": bookID, "profile_id": profileID}).Decode(&p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProgressByBook 初始页加载：一本书下所有读者的最远进度
func (r *Repo) ListProgressByBook(ctx context.Context, bookID string) ([]model.ProgressRecord, error) {
	cur, err := r.DB.Collection(collProgress).Find(ctx, bson.M{"book_id": bookID})
	if err != nil {
		return nil, err
	}
	var out []model.ProgressRecord
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
