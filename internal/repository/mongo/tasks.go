package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iliyamo/task-manager/internal/model"
	"github.com/iliyamo/task-manager/internal/repository"
)

type taskDoc struct {
	ID          bson.ObjectID  `bson:"_id,omitempty"`
	Title       string         `bson:"title"`
	Description string         `bson:"description"`
	Status      string         `bson:"status"`
	CreatedBy   bson.ObjectID  `bson:"createdBy"`
	AssignedTo  *bson.ObjectID `bson:"assignedTo"`
	UpdatedBy   *bson.ObjectID `bson:"updatedBy"`
	CreatedAt   time.Time      `bson:"createdAt"`
	UpdatedAt   time.Time      `bson:"updatedAt"`
}

func (d taskDoc) toModel() (model.Task, error) {
	status, err := model.ParseTaskStatus(d.Status)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s: %w", d.ID.Hex(), err)
	}
	return model.Task{
		ID:          d.ID.Hex(),
		Title:       d.Title,
		Description: d.Description,
		Status:      status,
		CreatedBy:   d.CreatedBy.Hex(),
		AssignedTo:  hexOf(d.AssignedTo),
		UpdatedBy:   hexOf(d.UpdatedBy),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

// TaskRepo persists tasks in the tasks collection.
type TaskRepo struct{ coll *mongo.Collection }

func NewTaskRepo(db *mongo.Database) *TaskRepo {
	return &TaskRepo{coll: db.Collection(tasksCollection)}
}

func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	doc, err := toTaskDoc(*t)
	if err != nil {
		return err
	}
	doc.ID = bson.NewObjectID()
	doc.CreatedAt = now()
	doc.UpdatedAt = doc.CreatedAt
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return err
	}
	t.ID = doc.ID.Hex()
	t.CreatedAt, t.UpdatedAt = doc.CreatedAt, doc.UpdatedAt
	return nil
}

func (r *TaskRepo) GetByID(ctx context.Context, id string) (model.Task, error) {
	oid, err := objectID(id)
	if err != nil {
		return model.Task{}, err
	}
	var doc taskDoc
	if err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Decode(&doc); err != nil {
		return model.Task{}, notFound(err)
	}
	return doc.toModel()
}

func (r *TaskRepo) Update(ctx context.Context, t *model.Task) error {
	oid, err := objectID(t.ID)
	if err != nil {
		return err
	}
	doc, err := toTaskDoc(*t)
	if err != nil {
		return err
	}
	t.UpdatedAt = now()
	res, err := r.coll.UpdateOne(ctx, bson.D{{Key: "_id", Value: oid}}, bson.D{{Key: "$set", Value: bson.D{
		{Key: "title", Value: doc.Title},
		{Key: "description", Value: doc.Description},
		{Key: "status", Value: doc.Status},
		{Key: "assignedTo", Value: doc.AssignedTo},
		{Key: "updatedBy", Value: doc.UpdatedBy},
		{Key: "updatedAt", Value: t.UpdatedAt},
	}}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TaskRepo) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *TaskRepo) List(ctx context.Context, q repository.TaskQuery) (repository.TaskPage, error) {
	q = q.Normalize(q.Limit)
	uid, err := objectID(q.UserID)
	if err != nil {
		return repository.TaskPage{}, err
	}

	// A cursor is honoured only when it names an existing task; a stale or
	// malformed cursor restarts from the first page.
	var cursor *bson.ObjectID
	if q.Cursor != "" {
		if oid, err := bson.ObjectIDFromHex(q.Cursor); err == nil {
			err := r.coll.FindOne(ctx, bson.D{{Key: "_id", Value: oid}}).Err()
			switch {
			case err == nil:
				cursor = &oid
			case !errors.Is(err, mongo.ErrNoDocuments):
				return repository.TaskPage{}, err
			}
		}
	}

	opts := options.Find().
		SetSort(taskSort(q)).
		SetLimit(int64(q.Limit + 1))
	cur, err := r.coll.Find(ctx, taskFilter(q, uid, cursor), opts)
	if err != nil {
		return repository.TaskPage{}, err
	}
	var docs []taskDoc
	if err := cur.All(ctx, &docs); err != nil {
		return repository.TaskPage{}, err
	}

	page := repository.TaskPage{}
	if len(docs) > q.Limit {
		page.HasMore = true
		docs = docs[:q.Limit]
	}
	page.Tasks = make([]model.Task, 0, len(docs))
	for _, d := range docs {
		t, err := d.toModel()
		if err != nil {
			return repository.TaskPage{}, err
		}
		page.Tasks = append(page.Tasks, t)
	}
	if page.HasMore && len(page.Tasks) > 0 {
		page.NextCursor = page.Tasks[len(page.Tasks)-1].ID
	}
	return page, nil
}

func (r *TaskRepo) Stats(ctx context.Context, userID string) (model.TaskStats, error) {
	uid, err := objectID(userID)
	if err != nil {
		return model.TaskStats{}, err
	}
	visible := visibleTo(uid)
	var s model.TaskStats
	if s.Total, err = r.coll.CountDocuments(ctx, bson.D{visible}); err != nil {
		return s, err
	}
	if s.Pending, err = r.coll.CountDocuments(ctx, bson.D{visible, {Key: "status", Value: model.TaskPending.String()}}); err != nil {
		return s, err
	}
	if s.Completed, err = r.coll.CountDocuments(ctx, bson.D{visible, {Key: "status", Value: model.TaskCompleted.String()}}); err != nil {
		return s, err
	}
	return s, nil
}

func visibleTo(uid bson.ObjectID) bson.E {
	return bson.E{Key: "$or", Value: bson.A{
		bson.D{{Key: "createdBy", Value: uid}},
		bson.D{{Key: "assignedTo", Value: uid}},
	}}
}

// taskFilter builds the listing filter. Visibility, status, search and
// cursor conditions are combined under $and so two $or clauses never
// collide on the same key.
func taskFilter(q repository.TaskQuery, uid bson.ObjectID, cursor *bson.ObjectID) bson.D {
	conds := bson.A{bson.D{visibleTo(uid)}}
	if q.Status != 0 {
		conds = append(conds, bson.D{{Key: "status", Value: q.Status.String()}})
	}
	if q.Search != "" {
		re := bson.Regex{Pattern: q.QuotedSearch(), Options: "i"}
		conds = append(conds, bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "title", Value: re}},
			bson.D{{Key: "description", Value: re}},
		}}})
	}
	if cursor != nil {
		op := "$gt"
		if q.Desc {
			op = "$lt"
		}
		conds = append(conds, bson.D{{Key: "_id", Value: bson.D{{Key: op, Value: *cursor}}}})
	}
	return bson.D{{Key: "$and", Value: conds}}
}

func taskSort(q repository.TaskQuery) bson.D {
	dir := 1
	if q.Desc {
		dir = -1
	}
	return bson.D{{Key: string(q.SortBy), Value: dir}, {Key: "_id", Value: dir}}
}

func toTaskDoc(t model.Task) (taskDoc, error) {
	createdBy, err := objectID(t.CreatedBy)
	if err != nil {
		return taskDoc{}, err
	}
	assignedTo, err := optionalID(t.AssignedTo)
	if err != nil {
		return taskDoc{}, err
	}
	updatedBy, err := optionalID(t.UpdatedBy)
	if err != nil {
		return taskDoc{}, err
	}
	return taskDoc{
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status.String(),
		CreatedBy:   createdBy,
		AssignedTo:  assignedTo,
		UpdatedBy:   updatedBy,
	}, nil
}
