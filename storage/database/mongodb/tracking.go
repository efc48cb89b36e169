package mongorepos

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/tracking"
)

var recordOrdering = map[string]string{
	"companyName": "companyName",
	"role":        "role",
	"studentName": "studentName",
	"hubName":     "hubName",
	"createdAt":   "createdAt",
	"updatedAt":   "updatedAt",
}

// recordRepository stores one tracking record type in its own collection.
type recordRepository[T any, PT tracking.RecordPtr[T]] struct {
	coll *mongo.Collection
	// statusPath is where Filter.Status looks. Empty when the record has no status.
	statusPath string
}

func NewCompanyStatusRepository(db *mongo.Database) tracking.Repository[tracking.CompanyStatus] {
	return &recordRepository[tracking.CompanyStatus, *tracking.CompanyStatus]{
		coll: db.Collection(CompanyStatuses), statusPath: "closingStatus",
	}
}

func NewInteractionFeedbackRepository(db *mongo.Database) tracking.Repository[tracking.InteractionFeedback] {
	return &recordRepository[tracking.InteractionFeedback, *tracking.InteractionFeedback]{
		coll: db.Collection(InteractionFeedbacks),
	}
}

func NewPostInternshipRepository(db *mongo.Database) tracking.Repository[tracking.PostInternship] {
	return &recordRepository[tracking.PostInternship, *tracking.PostInternship]{
		coll: db.Collection(PostInternships), statusPath: "tasks.status",
	}
}

func NewHubStatusRepository(db *mongo.Database) tracking.Repository[tracking.OverallHubStatus] {
	return &recordRepository[tracking.OverallHubStatus, *tracking.OverallHubStatus]{
		coll: db.Collection(HubStatuses), statusPath: "students.status",
	}
}

func NewStudentRatingRepository(db *mongo.Database) tracking.Repository[tracking.StudentRating] {
	return &recordRepository[tracking.StudentRating, *tracking.StudentRating]{
		coll: db.Collection(StudentRatings),
	}
}

func (repo *recordRepository[T, PT]) id(rec *T) string { return PT(rec).RecordBase().ID }

func (repo *recordRepository[T, PT]) Insert(ctx context.Context, rec T) (T, error) {
	if _, err := repo.coll.InsertOne(ctx, rec); err != nil {
		var zero T
		return zero, errors.Wrapf(err, "inserting into %s", repo.coll.Name())
	}
	return rec, nil
}

// InsertMany inserts recs in one unordered batch. Documents the server rejects are skipped.
func (repo *recordRepository[T, PT]) InsertMany(ctx context.Context, recs []T) (int, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	docs := make([]interface{}, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, rec)
	}

	res, err := repo.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil {
		var bwErr mongo.BulkWriteException
		if errors.As(err, &bwErr) && bwErr.WriteConcernError == nil {
			return len(recs) - len(bwErr.WriteErrors), nil
		}
		return 0, errors.Wrapf(err, "inserting into %s", repo.coll.Name())
	}
	return len(res.InsertedIDs), nil
}

func (repo *recordRepository[T, PT]) Get(ctx context.Context, id string) (T, error) {
	var rec T
	if err := repo.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		var zero T
		if errors.Is(err, mongo.ErrNoDocuments) {
			return zero, tracking.ErrNotFound
		}
		return zero, errors.Wrapf(err, "getting from %s", repo.coll.Name())
	}
	return rec, nil
}

// filter mirrors tracking.Filter.Matches. Fields a record type lacks never match.
func (repo *recordRepository[T, PT]) filter(f tracking.Filter) bson.M {
	q := bson.M{}
	if f.Search != "" {
		q["$or"] = bson.A{
			bson.M{"companyName": icontains(f.Search)},
			bson.M{"studentName": icontains(f.Search)},
			bson.M{"hubName": icontains(f.Search)},
		}
	}
	if f.CompanyName != "" {
		q["companyName"] = iexact(f.CompanyName)
	}
	if f.Role != "" {
		q["role"] = iexact(f.Role)
	}
	if f.NiatID != "" {
		q["niatId"] = f.NiatID
	}
	if f.HubName != "" {
		q["hubName"] = iexact(f.HubName)
	}
	if f.Kind != "" {
		q["kind"] = f.Kind
	}
	if f.Status != "" {
		if repo.statusPath == "" {
			q["_id"] = bson.M{"$exists": false}
		} else {
			q[repo.statusPath] = f.Status
		}
	}
	return q
}

func (repo *recordRepository[T, PT]) Query(ctx context.Context, f tracking.Filter, ordering ...core.DBOrdering) ([]T, error) {
	opts := options.Find().SetSort(sortBy(recordOrdering, ordering, "createdAt"))
	recs, err := findAll[T](ctx, repo.coll, repo.filter(f), opts)
	if err != nil {
		return nil, errors.Wrapf(err, "querying %s", repo.coll.Name())
	}
	return recs, nil
}

func (repo *recordRepository[T, PT]) Replace(ctx context.Context, rec T) (T, error) {
	var zero T
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": repo.id(&rec)}, rec)
	if err != nil {
		return zero, errors.Wrapf(err, "replacing in %s", repo.coll.Name())
	}
	if res.MatchedCount == 0 {
		return zero, tracking.ErrNotFound
	}
	return rec, nil
}

func (repo *recordRepository[T, PT]) Delete(ctx context.Context, id string) error {
	res, err := repo.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrapf(err, "deleting from %s", repo.coll.Name())
	}
	if res.DeletedCount == 0 {
		return tracking.ErrNotFound
	}
	return nil
}
