package mongorepos

import (
	"context"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/techstack"
)

var techStackOrdering = map[string]string{
	"name":      "name",
	"createdAt": "createdAt",
	"updatedAt": "updatedAt",
}

type techStackRepository struct {
	coll *mongo.Collection
}

var _ techstack.Repository = (*techStackRepository)(nil)

func NewTechStackRepository(db *mongo.Database) techstack.Repository {
	return &techStackRepository{coll: db.Collection(TechStacks)}
}

func normalizeTechStack(ts techstack.TechStack) techstack.TechStack {
	if ts.RoadmapItems == nil {
		ts.RoadmapItems = []techstack.RoadmapItem{}
	}
	for i, it := range ts.RoadmapItems {
		if it.SubTopics == nil {
			ts.RoadmapItems[i].SubTopics = []techstack.Named{}
		}
		if it.Projects == nil {
			ts.RoadmapItems[i].Projects = []techstack.Named{}
		}
	}
	return ts
}

func (repo *techStackRepository) Create(ctx context.Context, ts techstack.TechStack) (techstack.TechStack, error) {
	ts = normalizeTechStack(ts)
	if _, err := repo.coll.InsertOne(ctx, ts); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return techstack.TechStack{}, techstack.ErrNameExists
		}
		return techstack.TechStack{}, errors.Wrap(err, "inserting tech stack")
	}
	return ts, nil
}

func (repo *techStackRepository) findOne(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (techstack.TechStack, error) {
	var ts techstack.TechStack
	if err := repo.coll.FindOne(ctx, filter, opts...).Decode(&ts); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return techstack.TechStack{}, techstack.ErrNotFound
		}
		return techstack.TechStack{}, errors.Wrap(err, "getting tech stack")
	}
	return normalizeTechStack(ts), nil
}

func (repo *techStackRepository) Get(ctx context.Context, id string) (techstack.TechStack, error) {
	return repo.findOne(ctx, bson.M{"_id": id})
}

func (repo *techStackRepository) GetByName(ctx context.Context, name string) (techstack.TechStack, error) {
	return repo.findOne(ctx, bson.M{"name": name}, options.FindOne().SetCollation(caseInsensitive))
}

func (repo *techStackRepository) list(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]techstack.TechStack, error) {
	stacks, err := findAll[techstack.TechStack](ctx, repo.coll, filter, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "listing tech stacks")
	}
	for i := range stacks {
		stacks[i] = normalizeTechStack(stacks[i])
	}
	return stacks, nil
}

func (repo *techStackRepository) ListByIDs(ctx context.Context, ids ...string) ([]techstack.TechStack, error) {
	if len(ids) == 0 {
		return []techstack.TechStack{}, nil
	}
	return repo.list(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (repo *techStackRepository) ListByNames(ctx context.Context, names ...string) ([]techstack.TechStack, error) {
	if len(names) == 0 {
		return []techstack.TechStack{}, nil
	}
	return repo.list(ctx, bson.M{"name": bson.M{"$in": names}}, options.Find().SetCollation(caseInsensitive))
}

func techStackFilter(filter techstack.QueryFilter) bson.M {
	q := bson.M{}
	if filter.Search != "" {
		q["name"] = icontains(filter.Search)
	}
	if filter.RestrictToNames {
		names := make([]interface{}, 0, len(filter.Names))
		for _, name := range filter.Names {
			names = append(names, iexact(name))
		}
		if filter.Search != "" {
			q = bson.M{"$and": bson.A{q, bson.M{"name": bson.M{"$in": names}}}}
		} else {
			q["name"] = bson.M{"$in": names}
		}
	}
	return q
}

func (repo *techStackRepository) Query(ctx context.Context, filter techstack.QueryFilter, ordering ...core.DBOrdering) ([]techstack.TechStack, error) {
	opts := options.Find().SetSort(sortBy(techStackOrdering, ordering, "createdAt"))
	return repo.list(ctx, techStackFilter(filter), opts)
}

func (repo *techStackRepository) Update(ctx context.Context, ts techstack.TechStack) (techstack.TechStack, error) {
	ts = normalizeTechStack(ts)
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": ts.ID}, ts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return techstack.TechStack{}, techstack.ErrNameExists
		}
		return techstack.TechStack{}, errors.Wrap(err, "updating tech stack")
	}
	if res.MatchedCount == 0 {
		return techstack.TechStack{}, techstack.ErrNotFound
	}
	return ts, nil
}

func (repo *techStackRepository) Delete(ctx context.Context, id string) error {
	res, err := repo.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting tech stack")
	}
	if res.DeletedCount == 0 {
		return techstack.ErrNotFound
	}
	return nil
}
