package mongorepos

import (
	"context"
	"reflect"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/niat-ops/opsboard/core"
	"github.com/niat-ops/opsboard/core/roadmap"
)

var roadmapOrdering = map[string]string{
	"companyName": "companyName",
	"role":        "role",
	"createdDate": "createdDate",
	"updatedDate": "updatedDate",
}

// refDoc is a stored tech stack ref. Older documents hold bare name strings or bare ObjectIDs.
type refDoc roadmap.TechStackRef

func (ref *refDoc) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	raw := bson.RawValue{Type: t, Value: data}
	switch t {
	case bsontype.String:
		*ref = refDoc{Name: raw.StringValue()}
		return nil
	case bsontype.ObjectID:
		*ref = refDoc{ID: raw.ObjectID().Hex()}
		return nil
	}
	var plain roadmap.TechStackRef
	if err := raw.Unmarshal(&plain); err != nil {
		return err
	}
	*ref = refDoc(plain)
	return nil
}

type roleDoc struct {
	Title      string   `bson:"title"`
	TechStacks []refDoc `bson:"techStacks"`
}

type roadmapDoc struct {
	ID             string     `bson:"_id"`
	CompanyName    string     `bson:"companyName"`
	Role           string     `bson:"role"`
	IsConsolidated bool       `bson:"isConsolidated"`
	TechStacks     []refDoc   `bson:"techStacks,omitempty"`
	Roles          []roleDoc  `bson:"roles,omitempty"`
	PublishedURL   string     `bson:"publishedUrl"`
	Filename       string     `bson:"filename"`
	CrmAffiliation string     `bson:"crmAffiliation,omitempty"`
	CreatedBy      string     `bson:"createdBy,omitempty"`
	CreatedDate    time.Time  `bson:"createdDate"`
	UpdatedDate    time.Time  `bson:"updatedDate"`
	LastSyncedAt   *time.Time `bson:"lastSyncedAt,omitempty"`
	LastSyncError  string     `bson:"lastSyncError,omitempty"`
}

func toRefDocs(refs []roadmap.TechStackRef) []refDoc {
	docs := make([]refDoc, 0, len(refs))
	for _, ref := range refs {
		docs = append(docs, refDoc(ref))
	}
	return docs
}

func fromRefDocs(docs []refDoc) []roadmap.TechStackRef {
	refs := make([]roadmap.TechStackRef, 0, len(docs))
	for _, doc := range docs {
		refs = append(refs, roadmap.TechStackRef(doc))
	}
	return refs
}

func toRoadmapDoc(r roadmap.Roadmap) roadmapDoc {
	doc := roadmapDoc{
		ID:             r.ID,
		CompanyName:    r.CompanyName,
		Role:           r.Role(),
		IsConsolidated: r.IsConsolidated(),
		PublishedURL:   r.PublishedURL,
		Filename:       r.Filename,
		CrmAffiliation: r.CrmAffiliation,
		CreatedBy:      r.CreatedBy,
		CreatedDate:    r.CreatedDate,
		UpdatedDate:    r.UpdatedDate,
		LastSyncedAt:   r.LastSyncedAt,
		LastSyncError:  r.LastSyncError,
	}
	switch c := r.Content.(type) {
	case roadmap.Single:
		doc.TechStacks = toRefDocs(c.TechStacks)
	case roadmap.Consolidated:
		doc.Roles = make([]roleDoc, 0, len(c.RoleList))
		for _, role := range c.RoleList {
			doc.Roles = append(doc.Roles, roleDoc{Title: role.Title, TechStacks: toRefDocs(role.TechStacks)})
		}
	}
	return doc
}

func (doc roadmapDoc) toRoadmap() roadmap.Roadmap {
	r := roadmap.Roadmap{
		ID:             doc.ID,
		CompanyName:    doc.CompanyName,
		PublishedURL:   doc.PublishedURL,
		Filename:       doc.Filename,
		CrmAffiliation: doc.CrmAffiliation,
		CreatedBy:      doc.CreatedBy,
		CreatedDate:    doc.CreatedDate.UTC(),
		UpdatedDate:    doc.UpdatedDate.UTC(),
		LastSyncedAt:   doc.LastSyncedAt,
		LastSyncError:  doc.LastSyncError,
	}
	if doc.IsConsolidated {
		roles := make([]roadmap.RoleContent, 0, len(doc.Roles))
		for _, role := range doc.Roles {
			roles = append(roles, roadmap.RoleContent{Title: role.Title, TechStacks: fromRefDocs(role.TechStacks)})
		}
		r.Content = roadmap.Consolidated{RoleList: roles}
	} else {
		r.Content = roadmap.Single{Role: doc.Role, TechStacks: fromRefDocs(doc.TechStacks)}
	}
	return r
}

type roadmapRepository struct {
	coll *mongo.Collection
}

var _ roadmap.Repository = (*roadmapRepository)(nil)

func NewRoadmapRepository(db *mongo.Database) roadmap.Repository {
	return &roadmapRepository{coll: db.Collection(Roadmaps)}
}

func (repo *roadmapRepository) Create(ctx context.Context, r roadmap.Roadmap) (roadmap.Roadmap, error) {
	if _, err := repo.coll.InsertOne(ctx, toRoadmapDoc(r)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return roadmap.Roadmap{}, roadmap.ErrFilenameExists
		}
		return roadmap.Roadmap{}, errors.Wrap(err, "inserting roadmap")
	}
	return r, nil
}

func (repo *roadmapRepository) findOne(ctx context.Context, filter bson.M) (roadmap.Roadmap, error) {
	var doc roadmapDoc
	if err := repo.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return roadmap.Roadmap{}, roadmap.ErrNotFound
		}
		return roadmap.Roadmap{}, errors.Wrap(err, "getting roadmap")
	}
	return doc.toRoadmap(), nil
}

func (repo *roadmapRepository) Get(ctx context.Context, id string) (roadmap.Roadmap, error) {
	return repo.findOne(ctx, bson.M{"_id": id})
}

func (repo *roadmapRepository) GetByFilename(ctx context.Context, filename string) (roadmap.Roadmap, error) {
	return repo.findOne(ctx, bson.M{"filename": filename})
}

func (repo *roadmapRepository) list(ctx context.Context, filter bson.M, opts ...*options.FindOptions) ([]roadmap.Roadmap, error) {
	docs, err := findAll[roadmapDoc](ctx, repo.coll, filter, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "listing roadmaps")
	}
	roadmaps := make([]roadmap.Roadmap, 0, len(docs))
	for _, doc := range docs {
		roadmaps = append(roadmaps, doc.toRoadmap())
	}
	return roadmaps, nil
}

func roadmapFilter(filter roadmap.QueryFilter) bson.M {
	q := bson.M{}
	if filter.Search != "" {
		q["$or"] = bson.A{
			bson.M{"companyName": icontains(filter.Search)},
			bson.M{"role": icontains(filter.Search)},
		}
	}
	if filter.CompanyName != "" {
		q["companyName"] = iexact(filter.CompanyName)
	}
	if filter.CrmAffiliation != "" {
		q["crmAffiliation"] = iexact(filter.CrmAffiliation)
	}
	switch filter.Kind {
	case roadmap.KindConsolidated:
		q["isConsolidated"] = true
	case roadmap.KindSingle:
		q["isConsolidated"] = bson.M{"$ne": true}
	case "":
	default:
		q["_id"] = bson.M{"$exists": false} // unknown kind matches nothing
	}
	return q
}

func (repo *roadmapRepository) Query(ctx context.Context, filter roadmap.QueryFilter, ordering ...core.DBOrdering) ([]roadmap.Roadmap, error) {
	opts := options.Find().SetSort(sortBy(roadmapOrdering, ordering, "createdDate"))
	return repo.list(ctx, roadmapFilter(filter), opts)
}

func referencingFilter(techStackID string, names ...string) bson.M {
	or := bson.A{}
	if techStackID != "" {
		or = append(or,
			bson.M{"techStacks.id": techStackID},
			bson.M{"roles.techStacks.id": techStackID},
		)
	}
	patterns := bson.A{}
	for _, name := range names {
		if name != "" {
			patterns = append(patterns, iexact(name))
		}
	}
	if len(patterns) > 0 {
		or = append(or,
			bson.M{"techStacks.name": bson.M{"$in": patterns}},
			bson.M{"roles.techStacks.name": bson.M{"$in": patterns}},
			// legacy refs stored as bare strings
			bson.M{"techStacks": bson.M{"$in": patterns}},
			bson.M{"roles.techStacks": bson.M{"$in": patterns}},
		)
	}
	if len(or) == 0 {
		return nil
	}
	return bson.M{"$or": or}
}

func (repo *roadmapRepository) FindReferencing(ctx context.Context, techStackID string, names ...string) ([]roadmap.Roadmap, error) {
	filter := referencingFilter(techStackID, names...)
	if filter == nil {
		return []roadmap.Roadmap{}, nil
	}
	return repo.list(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdDate", Value: 1}}))
}

func (repo *roadmapRepository) Update(ctx context.Context, r roadmap.Roadmap) (roadmap.Roadmap, error) {
	res, err := repo.coll.ReplaceOne(ctx, bson.M{"_id": r.ID}, toRoadmapDoc(r))
	if err != nil {
		return roadmap.Roadmap{}, errors.Wrap(err, "updating roadmap")
	}
	if res.MatchedCount == 0 {
		return roadmap.Roadmap{}, roadmap.ErrNotFound
	}
	return r, nil
}

// RefreshContent guards the content swap on updatedDate so that a concurrent Update wins.
func (repo *roadmapRepository) RefreshContent(ctx context.Context, id string, rendered, refreshed roadmap.Content, publishedURL string) error {
	stored, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	set := bson.M{"publishedUrl": publishedURL}
	filter := bson.M{"_id": id}
	if reflect.DeepEqual(stored.Content, rendered) {
		doc := toRoadmapDoc(roadmap.Roadmap{Content: refreshed})
		if doc.IsConsolidated {
			set["roles"] = doc.Roles
		} else {
			set["techStacks"] = doc.TechStacks
		}
		filter["updatedDate"] = stored.UpdatedDate
	}
	res, err := repo.coll.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return errors.Wrap(err, "refreshing roadmap")
	}
	if res.MatchedCount == 0 {
		// changed since it was read: only the url is safe to write
		_, err = repo.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"publishedUrl": publishedURL}})
		return errors.Wrap(err, "refreshing roadmap url")
	}
	return nil
}

func (repo *roadmapRepository) SetSyncStatus(ctx context.Context, id string, syncedAt time.Time, syncErr string) error {
	update := bson.M{"$set": bson.M{"lastSyncedAt": syncedAt.UTC(), "lastSyncError": syncErr}}
	res, err := repo.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return errors.Wrap(err, "recording roadmap sync")
	}
	if res.MatchedCount == 0 {
		return roadmap.ErrNotFound
	}
	return nil
}

func (repo *roadmapRepository) Delete(ctx context.Context, id string) error {
	res, err := repo.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Wrap(err, "deleting roadmap")
	}
	if res.DeletedCount == 0 {
		return roadmap.ErrNotFound
	}
	return nil
}
