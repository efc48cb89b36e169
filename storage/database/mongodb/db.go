// Package mongorepos stores tech stacks, roadmaps and tracking records in MongoDB.
package mongorepos

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/niat-ops/opsboard/core"
)

// Collections
const (
	TechStacks           = "tech_stacks"
	Roadmaps             = "roadmaps"
	CompanyStatuses      = "company_statuses"
	InteractionFeedbacks = "interaction_feedbacks"
	PostInternships      = "post_internships"
	HubStatuses          = "hub_statuses"
	StudentRatings       = "student_ratings"
)

// indexExistsCodes are the server codes returned when an equivalent index already exists
// under other options or name.
var indexExistsCodes = map[int32]bool{85: true, 86: true}

// caseInsensitive compares strings ignoring case and diacritics.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// Connect opens a client on conf.Mongo.URI and waits for the primary to answer.
func Connect(ctx context.Context, conf *core.Config) (*mongo.Client, *mongo.Database, error) {
	opts := options.Client().
		ApplyURI(conf.Mongo.URI).
		SetAppName(conf.AppName).
		SetMaxPoolSize(50).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(5 * time.Minute).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to mongodb")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, errors.Wrap(err, "pinging mongodb")
	}
	return client, client.Database(conf.Mongo.Database), nil
}

func indexModels() map[string][]mongo.IndexModel {
	companyRole := mongo.IndexModel{Keys: bson.D{{Key: "companyName", Value: 1}, {Key: "role", Value: 1}}}
	return map[string][]mongo.IndexModel{
		TechStacks: {{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true).SetCollation(caseInsensitive),
		}},
		Roadmaps: {
			{Keys: bson.D{{Key: "filename", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "techStacks.id", Value: 1}}},
			{Keys: bson.D{{Key: "techStacks.name", Value: 1}}},
			{Keys: bson.D{{Key: "roles.techStacks.id", Value: 1}}},
		},
		CompanyStatuses:      {companyRole},
		InteractionFeedbacks: {companyRole},
		PostInternships:      {{Keys: bson.D{{Key: "niatId", Value: 1}}}, {Keys: bson.D{{Key: "companyName", Value: 1}}}},
		HubStatuses:          {companyRole, {Keys: bson.D{{Key: "hubName", Value: 1}}}},
		StudentRatings:       {{Keys: bson.D{{Key: "niatId", Value: 1}, {Key: "kind", Value: 1}}}},
	}
}

// EnsureIndexes creates every index. Indexes that already exist are left alone.
func EnsureIndexes(ctx context.Context, db *mongo.Database, logger core.Logger) error {
	for coll, models := range indexModels() {
		for _, model := range models {
			if _, err := db.Collection(coll).Indexes().CreateOne(ctx, model); err != nil {
				if isIndexExists(err) {
					logger.Debug("index already exists on " + coll)
					continue
				}
				return errors.Wrapf(err, "creating index on %s", coll)
			}
		}
	}
	return nil
}

func isIndexExists(err error) bool {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return indexExistsCodes[cmdErr.Code] || strings.Contains(cmdErr.Message, "already exists")
	}
	return strings.Contains(err.Error(), "already exists")
}

// iexact matches s case-insensitively.
func iexact(s string) primitive.Regex {
	return primitive.Regex{Pattern: "^" + regexp.QuoteMeta(s) + "$", Options: "i"}
}

// icontains matches values containing s, case-insensitively.
func icontains(s string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(s), Options: "i"}
}

// sortBy maps ordering to a sort document through the allowed field names. Unknown fields are ignored.
func sortBy(allowed map[string]string, ordering []core.DBOrdering, fallback string) bson.D {
	sort := make(bson.D, 0, len(ordering)+1)
	for _, ord := range ordering {
		if path, ok := allowed[ord.Field]; ok {
			sort = append(sort, bson.E{Key: path, Value: ord.Direction()})
		}
	}
	return append(sort, bson.E{Key: fallback, Value: 1})
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cur, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	docs := make([]T, 0)
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}
