// Package mongostore persists user subscription documents in MongoDB.
//
// Each user is one document keyed by user id in the "users" collection.
// Correlation ids live under correlationIds.<provider> and are indexed per
// provider for webhook lookup.
package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/subrelay/svc/subscription"
)

const defaultCollection = "users"

type document struct {
	UserID             string            `bson:"_id"`
	SubscriptionActive bool              `bson:"subscriptionActive"`
	CorrelationIDs     map[string]string `bson:"correlationIds,omitempty"`
	CustomerIDs        map[string]string `bson:"customerIds,omitempty"`
	ActiveProvider     string            `bson:"activeProvider,omitempty"`
	LastEventAt        *time.Time        `bson:"lastEventAt,omitempty"`
	CreatedAt          time.Time         `bson:"createdAt"`
	UpdatedAt          time.Time         `bson:"updatedAt"`
}

// Store implements subscription.Store on a MongoDB collection.
type Store struct {
	coll *mongo.Collection
}

// Option configures a Store.
type Option func(*options)

type options struct {
	collection string
}

// WithCollection overrides the collection name.
func WithCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.collection = name
		}
	}
}

// New returns a Store over db and ensures its indexes exist.
func New(ctx context.Context, db *mongo.Database, opts ...Option) (*Store, error) {
	o := &options{collection: defaultCollection}
	for _, opt := range opts {
		opt(o)
	}

	s := &Store{coll: db.Collection(o.collection)}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	models := make([]mongo.IndexModel, 0, len(subscription.Providers))
	for _, p := range subscription.Providers {
		field := correlationField(p)
		models = append(models, mongo.IndexModel{
			Keys: bson.D{{Key: field, Value: 1}},
			Options: mongoopts.Index().
				SetName(field).
				SetSparse(true),
		})
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, models); err != nil {
		return errors.Join(subscription.ErrStore, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, userID string) (*subscription.UserSubscription, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: userID}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, subscription.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, errors.Join(subscription.ErrStore, err)
	}
	return doc.toDomain(), nil
}

func (s *Store) Seed(ctx context.Context, params subscription.SeedParams) error {
	at := params.At.UTC().Truncate(time.Millisecond)
	set := bson.D{
		{Key: "subscriptionActive", Value: false},
		{Key: "updatedAt", Value: at},
	}
	set = appendIDs(set, params.Provider, params.CorrelationID, params.CustomerID)

	_, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: params.UserID}},
		bson.D{
			{Key: "$set", Value: set},
			{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: at}}},
		},
		mongoopts.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return errors.Join(subscription.ErrStore, err)
	}
	return nil
}

func (s *Store) FindByCorrelationID(ctx context.Context, p subscription.Provider, id string) ([]subscription.UserSubscription, error) {
	if id == "" {
		return nil, nil
	}

	cur, err := s.coll.Find(ctx, bson.D{{Key: correlationField(p), Value: id}})
	if err != nil {
		return nil, errors.Join(subscription.ErrStore, err)
	}

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Join(subscription.ErrStore, err)
	}

	out := make([]subscription.UserSubscription, 0, len(docs))
	for _, d := range docs {
		out = append(out, *d.toDomain())
	}
	return out, nil
}

// SetState upserts the flag only when the stored lastEventAt is absent or
// not newer than the change. A filter miss on an existing document makes the
// upsert collide on _id. The collision is also what a concurrent first insert
// looks like, so the update is retried once without upsert: a match means
// the change applied, a miss means the stored event is newer.
func (s *Store) SetState(ctx context.Context, change subscription.StateChange) (bool, error) {
	eventAt := change.EventAt.UTC().Truncate(time.Millisecond)
	updatedAt := change.UpdatedAt.UTC().Truncate(time.Millisecond)

	set := bson.D{
		{Key: "subscriptionActive", Value: change.Active},
		{Key: "activeProvider", Value: string(change.Provider)},
		{Key: "lastEventAt", Value: eventAt},
		{Key: "updatedAt", Value: updatedAt},
	}
	set = appendIDs(set, change.Provider, change.CorrelationID, change.CustomerID)

	filter := bson.D{
		{Key: "_id", Value: change.UserID},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "lastEventAt", Value: nil}},
			bson.D{{Key: "lastEventAt", Value: bson.D{{Key: "$lte", Value: eventAt}}}},
		}},
	}

	update := bson.D{
		{Key: "$set", Value: set},
		{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: updatedAt}}},
	}
	_, err := s.coll.UpdateOne(ctx, filter, update, mongoopts.UpdateOne().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		res, err := s.coll.UpdateOne(ctx, filter, update)
		if err != nil {
			return false, errors.Join(subscription.ErrStore, err)
		}
		return res.MatchedCount > 0, nil
	}
	if err != nil {
		return false, errors.Join(subscription.ErrStore, err)
	}
	return true, nil
}

func correlationField(p subscription.Provider) string {
	return "correlationIds." + string(p)
}

func appendIDs(set bson.D, p subscription.Provider, correlationID, customerID string) bson.D {
	if correlationID != "" {
		set = append(set, bson.E{Key: correlationField(p), Value: correlationID})
	}
	if customerID != "" {
		set = append(set, bson.E{Key: "customerIds." + string(p), Value: customerID})
	}
	return set
}

func (d document) toDomain() *subscription.UserSubscription {
	out := &subscription.UserSubscription{
		UserID:             d.UserID,
		SubscriptionActive: d.SubscriptionActive,
		CorrelationIDs:     make(map[subscription.Provider]string, len(d.CorrelationIDs)),
		CustomerIDs:        make(map[subscription.Provider]string, len(d.CustomerIDs)),
		ActiveProvider:     subscription.Provider(d.ActiveProvider),
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
	}
	for k, v := range d.CorrelationIDs {
		out.CorrelationIDs[subscription.Provider(k)] = v
	}
	for k, v := range d.CustomerIDs {
		out.CustomerIDs[subscription.Provider(k)] = v
	}
	if d.LastEventAt != nil {
		t := d.LastEventAt.UTC()
		out.LastEventAt = &t
	}
	return out
}
