package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/entitlement/pkg/quota"
)

// MongoStore is a Store backed by a MongoDB collection, for deployments
// that keep account data in Mongo instead of Postgres. Uniqueness is
// enforced by the indexes created in EnsureIndexes; call it once during
// startup before serving traffic.
type MongoStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoStore creates a store on top of the given collection.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{
		coll: coll,
		now:  time.Now,
	}
}

// EnsureIndexes creates the unique indexes backing the one-per-user and
// one-per-provider-id invariants.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "provider_subscription_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return errors.Join(ErrFailedToSaveSubscription, err)
	}
	return nil
}

type subscriptionDoc struct {
	ID                     string     `bson:"_id"`
	UserID                 string     `bson:"user_id"`
	ProviderSubscriptionID string     `bson:"provider_subscription_id"`
	ProviderCustomerID     string     `bson:"provider_customer_id"`
	PlanType               string     `bson:"plan_type"`
	Status                 string     `bson:"status"`
	CurrentPeriodStart     time.Time  `bson:"current_period_start"`
	CurrentPeriodEnd       time.Time  `bson:"current_period_end"`
	CancelAtPeriodEnd      bool       `bson:"cancel_at_period_end"`
	CanceledAt             *time.Time `bson:"canceled_at,omitempty"`
	TrialStart             *time.Time `bson:"trial_start,omitempty"`
	TrialEnd               *time.Time `bson:"trial_end,omitempty"`
	ProviderEventAt        *time.Time `bson:"provider_event_at,omitempty"`
	CreatedAt              time.Time  `bson:"created_at"`
	UpdatedAt              time.Time  `bson:"updated_at"`
}

func (s *MongoStore) UpsertByProviderID(ctx context.Context, sub *Subscription) (*Subscription, error) {
	id := sub.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	now := s.now().UTC()

	filter := bson.M{"provider_subscription_id": sub.ProviderSubscriptionID}
	update := bson.M{
		"$set": bson.M{
			"provider_customer_id": sub.ProviderCustomerID,
			"plan_type":            string(sub.PlanType),
			"status":               string(sub.Status),
			"current_period_start": sub.CurrentPeriodStart,
			"current_period_end":   sub.CurrentPeriodEnd,
			"cancel_at_period_end": sub.CancelAtPeriodEnd,
			"canceled_at":          sub.CanceledAt,
			"trial_start":          sub.TrialStart,
			"trial_end":            sub.TrialEnd,
			"provider_event_at":    sub.ProviderEventAt,
			"updated_at":           now,
		},
		"$setOnInsert": bson.M{
			"_id":                      id.String(),
			"user_id":                  sub.UserID.String(),
			"provider_subscription_id": sub.ProviderSubscriptionID,
			"created_at":               now,
		},
	}

	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) && !isUserConflict(err) {
		// Two concurrent first upserts for the same provider id can both
		// take the insert path; the loser trips the provider-id index. One
		// retry lands on the update arm, so the race never surfaces as a
		// permanent conflict.
		_, err = s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	}
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrSubscriptionAlreadyExists
		}
		return nil, errors.Join(ErrFailedToSaveSubscription, err)
	}

	return s.GetByProviderID(ctx, sub.ProviderSubscriptionID)
}

// isUserConflict reports whether a duplicate-key error was raised by the
// unique user_id index, which means the user already has a subscription
// under a different provider id. Duplicates on the provider-id index are a
// transient upsert race instead. The driver does not expose the violated
// index structurally, so this matches the index name in the server message.
func isUserConflict(err error) bool {
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) {
		for _, e := range writeErr.WriteErrors {
			if strings.Contains(e.Message, "user_id") {
				return true
			}
		}
		return false
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return strings.Contains(cmdErr.Message, "user_id")
	}
	return false
}

func (s *MongoStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return s.findOne(ctx, bson.M{"user_id": userID.String()})
}

func (s *MongoStore) GetByProviderID(ctx context.Context, providerSubscriptionID string) (*Subscription, error) {
	return s.findOne(ctx, bson.M{"provider_subscription_id": providerSubscriptionID})
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (*Subscription, error) {
	var doc subscriptionDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadSubscription, err)
	}
	return docToSubscription(&doc)
}

func docToSubscription(doc *subscriptionDoc) (*Subscription, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadSubscription, err)
	}
	userID, err := uuid.Parse(doc.UserID)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadSubscription, err)
	}

	return &Subscription{
		ID:                     id,
		UserID:                 userID,
		ProviderSubscriptionID: doc.ProviderSubscriptionID,
		ProviderCustomerID:     doc.ProviderCustomerID,
		PlanType:               quota.PlanType(doc.PlanType),
		Status:                 Status(doc.Status),
		CurrentPeriodStart:     doc.CurrentPeriodStart,
		CurrentPeriodEnd:       doc.CurrentPeriodEnd,
		CancelAtPeriodEnd:      doc.CancelAtPeriodEnd,
		CanceledAt:             doc.CanceledAt,
		TrialStart:             doc.TrialStart,
		TrialEnd:               doc.TrialEnd,
		ProviderEventAt:        doc.ProviderEventAt,
		CreatedAt:              doc.CreatedAt,
		UpdatedAt:              doc.UpdatedAt,
	}, nil
}
