package users

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/todoapp/auth-service/internal/models"
)

// ErrDuplicateIdentity is returned by Create when one of the user's
// identities is already linked to another user.
var ErrDuplicateIdentity = errors.New("identity already linked")

// Repository defines persistence operations for users and their identities.
// Lookups return (nil, nil) when nothing matches.
type Repository interface {
	FindByIdentity(ctx context.Context, provider, subject string) (*models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, u *models.User) error
	UpdateProfile(ctx context.Context, userID string, ident models.Identity, at time.Time) error
}

// MongoRepository implements Repository using MongoDB. Identities are
// embedded in the user document.
type MongoRepository struct {
	col *mongo.Collection
}

// NewMongoRepository creates a new repository for the given collection
func NewMongoRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

// EnsureIndexes creates the unique (provider, subject) index that makes
// concurrent first sign-ins converge on one user.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "identities.provider", Value: 1}, {Key: "identities.subject", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("identities_provider_subject"),
		},
		{Keys: bson.D{{Key: "email", Value: 1}}},
	})
	return err
}

func identityFilter(provider, subject string) bson.M {
	return bson.M{"identities": bson.M{"$elemMatch": bson.M{"provider": provider, "subject": subject}}}
}

func (r *MongoRepository) FindByIdentity(ctx context.Context, provider, subject string) (*models.User, error) {
	return r.findOne(ctx, identityFilter(provider, subject))
}

func (r *MongoRepository) Get(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *MongoRepository) Create(ctx context.Context, u *models.User) error {
	if _, err := r.col.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateIdentity
		}
		return err
	}
	return nil
}

func (r *MongoRepository) UpdateProfile(ctx context.Context, userID string, ident models.Identity, at time.Time) error {
	filter := identityFilter(ident.Provider, ident.Subject)
	filter["_id"] = userID

	set := bson.M{
		"identities.$.email": ident.Email,
		"identities.$.name":  ident.Name,
		"identities.$.image": ident.Image,
		"updatedAt":          at,
	}
	if ident.Name != "" {
		set["name"] = ident.Name
	}
	if ident.Image != "" {
		set["image"] = ident.Image
	}
	if _, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": set}); err != nil {
		return err
	}
	if ident.Email == "" {
		return nil
	}
	// only fill the account email when it was never known
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": userID, "email": ""}, bson.M{"$set": bson.M{"email": ident.Email}})
	return err
}
