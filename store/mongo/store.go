// Package mongo implements identity.UserStore on a MongoDB collection.
// Uniqueness relies on unique indexes created by EnsureIndexes; every
// conditional update is a single-document operation and therefore atomic.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pulseapp/identity"
)

const collectionName = "users"

const (
	emailIndex       = "email_1"
	usernameIndex    = "username_1"
	duplicateKeyCode = 11000
)

const tfaFlag = int64(identity.FlagTFAEnabled)

type userDoc struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Username     string    `bson:"username"`
	PasswordHash string    `bson:"password_hash"`
	PasswordSalt string    `bson:"password_salt"`
	Flags        int64     `bson:"flags"`
	TFA          *tfaDoc   `bson:"tfa,omitempty"`
	LastLogin    time.Time `bson:"last_login,omitempty"`
}

type tfaDoc struct {
	Secret         string   `bson:"secret"`
	BackupCodeSalt string   `bson:"backup_code_salt"`
	BackupCodes    []string `bson:"backup_codes"`
}

type Store struct {
	client *mongo.Client
	users  *mongo.Collection
}

// Connect dials uri, pings the deployment and ensures indexes on
// <database>.users.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	s := &Store{client: client, users: client.Database(database).Collection(collectionName)}
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// NewWithCollection wraps an existing collection. Close is a no-op on the
// returned store.
func NewWithCollection(coll *mongo.Collection) *Store {
	return &Store{users: coll}
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName(emailIndex)},
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true).SetName(usernameIndex)},
	})
	if err != nil {
		return fmt.Errorf("mongo create indexes: %w", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, nil)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*identity.User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *Store) FindByID(ctx context.Context, userID string) (*identity.User, error) {
	return s.findOne(ctx, bson.M{"_id": userID})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (*identity.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, identity.ErrUserNotFound
		}
		return nil, storeError(err)
	}
	return doc.toUser(), nil
}

func (d *userDoc) toUser() *identity.User {
	u := &identity.User{
		ID:           d.ID,
		Email:        d.Email,
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		PasswordSalt: d.PasswordSalt,
		Flags:        identity.UserFlags(d.Flags),
		LastLogin:    d.LastLogin,
	}
	if d.TFA != nil && u.Flags.Has(identity.FlagTFAEnabled) {
		u.TFA = &identity.TFAProfile{
			Secret:         d.TFA.Secret,
			BackupCodeSalt: d.TFA.BackupCodeSalt,
			BackupCodes:    append([]string(nil), d.TFA.BackupCodes...),
		}
	}
	return u
}

func (s *Store) Create(ctx context.Context, user *identity.User) error {
	_, err := s.users.InsertOne(ctx, userDoc{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		PasswordSalt: user.PasswordSalt,
		Flags:        int64(user.Flags),
	})
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		switch duplicateIndex(err) {
		case emailIndex:
			return identity.ErrEmailAlreadyUsed
		case usernameIndex:
			return identity.ErrUsernameAlreadyUsed
		}
	}
	return storeError(err)
}

var dupIndexPattern = regexp.MustCompile(`index: (\S+) dup key`)

// duplicateIndex returns the name of the unique index an E11000 error
// reports, or "" when none can be found. The duplicate value follows the
// index name in the message, so only the index field is inspected.
func duplicateIndex(err error) string {
	var messages []string
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == duplicateKeyCode {
				messages = append(messages, e.Message)
			}
		}
	}
	messages = append(messages, err.Error())
	for _, msg := range messages {
		if m := dupIndexPattern.FindStringSubmatch(msg); m != nil {
			return m[1]
		}
	}
	return ""
}

func (s *Store) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.updateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"last_login": at.UTC()}})
}

func (s *Store) SetFlags(ctx context.Context, userID string, flags identity.UserFlags) error {
	return s.updateOne(ctx, bson.M{"_id": userID}, bson.M{"$bit": bson.M{"flags": bson.M{"or": int64(flags)}}})
}

func (s *Store) ClearFlags(ctx context.Context, userID string, flags identity.UserFlags) error {
	return s.updateOne(ctx, bson.M{"_id": userID}, bson.M{"$bit": bson.M{"flags": bson.M{"and": ^int64(flags)}}})
}

func (s *Store) updateOne(ctx context.Context, filter, update bson.M) error {
	res, err := s.users.UpdateOne(ctx, filter, update)
	if err != nil {
		return storeError(err)
	}
	if res.MatchedCount == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// EnableTFA matches only while the TFA bit is clear, so two concurrent
// enrollments cannot both win.
func (s *Store) EnableTFA(ctx context.Context, userID string, profile identity.TFAProfile) error {
	codes := profile.BackupCodes
	if codes == nil {
		codes = []string{}
	}
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID, "flags": bson.M{"$bitsAllClear": tfaFlag}},
		bson.M{
			"$bit": bson.M{"flags": bson.M{"or": tfaFlag}},
			"$set": bson.M{"tfa": tfaDoc{
				Secret:         profile.Secret,
				BackupCodeSalt: profile.BackupCodeSalt,
				BackupCodes:    codes,
			}},
		},
	)
	if err != nil {
		return storeError(err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	err = s.users.FindOne(ctx, bson.M{"_id": userID}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return identity.ErrUserNotFound
	case err != nil:
		return storeError(err)
	}
	return identity.ErrTFAAlreadyEnabled
}

func (s *Store) DisableTFA(ctx context.Context, userID string) error {
	return s.updateOne(ctx, bson.M{"_id": userID}, bson.M{
		"$bit":   bson.M{"flags": bson.M{"and": ^tfaFlag}},
		"$unset": bson.M{"tfa": ""},
	})
}

// ConsumeBackupCode pulls codeHash from the profile. Only the caller whose
// update modified the document owned the code.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": userID, "tfa.backup_codes": codeHash},
		bson.M{"$pull": bson.M{"tfa.backup_codes": codeHash}},
	)
	if err != nil {
		return false, storeError(err)
	}
	return res.ModifiedCount == 1, nil
}

func storeError(err error) error {
	return fmt.Errorf("%w: %v", identity.ErrStoreUnavailable, err)
}
