package docstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/pavelanni/quizhall/internal/model"
)

// AuthSessionTTL is how long a login stays valid.
const AuthSessionTTL = 24 * time.Hour

type userDoc struct {
	ID           string   `bson:"_id"`
	Username     string   `bson:"username"`
	Name         string   `bson:"name"`
	Email        string   `bson:"email"`
	PasswordHash string   `bson:"password_hash"`
	IsAdmin      bool     `bson:"is_admin"`
	Active       bool     `bson:"active"`
	Badges       []string `bson:"badges"`
	Attempts     []string `bson:"attempts"`
	CreatedAt    int64    `bson:"created_at"`
}

func (d userDoc) model() *model.User {
	return &model.User{
		ID:           d.ID,
		Username:     d.Username,
		Name:         d.Name,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		IsAdmin:      d.IsAdmin,
		Active:       d.Active,
		Badges:       nonNil(d.Badges),
		Attempts:     nonNil(d.Attempts),
		CreatedAt:    fromUnix(d.CreatedAt),
	}
}

// CreateUser inserts a new user with an empty progress profile.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.Badges = nonNil(u.Badges)
	u.Attempts = nonNil(u.Attempts)
	_, err := s.users.InsertOne(ctx, userDoc{
		ID:           u.ID,
		Username:     u.Username,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		IsAdmin:      u.IsAdmin,
		Active:       u.Active,
		Badges:       u.Badges,
		Attempts:     u.Attempts,
		CreatedAt:    toUnix(u.CreatedAt),
	})
	if err != nil {
		slog.Error("failed to create user", "username", u.Username, "error", err)
		return err
	}
	slog.Info("created user", "id", u.ID, "username", u.Username, "admin", u.IsAdmin)
	return nil
}

// GetUserByID returns a user by ID.
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.findUser(ctx, byID(id))
}

// GetUserByUsername returns a user by username.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"username": username})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, notFound(err)
	}
	return doc.model(), nil
}

// ListUsers returns all users.
func (s *Store) ListUsers(ctx context.Context) ([]model.User, error) {
	var docs []userDoc
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if err := findAll(ctx, s.users, bson.M{}, &docs, opts); err != nil {
		return nil, err
	}
	var out []model.User
	for _, d := range docs {
		out = append(out, *d.model())
	}
	return out, nil
}

// UpdateUserProgress replaces the badges and attempt ids of a user.
func (s *Store) UpdateUserProgress(ctx context.Context, id string, badges, attempts []string) error {
	return matched(s.users.UpdateOne(ctx, byID(id), bson.M{"$set": bson.M{
		"badges":   nonNil(badges),
		"attempts": nonNil(attempts),
	}}))
}

// ToggleUserActive flips the active flag on a user.
func (s *Store) ToggleUserActive(ctx context.Context, id string) error {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "active", Value: bson.D{{Key: "$not", Value: "$active"}}}}}},
	}
	return matched(s.users.UpdateOne(ctx, byID(id), pipeline))
}

// UserCount returns the total number of users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	n, err := s.users.CountDocuments(ctx, bson.M{})
	return int(n), err
}

type authSessionDoc struct {
	ID        string `bson:"_id"`
	UserID    string `bson:"user_id"`
	CreatedAt int64  `bson:"created_at"`
	ExpiresAt int64  `bson:"expires_at"`
}

// CreateAuthSession creates a new login session for a user.
func (s *Store) CreateAuthSession(ctx context.Context, userID string) (*model.AuthSession, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &model.AuthSession{ID: hex.EncodeToString(b), UserID: userID, CreatedAt: now, ExpiresAt: now.Add(AuthSessionTTL)}
	_, err := s.authSess.InsertOne(ctx, authSessionDoc{
		ID: sess.ID, UserID: userID, CreatedAt: toUnix(now), ExpiresAt: toUnix(sess.ExpiresAt),
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// GetAuthSession returns the session with the given id, or nil if not found/expired.
func (s *Store) GetAuthSession(ctx context.Context, id string) (*model.AuthSession, error) {
	var doc authSessionDoc
	err := s.authSess.FindOne(ctx, byID(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sess := &model.AuthSession{
		ID:        doc.ID,
		UserID:    doc.UserID,
		CreatedAt: fromUnix(doc.CreatedAt),
		ExpiresAt: fromUnix(doc.ExpiresAt),
	}
	if time.Now().After(sess.ExpiresAt) {
		_ = s.DeleteAuthSession(ctx, id)
		return nil, nil
	}
	return sess, nil
}

// DeleteAuthSession removes a session.
func (s *Store) DeleteAuthSession(ctx context.Context, id string) error {
	_, err := s.authSess.DeleteOne(ctx, byID(id))
	return err
}

// CleanupExpiredSessions removes all expired auth sessions.
func (s *Store) CleanupExpiredSessions(ctx context.Context) error {
	_, err := s.authSess.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lt": toUnix(time.Now())}})
	return err
}

// SetMetadata upserts a key-value pair.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.importMeta.UpdateOne(ctx, byID(key),
		bson.M{"$set": bson.M{"value": value}},
		options.Update().SetUpsert(true),
	)
	return err
}

// GetMetadata returns the value for a key, or "" if it is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var doc struct {
		Value string `bson:"value"`
	}
	err := s.importMeta.FindOne(ctx, byID(key)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	return doc.Value, err
}
