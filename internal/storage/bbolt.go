package storage

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"parley/internal/models"
	"parley/internal/room"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

var (
	bucketUsers    = []byte("users")
	bucketMessages = []byte("messages")
	bucketTokens   = []byte("tokens")
	bucketPushSubs = []byte("push_subscriptions")
)

type BboltStore struct {
	db *bbolt.DB
}

func NewBboltStore(path string) (*BboltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range [][]byte{bucketUsers, bucketMessages, bucketTokens, bucketPushSubs} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BboltStore{db: db}, nil
}

func (s *BboltStore) Close() error {
	return s.db.Close()
}

// UpsertUser stores a new or updated user profile.
func (s *BboltStore) UpsertUser(profile models.Profile) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		dbUser := &DBUser{
			ID:       profile.ID,
			Username: profile.Username,
			Email:    profile.Email,
		}
		data, err := dbUser.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbUser.Key(), data)
	})
}

func (s *BboltStore) GetUser(id string) (models.Profile, error) {
	var profile models.Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketUsers).Get([]byte(id))
		if data == nil {
			return models.ErrNotFound
		}
		var dbUser DBUser
		if err := dbUser.UnmarshalBinary(data); err != nil {
			return err
		}
		profile = models.Profile{
			ID:       dbUser.ID,
			Username: dbUser.Username,
			Email:    dbUser.Email,
		}
		return nil
	})
	return profile, err
}

// ListUsers returns all user profiles except the excluded ID.
func (s *BboltStore) ListUsers(excluding string) ([]models.Profile, error) {
	var users []models.Profile
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketUsers)
		return b.ForEach(func(k, v []byte) error {
			var dbUser DBUser
			if err := dbUser.UnmarshalBinary(v); err != nil {
				return err
			}
			if dbUser.ID == excluding {
				return nil
			}
			users = append(users, models.Profile{
				ID:       dbUser.ID,
				Username: dbUser.Username,
				Email:    dbUser.Email,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].Username < users[j].Username
	})
	return users, nil
}

// SaveMessage persists a message, assigning its ID and a per-room commit
// sequence. The returned copy carries the assigned ID.
func (s *BboltStore) SaveMessage(message models.Message) (models.Message, error) {
	if message.RoomKey == "" {
		return models.Message{}, errors.New("message missing room key")
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		roomBucket, err := tx.Bucket(bucketMessages).CreateBucketIfNotExists([]byte(message.RoomKey))
		if err != nil {
			return fmt.Errorf("failed to create room bucket: %w", err)
		}

		seq, err := roomBucket.NextSequence()
		if err != nil {
			return err
		}

		message.ID = uuid.NewString()
		dbMessage := DBMessage{
			Seq:         seq,
			ID:          message.ID,
			Timestamp:   message.Timestamp,
			RoomKey:     message.RoomKey,
			SenderID:    message.SenderID,
			RecipientID: message.RecipientID,
			Content:     message.Content,
		}

		data, err := dbMessage.MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}

		return roomBucket.Put(dbMessage.Key(), data)
	})
	if err != nil {
		return models.Message{}, err
	}

	return message, nil
}

// MessagesBetween returns the transcript of the two participants' canonical
// room, ascending by timestamp.
func (s *BboltStore) MessagesBetween(a, b string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		roomBucket := tx.Bucket(bucketMessages).Bucket([]byte(room.Key(a, b)))
		if roomBucket == nil {
			return nil // no messages yet
		}
		return roomBucket.ForEach(func(k, v []byte) error {
			var dbMsg DBMessage
			if err := dbMsg.UnmarshalBinary(v); err != nil {
				return err
			}
			messages = append(messages, models.Message{
				ID:          dbMsg.ID,
				SenderID:    dbMsg.SenderID,
				RecipientID: dbMsg.RecipientID,
				RoomKey:     dbMsg.RoomKey,
				Content:     dbMsg.Content,
				Timestamp:   dbMsg.Timestamp,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// Bucket order is commit order; client-supplied timestamps may differ.
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Timestamp < messages[j].Timestamp
	})
	return messages, nil
}

// DeleteAllMessages drops every persisted message in every room.
func (s *BboltStore) DeleteAllMessages() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketMessages); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketMessages)
		return err
	})
}

func (s *BboltStore) UpsertToken(token, userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		dbToken := &DBToken{
			UserID: userID,
			Token:  token,
		}
		data, err := dbToken.MarshalBinary()
		if err != nil {
			return err
		}
		return b.Put(dbToken.Key(), data)
	})
}

func (s *BboltStore) DeleteToken(token string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketTokens).Delete([]byte(token))
	})
}

func (s *BboltStore) ListTokens() (map[string]string, error) {
	tokens := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketTokens)
		return b.ForEach(func(k, v []byte) error {
			var dbToken DBToken
			if err := dbToken.UnmarshalBinary(v); err != nil {
				return err
			}
			tokens[dbToken.Token] = dbToken.UserID
			return nil
		})
	})
	return tokens, err
}

// UpsertPushSubscription stores a Web Push subscription in the user's
// nested bucket, keyed by endpoint so re-registration is idempotent.
func (s *BboltStore) UpsertPushSubscription(sub models.PushSubscription) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		userBucket, err := tx.Bucket(bucketPushSubs).CreateBucketIfNotExists([]byte(sub.UserID))
		if err != nil {
			return fmt.Errorf("failed to create subscription bucket: %w", err)
		}
		dbSub := &DBPushSubscription{
			UserID:   sub.UserID,
			Endpoint: sub.Endpoint,
			Auth:     sub.Auth,
			P256dh:   sub.P256dh,
		}
		data, err := dbSub.MarshalBinary()
		if err != nil {
			return err
		}
		return userBucket.Put(dbSub.Key(), data)
	})
}

func (s *BboltStore) ListPushSubscriptions(userID string) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.db.View(func(tx *bbolt.Tx) error {
		userBucket := tx.Bucket(bucketPushSubs).Bucket([]byte(userID))
		if userBucket == nil {
			return nil
		}
		return userBucket.ForEach(func(k, v []byte) error {
			var dbSub DBPushSubscription
			if err := dbSub.UnmarshalBinary(v); err != nil {
				return err
			}
			subs = append(subs, models.PushSubscription{
				UserID:   dbSub.UserID,
				Endpoint: dbSub.Endpoint,
				Auth:     dbSub.Auth,
				P256dh:   dbSub.P256dh,
			})
			return nil
		})
	})
	return subs, err
}
