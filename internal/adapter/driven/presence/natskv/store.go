package natskv

import (
	"context"
	"encoding/base64"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/Wyydra/yacall/internal/core/port"
)

// Store keeps each online set in its own JetStream key-value bucket, one key
// per user. Keys are base64url encoded since KV keys have a narrow alphabet.
// Every call is bounded by the caller's context.
type Store struct {
	js      jetstream.JetStream
	storage jetstream.StorageType
	prefix  string

	mu      sync.Mutex
	buckets map[string]jetstream.KeyValue
}

var _ port.OnlineSetStore = (*Store)(nil)

func NewStore(nc *nats.Conn, prefix string, storage jetstream.StorageType) (*Store, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, errors.Wrap(err, "jetstream context")
	}
	return &Store{
		js:      js,
		storage: storage,
		prefix:  prefix,
		buckets: make(map[string]jetstream.KeyValue),
	}, nil
}

func (s *Store) AppendIfAbsent(ctx context.Context, set string, user domain.UserID) (bool, error) {
	kv, err := s.bucket(ctx, set)
	if err != nil {
		return false, err
	}
	key := encodeKey(user)
	if _, err := kv.Get(ctx, key); err == nil {
		return false, nil
	}
	if _, err := kv.Create(ctx, key, []byte(time.Now().UTC().Format(time.RFC3339Nano))); err != nil {
		// lost a race with another connect for the same user
		if _, gerr := kv.Get(ctx, key); gerr == nil {
			return false, nil
		}
		return false, errors.Wrapf(err, "create %s", user)
	}
	return true, nil
}

func (s *Store) Remove(ctx context.Context, set string, user domain.UserID) error {
	kv, err := s.bucket(ctx, set)
	if err != nil {
		return err
	}
	if err := kv.Delete(ctx, encodeKey(user)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return errors.Wrapf(err, "delete %s", user)
	}
	return nil
}

// List returns members ordered by the time their key was created.
func (s *Store) List(ctx context.Context, set string) ([]domain.UserID, error) {
	kv, err := s.bucket(ctx, set)
	if err != nil {
		return nil, err
	}
	keys, err := kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return []domain.UserID{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "list keys")
	}

	type member struct {
		user    domain.UserID
		created time.Time
	}
	members := make([]member, 0, len(keys))
	for _, k := range keys {
		entry, err := kv.Get(ctx, k)
		if err != nil {
			// deleted between Keys and Get
			continue
		}
		user, err := decodeKey(k)
		if err != nil {
			continue
		}
		members = append(members, member{user: user, created: entry.Created()})
	}
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].created.Equal(members[j].created) {
			return members[i].user < members[j].user
		}
		return members[i].created.Before(members[j].created)
	})

	users := make([]domain.UserID, 0, len(members))
	for _, m := range members {
		users = append(users, m.user)
	}
	return users, nil
}

func (s *Store) bucket(ctx context.Context, set string) (jetstream.KeyValue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kv, ok := s.buckets[set]; ok {
		return kv, nil
	}
	name := bucketName(s.prefix + set)
	kv, err := s.js.KeyValue(ctx, name)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = s.js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:  name,
			History: 1,
			Storage: s.storage,
		})
	}
	if err != nil {
		return nil, errors.Wrapf(err, "bind bucket %s", name)
	}
	s.buckets[set] = kv
	return kv, nil
}

func bucketName(set string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, set)
}

func encodeKey(user domain.UserID) string {
	return base64.RawURLEncoding.EncodeToString([]byte(user))
}

func decodeKey(key string) (domain.UserID, error) {
	b, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		return "", err
	}
	return domain.UserID(b), nil
}
