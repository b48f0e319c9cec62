// Package boltdb stores turns and credentials in a single local bbolt file, for
// development and single-node deployments.
package boltdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"slack-relay/internal/domain"
)

var (
	bucketThreads     = []byte("threads")
	bucketMarkers     = []byte("turn_markers")
	bucketCredentials = []byte("tenant_credentials")
)

// sortableTime keeps a fixed width so byte order equals time order.
const sortableTime = "2006-01-02T15:04:05.000000000Z"

type storedTurn struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	Channel    string    `json:"channel"`
	ThreadRoot string    `json:"thread_root"`
	TurnTS     string    `json:"turn_ts,omitempty"`
	Role       string    `json:"role"`
	AuthorID   string    `json:"author_id,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

type storedCredential struct {
	TenantID  string    `json:"tenant_id"`
	Token     string    `json:"token"`
	BotUserID string    `json:"bot_user_id,omitempty"`
	TeamName  string    `json:"team_name,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store implements the conversation and credential stores on bbolt.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("boltdb: path must not be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("boltdb: create dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("boltdb: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketThreads, bucketMarkers, bucketCredentials} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("boltdb: init buckets: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func threadKey(k domain.ThreadKey) []byte {
	return []byte(k.TenantID + "#" + k.Channel + "#" + k.ThreadRoot)
}

func turnKey(t domain.Turn) []byte {
	return []byte(t.CreatedAt.UTC().Format(sortableTime) + "#" + t.ID)
}

func markerKey(t domain.Turn) []byte {
	return append(append(threadKey(t.Thread()), '|'), []byte(string(t.Role)+"|"+t.TurnTS)...)
}

// Append writes the turn and its idempotency marker in one transaction.
func (s *Store) Append(ctx context.Context, turn domain.Turn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(turn.ID) == "" || strings.TrimSpace(turn.TenantID) == "" ||
		strings.TrimSpace(turn.Channel) == "" || strings.TrimSpace(turn.ThreadRoot) == "" {
		return errors.New("boltdb: turn id, tenant, channel and thread root are required")
	}
	if turn.CreatedAt.IsZero() {
		return errors.New("boltdb: turn created-at is required")
	}
	enc, err := json.Marshal(storedTurn{
		ID:         turn.ID,
		TenantID:   turn.TenantID,
		Channel:    turn.Channel,
		ThreadRoot: turn.ThreadRoot,
		TurnTS:     turn.TurnTS,
		Role:       string(turn.Role),
		AuthorID:   turn.AuthorID,
		Text:       turn.Text,
		CreatedAt:  turn.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("boltdb: encode turn: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if turn.TurnTS != "" {
			markers := tx.Bucket(bucketMarkers)
			mk := markerKey(turn)
			if markers.Get(mk) != nil {
				return domain.ErrDuplicateTurn
			}
			if err := markers.Put(mk, []byte(turn.ID)); err != nil {
				return err
			}
		}
		thread, err := tx.Bucket(bucketThreads).CreateBucketIfNotExists(threadKey(turn.Thread()))
		if err != nil {
			return err
		}
		return thread.Put(turnKey(turn), enc)
	})
}

// RecentWindow returns at most limit turns of the thread, oldest first.
func (s *Store) RecentWindow(ctx context.Context, key domain.ThreadKey, limit int) ([]domain.Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	turns := []domain.Turn{}
	if limit <= 0 {
		return turns, nil
	}
	err := s.db.View(func(tx *bolt.Tx) error {
		thread := tx.Bucket(bucketThreads).Bucket(threadKey(key))
		if thread == nil {
			return nil
		}
		c := thread.Cursor()
		for k, v := c.Last(); k != nil && len(turns) < limit; k, v = c.Prev() {
			var st storedTurn
			if err := json.Unmarshal(v, &st); err != nil {
				return fmt.Errorf("decode turn %s: %w", k, err)
			}
			turns = append(turns, domain.Turn{
				ID:         st.ID,
				TenantID:   st.TenantID,
				Channel:    st.Channel,
				ThreadRoot: st.ThreadRoot,
				TurnTS:     st.TurnTS,
				Role:       domain.Role(st.Role),
				AuthorID:   st.AuthorID,
				Text:       st.Text,
				CreatedAt:  st.CreatedAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("boltdb: RecentWindow: %w", err)
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *Store) Resolve(ctx context.Context, tenantID string) (domain.TenantCredential, error) {
	if err := ctx.Err(); err != nil {
		return domain.TenantCredential{}, err
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.TenantCredential{}, errors.New("boltdb: tenant id is required")
	}
	var sc storedCredential
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCredentials).Get([]byte(tenantID))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &sc)
	})
	if err != nil {
		return domain.TenantCredential{}, fmt.Errorf("boltdb: Resolve: %w", err)
	}
	if !found {
		return domain.TenantCredential{}, domain.ErrNotFound
	}
	return domain.TenantCredential{
		TenantID:  sc.TenantID,
		Token:     sc.Token,
		BotUserID: sc.BotUserID,
		TeamName:  sc.TeamName,
		UpdatedAt: sc.UpdatedAt,
	}, nil
}

// Upsert replaces the tenant's credential.
func (s *Store) Upsert(ctx context.Context, cred domain.TenantCredential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cred.TenantID = strings.TrimSpace(cred.TenantID)
	if cred.TenantID == "" || strings.TrimSpace(cred.Token) == "" {
		return errors.New("boltdb: tenant id and token are required")
	}
	updated := cred.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	enc, err := json.Marshal(storedCredential{
		TenantID:  cred.TenantID,
		Token:     cred.Token,
		BotUserID: cred.BotUserID,
		TeamName:  cred.TeamName,
		UpdatedAt: updated.UTC(),
	})
	if err != nil {
		return fmt.Errorf("boltdb: encode credential: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCredentials).Put([]byte(cred.TenantID), enc)
	})
}
