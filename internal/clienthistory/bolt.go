package clienthistory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

const clientsBucketName = "clients"

// BoltStore keeps each client's projects as one JSON value in a bbolt file.
type BoltStore struct {
	db     *bolt.DB
	logger *zap.Logger
}

// OpenBoltStore opens the bbolt file at path, creating it if needed.
func OpenBoltStore(logger *zap.Logger, path string) (*BoltStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir client history path: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open client history: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(clientsBucketName))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &BoltStore{db: db, logger: logger}, nil
}

func (s *BoltStore) projects(tx *bolt.Tx, client string) ([]Project, error) {
	data := tx.Bucket([]byte(clientsBucketName)).Get([]byte(client))
	if len(data) == 0 {
		return nil, nil
	}
	var projects []Project
	if err := json.Unmarshal(data, &projects); err != nil {
		return nil, fmt.Errorf("decode history of %q: %w", client, err)
	}
	return projects, nil
}

// Record implements Store.
func (s *BoltStore) Record(ctx context.Context, p Project) error {
	if err := p.validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		projects, err := s.projects(tx, p.ClientName)
		if err != nil {
			return err
		}
		replaced := false
		for i := range projects {
			if projects[i].ProjectName == p.ProjectName && projects[i].CloseDate.Equal(p.CloseDate) {
				projects[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			projects = append(projects, p)
		}
		data, err := json.Marshal(projects)
		if err != nil {
			return err
		}
		return tx.Bucket([]byte(clientsBucketName)).Put([]byte(p.ClientName), data)
	})
}

// Lookup implements Store.
func (s *BoltStore) Lookup(ctx context.Context, client string, amount decimal.Decimal) (Defaults, bool, error) {
	if err := ctx.Err(); err != nil {
		return Defaults{}, false, err
	}
	var projects []Project
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		projects, err = s.projects(tx, client)
		return err
	})
	if err != nil {
		return Defaults{}, false, err
	}
	d, ok := summarize(projects, amount)
	return d, ok, nil
}

// Stats implements Store.
func (s *BoltStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	var st Stats
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(clientsBucketName)).ForEach(func(k, v []byte) error {
			var projects []Project
			if err := json.Unmarshal(v, &projects); err != nil {
				s.logger.Warn("skipping undecodable client history",
					zap.String("op", "clienthistory.BoltStore.Stats"),
					zap.String("client", string(k)),
					zap.Error(err),
				)
				return nil
			}
			st.Clients++
			st.Projects += len(projects)
			return nil
		})
	})
	return st, err
}

// Close implements Store.
func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
