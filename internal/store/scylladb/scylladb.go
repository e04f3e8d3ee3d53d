// internal/store/scylladb/scylladb.go
package scylladb

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/avivl/quorum-guard/internal/lockservice"
	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/avivl/quorum-guard/internal/store"
	"github.com/gocql/gocql"
)

var (
	// ErrMultipleEndpointsUnsupported is returned when more than one endpoint is provided.
	ErrMultipleEndpointsUnsupported = errors.New("ScyllaDB only supports one endpoint")
	ErrConfigOptionMissing          = errors.New("ScyllaDB requires a config option")
)

// StoreName the name of the store.
const StoreName string = "scylladb"

func init() {
	lockservice.Register(StoreName, newStore)
}

func newStore(ctx context.Context, options lockservice.Config, logger *observability.SLogger) (store.LockStore, error) {
	cfg, ok := options.(*ScyllaDBConfig)
	if !ok && options != nil {
		return nil, &store.InvalidConfigurationError{Store: StoreName, Config: options}
	}
	return New(ctx, cfg, logger)
}

// Store implements store.LockStore with lightweight transactions. Every
// acquisition and release is a Paxos round at serial consistency; TTLs are
// whole seconds and sub-second leases round up.
type Store struct {
	session       session
	keyspaceName  string
	tableName     string
	fullTableName string
	ttl           time.Duration
	l             *observability.SLogger
	config        *ScyllaDBConfig

	trySetQuery   string
	releaseQuery  string
	getQuery      string
	listQuery     string
	forceDelQuery string
}

// GetConfig returns the current store configuration
func (s *Store) GetConfig() store.StoreConfig {
	return s.config
}

// New creates a new ScyllaDB store, creating the keyspace and table if missing.
func New(ctx context.Context, config *ScyllaDBConfig, logger *observability.SLogger) (*Store, error) {
	if config == nil {
		return nil, ErrConfigOptionMissing
	}
	if len(config.Endpoints) > 1 {
		return nil, ErrMultipleEndpointsUnsupported
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}

	host := config.Host + ":" + strconv.Itoa(int(config.Port))
	if len(config.Endpoints) == 1 {
		host = config.Endpoints[0]
	}
	consistency, _ := parseConsistency(config.Consistency)

	cluster := gocql.NewCluster(host)
	cluster.ProtoVersion = 4
	cluster.Consistency = consistency
	cluster.SerialConsistency = gocql.Serial

	sess, err := cluster.CreateSession()
	if err != nil {
		logger.Errorf("Error creating session: %v", err)
		return nil, store.Unreachable("create session", err)
	}

	s := newWithSession(config, gocqlSession{s: sess}, logger)
	if err := s.initSession(ctx); err != nil {
		sess.Close()
		return nil, err
	}
	return s, nil
}

func newWithSession(config *ScyllaDBConfig, sess session, logger *observability.SLogger) *Store {
	s := &Store{
		session:       sess,
		keyspaceName:  config.Keyspace,
		tableName:     config.Table,
		fullTableName: fmt.Sprintf(`"%s"."%s"`, config.Keyspace, config.Table),
		ttl:           config.TTL,
		l:             logger.Named(StoreName),
		config:        config,
	}
	s.trySetQuery = fmt.Sprintf("INSERT INTO %s (lock_key, token) VALUES (?, ?) IF NOT EXISTS USING TTL ?", s.fullTableName)
	s.releaseQuery = fmt.Sprintf("DELETE FROM %s WHERE lock_key = ? IF token = ?", s.fullTableName)
	s.getQuery = fmt.Sprintf("SELECT token FROM %s WHERE lock_key = ?", s.fullTableName)
	s.listQuery = fmt.Sprintf("SELECT lock_key FROM %s", s.fullTableName)
	s.forceDelQuery = fmt.Sprintf("DELETE FROM %s WHERE lock_key = ?", s.fullTableName)
	return s
}

func (s *Store) initSession(ctx context.Context) error {
	if err := s.validateKeyspace(ctx); err != nil {
		return err
	}
	return s.validateTable(ctx)
}

func (s *Store) validateKeyspace(ctx context.Context) error {
	rf := s.config.ReplicationFactor
	if rf == 0 {
		rf = 3
	}
	err := s.session.Query(fmt.Sprintf(`CREATE KEYSPACE IF NOT EXISTS "%s"
	WITH replication = {
		'class' : 'SimpleStrategy',
		'replication_factor' : %d
	}`, s.keyspaceName, rf)).WithContext(ctx).Exec()
	if err != nil {
		s.l.Errorf("Error creating keyspace: %v", err)
		return fmt.Errorf("create keyspace: %w", err)
	}
	return nil
}

func (s *Store) validateTable(ctx context.Context) error {
	err := s.session.Query(fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s
	(lock_key text PRIMARY KEY,
	token text)
	WITH default_time_to_live = %d`, s.fullTableName, ttlSeconds(s.ttl))).WithContext(ctx).Exec()
	if err != nil {
		s.l.Errorf("Error creating table: %v", err)
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// ttlSeconds rounds up to whole seconds, with a floor of one
func ttlSeconds(d time.Duration) int {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// TrySet implements store.LockStore.
func (s *Store) TrySet(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}
	ttl = store.ResolveTTL(ttl, s.ttl)

	var existingKey, existingToken string
	applied, err := s.session.Query(s.trySetQuery, key, token, ttlSeconds(ttl)).
		WithContext(ctx).
		ScanCAS(&existingKey, &existingToken)
	if err != nil {
		return false, store.Unreachable("insert if not exists", err)
	}
	return applied, nil
}

// DeleteIfOwned implements store.LockStore.
func (s *Store) DeleteIfOwned(ctx context.Context, key, token string) (bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}

	var current string
	applied, err := s.session.Query(s.releaseQuery, key, token).
		WithContext(ctx).
		ScanCAS(&current)
	if err != nil {
		return false, store.Unreachable("delete if owned", err)
	}
	return applied, nil
}

// Get implements store.LockStore.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return "", false, err
	}

	var token string
	err := s.session.Query(s.getQuery, key).WithContext(ctx).Scan(&token)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return "", false, nil
		}
		return "", false, store.Unreachable("select", err)
	}
	return token, true, nil
}

// DeleteMatching implements store.LockStore. It reads every partition key,
// so it is meant for administrative use on lock tables only.
func (s *Store) DeleteMatching(ctx context.Context, pattern string) (int64, error) {
	if pattern == "" {
		return 0, store.ErrInvalidKey
	}

	var matched []string
	it := s.session.Query(s.listQuery).WithContext(ctx).Iter()
	var key string
	for it.Scan(&key) {
		if store.MatchPattern(pattern, key) {
			matched = append(matched, key)
		}
	}
	if err := it.Close(); err != nil {
		return 0, store.Unreachable("list", err)
	}

	var deleted int64
	for _, k := range matched {
		if err := s.session.Query(s.forceDelQuery, k).WithContext(ctx).Exec(); err != nil {
			return deleted, store.Unreachable("delete", err)
		}
		deleted++
	}

	s.l.Debugw("deleted matching keys", "pattern", pattern, "count", deleted)
	return deleted, nil
}

// Close the store connection.
func (s *Store) Close() {
	s.session.Close()
}
