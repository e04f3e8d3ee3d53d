// internal/store/scylladb/mock_test.go
package scylladb

import (
	"context"
	"time"

	"github.com/avivl/quorum-guard/internal/observability"
	"github.com/stretchr/testify/mock"
)

// MockSession is a mock implementation of session
type MockSession struct {
	mock.Mock
}

func (m *MockSession) Close() {
	m.Called()
}

func (m *MockSession) Query(stmt string, values ...interface{}) query {
	args := m.Called(stmt, values)
	return args.Get(0).(query)
}

// MockQuery is a mock implementation of query
type MockQuery struct {
	mock.Mock
}

func (m *MockQuery) WithContext(ctx context.Context) query {
	return m
}

func (m *MockQuery) Exec() error {
	args := m.Called()
	return args.Error(0)
}

// Scan writes the first return value into dest[0] when it is a string
func (m *MockQuery) Scan(dest ...interface{}) error {
	args := m.Called()
	if v, ok := args.Get(0).(string); ok && len(dest) > 0 {
		*dest[0].(*string) = v
	}
	return args.Error(1)
}

func (m *MockQuery) ScanCAS(dest ...interface{}) (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

func (m *MockQuery) Iter() iter {
	args := m.Called()
	return args.Get(0).(iter)
}

// sliceIter yields a fixed list of keys
type sliceIter struct {
	keys []string
	err  error
}

func (s *sliceIter) Scan(dest ...interface{}) bool {
	if len(s.keys) == 0 {
		return false
	}
	*dest[0].(*string) = s.keys[0]
	s.keys = s.keys[1:]
	return true
}

func (s *sliceIter) Close() error {
	return s.err
}

// setupStoreWithMocks creates a Store over a mocked session
func setupStoreWithMocks() (*Store, *MockSession) {
	sess := new(MockSession)
	logger, _, _ := observability.NewTestLogger()
	config := &ScyllaDBConfig{
		Host:        "localhost",
		Port:        9042,
		Keyspace:    "test_keyspace",
		Table:       "test_table",
		TTL:         15 * time.Second,
		Consistency: "CONSISTENCY_QUORUM",
	}
	return newWithSession(config, sess, logger), sess
}
