package repositorycache

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-catalog-templates/cache"
	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// TestTemplate represents a test entity
type TestTemplate struct {
	ID           int64
	Name         string
	DisplayOrder int
}

// mockRepository tracks method calls for testing
type mockRepository[T any] struct {
	mu          sync.Mutex
	calls       []string
	table       string
	getResult   T
	getError    error
	listRecords []T
	listError   error
	writeError  error

	// listGate, when set, holds the next List call until closed.
	listGate    chan struct{}
	listStarted chan struct{}
}

func (m *mockRepository[T]) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

func (m *mockRepository[T]) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRepository[T]) clearCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func (m *mockRepository[T]) countCalls(method string) int {
	n := 0
	for _, c := range m.getCalls() {
		if c == method {
			n++
		}
	}
	return n
}

func (m *mockRepository[T]) setRecords(records []T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listRecords = records
}

func (m *mockRepository[T]) Get(ctx context.Context, criteria ...repository.SelectCriteria) (T, error) {
	m.recordCall("Get")
	return m.getResult, m.getError
}

func (m *mockRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	m.recordCall("GetByID")
	return m.getResult, m.getError
}

func (m *mockRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.mu.Lock()
	m.calls = append(m.calls, "List")
	records := m.listRecords
	gate := m.listGate
	m.listGate = nil
	m.mu.Unlock()

	if gate != nil {
		m.listStarted <- struct{}{}
		<-gate
	}
	return records, len(records), m.listError
}

func (m *mockRepository[T]) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	m.recordCall("Count")
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listRecords), m.listError
}

func (m *mockRepository[T]) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	m.recordCall("GetByIdentifier")
	return m.getResult, m.getError
}

func (m *mockRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	m.recordCall("Create")
	return record, m.writeError
}

func (m *mockRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.recordCall("Update")
	return record, m.writeError
}

func (m *mockRepository[T]) Upsert(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.recordCall("Upsert")
	return record, m.writeError
}

func (m *mockRepository[T]) Delete(ctx context.Context, record T) error {
	m.recordCall("Delete")
	return m.writeError
}

func (m *mockRepository[T]) ForceDelete(ctx context.Context, record T) error {
	m.recordCall("ForceDelete")
	return m.writeError
}

// Other methods that panic to ensure they're not called during our tests
func (m *mockRepository[T]) Raw(ctx context.Context, sql string, args ...any) ([]T, error) {
	panic("Raw not implemented in mock")
}
func (m *mockRepository[T]) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]T, error) {
	panic("RawTx not implemented in mock")
}
func (m *mockRepository[T]) GetTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (T, error) {
	panic("GetTx not implemented in mock")
}
func (m *mockRepository[T]) GetByIDTx(ctx context.Context, tx bun.IDB, id string, criteria ...repository.SelectCriteria) (T, error) {
	panic("GetByIDTx not implemented in mock")
}
func (m *mockRepository[T]) ListTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) ([]T, int, error) {
	panic("ListTx not implemented in mock")
}
func (m *mockRepository[T]) CountTx(ctx context.Context, tx bun.IDB, criteria ...repository.SelectCriteria) (int, error) {
	panic("CountTx not implemented in mock")
}
func (m *mockRepository[T]) CreateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.InsertCriteria) (T, error) {
	panic("CreateTx not implemented in mock")
}
func (m *mockRepository[T]) CreateMany(ctx context.Context, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	panic("CreateMany not implemented in mock")
}
func (m *mockRepository[T]) CreateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.InsertCriteria) ([]T, error) {
	panic("CreateManyTx not implemented in mock")
}
func (m *mockRepository[T]) GetOrCreate(ctx context.Context, record T) (T, error) {
	panic("GetOrCreate not implemented in mock")
}
func (m *mockRepository[T]) GetOrCreateTx(ctx context.Context, tx bun.IDB, record T) (T, error) {
	panic("GetOrCreateTx not implemented in mock")
}
func (m *mockRepository[T]) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (T, error) {
	panic("GetByIdentifierTx not implemented in mock")
}
func (m *mockRepository[T]) UpdateTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	panic("UpdateTx not implemented in mock")
}
func (m *mockRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	panic("UpdateMany not implemented in mock")
}
func (m *mockRepository[T]) UpdateManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	panic("UpdateManyTx not implemented in mock")
}
func (m *mockRepository[T]) UpsertTx(ctx context.Context, tx bun.IDB, record T, criteria ...repository.UpdateCriteria) (T, error) {
	panic("UpsertTx not implemented in mock")
}
func (m *mockRepository[T]) UpsertMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	panic("UpsertMany not implemented in mock")
}
func (m *mockRepository[T]) UpsertManyTx(ctx context.Context, tx bun.IDB, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	panic("UpsertManyTx not implemented in mock")
}
func (m *mockRepository[T]) DeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	panic("DeleteTx not implemented in mock")
}
func (m *mockRepository[T]) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	panic("DeleteMany not implemented in mock")
}
func (m *mockRepository[T]) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	panic("DeleteManyTx not implemented in mock")
}
func (m *mockRepository[T]) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	panic("DeleteWhere not implemented in mock")
}
func (m *mockRepository[T]) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	panic("DeleteWhereTx not implemented in mock")
}
func (m *mockRepository[T]) ForceDeleteTx(ctx context.Context, tx bun.IDB, record T) error {
	panic("ForceDeleteTx not implemented in mock")
}
func (m *mockRepository[T]) Handlers() repository.ModelHandlers[T] {
	panic("Handlers not implemented in mock")
}

type tableMockRepository[T any] struct {
	*mockRepository[T]
}

func (m tableMockRepository[T]) TableName() string { return m.table }

// recordingCache is an in-memory CacheService that records invalidations.
type recordingCache struct {
	mu             sync.Mutex
	data           map[string]any
	prefixes       []string
	deleteByPrefix error
}

func newRecordingCache() *recordingCache {
	return &recordingCache{data: map[string]any{}}
}

func (c *recordingCache) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	c.mu.Lock()
	if v, ok := c.data[key]; ok {
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	out := reflect.ValueOf(fetchFn).Call([]reflect.Value{reflect.ValueOf(ctx)})
	if err, _ := out[1].Interface().(error); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = out[0].Interface()
	return c.data[key], nil
}

func (c *recordingCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *recordingCache) DeleteByPrefix(ctx context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefixes = append(c.prefixes, prefix)
	if c.deleteByPrefix != nil {
		return c.deleteByPrefix
	}
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return nil
}

func (c *recordingCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

func sampleTemplates() []*TestTemplate {
	return []*TestTemplate{
		{ID: 2, Name: "Grid", DisplayOrder: 10},
		{ID: 1, Name: "Default", DisplayOrder: 20},
	}
}

func TestNew_Namespace(t *testing.T) {
	c := newRecordingCache()
	ks := cache.NewDefaultKeySerializer()

	tests := []struct {
		name string
		repo repository.Repository[*TestTemplate]
		opts []Option
		want string
	}{
		{
			name: "derived from model type",
			repo: &mockRepository[*TestTemplate]{},
			want: "test_template",
		},
		{
			name: "table name from base",
			repo: tableMockRepository[*TestTemplate]{&mockRepository[*TestTemplate]{table: "category_template"}},
			want: "category_template",
		},
		{
			name: "explicit option wins",
			repo: tableMockRepository[*TestTemplate]{&mockRepository[*TestTemplate]{table: "category_template"}},
			opts: []Option{WithNamespace("custom")},
			want: "custom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cached := New(tt.repo, c, ks, tt.opts...)
			if got := cached.Namespace(); got != tt.want {
				t.Errorf("expected namespace %q, got %q", tt.want, got)
			}
		})
	}
}

func TestCachedRepository_Key(t *testing.T) {
	cached := New[*TestTemplate](&mockRepository[*TestTemplate]{}, newRecordingCache(), cache.NewDefaultKeySerializer(),
		WithNamespace("product_review_review_type_mapping"))

	tests := []struct {
		query Query
		want  string
	}{
		{Query{Name: "all"}, "product_review_review_type_mapping::List::all"},
		{Query{Name: "by_product_review", Args: []any{int64(5)}}, "product_review_review_type_mapping::List::by_product_review::5"},
	}

	for _, tt := range tests {
		if got := cached.Key(tt.query); got != tt.want {
			t.Errorf("expected key %q, got %q", tt.want, got)
		}
	}
}

func TestCachedRepository_ListBy(t *testing.T) {
	mock := &mockRepository[*TestTemplate]{listRecords: sampleTemplates()}
	c := newRecordingCache()
	cached := New[*TestTemplate](mock, c, cache.NewDefaultKeySerializer())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		records, err := cached.ListBy(ctx, Query{Name: "all"})
		if err != nil {
			t.Fatalf("expected no error but got: %v", err)
		}
		if len(records) != 2 || records[0].ID != 2 {
			t.Fatalf("unexpected records %+v", records)
		}
	}

	if n := mock.countCalls("List"); n != 1 {
		t.Errorf("expected base List once, got %d", n)
	}

	if _, err := cached.ListBy(ctx, Query{Name: "by_parent", Args: []any{5}}); err != nil {
		t.Fatal(err)
	}
	if n := mock.countCalls("List"); n != 2 {
		t.Errorf("expected distinct query to miss, base List called %d times", n)
	}
}

func TestCachedRepository_ListBy_Error(t *testing.T) {
	listErr := errors.New("db down")
	mock := &mockRepository[*TestTemplate]{listError: listErr}
	c := newRecordingCache()
	cached := New[*TestTemplate](mock, c, cache.NewDefaultKeySerializer())

	records, err := cached.ListBy(context.Background(), Query{Name: "all"})
	if !errors.Is(err, listErr) {
		t.Fatalf("expected list error, got %v", err)
	}
	if records != nil {
		t.Errorf("expected nil records, got %+v", records)
	}
	if len(c.keys()) != 0 {
		t.Error("failed fetch must not be cached")
	}
}

func TestCachedRepository_PassThroughReads(t *testing.T) {
	want := &TestTemplate{ID: 7, Name: "Simple"}
	mock := &mockRepository[*TestTemplate]{getResult: want, listRecords: sampleTemplates()}
	c := newRecordingCache()
	cached := New[*TestTemplate](mock, c, cache.NewDefaultKeySerializer())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := cached.GetByID(ctx, "7")
		if err != nil || got != want {
			t.Fatalf("unexpected GetByID result %v, %v", got, err)
		}
		if _, total, err := cached.List(ctx, repository.OrderBy("id")); err != nil || total != 2 {
			t.Fatalf("unexpected List result %d, %v", total, err)
		}
		if n, err := cached.Count(ctx); err != nil || n != 2 {
			t.Fatalf("unexpected Count result %d, %v", n, err)
		}
	}

	if mock.countCalls("GetByID") != 2 || mock.countCalls("List") != 2 || mock.countCalls("Count") != 2 {
		t.Errorf("expected reads to pass through, calls: %v", mock.getCalls())
	}
	if len(c.keys()) != 0 {
		t.Errorf("expected nothing cached, got %v", c.keys())
	}
}

func TestCachedRepository_WritesInvalidateNamespace(t *testing.T) {
	writes := map[string]func(*CachedRepository[*TestTemplate], context.Context, *TestTemplate) error{
		"Create": func(c *CachedRepository[*TestTemplate], ctx context.Context, r *TestTemplate) error {
			_, err := c.Create(ctx, r)
			return err
		},
		"Update": func(c *CachedRepository[*TestTemplate], ctx context.Context, r *TestTemplate) error {
			_, err := c.Update(ctx, r)
			return err
		},
		"Upsert": func(c *CachedRepository[*TestTemplate], ctx context.Context, r *TestTemplate) error {
			_, err := c.Upsert(ctx, r)
			return err
		},
		"Delete":      (*CachedRepository[*TestTemplate]).Delete,
		"ForceDelete": (*CachedRepository[*TestTemplate]).ForceDelete,
	}

	for method, write := range writes {
		t.Run(method, func(t *testing.T) {
			mock := &mockRepository[*TestTemplate]{listRecords: sampleTemplates()}
			c := newRecordingCache()
			ks := cache.NewDefaultKeySerializer()
			cached := New[*TestTemplate](mock, c, ks, WithNamespace("category_template"))
			other := New[*TestTemplate](mock, c, ks, WithNamespace("manufacturer_template"))
			ctx := context.Background()

			cached.ListBy(ctx, Query{Name: "all"})
			cached.ListBy(ctx, Query{Name: "by_parent", Args: []any{5}})
			other.ListBy(ctx, Query{Name: "all"})
			mock.clearCalls()

			if err := write(cached, ctx, &TestTemplate{ID: 1}); err != nil {
				t.Fatalf("expected no error but got: %v", err)
			}

			if calls := mock.getCalls(); len(calls) != 1 || calls[0] != method {
				t.Errorf("expected single %s call, got %v", method, calls)
			}
			keys := c.keys()
			if len(keys) != 1 || keys[0] != "manufacturer_template::List::all" {
				t.Errorf("expected only the other namespace to survive, got %v", keys)
			}

			cached.ListBy(ctx, Query{Name: "all"})
			if n := mock.countCalls("List"); n != 1 {
				t.Errorf("expected refetch after %s, base List called %d times", method, n)
			}
		})
	}
}

func TestCachedRepository_FailedWriteKeepsCache(t *testing.T) {
	writeErr := goerrors.New("missing", goerrors.CategoryNotFound)
	mock := &mockRepository[*TestTemplate]{listRecords: sampleTemplates(), writeError: writeErr}
	c := newRecordingCache()
	cached := New[*TestTemplate](mock, c, cache.NewDefaultKeySerializer())
	ctx := context.Background()

	cached.ListBy(ctx, Query{Name: "all"})

	if _, err := cached.Update(ctx, &TestTemplate{ID: 9}); !goerrors.IsNotFound(err) {
		t.Fatalf("expected write error to propagate, got %v", err)
	}
	if len(c.prefixes) != 0 {
		t.Errorf("expected no invalidation, got %v", c.prefixes)
	}
	if len(c.keys()) != 1 {
		t.Errorf("expected cached list to survive, got %v", c.keys())
	}
}

func TestCachedRepository_InvalidationError(t *testing.T) {
	mock := &mockRepository[*TestTemplate]{}
	c := newRecordingCache()
	c.deleteByPrefix = errors.New("redis down")
	cached := New[*TestTemplate](mock, c, cache.NewDefaultKeySerializer())

	_, err := cached.Create(context.Background(), &TestTemplate{Name: "x"})
	if !goerrors.IsCategory(err, goerrors.CategoryExternal) {
		t.Fatalf("expected external error, got %v", err)
	}
	if !errors.Is(err, c.deleteByPrefix) {
		t.Error("expected source error to be preserved")
	}
}

func TestCachedRepository_PrefixedSerializer(t *testing.T) {
	mock := &mockRepository[*TestTemplate]{listRecords: sampleTemplates()}
	c := newRecordingCache()
	cached := New[*TestTemplate](mock, c, cache.NewPrefixedKeySerializer("shop"), WithNamespace("review_type"))
	ctx := context.Background()

	cached.ListBy(ctx, Query{Name: "all"})
	if keys := c.keys(); len(keys) != 1 || keys[0] != "shop::review_type::List::all" {
		t.Fatalf("unexpected keys %v", keys)
	}

	if _, err := cached.Create(ctx, &TestTemplate{}); err != nil {
		t.Fatal(err)
	}
	if len(c.prefixes) != 1 || c.prefixes[0] != "shop::review_type::" {
		t.Errorf("expected prefixed invalidation, got %v", c.prefixes)
	}
	if len(c.keys()) != 0 {
		t.Errorf("expected prefixed keys to be invalidated, got %v", c.keys())
	}
}

func TestCachedRepository_WithSturdyc(t *testing.T) {
	service, err := cache.NewCacheService(context.Background(), cache.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}

	mock := &mockRepository[*TestTemplate]{listRecords: sampleTemplates()}
	cached := New[*TestTemplate](mock, service, cache.NewDefaultKeySerializer())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := cached.ListBy(ctx, Query{Name: "all"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := cached.Delete(ctx, &TestTemplate{ID: 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.ListBy(ctx, Query{Name: "all"}); err != nil {
		t.Fatal(err)
	}

	if n := mock.countCalls("List"); n != 2 {
		t.Errorf("expected 2 base List calls, got %d", n)
	}
}

func TestCachedRepository_WriteDuringListFetchIsNotCached(t *testing.T) {
	tests := []struct {
		name       string
		cache      func(t *testing.T) cache.CacheService
		sameWriter bool
	}{
		{name: "sturdyc, same decorator", cache: sturdycCache, sameWriter: true},
		{name: "sturdyc, sibling decorator", cache: sturdycCache},
		{name: "recording cache, same decorator", cache: func(*testing.T) cache.CacheService { return newRecordingCache() }, sameWriter: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stale := sampleTemplates()
			fresh := append(sampleTemplates(), &TestTemplate{ID: 3, Name: "Lines", DisplayOrder: 30})

			gate := make(chan struct{})
			mock := &mockRepository[*TestTemplate]{
				listRecords: stale,
				listGate:    gate,
				listStarted: make(chan struct{}, 1),
			}
			c := tt.cache(t)
			ks := cache.NewDefaultKeySerializer()
			reader := New[*TestTemplate](mock, c, ks, WithNamespace("overlap_template"))
			writer := reader
			if !tt.sameWriter {
				writer = New[*TestTemplate](mock, c, ks, WithNamespace("overlap_template"))
			}
			ctx := context.Background()

			type result struct {
				records []*TestTemplate
				err     error
			}
			done := make(chan result, 1)
			go func() {
				records, err := reader.ListBy(ctx, Query{Name: "all"})
				done <- result{records, err}
			}()

			select {
			case <-mock.listStarted:
			case <-time.After(time.Second):
				t.Fatal("list fetch never started")
			}

			mock.setRecords(fresh)
			if _, err := writer.Create(ctx, fresh[2]); err != nil {
				t.Fatalf("expected no error but got: %v", err)
			}
			close(gate)

			var first result
			select {
			case first = <-done:
			case <-time.After(time.Second):
				t.Fatal("list fetch never returned")
			}
			if first.err != nil {
				t.Fatalf("expected no error but got: %v", first.err)
			}
			if len(first.records) != 3 {
				t.Errorf("expected the overlapping read to return fresh rows, got %d", len(first.records))
			}

			for i := 0; i < 3; i++ {
				records, err := reader.ListBy(ctx, Query{Name: "all"})
				if err != nil {
					t.Fatal(err)
				}
				if len(records) != 3 {
					t.Fatalf("read %d after the write returned %d rows, expected 3", i, len(records))
				}
			}
		})
	}
}

func sturdycCache(t *testing.T) cache.CacheService {
	t.Helper()
	service, err := cache.NewCacheService(context.Background(), cache.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return service
}
