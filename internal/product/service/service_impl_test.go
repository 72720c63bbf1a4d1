package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/productdesk/internal/clock"
	"github.com/smallbiznis/productdesk/internal/product/changefeed"
	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/smallbiznis/productdesk/internal/product/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func setupService(t *testing.T) (*Service, *gorm.DB, *clock.FakeClock, *changefeed.Hub) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Product{}))
	t.Cleanup(func() { _ = sqlDB.Close() })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(baseTime)
	hub := changefeed.NewHub()
	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: fake,
		Hub:   hub,
	}).(*Service)

	return svc, db, fake, hub
}

func price(v float64) *float64 { return &v }

func validRecord(name string) domain.Record {
	return domain.Record{
		Name:        name,
		Description: "A sturdy thing for testing",
		Price:       price(19.99),
		Category:    "Tools",
	}
}

func TestCreateTrimsAndStamps(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, domain.Record{
		Name:        "  Hammer  ",
		Description: "  Claw hammer, steel  ",
		Price:       price(12.5),
		Category:    " Tools ",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Hammer", got.Name)
	assert.Equal(t, "Claw hammer, steel", got.Description)
	assert.Equal(t, "Tools", got.Category)
	assert.Equal(t, 12.5, got.Price)
	assert.True(t, got.CreatedAt.Equal(baseTime))
	assert.True(t, got.UpdatedAt.Equal(baseTime))
}

func TestCreateRejectsMissingFields(t *testing.T) {
	svc, db, _, _ := setupService(t)

	_, err := svc.Create(context.Background(), domain.Record{Name: "   ", Category: "x"})
	require.Error(t, err)

	vErr := domain.AsValidationError(err)
	require.NotNil(t, vErr)
	assert.True(t, vErr.HasField("name"))
	assert.True(t, vErr.HasField("description"))
	assert.True(t, vErr.HasField("price"))
	assert.False(t, vErr.HasField("category"))

	var count int64
	require.NoError(t, db.Model(&domain.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListOnceNewestFirst(t *testing.T) {
	svc, _, fake, _ := setupService(t)
	ctx := context.Background()

	first, err := svc.Create(ctx, validRecord("First"))
	require.NoError(t, err)
	fake.Advance(time.Minute)
	second, err := svc.Create(ctx, validRecord("Second"))
	require.NoError(t, err)
	fake.Advance(time.Minute)
	third, err := svc.Create(ctx, validRecord("Third"))
	require.NoError(t, err)

	items, err := svc.ListOnce(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{third, second, first}, []string{items[0].ID, items[1].ID, items[2].ID})
}

func TestListOnceTieBreakIsStable(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, validRecord(fmt.Sprintf("Same %d", i)))
		require.NoError(t, err)
	}

	first, err := svc.ListOnce(ctx)
	require.NoError(t, err)
	second, err := svc.ListOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestUpdateKeepsCreatedAt(t *testing.T) {
	svc, _, fake, _ := setupService(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, validRecord("Saw"))
	require.NoError(t, err)

	fake.Advance(2 * time.Hour)
	err = svc.Update(ctx, id, domain.Record{
		Name:        "Hand saw",
		Description: "Cuts wood quickly",
		Price:       price(30),
		Category:    "Garden",
	})
	require.NoError(t, err)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "Hand saw", got.Name)
	assert.Equal(t, "Garden", got.Category)
	assert.Equal(t, 30.0, got.Price)
	assert.True(t, got.CreatedAt.Equal(baseTime))
	assert.True(t, got.UpdatedAt.Equal(baseTime.Add(2*time.Hour)))
}

func TestUpdateUnknownID(t *testing.T) {
	svc, _, _, _ := setupService(t)

	err := svc.Update(context.Background(), "1234567890", validRecord("Ghost"))
	assert.Equal(t, domain.CodeNotFound, domain.StoreErrorCodeOf(err))

	err = svc.Update(context.Background(), "not-an-id", validRecord("Ghost"))
	assert.Equal(t, domain.CodeNotFound, domain.StoreErrorCodeOf(err))
}

func TestUpdateRejectsMissingFields(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, validRecord("Drill"))
	require.NoError(t, err)

	err = svc.Update(ctx, id, domain.Record{Name: "Drill"})
	vErr := domain.AsValidationError(err)
	require.NotNil(t, vErr)
	assert.True(t, vErr.HasField("price"))
}

func TestRemove(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	id, err := svc.Create(ctx, validRecord("Wrench"))
	require.NoError(t, err)
	require.NoError(t, svc.Remove(ctx, id))

	_, err = svc.Get(ctx, id)
	assert.Equal(t, domain.CodeNotFound, domain.StoreErrorCodeOf(err))

	// Removing again is not distinguished as an error.
	assert.NoError(t, svc.Remove(ctx, id))
	assert.Equal(t, domain.CodeNotFound, domain.StoreErrorCodeOf(svc.Remove(ctx, "")))
}

func TestStoreErrorOnClosedDatabase(t *testing.T) {
	svc, db, _, _ := setupService(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	_, err = svc.ListOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.CodeUnavailable, domain.StoreErrorCodeOf(err))

	_, err = svc.Create(context.Background(), validRecord("Late"))
	assert.Equal(t, domain.CodeUnavailable, domain.StoreErrorCodeOf(err))
}

type pushRecorder struct {
	mu     sync.Mutex
	pushes [][]domain.Response
	errs   []error
	signal chan struct{}
}

func newPushRecorder() *pushRecorder {
	return &pushRecorder{signal: make(chan struct{}, 16)}
}

func (r *pushRecorder) onChange(items []domain.Response, err error) {
	r.mu.Lock()
	if err != nil {
		r.errs = append(r.errs, err)
	} else {
		r.pushes = append(r.pushes, items)
	}
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *pushRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.signal:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for push")
	}
}

func (r *pushRecorder) last() []domain.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushes[len(r.pushes)-1]
}

func (r *pushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pushes) + len(r.errs)
}

func TestSubscribePushesFullSetOnEveryChange(t *testing.T) {
	svc, _, fake, _ := setupService(t)
	ctx := context.Background()

	existing, err := svc.Create(ctx, validRecord("Existing"))
	require.NoError(t, err)

	rec := newPushRecorder()
	cancel, err := svc.Subscribe(ctx, rec.onChange)
	require.NoError(t, err)
	defer cancel()

	rec.wait(t)
	require.Len(t, rec.last(), 1)
	assert.Equal(t, existing, rec.last()[0].ID)

	fake.Advance(time.Second)
	created, err := svc.Create(ctx, validRecord("Fresh"))
	require.NoError(t, err)
	rec.wait(t)
	items := rec.last()
	require.Len(t, items, 2)
	assert.Equal(t, created, items[0].ID)

	require.NoError(t, svc.Remove(ctx, existing))
	rec.wait(t)
	items = rec.last()
	require.Len(t, items, 1)
	assert.Equal(t, created, items[0].ID)
}

func TestSubscribeCancelStopsCallbacks(t *testing.T) {
	svc, _, _, hub := setupService(t)
	ctx := context.Background()

	rec := newPushRecorder()
	cancel, err := svc.Subscribe(ctx, rec.onChange)
	require.NoError(t, err)
	rec.wait(t)

	cancel()
	cancel()
	assert.Equal(t, 0, hub.Subscribers(changefeed.TopicProducts))

	_, err = svc.Create(ctx, validRecord("Unseen"))
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count())
}

func TestSubscribeDeliversErrorAndEnds(t *testing.T) {
	svc, db, _, hub := setupService(t)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	rec := newPushRecorder()
	cancel, err := svc.Subscribe(context.Background(), rec.onChange)
	require.NoError(t, err)
	defer cancel()

	rec.wait(t)
	rec.mu.Lock()
	require.Len(t, rec.errs, 1)
	assert.Equal(t, domain.CodeUnavailable, domain.StoreErrorCodeOf(rec.errs[0]))
	rec.mu.Unlock()

	assert.Eventually(t, func() bool {
		return hub.Subscribers(changefeed.TopicProducts) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestSubscribersAreIndependent(t *testing.T) {
	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	a := newPushRecorder()
	cancelA, err := svc.Subscribe(ctx, a.onChange)
	require.NoError(t, err)
	b := newPushRecorder()
	cancelB, err := svc.Subscribe(ctx, b.onChange)
	require.NoError(t, err)
	defer cancelB()
	a.wait(t)
	b.wait(t)

	cancelA()
	_, err = svc.Create(ctx, validRecord("Only B"))
	require.NoError(t, err)
	b.wait(t)
	assert.Len(t, b.last(), 1)
	assert.Equal(t, 1, a.count())
}
