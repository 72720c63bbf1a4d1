package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/productdesk/internal/clock"
	"github.com/smallbiznis/productdesk/internal/metrics"
	"github.com/smallbiznis/productdesk/internal/product/changefeed"
	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/smallbiznis/productdesk/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	Clock    clock.Clock
	Hub      *changefeed.Hub
	Notifier changefeed.Notifier
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	hub      *changefeed.Hub
	notifier changefeed.Notifier
	metrics  *metrics.Metrics
}

func New(p Params) domain.Service {
	notifier := p.Notifier
	if notifier == nil {
		notifier = p.Hub
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("product.service"),
		repo:     p.Repo,
		genID:    p.GenID,
		clock:    p.Clock,
		hub:      p.Hub,
		notifier: notifier,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, rec domain.Record) (string, error) {
	clean, err := checkRecord(rec)
	if err != nil {
		s.metrics.RecordStoreOp("create", metrics.ResultInvalid)
		return "", err
	}

	now := s.now()
	p := &domain.Product{
		ID:          s.genID.Generate().Int64(),
		Name:        clean.Name,
		Description: clean.Description,
		Price:       *clean.Price,
		Category:    clean.Category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.repo.Create(ctx, s.db, p)
	if db.IsDuplicateKeyErr(err) {
		// Another instance configured with the same snowflake node.
		s.log.Warn("product id collision, retrying", zap.Int64("id", p.ID))
		p.ID = s.genID.Generate().Int64()
		err = s.repo.Create(ctx, s.db, p)
	}
	if err != nil {
		return "", s.fail("create", err)
	}

	id := snowflake.ID(p.ID).String()
	s.metrics.RecordStoreOp("create", metrics.ResultOK)
	s.publish(ctx, changefeed.OpCreate, id, now)
	return id, nil
}

func (s *Service) Update(ctx context.Context, id string, rec domain.Record) error {
	productID, ok := parseID(id)
	if !ok {
		s.metrics.RecordStoreOp("update", metrics.ResultNotFound)
		return &domain.StoreError{Code: domain.CodeNotFound, Op: "update"}
	}

	clean, err := checkRecord(rec)
	if err != nil {
		s.metrics.RecordStoreOp("update", metrics.ResultInvalid)
		return err
	}

	now := s.now()
	matched, err := s.repo.Update(ctx, s.db, &domain.Product{
		ID:          productID,
		Name:        clean.Name,
		Description: clean.Description,
		Price:       *clean.Price,
		Category:    clean.Category,
		UpdatedAt:   now,
	})
	if err != nil {
		return s.fail("update", err)
	}
	if matched == 0 {
		s.metrics.RecordStoreOp("update", metrics.ResultNotFound)
		return &domain.StoreError{Code: domain.CodeNotFound, Op: "update"}
	}

	s.metrics.RecordStoreOp("update", metrics.ResultOK)
	s.publish(ctx, changefeed.OpUpdate, snowflake.ID(productID).String(), now)
	return nil
}

// Remove deletes by id without checking that the record exists; a missing
// record is not reported.
func (s *Service) Remove(ctx context.Context, id string) error {
	productID, ok := parseID(id)
	if !ok {
		s.metrics.RecordStoreOp("remove", metrics.ResultNotFound)
		return &domain.StoreError{Code: domain.CodeNotFound, Op: "remove"}
	}

	if err := s.repo.Delete(ctx, s.db, productID); err != nil {
		return s.fail("remove", err)
	}

	s.metrics.RecordStoreOp("remove", metrics.ResultOK)
	s.publish(ctx, changefeed.OpDelete, snowflake.ID(productID).String(), s.now())
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Response, error) {
	productID, ok := parseID(id)
	if !ok {
		return nil, &domain.StoreError{Code: domain.CodeNotFound, Op: "get"}
	}

	item, err := s.repo.FindByID(ctx, s.db, productID)
	if err != nil {
		return nil, s.fail("get", err)
	}
	if item == nil {
		return nil, &domain.StoreError{Code: domain.CodeNotFound, Op: "get"}
	}

	resp := toResponse(item)
	return &resp, nil
}

func (s *Service) ListOnce(ctx context.Context) ([]domain.Response, error) {
	items, err := s.repo.ListByCreatedDesc(ctx, s.db)
	if err != nil {
		return nil, s.fail("list", err)
	}

	resp := make([]domain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, toResponse(&items[i]))
	}
	return resp, nil
}

// Subscribe delivers the full ordered record set immediately and after every
// change signal. A failed query is delivered once as an error and ends the
// subscription. The subscription also ends when ctx is done.
func (s *Service) Subscribe(ctx context.Context, onChange domain.ChangeFunc) (domain.CancelFunc, error) {
	if onChange == nil {
		return nil, errors.New("subscribe: onChange is required")
	}

	sub, err := s.hub.Subscribe(changefeed.TopicProducts)
	if err != nil {
		return nil, &domain.StoreError{Code: domain.CodeUnavailable, Op: "subscribe", Err: err}
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	w := &watcher{
		svc:      s,
		sub:      sub,
		onChange: onChange,
		cancel:   cancelRun,
	}
	s.metrics.SubscriptionOpened()
	go w.run(runCtx)

	return w.stop, nil
}

type watcher struct {
	svc      *Service
	sub      *changefeed.Subscription
	onChange domain.ChangeFunc
	cancel   context.CancelFunc

	mu      sync.Mutex
	stopped bool
}

func (w *watcher) run(ctx context.Context) {
	defer w.stop()

	if !w.deliver(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.sub.Changes():
			if !w.deliver(ctx) {
				return
			}
		}
	}
}

func (w *watcher) deliver(ctx context.Context) bool {
	items, err := w.svc.ListOnce(ctx)
	if ctx.Err() != nil || w.isStopped() {
		return false
	}
	if err != nil {
		w.svc.log.Warn("live query failed", zap.Error(err))
		w.onChange(nil, err)
		return false
	}
	w.onChange(items, nil)
	return true
}

func (w *watcher) isStopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

func (w *watcher) stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	w.mu.Unlock()

	w.cancel()
	w.sub.Close()
	w.svc.metrics.SubscriptionClosed()
}

func (s *Service) publish(ctx context.Context, op, id string, at time.Time) {
	s.notifier.Notify(ctx, changefeed.Change{
		Topic: changefeed.TopicProducts,
		Op:    op,
		ID:    id,
		At:    at,
	})
}

func (s *Service) fail(op string, err error) error {
	code := storeErrorCode(db.Classify(err))
	s.metrics.RecordStoreOp(op, resultLabel(code))
	s.log.Warn("store call failed",
		zap.String("op", op),
		zap.String("code", string(code)),
		zap.Error(err),
	)
	return &domain.StoreError{Code: code, Op: op, Err: err}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

// checkRecord verifies the fields are present and well formed and returns a
// trimmed copy. Business rules (lengths, price range) are not checked here.
func checkRecord(rec domain.Record) (domain.Record, error) {
	clean := domain.Record{
		Name:        strings.TrimSpace(rec.Name),
		Description: strings.TrimSpace(rec.Description),
		Category:    strings.TrimSpace(rec.Category),
		Price:       rec.Price,
	}

	var problems []domain.Problem
	if clean.Name == "" {
		problems = append(problems, requiredProblem("name"))
	}
	if clean.Description == "" {
		problems = append(problems, requiredProblem("description"))
	}
	switch {
	case clean.Price == nil:
		problems = append(problems, requiredProblem("price"))
	case math.IsNaN(*clean.Price) || math.IsInf(*clean.Price, 0):
		problems = append(problems, domain.Problem{Field: "price", Code: "invalid_type", Message: "price must be a number"})
	}
	if clean.Category == "" {
		problems = append(problems, requiredProblem("category"))
	}

	if len(problems) > 0 {
		return domain.Record{}, &domain.ValidationError{Problems: problems}
	}
	return clean, nil
}

func requiredProblem(field string) domain.Problem {
	return domain.Problem{Field: field, Code: "required", Message: field + " is required"}
}

func parseID(id string) (int64, bool) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || parsed <= 0 {
		return 0, false
	}
	return parsed.Int64(), true
}

func storeErrorCode(class db.ErrorClass) domain.StoreErrorCode {
	switch class {
	case db.ClassPermissionDenied:
		return domain.CodePermissionDenied
	case db.ClassUnavailable:
		return domain.CodeUnavailable
	case db.ClassNotFound:
		return domain.CodeNotFound
	default:
		return domain.CodeUnknown
	}
}

func resultLabel(code domain.StoreErrorCode) string {
	switch code {
	case domain.CodePermissionDenied:
		return metrics.ResultPermission
	case domain.CodeUnavailable:
		return metrics.ResultUnavailable
	case domain.CodeNotFound:
		return metrics.ResultNotFound
	default:
		return metrics.ResultError
	}
}

func toResponse(p *domain.Product) domain.Response {
	return domain.Response{
		ID:          snowflake.ID(p.ID).String(),
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
