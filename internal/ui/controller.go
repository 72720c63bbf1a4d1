package ui

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/smallbiznis/productdesk/internal/clock"
	"github.com/smallbiznis/productdesk/internal/config"
	"github.com/smallbiznis/productdesk/internal/metrics"
	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/smallbiznis/productdesk/internal/product/present"
	"github.com/smallbiznis/productdesk/internal/product/validation"
	"github.com/smallbiznis/productdesk/internal/ui/render"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("ui: controller closed")

const (
	eventBuffer = 64
	maxNotices  = 5
)

type ControllerParams struct {
	Service  domain.Service
	Renderer *render.Renderer
	Clock    clock.Clock
	Config   *config.UIConfigHolder
	Log      *zap.Logger
	Metrics  *metrics.Metrics
}

// Controller drives one browser session. Its state is only touched by the
// loop goroutine; everything else goes through Dispatch.
type Controller struct {
	svc      domain.Service
	renderer *render.Renderer
	clock    clock.Clock
	cfg      *config.UIConfigHolder
	log      *zap.Logger
	metrics  *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	events chan envelope
	done   chan struct{}

	startOnce sync.Once
	closeOnce sync.Once

	lastActive atomic.Int64
	watching   atomic.Int32

	// loop-owned
	state          State
	gen            uint64
	cancelSub      domain.CancelFunc
	reconnectTimer clock.Timer
	noticeSeq      uint64
	noticeTimers   map[uint64]clock.Timer
	watchers       map[uint64]chan render.Fragments
	watcherSeq     uint64
	last           render.Fragments
}

type envelope struct {
	ev  Event
	ack *ack
}

// ack completes when an event has been applied, or, for writes, when the
// store call has returned and its result has been applied.
type ack struct {
	once     sync.Once
	done     chan struct{}
	deferred bool
}

func newAck() *ack {
	return &ack{done: make(chan struct{})}
}

func (a *ack) hold() func() {
	a.deferred = true
	return a.release
}

func (a *ack) release() {
	a.once.Do(func() {
		if a.done != nil {
			close(a.done)
		}
	})
}

func NewController(p ControllerParams) *Controller {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	cfg := p.Config
	if cfg == nil {
		cfg = config.NewStaticUIConfigHolder(config.DefaultUIConfig())
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		svc:          p.Service,
		renderer:     p.Renderer,
		clock:        clk,
		cfg:          cfg,
		log:          log.Named("ui.controller"),
		metrics:      p.Metrics,
		ctx:          ctx,
		cancel:       cancel,
		events:       make(chan envelope, eventBuffer),
		done:         make(chan struct{}),
		state:        initialState(),
		noticeTimers: map[uint64]clock.Timer{},
		watchers:     map[uint64]chan render.Fragments{},
	}
	c.touch()
	return c
}

// Start opens the subscription and begins processing events.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		go c.loop()
	})
}

// Close cancels the subscription, stops pending timers and disconnects
// watchers. It waits for the loop to exit.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.cancel()
		c.startOnce.Do(func() { close(c.done) })
	})
	<-c.done
}

// Dispatch queues ev without waiting for it to be applied.
func (c *Controller) Dispatch(ev Event) {
	c.touch()
	c.post(ev, nil)
}

// Await dispatches ev and waits until it has been applied. For Submit and
// Delete it also waits for the store call to finish.
func (c *Controller) Await(ctx context.Context, ev Event) error {
	c.touch()
	a := newAck()
	if !c.post(ev, a) {
		return ErrClosed
	}
	select {
	case <-a.done:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot(ctx context.Context) (State, error) {
	var out State
	err := c.Await(ctx, inspect{fn: func(c *Controller) { out = c.state.clone() }})
	return out, err
}

// View returns the render input for the current state.
func (c *Controller) View(ctx context.Context) (render.View, error) {
	var out render.View
	err := c.Await(ctx, inspect{fn: func(c *Controller) { out = c.view() }})
	return out, err
}

// Watch registers for rendered fragments. The current fragments are sent
// immediately; afterwards only the latest unseen fragments are kept. The
// channel is closed when stop is called or the controller closes.
func (c *Controller) Watch(ctx context.Context) (<-chan render.Fragments, func(), error) {
	ch := make(chan render.Fragments, 1)
	var id uint64
	err := c.Await(ctx, inspect{fn: func(c *Controller) {
		c.watcherSeq++
		id = c.watcherSeq
		c.watchers[id] = ch
		c.watching.Add(1)
		ch <- c.last
	}})
	if err != nil {
		return nil, nil, err
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			c.touch()
			c.post(inspect{fn: func(c *Controller) { c.dropWatcher(id) }}, nil)
		})
	}
	return ch, stop, nil
}

// idleSince reports whether the session has no watchers and was last used
// before cutoff (unix nanoseconds).
func (c *Controller) idleSince(cutoff int64) bool {
	return c.watching.Load() == 0 && c.lastActive.Load() < cutoff
}

func (c *Controller) touch() {
	c.lastActive.Store(c.clock.Now().UnixNano())
}

func (c *Controller) post(ev Event, a *ack) bool {
	if a == nil {
		a = &ack{}
	}
	select {
	case <-c.ctx.Done():
		return false
	default:
	}
	select {
	case c.events <- envelope{ev: ev, ack: a}:
		return true
	case <-c.ctx.Done():
		return false
	}
}

func (c *Controller) loop() {
	defer c.shutdown()

	c.subscribe()
	c.publish()

	for {
		select {
		case <-c.ctx.Done():
			return
		case env := <-c.events:
			env.ev.apply(c, env.ack)
			if !env.ack.deferred {
				env.ack.release()
			}
			if _, readOnly := env.ev.(inspect); !readOnly {
				c.publish()
			}
		}
	}
}

func (c *Controller) shutdown() {
	c.cancelSubscription()
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	for id, t := range c.noticeTimers {
		t.Stop()
		delete(c.noticeTimers, id)
	}
	for id := range c.watchers {
		c.dropWatcher(id)
	}
	close(c.done)

	// Release writers still waiting on queued events.
	for {
		select {
		case env := <-c.events:
			env.ack.release()
			if w, ok := env.ev.(writeDone); ok {
				w.release()
			}
		default:
			return
		}
	}
}

// async runs fn off the loop and posts its result back.
func (c *Controller) async(fn func() Event) {
	go func() {
		ev := fn()
		if !c.post(ev, nil) {
			if w, ok := ev.(writeDone); ok {
				w.release()
			}
		}
	}()
}

func (c *Controller) subscribe() {
	c.cancelSubscription()
	c.gen++
	gen := c.gen

	cancel, err := c.svc.Subscribe(c.ctx, func(records []domain.Response, err error) {
		if err != nil {
			c.post(subscriptionFailed{gen: gen, err: err}, nil)
			return
		}
		c.post(pushed{gen: gen, records: records}, nil)
	})
	if err != nil {
		c.subscriptionError(err)
		return
	}
	c.cancelSub = cancel
}

func (c *Controller) cancelSubscription() {
	if c.cancelSub != nil {
		c.cancelSub()
		c.cancelSub = nil
	}
}

func (c *Controller) subscriptionError(err error) {
	c.cancelSubscription()

	st := &c.state
	st.Phase = PhaseEmpty
	st.Mirror = nil

	code := domain.StoreErrorCodeOf(err)
	c.log.Warn("subscription failed", zap.String("code", string(code)), zap.Error(err))

	switch code {
	case domain.CodePermissionDenied:
		if !st.Remediation {
			st.Remediation = true
			c.notify(LevelError, "Permission denied while loading products.", false)
		}
	case domain.CodeUnavailable:
		cfg := c.cfg.Get()
		if st.Reconnect >= cfg.ReconnectAttempts {
			st.Terminal = true
			c.notify(LevelError, fmt.Sprintf("Could not reconnect after %d attempts. Reload the page to try again.", st.Reconnect), true)
			return
		}
		st.Reconnect++
		c.metrics.RecordReconnect()
		c.notify(LevelWarning, fmt.Sprintf("Connection lost. Reconnecting (attempt %d of %d)...", st.Reconnect, cfg.ReconnectAttempts), false)

		gen := c.gen
		c.reconnectTimer = c.clock.AfterFunc(cfg.ReconnectDelay, func() {
			c.post(reconnectDue{gen: gen}, nil)
		})
	default:
		c.notify(LevelError, "Failed to load products.", false)
	}
}

func (c *Controller) notify(level Level, message string, sticky bool) {
	c.noticeSeq++
	n := Notice{ID: c.noticeSeq, Level: level, Message: message, Sticky: sticky}
	c.state.Notices = append(c.state.Notices, n)
	for len(c.state.Notices) > maxNotices {
		c.dropNotice(c.state.Notices[0].ID)
	}

	d := c.cfg.Get().NotificationDuration
	if sticky || d <= 0 {
		return
	}
	id := n.ID
	c.noticeTimers[id] = c.clock.AfterFunc(d, func() {
		c.post(noticeExpired{id: id}, nil)
	})
}

func (c *Controller) dropNotice(id uint64) {
	if t, ok := c.noticeTimers[id]; ok {
		t.Stop()
		delete(c.noticeTimers, id)
	}
	notices := c.state.Notices[:0]
	for _, n := range c.state.Notices {
		if n.ID != id {
			notices = append(notices, n)
		}
	}
	c.state.Notices = notices
}

func (c *Controller) resetForm() {
	c.state.Mode = Mode{}
	c.state.Form = validation.Form{}
	c.state.FieldErrors = nil
}

func (c *Controller) dropWatcher(id uint64) {
	ch, ok := c.watchers[id]
	if !ok {
		return
	}
	delete(c.watchers, id)
	close(ch)
	c.watching.Add(-1)
}

func (c *Controller) view() render.View {
	st := c.state
	visible := present.FilterByCategory(st.CategoryFilter, present.Search(st.Query, st.Mirror))

	errs := make(map[string]string, len(st.FieldErrors))
	for k, v := range st.FieldErrors {
		errs[k] = v
	}
	notices := make([]render.Notice, 0, len(st.Notices))
	for _, n := range st.Notices {
		notices = append(notices, render.Notice{ID: n.ID, Level: string(n.Level), Message: n.Message})
	}

	return render.View{
		Phase:     string(st.Phase),
		Editing:   st.Mode.Editing,
		EditingID: st.Mode.ID,
		Form: render.FormView{
			Name:        st.Form.Name,
			Description: st.Form.Description,
			Price:       st.Form.Price,
			Category:    st.Form.Category,
			Errors:      errs,
		},
		Records:     visible,
		Stats:       present.Aggregate(st.Mirror),
		Categories:  present.Categories(st.Mirror),
		Query:       st.Query,
		Category:    st.CategoryFilter,
		Notices:     notices,
		Remediation: st.Remediation,
		Terminal:    st.Terminal,
	}
}

// publish re-renders and pushes to watchers when the output changed.
func (c *Controller) publish() {
	if c.renderer == nil {
		return
	}
	frags, err := c.renderer.Render(c.view())
	if err != nil {
		c.log.Error("render failed", zap.Error(err))
		return
	}
	if frags == c.last {
		return
	}
	c.last = frags

	for _, ch := range c.watchers {
		select {
		case ch <- frags:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- frags:
			default:
			}
		}
	}
}
