package ui

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/productdesk/internal/clock"
	"github.com/smallbiznis/productdesk/internal/config"
	"github.com/smallbiznis/productdesk/internal/metrics"
	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/smallbiznis/productdesk/internal/ui/render"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionName = "productdesk_session"
	sessionKey  = "sid"
	reapSpec    = "@every 1m"
)

var ErrRegistryClosed = errors.New("ui: registry closed")

type RegistryParams struct {
	fx.In

	AppConfig config.Config
	UIConfig  *config.UIConfigHolder
	Service   domain.Service
	Renderer  *render.Renderer
	Clock     clock.Clock
	Log       *zap.Logger
	Metrics   *metrics.Metrics `optional:"true"`
}

// Registry maps browser sessions to controllers and closes controllers that
// have been idle longer than ui.session_idle_timeout.
type Registry struct {
	store    sessions.Store
	svc      domain.Service
	renderer *render.Renderer
	clock    clock.Clock
	cfg      *config.UIConfigHolder
	log      *zap.Logger
	metrics  *metrics.Metrics
	sched    *cron.Cron

	mu       sync.Mutex
	sessions map[string]*Controller
	closed   bool
}

func NewRegistry(p RegistryParams) *Registry {
	store := sessions.NewCookieStore([]byte(p.AppConfig.SessionSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   p.AppConfig.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}

	return &Registry{
		store:    store,
		svc:      p.Service,
		renderer: p.Renderer,
		clock:    p.Clock,
		cfg:      p.UIConfig,
		log:      p.Log.Named("ui.registry"),
		metrics:  p.Metrics,
		sched:    cron.New(),
		sessions: map[string]*Controller{},
	}
}

// Controller returns the controller for the request's session, creating the
// session cookie and the controller when needed.
func (r *Registry) Controller(w http.ResponseWriter, req *http.Request) (*Controller, error) {
	sess, err := r.store.Get(req, sessionName)
	if err != nil {
		r.log.Debug("discarding unreadable session cookie", zap.Error(err))
	}

	sid, _ := sess.Values[sessionKey].(string)
	if sid == "" {
		sid = uuid.NewString()
		sess.Values[sessionKey] = sid
		if err := sess.Save(req, w); err != nil {
			return nil, err
		}
	}
	return r.Open(sid)
}

// Open returns the controller for sid, starting a new one if none is live.
func (r *Registry) Open(sid string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if c, ok := r.sessions[sid]; ok {
		// Stamped under r.mu so Reap cannot close a controller being handed out.
		c.touch()
		return c, nil
	}

	c := NewController(ControllerParams{
		Service:  r.svc,
		Renderer: r.renderer,
		Clock:    r.clock,
		Config:   r.cfg,
		Log:      r.log.With(zap.String("session", sid)),
		Metrics:  r.metrics,
	})
	c.Start()
	r.sessions[sid] = c
	r.metrics.SessionOpened()
	r.log.Debug("session opened", zap.String("session", sid))
	return c, nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Reap closes controllers idle for longer than the configured timeout and
// returns how many were closed.
func (r *Registry) Reap() int {
	timeout := r.cfg.Get().SessionIdleTimeout
	if timeout <= 0 {
		return 0
	}
	cutoff := r.clock.Now().Add(-timeout).UnixNano()

	r.mu.Lock()
	var idle []*Controller
	for sid, c := range r.sessions {
		if c.idleSince(cutoff) {
			idle = append(idle, c)
			delete(r.sessions, sid)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.Close()
		r.metrics.SessionClosed()
	}
	if len(idle) > 0 {
		r.log.Info("reaped idle sessions", zap.Int("count", len(idle)))
	}
	return len(idle)
}

func (r *Registry) Start(context.Context) error {
	if _, err := r.sched.AddFunc(reapSpec, func() { r.Reap() }); err != nil {
		return err
	}
	r.sched.Start()
	return nil
}

// Stop halts the reaper and closes every controller.
func (r *Registry) Stop(ctx context.Context) error {
	select {
	case <-r.sched.Stop().Done():
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
	}

	r.mu.Lock()
	r.closed = true
	all := make([]*Controller, 0, len(r.sessions))
	for sid, c := range r.sessions {
		all = append(all, c)
		delete(r.sessions, sid)
	}
	r.mu.Unlock()

	for _, c := range all {
		c.Close()
		r.metrics.SessionClosed()
	}
	return nil
}
