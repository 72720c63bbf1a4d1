package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/smallbiznis/productdesk/internal/product/validation"
	"go.uber.org/zap"
)

// Event is applied to the controller state on the loop goroutine.
type Event interface {
	apply(c *Controller, a *ack)
}

// Submit saves the form: create in creating mode, update in editing mode.
type Submit struct {
	Form validation.Form
}

type BeginEdit struct {
	ID string
}

type CancelEdit struct{}

// Delete removes a record. Nothing happens unless Confirmed is set.
type Delete struct {
	ID        string
	Confirmed bool
}

type Filter struct {
	Query    string
	Category string
}

type DismissNotice struct {
	ID uint64
}

type pushed struct {
	gen     uint64
	records []domain.Response
}

type subscriptionFailed struct {
	gen uint64
	err error
}

type reconnectDue struct {
	gen uint64
}

type writeDone struct {
	op      string
	id      string
	mode    Mode
	err     error
	release func()
}

type noticeExpired struct {
	id uint64
}

type inspect struct {
	fn func(c *Controller)
}

func (e Submit) apply(c *Controller, a *ack) {
	st := &c.state
	st.Form = e.Form

	rec := validation.ParseForm(e.Form)
	if res := validation.Validate(rec); !res.OK {
		st.FieldErrors = fieldErrors(res.Problems)
		c.notify(LevelError, "Please correct the highlighted fields.", false)
		return
	}
	st.FieldErrors = nil

	if st.Saving {
		c.notify(LevelWarning, "A save is already in progress.", false)
		return
	}
	st.Saving = true

	mode := st.Mode
	release := a.hold()
	c.async(func() Event {
		if mode.Editing {
			err := c.svc.Update(c.ctx, mode.ID, rec)
			return writeDone{op: "update", id: mode.ID, mode: mode, err: err, release: release}
		}
		id, err := c.svc.Create(c.ctx, rec)
		return writeDone{op: "create", id: id, mode: mode, err: err, release: release}
	})
}

func (e BeginEdit) apply(c *Controller, _ *ack) {
	st := &c.state
	rec, ok := st.findRecord(strings.TrimSpace(e.ID))
	if !ok {
		c.notify(LevelWarning, "That product is no longer available.", false)
		return
	}
	st.Mode = Mode{Editing: true, ID: rec.ID}
	st.Form = validation.Form{
		Name:        rec.Name,
		Description: rec.Description,
		Price:       strconv.FormatFloat(rec.Price, 'f', 2, 64),
		Category:    rec.Category,
	}
	st.FieldErrors = nil
}

func (CancelEdit) apply(c *Controller, _ *ack) {
	c.resetForm()
}

func (e Delete) apply(c *Controller, a *ack) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		c.notify(LevelError, "No product selected.", false)
		return
	}
	if !e.Confirmed {
		c.notify(LevelWarning, "Confirm the deletion to remove this product.", false)
		return
	}

	mode := c.state.Mode
	release := a.hold()
	c.async(func() Event {
		err := c.svc.Remove(c.ctx, id)
		return writeDone{op: "remove", id: id, mode: mode, err: err, release: release}
	})
}

func (e Filter) apply(c *Controller, _ *ack) {
	c.state.Query = strings.TrimSpace(e.Query)
	c.state.CategoryFilter = strings.TrimSpace(e.Category)
}

func (e DismissNotice) apply(c *Controller, _ *ack) {
	c.dropNotice(e.ID)
}

func (e noticeExpired) apply(c *Controller, _ *ack) {
	c.dropNotice(e.id)
}

func (e pushed) apply(c *Controller, _ *ack) {
	if e.gen != c.gen {
		return
	}
	st := &c.state
	if st.Reconnect > 0 {
		c.notify(LevelInfo, "Live updates restored.", false)
	}
	st.Reconnect = 0
	st.Mirror = e.records
	if len(e.records) == 0 {
		st.Phase = PhaseEmpty
	} else {
		st.Phase = PhasePopulated
	}

	if st.Mode.Editing {
		if _, ok := st.findRecord(st.Mode.ID); !ok {
			c.resetForm()
			c.notify(LevelWarning, "The product you were editing was deleted.", false)
		}
	}
}

func (e subscriptionFailed) apply(c *Controller, _ *ack) {
	if e.gen != c.gen {
		return
	}
	c.subscriptionError(e.err)
}

func (e reconnectDue) apply(c *Controller, _ *ack) {
	c.reconnectTimer = nil
	if e.gen != c.gen || c.state.Terminal {
		return
	}
	c.log.Info("resubscribing", zap.Int("attempt", c.state.Reconnect))
	c.subscribe()
}

func (e writeDone) apply(c *Controller, _ *ack) {
	defer e.release()

	st := &c.state
	if e.op != "remove" {
		st.Saving = false
	}

	if e.err != nil {
		if vErr := domain.AsValidationError(e.err); vErr != nil {
			st.FieldErrors = fieldErrors(vErr.Problems)
			c.notify(LevelError, "Please correct the highlighted fields.", false)
			return
		}
		code := domain.StoreErrorCodeOf(e.err)
		c.log.Warn("write failed", zap.String("op", e.op), zap.String("id", e.id), zap.Error(e.err))
		c.notify(LevelError, writeFailureMessage(e.op, code), false)
		if code == domain.CodeNotFound && e.op == "update" && st.Mode == e.mode {
			c.resetForm()
		}
		return
	}

	switch e.op {
	case "create":
		if st.Mode == e.mode {
			c.resetForm()
		}
		c.notify(LevelSuccess, "Product added.", false)
	case "update":
		if st.Mode == e.mode {
			c.resetForm()
		}
		c.notify(LevelSuccess, "Product updated.", false)
	case "remove":
		if st.Mode.Editing && st.Mode.ID == e.id {
			c.resetForm()
		}
		c.notify(LevelSuccess, "Product deleted.", false)
	}
}

func (e inspect) apply(c *Controller, _ *ack) {
	e.fn(c)
}

func fieldErrors(problems []domain.Problem) map[string]string {
	out := make(map[string]string, len(problems))
	for _, p := range problems {
		if _, ok := out[p.Field]; !ok {
			out[p.Field] = p.Message
		}
	}
	return out
}

func writeFailureMessage(op string, code domain.StoreErrorCode) string {
	verb := map[string]string{"create": "add", "update": "update", "remove": "delete"}[op]
	switch code {
	case domain.CodePermissionDenied:
		return fmt.Sprintf("You do not have permission to %s products.", verb)
	case domain.CodeUnavailable:
		return fmt.Sprintf("Could not %s the product: the database is unavailable. Try again shortly.", verb)
	case domain.CodeNotFound:
		return "That product no longer exists."
	default:
		return fmt.Sprintf("Could not %s the product.", verb)
	}
}
