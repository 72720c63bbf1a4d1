package ui

import (
	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/smallbiznis/productdesk/internal/product/validation"
)

type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseEmpty     Phase = "empty"
	PhasePopulated Phase = "populated"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
)

// Mode is creating when Editing is false, otherwise editing(ID).
type Mode struct {
	Editing bool
	ID      string
}

type Notice struct {
	ID      uint64
	Level   Level
	Message string
	Sticky  bool
}

// State is owned by the controller loop. Mirror is replaced wholesale on
// every subscription push and never edited in place.
type State struct {
	Phase       Phase
	Mode        Mode
	Mirror      []domain.Response
	Form        validation.Form
	FieldErrors map[string]string
	Notices     []Notice

	Remediation bool
	Terminal    bool
	Reconnect   int
	Saving      bool

	Query          string
	CategoryFilter string
}

func initialState() State {
	return State{Phase: PhaseLoading}
}

func (s State) clone() State {
	out := s
	out.Mirror = append([]domain.Response(nil), s.Mirror...)
	out.Notices = append([]Notice(nil), s.Notices...)
	if s.FieldErrors != nil {
		out.FieldErrors = make(map[string]string, len(s.FieldErrors))
		for k, v := range s.FieldErrors {
			out.FieldErrors[k] = v
		}
	}
	return out
}

func (s State) findRecord(id string) (domain.Response, bool) {
	for _, r := range s.Mirror {
		if r.ID == id {
			return r, true
		}
	}
	return domain.Response{}, false
}
