package server

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/productdesk/internal/product/validation"
	"github.com/smallbiznis/productdesk/internal/ui"
	"github.com/spf13/cast"
)

const uiActionTimeout = 30 * time.Second

func (s *Server) controller(c *gin.Context) (*ui.Controller, bool) {
	ctrl, err := s.sessions.Controller(c.Writer, c.Request)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return ctrl, true
}

// Index renders the whole page for the session.
func (s *Server) Index(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	view, err := ctrl.View(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusOK)
	if err := s.renderer.Page(c.Writer, view); err != nil {
		_ = c.Error(err)
	}
}

// StreamView pushes re-rendered page fragments to the browser.
func (s *Server) StreamView(c *gin.Context) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	frames, stop, err := ctrl.Watch(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer stop()

	writer := c.Writer
	headers := writer.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	flusher, ok := writer.(http.Flusher)
	if !ok {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	if _, err := io.WriteString(writer, sseRetry); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := writeEvent(writer, "view", frame); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := io.WriteString(writer, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) SubmitForm(c *gin.Context) {
	var form validation.Form
	if err := c.ShouldBind(&form); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	s.act(c, ui.Submit{Form: form})
}

func (s *Server) EditForm(c *gin.Context) {
	s.act(c, ui.BeginEdit{ID: strings.TrimSpace(c.Param("id"))})
}

func (s *Server) CancelForm(c *gin.Context) {
	s.act(c, ui.CancelEdit{})
}

func (s *Server) DeleteFromTable(c *gin.Context) {
	s.act(c, ui.Delete{
		ID:        strings.TrimSpace(c.Param("id")),
		Confirmed: strings.EqualFold(strings.TrimSpace(c.PostForm("confirm")), "yes"),
	})
}

func (s *Server) ApplyFilter(c *gin.Context) {
	s.act(c, ui.Filter{Query: c.PostForm("q"), Category: c.PostForm("category")})
}

func (s *Server) DismissNotice(c *gin.Context) {
	id, err := cast.ToUint64E(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid notice id"))
		return
	}
	s.act(c, ui.DismissNotice{ID: id})
}

// act applies ev to the session and sends the browser back to the page.
// Scripted clients asking for JSON get the resulting fragments instead.
func (s *Server) act(c *gin.Context, ev ui.Event) {
	ctrl, ok := s.controller(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), uiActionTimeout)
	defer cancel()
	if err := ctrl.Await(ctx, ev); err != nil {
		AbortWithError(c, err)
		return
	}

	if wantsJSON(c) {
		view, err := ctrl.View(ctx)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		frags, err := s.renderer.Render(view)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": frags})
		return
	}

	c.Redirect(http.StatusSeeOther, "/")
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}
