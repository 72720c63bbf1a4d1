package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/smallbiznis/productdesk/internal/product/present"
	"github.com/smallbiznis/productdesk/internal/product/validation"
	"github.com/spf13/cast"
	"go.uber.org/zap"
)

type productRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       any    `json:"price"`
	Category    string `json:"category"`
}

func (r productRequest) record() domain.Record {
	return domain.Record{
		Name:        r.Name,
		Description: r.Description,
		Price:       priceOf(r.Price),
		Category:    r.Category,
	}
}

// priceOf accepts a JSON number or a numeric string.
func priceOf(v any) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return validation.ParsePrice(t)
	case float64, json.Number:
		f, err := cast.ToFloat64E(t)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func bindProduct(c *gin.Context) (domain.Record, error) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return domain.Record{}, invalidRequestError()
	}
	rec := req.record()
	if res := validation.Validate(rec); !res.OK {
		return domain.Record{}, fromProblems(res.Problems)
	}
	return rec, nil
}

func (s *Server) ListProducts(c *gin.Context) {
	var query struct {
		Q        string `form:"q"`
		Category string `form:"category"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	items, err := s.productSvc.ListOnce(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	items = present.FilterByCategory(query.Category, present.Search(query.Q, items))

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ProductStats(c *gin.Context) {
	items, err := s.productSvc.ListOnce(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": present.Aggregate(items)})
}

func (s *Server) CreateProduct(c *gin.Context) {
	rec, err := bindProduct(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	id, err := s.productSvc.Create(c.Request.Context(), rec)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.productSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetProductByID(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	resp, err := s.productSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateProduct(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	rec, err := bindProduct(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.productSvc.Update(c.Request.Context(), id, rec); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.productSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteProduct(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.productSvc.Remove(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type snapshot struct {
	items []domain.Response
	err   error
}

// StreamProducts sends the full ordered record set on every change.
func (s *Server) StreamProducts(c *gin.Context) {
	ctx := c.Request.Context()

	// Only the latest snapshot matters; a slow client skips intermediate ones.
	updates := make(chan snapshot, 1)
	cancel, err := s.productSvc.Subscribe(ctx, func(items []domain.Response, err error) {
		next := snapshot{items: items, err: err}
		select {
		case updates <- next:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- next:
			default:
			}
		}
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer cancel()

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
		case snap := <-updates:
			if snap.err != nil {
				_, payload := mapError(snap.err)
				_ = writeEvent(writer, "error", errorResponse{Error: payload})
				flusher.Flush()
				s.log.Warn("product stream ended", zap.Error(snap.err))
				return
			}
			if err := writeEvent(writer, "snapshot", gin.H{"data": snap.items}); err != nil {
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

func writeEvent(w io.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
