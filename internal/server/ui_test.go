package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/productdesk/internal/clock"
	"github.com/smallbiznis/productdesk/internal/product/changefeed"
	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/smallbiznis/productdesk/internal/product/repository"
	"github.com/smallbiznis/productdesk/internal/product/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newStoreBackedServer(t *testing.T) (*Server, domain.Service) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Product{}))
	t.Cleanup(func() { _ = sqlDB.Close() })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	hub := changefeed.NewHub()
	svc := service.New(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: clock.New(),
		Hub:   hub,
	})

	return newTestServer(t, svc), svc
}

type browser struct {
	t      *testing.T
	s      *Server
	cookie *http.Cookie
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	if b.cookie != nil {
		req.AddCookie(b.cookie)
	}
	rec := httptest.NewRecorder()
	b.s.Engine().ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == "productdesk_session" {
			b.cookie = c
		}
	}
	return rec
}

func (b *browser) page() string {
	rec := b.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(b.t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func (b *browser) post(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) waitForPage(contains string, present bool) string {
	var body string
	require.Eventually(b.t, func() bool {
		body = b.page()
		return strings.Contains(body, contains) == present
	}, 3*time.Second, 10*time.Millisecond)
	return body
}

func TestFormCreateEditDelete(t *testing.T) {
	s, svc := newStoreBackedServer(t)
	b := &browser{t: t, s: s}

	b.waitForPage("No products yet", true)
	require.NotNil(t, b.cookie)

	rec := b.post("/form", url.Values{
		"name":        {"Desk Lamp"},
		"description": {"LED lamp with dimmer"},
		"price":       {"45.5"},
		"category":    {"Home"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	body := b.waitForPage("Desk Lamp", true)
	assert.Contains(t, body, "$45.50")
	assert.Contains(t, body, "Product added.")

	items, err := svc.ListOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	id := items[0].ID
	createdAt := items[0].CreatedAt

	b.post("/form/edit/"+id, nil)
	body = b.page()
	assert.Contains(t, body, "Save changes")
	assert.Contains(t, body, `value="45.50"`)

	b.post("/form", url.Values{
		"name":        {"Floor Lamp"},
		"description": {"LED lamp with dimmer"},
		"price":       {"80"},
		"category":    {"Home"},
	})
	body = b.waitForPage("Floor Lamp", true)
	assert.Contains(t, body, "Add product")

	items, err = svc.ListOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].ID)
	assert.True(t, createdAt.Equal(items[0].CreatedAt))

	b.post("/products/"+id+"/delete", nil)
	body = b.page()
	assert.Contains(t, body, "Confirm the deletion")
	assert.Contains(t, body, "Floor Lamp")

	b.post("/products/"+id+"/delete", url.Values{"confirm": {"yes"}})
	b.waitForPage("Floor Lamp", false)
}

func TestFormValidationNeverReachesStore(t *testing.T) {
	s, svc := newStoreBackedServer(t)
	b := &browser{t: t, s: s}
	b.page()

	b.post("/form", url.Values{"name": {"A"}, "price": {"abc"}})
	body := b.page()
	assert.Contains(t, body, "Please correct the highlighted fields.")
	assert.Contains(t, body, "price is required")

	items, err := svc.ListOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestActionReturnsFragmentsForJSONClients(t *testing.T) {
	s, _ := newStoreBackedServer(t)
	b := &browser{t: t, s: s}
	b.page()

	req := httptest.NewRequest(http.MethodPost, "/filter", strings.NewReader("q=lamp"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	rec := b.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, key := range []string{"banner", "notices", "form", "stats", "table"} {
		assert.Contains(t, body.Data, key)
	}
}

func readEvent(t *testing.T, r *bufio.Reader, name string) string {
	t.Helper()
	var current string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			current = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && current == name:
			return strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestProductStreamPushesSnapshots(t *testing.T) {
	s, svc := newStoreBackedServer(t)
	ts := httptest.NewServer(s.Engine())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/products/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	assert.JSONEq(t, `{"data":[]}`, readEvent(t, reader, "snapshot"))

	price := 5.0
	_, err = svc.Create(ctx, domain.Record{Name: "Pen", Description: "Blue ballpoint pen", Price: &price, Category: "Office"})
	require.NoError(t, err)

	data := readEvent(t, reader, "snapshot")
	assert.Contains(t, data, `"name":"Pen"`)
	cancel()
	_, _ = io.Copy(io.Discard, resp.Body)
}

func TestViewStreamSendsFragments(t *testing.T) {
	s, _ := newStoreBackedServer(t)
	ts := httptest.NewServer(s.Engine())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var frags map[string]string
	require.NoError(t, json.Unmarshal([]byte(readEvent(t, bufio.NewReader(resp.Body), "view")), &frags))
	assert.Contains(t, frags, "table")
	assert.NotEmpty(t, resp.Cookies())
}
