package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"math"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/smallbiznis/productdesk/internal/product/present"
	"github.com/smallbiznis/productdesk/internal/product/validation"
	"go.uber.org/zap"
)

// Placeholder replaces a cell value that cannot be displayed.
const Placeholder = "n/a"

// View is everything the page shows for one session.
type View struct {
	Phase      string
	Editing    bool
	EditingID  string
	Form       FormView
	Records    []domain.Response
	Stats      present.Stats
	Categories []string
	Query      string
	Category   string
	Notices    []Notice

	Remediation bool
	Terminal    bool
}

type FormView struct {
	Name        string
	Description string
	Price       string
	Category    string
	Errors      map[string]string
}

type Notice struct {
	ID      uint64 `json:"id"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Fragments are the independently replaceable parts of the page.
type Fragments struct {
	Banner  string `json:"banner"`
	Notices string `json:"notices"`
	Form    string `json:"form"`
	Stats   string `json:"stats"`
	Table   string `json:"table"`
}

type Renderer struct {
	tpl   *template.Template
	log   *zap.Logger
	loc   *time.Location
	title string
}

type Option func(*Renderer)

func WithLocation(loc *time.Location) Option {
	return func(r *Renderer) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func WithTitle(title string) Option {
	return func(r *Renderer) {
		if t := strings.TrimSpace(title); t != "" {
			r.title = t
		}
	}
}

func NewRenderer(log *zap.Logger, opts ...Option) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	funcs := template.FuncMap{
		"currency": present.FormatCurrency,
	}
	r := &Renderer{
		tpl:   template.Must(template.New("productdesk").Funcs(funcs).Parse(pageTemplate)),
		log:   log.Named("ui.render"),
		loc:   time.UTC,
		title: "Products",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type row struct {
	ID           string
	Name         string
	Description  string
	Category     string
	CategorySlug string
	Price        string
	CreatedAt    string
	UpdatedAt    string
	Editing      bool
}

type limits struct {
	NameMax        int
	DescriptionMax int
}

type viewData struct {
	View
	Rows   []row
	Limits limits
}

type pageData struct {
	Title string
	View  viewData
}

// Page writes the full HTML document.
func (r *Renderer) Page(w io.Writer, v View) error {
	return r.tpl.ExecuteTemplate(w, "page", pageData{Title: r.title, View: r.prepare(v)})
}

// Render returns the fragments for v. Equal views render to equal fragments.
func (r *Renderer) Render(v View) (Fragments, error) {
	data := r.prepare(v)

	var out Fragments
	for _, part := range []struct {
		name string
		dst  *string
	}{
		{"banner", &out.Banner},
		{"notices", &out.Notices},
		{"form", &out.Form},
		{"stats", &out.Stats},
		{"table", &out.Table},
	} {
		var buf bytes.Buffer
		if err := r.tpl.ExecuteTemplate(&buf, part.name, data); err != nil {
			return Fragments{}, fmt.Errorf("render %s: %w", part.name, err)
		}
		*part.dst = buf.String()
	}
	return out, nil
}

func (r *Renderer) prepare(v View) viewData {
	if v.Form.Errors == nil {
		v.Form.Errors = map[string]string{}
	}
	if v.Stats.Categories == nil {
		v.Stats.Categories = map[string]int{}
	}

	rows := make([]row, 0, len(v.Records))
	for _, rec := range v.Records {
		rows = append(rows, r.row(rec, v.Editing && rec.ID == v.EditingID))
	}
	return viewData{
		View: v,
		Rows: rows,
		Limits: limits{
			NameMax:        validation.NameMax,
			DescriptionMax: validation.DescriptionMax,
		},
	}
}

func (r *Renderer) row(rec domain.Response, editing bool) row {
	return row{
		ID:           rec.ID,
		Name:         r.text("name", rec.ID, rec.Name),
		Description:  r.text("description", rec.ID, rec.Description),
		Category:     r.text("category", rec.ID, rec.Category),
		CategorySlug: slug.Make(rec.Category),
		Price:        r.price(rec.ID, rec.Price),
		CreatedAt:    r.timestamp("created_at", rec.ID, rec.CreatedAt),
		UpdatedAt:    r.timestamp("updated_at", rec.ID, rec.UpdatedAt),
		Editing:      editing,
	}
}

func (r *Renderer) text(field, id, value string) string {
	if strings.TrimSpace(value) == "" {
		r.report(id, &domain.RenderError{Field: field, Value: value})
		return Placeholder
	}
	return value
}

func (r *Renderer) price(id string, value float64) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		r.report(id, &domain.RenderError{Field: "price", Value: value})
		return Placeholder
	}
	return present.FormatCurrency(value)
}

func (r *Renderer) timestamp(field, id string, value time.Time) string {
	out := present.FormatTimestamp(value, r.loc)
	if out == present.Unavailable {
		r.report(id, &domain.RenderError{Field: field, Value: value})
	}
	return out
}

func (r *Renderer) report(id string, err error) {
	r.log.Debug("record value not displayable", zap.String("id", id), zap.Error(err))
}
