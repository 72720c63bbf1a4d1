package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/productdesk/internal/product/domain"
	"github.com/spf13/cast"
)

const (
	NameMin        = 2
	NameMax        = 100
	DescriptionMin = 10
	DescriptionMax = 500
	PriceMax       = 999999.99
)

// Result is the outcome of Validate. Problems lists every violation, one per
// offending field.
type Result struct {
	OK       bool
	Problems []domain.Problem
}

// Err returns the result as a *domain.ValidationError, or nil when OK.
func (r Result) Err() error {
	if r.OK {
		return nil
	}
	return &domain.ValidationError{Problems: r.Problems}
}

// Form holds raw form input before conversion.
type Form struct {
	Name        string `form:"name"`
	Description string `form:"description"`
	Price       string `form:"price"`
	Category    string `form:"category"`
}

type input struct {
	Name        string   `json:"name" validate:"required,min=2,max=100"`
	Description string   `json:"description" validate:"required,min=10,max=500"`
	Price       *float64 `json:"price" validate:"required,gte=0,lte=999999.99"`
	Category    string   `json:"category" validate:"required"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func engine() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks the business rules on a trimmed copy of rec.
func Validate(rec domain.Record) Result {
	in := input{
		Name:        strings.TrimSpace(rec.Name),
		Description: strings.TrimSpace(rec.Description),
		Price:       rec.Price,
		Category:    strings.TrimSpace(rec.Category),
	}

	err := engine().Struct(in)
	if err == nil {
		return Result{OK: true}
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Result{Problems: []domain.Problem{{Field: "record", Code: "invalid", Message: err.Error()}}}
	}

	problems := make([]domain.Problem, 0, len(verrs))
	seen := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		if seen[field] {
			continue
		}
		seen[field] = true
		problems = append(problems, domain.Problem{
			Field:   field,
			Code:    fe.Tag(),
			Message: message(fe),
		})
	}
	return Result{Problems: problems}
}

// ParseForm converts raw form values into a Record. A blank or non-numeric
// price becomes nil.
func ParseForm(f Form) domain.Record {
	return domain.Record{
		Name:        f.Name,
		Description: f.Description,
		Price:       ParsePrice(f.Price),
		Category:    f.Category,
	}
}

func ParsePrice(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := cast.ToFloat64E(raw)
	if err != nil {
		return nil
	}
	return &v
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must not be negative", field)
	case "lte":
		return fmt.Sprintf("%s must not exceed %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
