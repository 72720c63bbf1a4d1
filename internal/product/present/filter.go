package present

import (
	"strings"

	"github.com/smallbiznis/productdesk/internal/product/domain"
	"golang.org/x/text/cases"
)

var fold = cases.Fold()

// Search returns the records whose name, description or category contains
// text, ignoring case. Blank text returns records unchanged.
func Search(text string, records []domain.Response) []domain.Response {
	needle := strings.TrimSpace(text)
	if needle == "" {
		return records
	}
	needle = fold.String(needle)

	out := make([]domain.Response, 0, len(records))
	for _, r := range records {
		if strings.Contains(fold.String(r.Name), needle) ||
			strings.Contains(fold.String(r.Description), needle) ||
			strings.Contains(fold.String(r.Category), needle) {
			out = append(out, r)
		}
	}
	return out
}

// FilterByCategory keeps records whose category equals category, ignoring
// case. Blank category returns records unchanged.
func FilterByCategory(category string, records []domain.Response) []domain.Response {
	want := strings.TrimSpace(category)
	if want == "" {
		return records
	}
	want = fold.String(want)

	out := make([]domain.Response, 0, len(records))
	for _, r := range records {
		if fold.String(strings.TrimSpace(r.Category)) == want {
			out = append(out, r)
		}
	}
	return out
}

// Categories lists the distinct categories in first-seen order.
func Categories(records []domain.Response) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		key := fold.String(r.Category)
		if r.Category == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r.Category)
	}
	return out
}
