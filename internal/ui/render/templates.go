package render

const pageTemplate = `{{define "page"}}<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>{{.Title}}</title>
  <style>
    body { margin: 0; padding: 32px; font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; color: #1a1f36; background: #f7f9fc; }
    main { max-width: 1080px; margin: 0 auto; }
    table { width: 100%; border-collapse: collapse; background: #fff; }
    th, td { text-align: left; padding: 10px; border-bottom: 1px solid #e3e8ee; font-size: 14px; vertical-align: top; }
    th { font-size: 11px; text-transform: uppercase; color: #8792a2; }
    .td-right { text-align: right; }
    .field-error { color: #c0392b; font-size: 12px; }
    .notice { padding: 8px 12px; margin-bottom: 6px; border-radius: 4px; }
    .notice-success { background: #e6f6ec; }
    .notice-error { background: #fdecea; }
    .notice-info { background: #e8f1fd; }
    .notice-warning { background: #fff4e0; }
    .banner { padding: 16px; border: 1px solid #e3e8ee; background: #fff; margin-bottom: 16px; }
    .stats span { margin-right: 16px; }
    .badge { padding: 2px 6px; border-radius: 3px; background: #eef1f6; font-size: 12px; }
  </style>
</head>
<body>
<main>
  <h1>{{.Title}}</h1>
  <div id="banner">{{template "banner" .View}}</div>
  <div id="notices">{{template "notices" .View}}</div>
  <section id="form">{{template "form" .View}}</section>
  <section>
    <form method="post" action="/filter">
      <input type="search" name="q" value="{{.View.Query}}" placeholder="Search products" />
      <input type="text" name="category" value="{{.View.Category}}" placeholder="Category" list="categories" />
      <button type="submit">Filter</button>
    </form>
  </section>
  <section id="stats" class="stats">{{template "stats" .View}}</section>
  <section id="table">{{template "table" .View}}</section>
</main>
<script>
  (function () {
    if (!window.EventSource) { return; }
    var source = new EventSource("/events");
    source.addEventListener("view", function (ev) {
      var parts = JSON.parse(ev.data);
      ["banner", "notices", "form", "stats", "table"].forEach(function (key) {
        var el = document.getElementById(key);
        if (el && typeof parts[key] === "string") { el.innerHTML = parts[key]; }
      });
    });
  })();
</script>
</body>
</html>{{end}}

{{define "banner"}}{{if .Remediation}}<div class="banner" role="alert">
  <strong>Access to the product catalog was denied.</strong>
  <p>The database account used by this service is not allowed to read the products table. Ask an operator to grant SELECT, INSERT, UPDATE and DELETE on products to the configured user, then reload this page.</p>
</div>{{end}}{{if .Terminal}}<div class="banner" role="alert">
  <strong>Live updates stopped.</strong>
  <p>The product database could not be reached. Reload the page to try again.</p>
</div>{{end}}{{end}}

{{define "notices"}}{{range .Notices}}<div class="notice notice-{{.Level}}" data-notice="{{.ID}}">{{.Message}}</div>{{end}}{{end}}

{{define "form"}}<form method="post" action="/form" novalidate>
  <h2>{{if .Editing}}Edit product{{else}}Add product{{end}}</h2>
  <label>Name <input type="text" name="name" value="{{.Form.Name}}" maxlength="{{.Limits.NameMax}}" /></label>
  {{with index .Form.Errors "name"}}<div class="field-error">{{.}}</div>{{end}}
  <label>Description <textarea name="description" maxlength="{{.Limits.DescriptionMax}}">{{.Form.Description}}</textarea></label>
  {{with index .Form.Errors "description"}}<div class="field-error">{{.}}</div>{{end}}
  <label>Price <input type="number" name="price" step="0.01" min="0" value="{{.Form.Price}}" /></label>
  {{with index .Form.Errors "price"}}<div class="field-error">{{.}}</div>{{end}}
  <label>Category <input type="text" name="category" value="{{.Form.Category}}" list="categories" /></label>
  {{with index .Form.Errors "category"}}<div class="field-error">{{.}}</div>{{end}}
  <datalist id="categories">{{range .Categories}}<option value="{{.}}"></option>{{end}}</datalist>
  <button type="submit">{{if .Editing}}Save changes{{else}}Add product{{end}}</button>
</form>
{{if .Editing}}<form method="post" action="/form/cancel"><button type="submit">Cancel</button></form>{{end}}{{end}}

{{define "stats"}}<span>Products: {{.Stats.Total}}</span>
<span>Average price: {{currency .Stats.AveragePrice}}</span>
<span>Total value: {{currency .Stats.TotalValue}}</span>
{{range $name, $count := .Stats.Categories}}<span class="badge">{{$name}}: {{$count}}</span>{{end}}{{end}}

{{define "table"}}{{if eq .Phase "loading"}}<p class="loading">Loading products...</p>
{{else if eq .Phase "empty"}}<p class="empty">No products yet. Add one with the form above.</p>
{{else if not .Rows}}<p class="empty">No products match the current filter.</p>
{{else}}<table>
  <thead>
    <tr><th>Name</th><th>Description</th><th>Category</th><th class="td-right">Price</th><th>Created</th><th>Updated</th><th></th></tr>
  </thead>
  <tbody>
  {{range .Rows}}<tr id="product-{{.ID}}"{{if .Editing}} class="editing"{{end}}>
    <td>{{.Name}}</td>
    <td>{{.Description}}</td>
    <td><span class="badge cat-{{.CategorySlug}}">{{.Category}}</span></td>
    <td class="td-right">{{.Price}}</td>
    <td>{{.CreatedAt}}</td>
    <td>{{.UpdatedAt}}</td>
    <td>
      <form method="post" action="/form/edit/{{.ID}}"><button type="submit">Edit</button></form>
      <form method="post" action="/products/{{.ID}}/delete" onsubmit="if (window.confirm('Delete this product?')) { this.confirm.value = 'yes'; return true; } return false;">
        <input type="hidden" name="confirm" value="" />
        <button type="submit">Delete</button>
      </form>
    </td>
  </tr>
  {{end}}</tbody>
</table>{{end}}{{end}}
`
