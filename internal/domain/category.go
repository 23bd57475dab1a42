package domain

// Category is a node of the storefront's breadcrumb hierarchy. Slug is unique
// across the whole hierarchy, not per parent.
type Category struct {
	ID    int64   `json:"id"`
	Name  string  `json:"name"`
	Slug  string  `json:"slug"`
	URL   *string `json:"url,omitempty"`
	Level int     `json:"level"` // Depth in the owning product's breadcrumb, root is 0
}

// Crumb is a single breadcrumb entry as found on a detail page.
type Crumb struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
	URL  string `json:"url,omitempty"`
}
