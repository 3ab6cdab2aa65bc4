package search

// Result is a single page hit.
type Result struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	ParentID string `json:"parentId,omitempty"`
}

// Query describes a page title search inside one scope.
type Query struct {
	Text    string
	ScopeID string
	Limit   int
}

// Response is the envelope returned to callers.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Source  string   `json:"source"`
}

// PageRecord is the data indexed for a page.
type PageRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	ScopeID  string `json:"scopeId"`
	ParentID string `json:"parentId"`
}

// Backend executes searches against an external index.
type Backend interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
	IndexPages(pages []PageRecord) error
	DeletePages(ids []string) error
}
