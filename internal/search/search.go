package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Query describes a search request over workshops.
type Query struct {
	Text   string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a workshop search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// WorkshopRecord is the data we index for a workshop.
type WorkshopRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Title      string `json:"title"`
	Objectives string `json:"objectives"`
	Context    string `json:"context"`
}
