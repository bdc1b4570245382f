package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID            int64  `json:"id"`
	RequestNumber string `json:"request_number"`
	OrderNumber   string `json:"order_number"`
	Drawing       string `json:"drawing"`
	StatusName    string `json:"status_name"`
	ExecutorName  string `json:"executor_name"`
	Snippet       string `json:"snippet,omitempty"`
}

// Query describes a search request.
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

// Searcher can execute a full-text search over requests.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// RequestRecord is the data we index for a request.
type RequestRecord struct {
	ID             int64  `json:"id"`
	RequestNumber  string `json:"request_number"`
	OrderNumber    string `json:"order_number"`
	Drawing        string `json:"drawing"`
	Material       string `json:"material"`
	ProtocolNumber string `json:"protocol_number"`
	Notes          string `json:"notes"`
	StatusName     string `json:"status_name"`
	ExecutorName   string `json:"executor_name"`
}
