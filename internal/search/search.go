package search

// Result is a single card hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Snippet    string `json:"snippet"`
	ListID     string `json:"listId"`
	BoardID    string `json:"boardId"`
	IsComplete bool   `json:"isComplete"`
}

// Query describes a card search request.
type Query struct {
	Text          string
	FilterBoardID string
	FilterListID  string
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over cards.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push cards into a search index. Cards are never deleted, so
// the index only ever receives upserts.
type Indexer interface {
	IndexCard(c CardRecord) error
}

// CardRecord is the data we index for a card.
type CardRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ListID      string `json:"listId"`
	BoardID     string `json:"boardId"`
	IsComplete  bool   `json:"isComplete"`
}
