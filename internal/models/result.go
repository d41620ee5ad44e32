package models

// NoRelevantInformationMessage accompanies an empty result set.
const NoRelevantInformationMessage = "no relevant information found"

// SearchResult represents a single ranked product with its scores.
type SearchResult struct {
	Product       *Product `json:"product"`
	Score         float64  `json:"score"`
	SemanticScore float64  `json:"semantic_score"`
	LexicalScore  float64  `json:"lexical_score"`
	Rank          int      `json:"rank"`
}

// SearchResponse is the response for a search request.
// An empty result set is always reported with NoRelevantInformation set.
type SearchResponse struct {
	Query                 string          `json:"query"`
	Stage                 Stage           `json:"stage"`
	Results               []*SearchResult `json:"results"`
	Total                 int             `json:"total"`
	NoRelevantInformation bool            `json:"no_relevant_information"`
	Message               string          `json:"message,omitempty"`
	QueryTime             int64           `json:"query_time_ms"`
	Cached                bool            `json:"cached,omitempty"`
}

// MeanScore returns the average fused score of the results, 0 when empty.
func (r *SearchResponse) MeanScore() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	var sum float64
	for _, res := range r.Results {
		sum += res.Score
	}
	return sum / float64(len(r.Results))
}
