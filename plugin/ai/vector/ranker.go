package vector

import "sort"

// Candidate is a stored vector eligible for ranking.
type Candidate struct {
	ID     string
	Vector []float32
}

// Hit is a scored candidate. Index points back into the input slice.
type Hit struct {
	ID    string
	Score float64
	Index int
}

// RankResult holds the top hits and the number of candidates skipped
// because their length differed from the query.
type RankResult struct {
	Hits     []Hit
	Excluded int
}

// Rank scores every candidate against query and returns the k best in
// descending order. Ties keep their input order. k <= 0 yields no hits.
func Rank(query []float32, candidates []Candidate, k int) RankResult {
	var result RankResult
	if k <= 0 {
		result.Hits = []Hit{}
		return result
	}

	hits := make([]Hit, 0, len(candidates))
	for i, c := range candidates {
		if len(c.Vector) != len(query) {
			result.Excluded++
			continue
		}
		hits = append(hits, Hit{ID: c.ID, Score: CosineSimilarity(query, c.Vector), Index: i})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if k < len(hits) {
		hits = hits[:k]
	}
	result.Hits = hits
	return result
}
