package retrieval

import (
	"sort"

	"github.com/hyperjump/kiku/internal/keyword"
	"github.com/hyperjump/kiku/internal/vector"
)

// candidateFactor is how many more vector hits than k are fetched before reranking.
const candidateFactor = 3

// fusedHit holds a chunk index and its fused keyword/semantic scores.
type fusedHit struct {
	ChunkIndex    int
	Score         float64
	KeywordScore  float64
	SemanticScore float64
}

// normalizeKeywordScores normalizes passage scores to [0,1] by max.
func normalizeKeywordScores(passages []keyword.Passage) map[int]float64 {
	normalized := make(map[int]float64, len(passages))
	if len(passages) == 0 {
		return normalized
	}
	maxScore := passages[0].Score
	for _, p := range passages {
		if p.Score > maxScore {
			maxScore = p.Score
		}
	}
	for _, p := range passages {
		if maxScore > 0 {
			normalized[p.ChunkIndex] = p.Score / maxScore
		} else {
			normalized[p.ChunkIndex] = 0
		}
	}
	return normalized
}

// semanticScores maps cosine hits to [0,1]; negative similarity counts as zero.
func semanticScores(hits []vector.Hit) map[int]float64 {
	scores := make(map[int]float64, len(hits))
	for _, h := range hits {
		scores[h.ChunkIndex] = max(h.Score, 0)
	}
	return scores
}

// fuse merges keyword and semantic score maps with weights and returns hits by descending
// fused score, ties by ascending chunk index.
func fuse(keywordScores, semantic map[int]float64, keywordWeight, semanticWeight float64) []*fusedHit {
	scoreMap := make(map[int]*fusedHit, len(keywordScores)+len(semantic))
	for i, score := range keywordScores {
		scoreMap[i] = &fusedHit{ChunkIndex: i, KeywordScore: score}
	}
	for i, score := range semantic {
		if h, ok := scoreMap[i]; ok {
			h.SemanticScore = score
		} else {
			scoreMap[i] = &fusedHit{ChunkIndex: i, SemanticScore: score}
		}
	}
	results := make([]*fusedHit, 0, len(scoreMap))
	for _, h := range scoreMap {
		h.Score = keywordWeight*h.KeywordScore + semanticWeight*h.SemanticScore
		results = append(results, h)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
	return results
}
