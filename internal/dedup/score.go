package dedup

import (
	"math"
	"strings"
	"time"

	"gavel/internal/config"
	"gavel/internal/hearing"
	"gavel/internal/textmatch"
)

// Scorer computes the weighted match confidence between two hearing
// records.
type Scorer struct {
	titleWeight     float64
	dateWeight      float64
	committeeWeight float64
	dateTolerance   float64
}

// NewScorer builds a scorer from the configured weights.
func NewScorer(cfg config.Dedup) *Scorer {
	return &Scorer{
		titleWeight:     cfg.TitleWeight,
		dateWeight:      cfg.DateWeight,
		committeeWeight: cfg.CommitteeWeight,
		dateTolerance:   cfg.DateToleranceDays,
	}
}

// Score returns the combined confidence in [0, 1] that a and b describe
// the same real-world hearing.
func (s *Scorer) Score(a, b hearing.Raw) float64 {
	score := s.titleWeight*TitleSimilarity(a.Title, b.Title) +
		s.dateWeight*s.dateProximity(a.Date, b.Date) +
		s.committeeWeight*committeeMatch(a.Committee, b.Committee)
	if score > 1 {
		score = 1
	}
	return score
}

// PartialScore renormalizes the weighted score over the components both
// records actually carry, so a record missing its date or title can
// still reach the review band on the strength of what it does have.
func (s *Scorer) PartialScore(a, b hearing.Raw) float64 {
	var score, weight float64
	if textmatch.Normalize(a.Title) != "" && textmatch.Normalize(b.Title) != "" {
		score += s.titleWeight * TitleSimilarity(a.Title, b.Title)
		weight += s.titleWeight
	}
	if !a.Date.IsZero() && !b.Date.IsZero() {
		score += s.dateWeight * s.dateProximity(a.Date, b.Date)
		weight += s.dateWeight
	}
	if strings.TrimSpace(a.Committee) != "" && strings.TrimSpace(b.Committee) != "" {
		score += s.committeeWeight * committeeMatch(a.Committee, b.Committee)
		weight += s.committeeWeight
	}
	if weight == 0 {
		return 0
	}
	return score / weight
}

// TitleSimilarity compares normalized titles, taking whichever of
// token-level cosine similarity and character-level edit similarity is
// higher. Cosine handles reordered words; edit distance handles
// punctuation and suffix noise like a trailing period.
func TitleSimilarity(a, b string) float64 {
	na := textmatch.Normalize(a)
	nb := textmatch.Normalize(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}
	cosine := textmatch.CosineSimilarity(textmatch.NewFingerprint(a), textmatch.NewFingerprint(b))
	edit := textmatch.EditSimilarity(na, nb)
	return math.Max(cosine, edit)
}

// dateProximity decays linearly from 1 at identical dates to 0 at the
// tolerance boundary.
func (s *Scorer) dateProximity(a, b time.Time) float64 {
	if a.IsZero() || b.IsZero() {
		return 0
	}
	days := math.Abs(a.Sub(b).Hours()) / 24
	if s.dateTolerance <= 0 {
		if days == 0 {
			return 1
		}
		return 0
	}
	if days >= s.dateTolerance {
		return 0
	}
	return 1 - days/s.dateTolerance
}

func committeeMatch(a, b string) float64 {
	a = strings.ToUpper(strings.TrimSpace(a))
	b = strings.ToUpper(strings.TrimSpace(b))
	if a == "" || b == "" || a != b {
		return 0
	}
	return 1
}
