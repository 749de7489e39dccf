package recommend

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/nimbushealth/wardcast/internal/api"
)

const embeddingDims = 32

// Retriever finds past crises similar to current conditions. Lessons are
// additive context for recommendations; retrieval failure never fails the
// recommendation call.
type Retriever interface {
	Similar(ctx context.Context, bedStress, staffRisk float64, k int) ([]api.CrisisLesson, error)
}

// HashRetriever is an in-process retriever over a fixed lesson corpus.
// Descriptions are embedded with a hashed bag-of-words vector and combined
// with the numeric stress and risk features for cosine ranking.
type HashRetriever struct {
	mu      sync.RWMutex
	lessons []api.CrisisLesson
	vectors [][]float64
}

// NewHashRetriever builds the retriever over the given corpus.
func NewHashRetriever(lessons []api.CrisisLesson) *HashRetriever {
	r := &HashRetriever{}
	for _, l := range lessons {
		r.lessons = append(r.lessons, l)
		r.vectors = append(r.vectors, embed(l.Description, l.BedStress, l.StaffRisk))
	}
	return r
}

// Add appends a lesson to the corpus.
func (r *HashRetriever) Add(lesson api.CrisisLesson) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lessons = append(r.lessons, lesson)
	r.vectors = append(r.vectors, embed(lesson.Description, lesson.BedStress, lesson.StaffRisk))
}

// Similar returns the k most similar lessons, highest similarity first.
func (r *HashRetriever) Similar(_ context.Context, bedStress, staffRisk float64, k int) ([]api.CrisisLesson, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.lessons) == 0 || k <= 0 {
		return nil, nil
	}

	query := embed("", bedStress, staffRisk)
	scored := make([]api.CrisisLesson, len(r.lessons))
	for i, l := range r.lessons {
		l.SimilarityScore = cosine(query, r.vectors[i])
		scored[i] = l
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].SimilarityScore > scored[j].SimilarityScore
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k], nil
}

// numericWeight keeps the stress and risk features from being drowned out
// by the word-count dimensions.
const numericWeight = 3.0

// embed produces a fixed-size vector: hashed word counts over the text plus
// the two numeric condition features, scaled to comparable magnitude.
func embed(text string, bedStress, staffRisk float64) []float64 {
	v := make([]float64, embeddingDims+2)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(word))
		idx := binary.BigEndian.Uint32(sum[:4]) % embeddingDims
		v[idx]++
	}
	v[embeddingDims] = numericWeight * bedStress / 100
	v[embeddingDims+1] = numericWeight * staffRisk / 100
	return v
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// DefaultLessons is a seed corpus of resolved crises used when no external
// lesson store is configured.
func DefaultLessons() []api.CrisisLesson {
	return []api.CrisisLesson{
		{
			CrisisID:       "winter-surge",
			Description:    "winter respiratory surge filled the ward past capacity for nine days",
			BedStress:      94,
			StaffRisk:      82,
			ActionsTaken:   []string{"opened overflow ward", "deferred elective admissions", "agency staffing"},
			Outcome:        "stabilized within a week",
			LessonsLearned: "overflow capacity must be staffed before occupancy crosses 90 percent",
		},
		{
			CrisisID:       "flu-staffing",
			Description:    "staff influenza outbreak cut available nursing by a third",
			BedStress:      72,
			StaffRisk:      91,
			ActionsTaken:   []string{"cross-site staff pooling", "extended shifts with mandatory rest"},
			Outcome:        "no unsafe shifts recorded",
			LessonsLearned: "cross-site pooling covers short absences better than overtime alone",
		},
		{
			CrisisID:       "weekend-bottleneck",
			Description:    "weekend discharge bottleneck held recovered patients over monday intake",
			BedStress:      88,
			StaffRisk:      55,
			ActionsTaken:   []string{"weekend discharge rounds", "pharmacy on-call for discharge meds"},
			Outcome:        "monday occupancy dropped eight percent",
			LessonsLearned: "weekend discharge capacity is the cheapest bed capacity available",
		},
	}
}
