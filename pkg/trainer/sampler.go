package trainer

import (
	"fmt"
	"math/rand"

	"github.com/ken/embed_trainer/internal/config"
	"github.com/ken/embed_trainer/pkg/dataset"
)

// Sampler splits a dataset's records into training batches for one epoch
type Sampler interface {
	// Batches returns the epoch's batches. The rng drives shuffling so
	// runs are reproducible under a fixed seed.
	Batches(records []dataset.Record, batchSize int, rng *rand.Rand) [][]dataset.Record
}

// NewSampler returns the sampler for a configured strategy
func NewSampler(strategy config.SamplerStrategy) (Sampler, error) {
	switch strategy {
	case config.SamplerRandom:
		return &RandomSampler{}, nil
	case config.SamplerNoDuplicates:
		return &NoDuplicatesSampler{}, nil
	default:
		return nil, fmt.Errorf("unknown batch sampler %q", strategy)
	}
}

// RandomSampler shuffles the records and chunks them into batches
type RandomSampler struct{}

func (s *RandomSampler) Batches(records []dataset.Record, batchSize int, rng *rand.Rand) [][]dataset.Record {
	shuffled := shuffle(records, rng)

	batches := make([][]dataset.Record, 0, (len(shuffled)+batchSize-1)/batchSize)
	for start := 0; start < len(shuffled); start += batchSize {
		end := start + batchSize
		if end > len(shuffled) {
			end = len(shuffled)
		}
		batches = append(batches, shuffled[start:end])
	}
	return batches
}

// NoDuplicatesSampler shuffles the records and builds batches in which no
// text appears twice. A record whose text collides with the current batch
// is deferred to a later batch, which keeps in-batch negative sampling
// valid for ranking losses.
type NoDuplicatesSampler struct{}

func (s *NoDuplicatesSampler) Batches(records []dataset.Record, batchSize int, rng *rand.Rand) [][]dataset.Record {
	pending := shuffle(records, rng)

	var batches [][]dataset.Record
	for len(pending) > 0 {
		batch := make([]dataset.Record, 0, batchSize)
		seen := make(map[string]bool, batchSize*2)
		remaining := pending[:0:0]

		for _, r := range pending {
			if len(batch) == batchSize || collides(r, seen) {
				remaining = append(remaining, r)
				continue
			}
			batch = append(batch, r)
			for _, text := range r.Texts {
				seen[text] = true
			}
		}

		batches = append(batches, batch)
		pending = remaining
	}
	return batches
}

func collides(r dataset.Record, seen map[string]bool) bool {
	for _, text := range r.Texts {
		if seen[text] {
			return true
		}
	}
	return false
}

func shuffle(records []dataset.Record, rng *rand.Rand) []dataset.Record {
	shuffled := make([]dataset.Record, len(records))
	copy(shuffled, records)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled
}
