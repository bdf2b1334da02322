package techniques

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/ahrav/go-recipes/internal/domain"
	"github.com/ahrav/go-recipes/internal/ports"
)

var _ ports.Technique = (*TrainTest)(nil)

// TrainTestConfig controls the train/test/validation split.
type TrainTestConfig struct {
	// TestSize is the share of samples held out for testing.
	TestSize float64 `yaml:"test_size" validate:"gt=0,lt=1"`

	// ValidationSize is the share of samples held out for validation.
	ValidationSize float64 `yaml:"validation_size" validate:"gte=0,lt=1"`

	// Shuffle permutes samples before splitting.
	Shuffle bool `yaml:"shuffle"`

	// Seed drives the shuffle.
	Seed int64 `yaml:"seed"`
}

// DefaultTrainTestConfig holds out a quarter of the samples for testing.
func DefaultTrainTestConfig() TrainTestConfig {
	return TrainTestConfig{TestSize: 0.25, Shuffle: true}
}

// SplitSizes is the artifact of the splitter: the number of samples that
// ended up in each partition.
type SplitSizes struct {
	Train      int
	Test       int
	Validation int
}

// TrainTest partitions the full dataset into train, test and optionally
// validation partitions.
type TrainTest struct{ base }

// NewTrainTest creates the "train_test" splitter.
func NewTrainTest() *TrainTest {
	return &TrainTest{base: newBase("train_test", domain.StageSplitter, TrainTestConfig{})}
}

// Run splits Full. Every partition receives its own copy of the rows so
// later stages may transform them independently.
func (t *TrainTest) Run(ctx context.Context, in domain.Ingredients, params map[string]any) (domain.Ingredients, any, error) {
	_, span := t.start(ctx, in)
	defer span.End()

	cfg, err := decode(params, DefaultTrainTestConfig())
	if err != nil {
		return fail(span, in, err)
	}
	if cfg.TestSize+cfg.ValidationSize >= 1 {
		return fail(span, in, fmt.Errorf("test_size %g plus validation_size %g must be below 1",
			cfg.TestSize, cfg.ValidationSize))
	}

	n := in.Full.Rows()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if cfg.Shuffle {
		rng := rand.New(rand.NewPCG(uint64(cfg.Seed), 0x9e3779b97f4a7c15))
		rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })
	}

	nTest := holdout(n, cfg.TestSize)
	nVal := 0
	if cfg.ValidationSize > 0 {
		nVal = holdout(n, cfg.ValidationSize)
	}
	nTrain := n - nTest - nVal
	if nTest < 1 || nTrain < 1 || (cfg.ValidationSize > 0 && nVal < 1) {
		return fail(span, in, fmt.Errorf("%w: %d samples cannot be split with test_size %g and validation_size %g",
			ErrTooFewRows, n, cfg.TestSize, cfg.ValidationSize))
	}

	in.Test = take(in.Full, order[:nTest])
	in.Validation = take(in.Full, order[nTest:nTest+nVal])
	in.Train = take(in.Full, order[nTest+nVal:])
	return in, SplitSizes{Train: nTrain, Test: nTest, Validation: nVal}, nil
}

// holdout returns the rounded-up number of samples for share.
func holdout(n int, share float64) int {
	return int(math.Ceil(float64(n) * share))
}

// take copies the rows of p selected by idx.
func take(p domain.Partition, idx []int) domain.Partition {
	if len(idx) == 0 {
		return domain.Partition{}
	}
	out := domain.Partition{X: make([][]float64, len(idx)), Y: make([]float64, len(idx))}
	for i, k := range idx {
		out.X[i] = slices.Clone(p.X[k])
		out.Y[i] = p.Y[k]
	}
	return out
}
