package embedding

import (
	"math"
	"math/rand"
	"sort"
)

// skipGram trains node vectors on a walk corpus with negative sampling.
// Training is single-threaded with a seeded source, so it is deterministic
// for a fixed corpus and seed; the engine surfaces that fact instead of
// relying on it silently.
type skipGram struct {
	dims      int
	window    int
	negatives int
	lr        float64
	epochs    int
	rng       *rand.Rand

	vocab    []string
	vocabIdx map[string]int
	in       [][]float64
	out      [][]float64
	unigram  []int // negative-sampling table, unigram^0.75
}

const unigramTableSize = 100000

func newSkipGram(corpus [][]string, dims, window, negatives, epochs int, lr float64, seed int64) *skipGram {
	counts := make(map[string]int)
	for _, walk := range corpus {
		for _, node := range walk {
			counts[node]++
		}
	}

	vocab := make([]string, 0, len(counts))
	for node := range counts {
		vocab = append(vocab, node)
	}
	sort.Strings(vocab)

	vocabIdx := make(map[string]int, len(vocab))
	for i, node := range vocab {
		vocabIdx[node] = i
	}

	sg := &skipGram{
		dims:      dims,
		window:    window,
		negatives: negatives,
		lr:        lr,
		epochs:    epochs,
		rng:       rand.New(rand.NewSource(seed)),
		vocab:     vocab,
		vocabIdx:  vocabIdx,
	}

	sg.in = make([][]float64, len(vocab))
	sg.out = make([][]float64, len(vocab))
	for i := range vocab {
		sg.in[i] = make([]float64, dims)
		sg.out[i] = make([]float64, dims)
		for d := 0; d < dims; d++ {
			sg.in[i][d] = (sg.rng.Float64() - 0.5) / float64(dims)
		}
	}

	sg.buildUnigramTable(counts)
	return sg
}

func (sg *skipGram) buildUnigramTable(counts map[string]int) {
	total := 0.0
	pow := make([]float64, len(sg.vocab))
	for i, node := range sg.vocab {
		pow[i] = math.Pow(float64(counts[node]), 0.75)
		total += pow[i]
	}

	sg.unigram = make([]int, unigramTableSize)
	idx := 0
	cum := pow[0] / total
	for i := 0; i < unigramTableSize; i++ {
		sg.unigram[i] = idx
		if float64(i)/unigramTableSize > cum && idx < len(sg.vocab)-1 {
			idx++
			cum += pow[idx] / total
		}
	}
}

// train runs SGD over the corpus. Learning rate decays linearly per epoch.
func (sg *skipGram) train(corpus [][]string) {
	for epoch := 0; epoch < sg.epochs; epoch++ {
		lr := sg.lr * (1 - float64(epoch)/float64(sg.epochs))
		if lr < sg.lr*0.0001 {
			lr = sg.lr * 0.0001
		}

		for _, walk := range corpus {
			for i, center := range walk {
				centerIdx := sg.vocabIdx[center]

				lo := i - sg.window
				if lo < 0 {
					lo = 0
				}
				hi := i + sg.window
				if hi >= len(walk) {
					hi = len(walk) - 1
				}

				for j := lo; j <= hi; j++ {
					if j == i {
						continue
					}
					sg.trainPair(centerIdx, sg.vocabIdx[walk[j]], lr)
				}
			}
		}
	}
}

// trainPair updates vectors for one (center, context) pair plus negatives.
func (sg *skipGram) trainPair(center, context int, lr float64) {
	grad := make([]float64, sg.dims)

	// Positive sample
	sg.update(center, context, 1, lr, grad)

	// Negative samples
	for n := 0; n < sg.negatives; n++ {
		neg := sg.unigram[sg.rng.Intn(unigramTableSize)]
		if neg == context {
			continue
		}
		sg.update(center, neg, 0, lr, grad)
	}

	for d := 0; d < sg.dims; d++ {
		sg.in[center][d] += grad[d]
	}
}

func (sg *skipGram) update(center, target int, label float64, lr float64, grad []float64) {
	dot := 0.0
	for d := 0; d < sg.dims; d++ {
		dot += sg.in[center][d] * sg.out[target][d]
	}

	g := (label - sigmoid(dot)) * lr
	for d := 0; d < sg.dims; d++ {
		grad[d] += g * sg.out[target][d]
		sg.out[target][d] += g * sg.in[center][d]
	}
}

// vector returns the trained input vector for a node, or nil if the node
// never appeared in the corpus.
func (sg *skipGram) vector(node string) []float32 {
	idx, ok := sg.vocabIdx[node]
	if !ok {
		return nil
	}
	vec := make([]float32, sg.dims)
	for d := 0; d < sg.dims; d++ {
		vec[d] = float32(sg.in[idx][d])
	}
	return vec
}

func sigmoid(x float64) float64 {
	if x > 6 {
		return 1
	}
	if x < -6 {
		return 0
	}
	return 1 / (1 + math.Exp(-x))
}
