package detect

import (
	"math"
	"strings"
)

// bayes is a multinomial naive Bayes text classifier over unigrams and
// bigrams, trained in-process at construction from the embedded corpus.
// It is the fallback tier: cheap, deterministic, and honest about its
// uncertainty through the returned confidence.
type bayes struct {
	classes    []string
	classDocs  map[string]int
	tokenCount map[string]map[string]int
	classTotal map[string]int
	vocab      map[string]struct{}
	totalDocs  int
}

func newBayes(samples []labeledSample) *bayes {
	b := &bayes{
		classDocs:  make(map[string]int),
		tokenCount: make(map[string]map[string]int),
		classTotal: make(map[string]int),
		vocab:      make(map[string]struct{}),
	}
	for _, s := range samples {
		b.train(s.label, s.text)
	}
	return b
}

func (b *bayes) train(label, text string) {
	if _, ok := b.tokenCount[label]; !ok {
		b.classes = append(b.classes, label)
		b.tokenCount[label] = make(map[string]int)
	}
	b.classDocs[label]++
	b.totalDocs++
	for _, tok := range tokenize(text) {
		b.tokenCount[label][tok]++
		b.classTotal[label]++
		b.vocab[tok] = struct{}{}
	}
}

// predict returns the most likely label and a confidence in [0,1]
// derived from the normalized class posteriors.
func (b *bayes) predict(text string) (string, float64) {
	if b.totalDocs == 0 {
		return "", 0
	}

	tokens := tokenize(text)
	vocabSize := float64(len(b.vocab))

	logps := make([]float64, len(b.classes))
	for i, class := range b.classes {
		lp := math.Log(float64(b.classDocs[class]) / float64(b.totalDocs))
		denom := float64(b.classTotal[class]) + vocabSize
		for _, tok := range tokens {
			count := float64(b.tokenCount[class][tok])
			lp += math.Log((count + 1) / denom)
		}
		logps[i] = lp
	}

	// Normalize in log space to recover posteriors.
	maxLP := logps[0]
	for _, lp := range logps[1:] {
		if lp > maxLP {
			maxLP = lp
		}
	}
	var sum float64
	probs := make([]float64, len(logps))
	for i, lp := range logps {
		probs[i] = math.Exp(lp - maxLP)
		sum += probs[i]
	}

	bestIdx, bestP := 0, 0.0
	for i, p := range probs {
		p /= sum
		if p > bestP {
			bestIdx, bestP = i, p
		}
	}
	return b.classes[bestIdx], bestP
}

func tokenize(text string) []string {
	lower := strings.ToLower(text)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '@'
	})

	tokens := make([]string, 0, len(fields)*2)
	tokens = append(tokens, fields...)
	for i := 0; i+1 < len(fields); i++ {
		tokens = append(tokens, fields[i]+"_"+fields[i+1])
	}
	return tokens
}
