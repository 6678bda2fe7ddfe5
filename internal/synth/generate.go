package synth

import (
	"fmt"

	"station-aflowx-optimizer/internal/domain"
)

// Generate produces a SyntheticDataset for the given task description,
// dataset name, and requested size. The requested size is clamped to
// [6,30]; duplicate questions are dropped after rendering, so the dataset
// can hold fewer cases than that.
func (s *Synthesizer) Generate(taskDesc, datasetName string, requestedSize int, schema domain.SchemaSnapshot) domain.SyntheticDataset {
	boundedSize := clampInt(requestedSize, 6, 30)

	labels := schema.Labels
	if len(labels) == 0 {
		labels = []string{"Node"}
	}
	relations := schema.Relations
	if len(relations) == 0 {
		relations = []string{"RELATED_TO"}
	}

	intents := inferIntents(taskDesc)
	templates := buildTemplates(intents)

	questions := s.renderQuestions(templates, labels, relations, boundedSize*2)
	questions = dedupe(questions)
	if len(questions) > boundedSize {
		questions = questions[:boundedSize]
	}

	hardNegTarget := 0
	if s.opts.EnableHardNegatives {
		hardNegTarget = len(questions) / 4
		if hardNegTarget < 2 && len(questions) >= 2 {
			hardNegTarget = 2
		}
		if hardNegTarget > len(questions) {
			hardNegTarget = len(questions)
		}
	}
	hardNegIdx := map[int]bool{}
	if hardNegTarget > 0 {
		perm := s.rng.Perm(len(questions))
		for _, idx := range perm[:hardNegTarget] {
			hardNegIdx[idx] = true
		}
	}

	cases := make([]domain.SyntheticCase, 0, len(questions))
	hardNegCount := 0
	for idx, q := range questions {
		intent := intents[idx%len(intents)]
		isHardNeg := hardNegIdx[idx]
		if isHardNeg {
			label := pickFrom(s.rng, labels)
			relation := pickFrom(s.rng, relations)
			q = q + fmt.Sprintf(" Also explain why the answer cannot be inferred if %s has no edge of type %s", label, relation)
			hardNegCount++
		}
		verifier := s.resolver(q)
		cases = append(cases, domain.SyntheticCase{
			CaseID:     fmt.Sprintf("%s-%d", datasetName, idx+1),
			Question:   q,
			Verifier:   verifier,
			Intent:     intent,
			Difficulty: domain.DifficultyForIndex(idx),
			Lineage: domain.CaseLineage{
				SeedIndex:      idx,
				Intent:         intent,
				Difficulty:     domain.DifficultyForIndex(idx),
				IsHardNegative: isHardNeg,
			},
		})
	}

	train, val, test := s.split(cases)

	return domain.SyntheticDataset{
		Name:           datasetName,
		TaskDesc:       taskDesc,
		Cases:          cases,
		TrainCases:     train,
		ValCases:       val,
		TestCases:      test,
		SchemaSnapshot: domain.SchemaSnapshot{Labels: labels, Relations: relations},
		SynthesisReport: domain.SynthesisReport{
			RequestedSize:     requestedSize,
			FinalSize:         len(cases),
			Intents:           intents,
			Labels:            labels,
			Relations:         relations,
			HardNegativeCount: hardNegCount,
			SplitSizes: map[string]int{
				"train": len(train),
				"val":   len(val),
				"test":  len(test),
			},
		},
	}
}

func (s *Synthesizer) renderQuestions(templates []seedTemplate, labels, relations []string, target int) []string {
	var results []string
	for len(results) < target {
		seed := pickTemplate(s.rng, templates)
		label := pickFrom(s.rng, labels)
		relation := pickFrom(s.rng, relations)
		question := render(seed.text, label, relation)
		results = append(results, question)
		if s.opts.EnableParaphrase {
			results = append(results, paraphrase(question)...)
		}
	}
	if len(results) > target {
		results = results[:target]
	}
	return results
}

// split shuffles cases with the synthesizer's seeded RNG and cuts by ratio,
// rebalancing so every split is non-empty whenever len(cases) >= 3.
func (s *Synthesizer) split(cases []domain.SyntheticCase) (train, val, test []domain.SyntheticCase) {
	n := len(cases)
	if n == 0 {
		return nil, nil, nil
	}
	shuffled := append([]domain.SyntheticCase(nil), cases...)
	s.rng.Shuffle(n, func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	trainN := int(float64(n) * s.opts.TrainRatio)
	valN := int(float64(n) * s.opts.ValRatio)

	train = shuffled[:trainN]
	val = shuffled[trainN : trainN+valN]
	test = shuffled[trainN+valN:]

	if n >= 3 {
		for len(train) == 0 {
			train, val, test = borrow(train, val, test)
		}
		for len(val) == 0 {
			val, train, test = borrow(val, train, test)
		}
		for len(test) == 0 {
			test, train, val = borrow(test, train, val)
		}
	}
	return train, val, test
}

// borrow moves one case from whichever of the two donor splits currently
// has more than one case into the empty split.
func borrow(empty, donorA, donorB []domain.SyntheticCase) (newEmpty, newA, newB []domain.SyntheticCase) {
	if len(donorA) > 1 {
		return append(empty, donorA[len(donorA)-1]), donorA[:len(donorA)-1], donorB
	}
	if len(donorB) > 1 {
		return append(empty, donorB[len(donorB)-1]), donorA, donorB[:len(donorB)-1]
	}
	return empty, donorA, donorB
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
