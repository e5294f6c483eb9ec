package model

import "time"

// EvaluationCase is one question/expected-answer pair from the benchmark set.
// ExpectInsufficient marks cases where the expected outcome is that the
// pipeline declines for lack of relevant context; such cases are scored as
// correct when the pipeline does decline.
type EvaluationCase struct {
	Question           string   `json:"question"`
	ExpectedAnswer     string   `json:"expected_answer"`
	ExpectedSources    []string `json:"expected_sources,omitempty"`
	ExpectInsufficient bool     `json:"expect_insufficient,omitempty"`
}

// EvaluationOutcome records the result of running one case through the pipeline.
// A failed case carries Err and a zero score; it never aborts the run.
type EvaluationOutcome struct {
	Case           EvaluationCase `json:"case"`
	ProducedAnswer string         `json:"produced_answer"`
	Score          float64        `json:"score"`
	Grounded       bool           `json:"grounded"`
	Err            string         `json:"error,omitempty"`
}

// EvaluationReport aggregates the outcomes of one evaluation run
type EvaluationReport struct {
	PromptVersion PromptVersion       `json:"prompt_version"`
	StartedAt     time.Time           `json:"started_at"`
	FinishedAt    time.Time           `json:"finished_at"`
	Outcomes      []EvaluationOutcome `json:"outcomes"`
	MeanScore     float64             `json:"mean_score"`
	GroundedRate  float64             `json:"grounded_rate"`
	FailedCases   int                 `json:"failed_cases"`
}

// Aggregate recomputes MeanScore, GroundedRate and FailedCases from Outcomes
func (r *EvaluationReport) Aggregate() {
	if len(r.Outcomes) == 0 {
		r.MeanScore = 0
		r.GroundedRate = 0
		r.FailedCases = 0
		return
	}

	var scoreSum float64
	var grounded, failed int
	for _, outcome := range r.Outcomes {
		scoreSum += outcome.Score
		if outcome.Grounded {
			grounded++
		}
		if outcome.Err != "" {
			failed++
		}
	}

	r.MeanScore = scoreSum / float64(len(r.Outcomes))
	r.GroundedRate = float64(grounded) / float64(len(r.Outcomes))
	r.FailedCases = failed
}
