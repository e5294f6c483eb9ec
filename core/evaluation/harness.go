package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
)

// Answerer runs one question through the full retrieval and generation path.
// The root facade satisfies it.
type Answerer interface {
	Ask(ctx context.Context, question string, version model.PromptVersion) (*model.Answer, error)
}

// Harness runs a benchmark case set through an Answerer and aggregates
// the outcomes into a report.
type Harness struct {
	answerer Answerer
	scorer   Scorer
	logger   *slog.Logger
}

// NewHarness creates an evaluation harness. A nil scorer falls back to
// token overlap scoring.
func NewHarness(answerer Answerer, scorer Scorer, logger *slog.Logger) (*Harness, error) {
	if answerer == nil {
		return nil, helper.NewError("harness creation", fmt.Errorf("answerer must not be nil"))
	}
	if scorer == nil {
		scorer = NewTokenOverlapScorer()
	}
	return &Harness{
		answerer: answerer,
		scorer:   scorer,
		logger:   logger,
	}, nil
}

// Run executes every case in order. A case that errors is recorded with a
// zero score and never aborts the run; only an empty case set is an error.
func (h *Harness) Run(ctx context.Context, cases []model.EvaluationCase, version model.PromptVersion) (*model.EvaluationReport, error) {
	if len(cases) == 0 {
		return nil, helper.NewError("evaluation run", fmt.Errorf("case set must not be empty"))
	}

	report := &model.EvaluationReport{
		PromptVersion: version,
		StartedAt:     time.Now(),
		Outcomes:      make([]model.EvaluationOutcome, 0, len(cases)),
	}

	for i, evalCase := range cases {
		outcome := model.EvaluationOutcome{Case: evalCase}

		answer, err := h.answerer.Ask(ctx, evalCase.Question, version)
		if err != nil {
			outcome.Err = err.Error()
			if h.logger != nil {
				h.logger.Error("evaluation case failed",
					slog.Int("case", i),
					slog.String("question", evalCase.Question),
					slog.String("error", err.Error()))
			}
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}

		outcome.ProducedAnswer = answer.Text
		outcome.Grounded = answer.Grounded
		outcome.Score = h.scoreCase(evalCase, answer)
		report.Outcomes = append(report.Outcomes, outcome)
	}

	report.FinishedAt = time.Now()
	report.Aggregate()
	return report, nil
}

// scoreCase rates one answer. Cases expecting a refusal score 1 when the
// pipeline declined and 0 when it answered anyway.
func (h *Harness) scoreCase(evalCase model.EvaluationCase, answer *model.Answer) float64 {
	if evalCase.ExpectInsufficient {
		if answer.Text == model.InsufficientInformationAnswer {
			return 1
		}
		return 0
	}
	return h.scorer.Score(answer.Text, evalCase.ExpectedAnswer)
}

// SaveReport writes the report as indented JSON into resultsDir with a
// timestamped filename and returns the full path.
func SaveReport(report *model.EvaluationReport, resultsDir string) (string, error) {
	if err := os.MkdirAll(resultsDir, 0750); err != nil {
		return "", helper.NewError("creating results directory", err)
	}

	filename := fmt.Sprintf("eval_%s_%s.json", report.PromptVersion, report.StartedAt.Format("20060102-150405"))
	path := filepath.Join(resultsDir, filename)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", helper.NewError("marshalling report", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", helper.NewError("writing report", err)
	}

	return path, nil
}

// PrintSummary writes a colorized human readable summary of the report.
func PrintSummary(out io.Writer, report *model.EvaluationReport) {
	bold := color.New(color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintf(out, "%s %s\n", bold("Evaluation run"), report.PromptVersion)
	fmt.Fprintf(out, "Cases:         %d\n", len(report.Outcomes))
	fmt.Fprintf(out, "Mean score:    %s\n", scoreColor(report.MeanScore, green, yellow, red)(fmt.Sprintf("%.3f", report.MeanScore)))
	fmt.Fprintf(out, "Grounded rate: %.1f%%\n", report.GroundedRate*100)
	if report.FailedCases > 0 {
		fmt.Fprintf(out, "Failed cases:  %s\n", red(fmt.Sprintf("%d", report.FailedCases)))
	}
	fmt.Fprintf(out, "Duration:      %s\n", report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))

	for i, outcome := range report.Outcomes {
		marker := green("ok")
		if outcome.Err != "" {
			marker = red("err")
		} else if outcome.Score < 0.5 {
			marker = yellow("low")
		}
		fmt.Fprintf(out, "  [%s] %.3f  %s\n", marker, outcome.Score, outcome.Case.Question)
		if i == len(report.Outcomes)-1 {
			fmt.Fprintln(out)
		}
	}
}

func scoreColor(score float64, green, yellow, red func(a ...interface{}) string) func(a ...interface{}) string {
	switch {
	case score >= 0.7:
		return green
	case score >= 0.4:
		return yellow
	default:
		return red
	}
}
