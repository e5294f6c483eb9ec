package evaluation

import (
	_ "embed"
	"encoding/json"
	"os"

	"github.com/siherrmann/policyrag/helper"
	"github.com/siherrmann/policyrag/model"
)

//go:embed benchmark.json
var benchmarkJson []byte

// BenchmarkCases returns the built-in benchmark case set.
func BenchmarkCases() ([]model.EvaluationCase, error) {
	var cases []model.EvaluationCase
	if err := json.Unmarshal(benchmarkJson, &cases); err != nil {
		return nil, helper.NewError("parsing benchmark cases", err)
	}
	return cases, nil
}

// LoadCases reads an external case set from a JSON file, for running the
// harness against custom benchmarks.
func LoadCases(path string) ([]model.EvaluationCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, helper.NewError("reading case file", err)
	}

	var cases []model.EvaluationCase
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, helper.NewError("parsing case file", err)
	}
	return cases, nil
}
