package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"
)

// AssertGolden compares a result's final IR text against the golden file
// testdata/golden/<scenario>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, result.Scenario, []byte(result.Text))
}

// RunGolden loads a scenario file, runs it, fails the test on any
// expectation violation, and compares the final IR against the golden
// file.
func RunGolden(t *testing.T, scenarioPath, baseDir string) *Result {
	t.Helper()

	scenario, err := LoadScenario(scenarioPath)
	if err != nil {
		t.Fatalf("loading scenario: %v", err)
	}
	result, err := Run(scenario, baseDir)
	if err != nil {
		t.Fatalf("running scenario %s: %v", scenario.Name, err)
	}
	for _, failure := range result.Failures {
		t.Errorf("scenario %s: %s", scenario.Name, failure)
	}
	AssertGolden(t, result)
	return result
}
