// Package result defines raw execution outcomes and the canonical verification report.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// TestResult is the outcome of one registered or declared test.
type TestResult struct {
	Test    string
	Correct bool
	Error   string

	// raw keeps a driver-produced record so it round-trips unchanged.
	raw json.RawMessage
	// reported is false when a driver record carried no boolean "correct".
	reported bool
}

// Pass builds a passing result.
func Pass(name string) TestResult {
	return TestResult{Test: name, Correct: true, reported: true}
}

// Fail builds a failing result with the stringified cause.
func Fail(name, cause string) TestResult {
	return TestResult{Test: name, Error: cause, reported: true}
}

// Reported tells whether the record states its correctness.
// Results built in-process always do.
func (r TestResult) Reported() bool {
	return r.reported || r.raw == nil
}

type testResultJSON struct {
	Test    string `json:"test"`
	Correct bool   `json:"correct"`
	Error   string `json:"error,omitempty"`
}

// MarshalJSON emits driver records verbatim and in-process results in the
// {test, correct, error?} shape.
func (r TestResult) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	return json.Marshal(testResultJSON{Test: r.Test, Correct: r.Correct, Error: r.Error})
}

// UnmarshalJSON accepts any JSON object, lifting the well-known fields when
// they carry the expected types and keeping the record as-is.
func (r *TestResult) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("test result must be an object")
	}
	*r = TestResult{raw: append(json.RawMessage(nil), bytes.TrimSpace(data)...)}
	if v, ok := fields["test"]; ok {
		_ = json.Unmarshal(v, &r.Test)
	}
	if v, ok := fields["correct"]; ok {
		if err := json.Unmarshal(v, &r.Correct); err == nil {
			r.reported = true
		}
	}
	if v, ok := fields["error"]; ok {
		if err := json.Unmarshal(v, &r.Error); err != nil {
			r.Error = string(v)
		}
	}
	return nil
}

// Report is the single externally observable outcome of a verification run.
type Report struct {
	Solved  bool
	Results []TestResult
	// Errors is set only for whole-run failures.
	Errors string
	// Printed carries output captured by runtimes that report it.
	Printed string
}

// NewReport aggregates per-test results; solved is vacuously true for no tests.
func NewReport(results []TestResult) Report {
	if results == nil {
		results = []TestResult{}
	}
	solved := true
	for _, r := range results {
		if !r.Correct {
			solved = false
			break
		}
	}
	return Report{Solved: solved, Results: results}
}

// Failed builds a whole-run failure report.
func Failed(msg string) Report {
	return Report{Solved: false, Errors: msg}
}

type reportJSON struct {
	Solved  bool         `json:"solved"`
	Results []TestResult `json:"results"`
	Errors  string       `json:"errors,omitempty"`
	Printed string       `json:"printed,omitempty"`
}

type failedReportJSON struct {
	Solved  bool         `json:"solved"`
	Results []TestResult `json:"results,omitempty"`
	Errors  string       `json:"errors"`
	Printed string       `json:"printed,omitempty"`
}

// MarshalJSON always emits a results array for completed runs and omits it
// for whole-run failures without results.
func (r Report) MarshalJSON() ([]byte, error) {
	if r.Errors != "" {
		return json.Marshal(failedReportJSON(r))
	}
	out := reportJSON(r)
	if out.Results == nil {
		out.Results = []TestResult{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a report document such as the one printed by a verifier container.
func (r *Report) UnmarshalJSON(data []byte) error {
	var in reportJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = Report(in)
	return nil
}

// OutcomeKind tells which fields of a RawOutcome are meaningful.
type OutcomeKind int

const (
	// OutcomeTests carries per-test records produced in-process.
	OutcomeTests OutcomeKind = iota
	// OutcomeExit carries a driver exit code and the results file location.
	OutcomeExit
	// OutcomeDocument carries a complete report document to be parsed.
	OutcomeDocument
)

// RawOutcome is the strategy-specific intermediate result.
type RawOutcome struct {
	Kind        OutcomeKind
	Results     []TestResult
	ExitCode    int
	ResultsPath string
	Payload     []byte
}

// Tests wraps in-process results.
func Tests(results []TestResult) RawOutcome {
	return RawOutcome{Kind: OutcomeTests, Results: results}
}

// Exited wraps a driver exit.
func Exited(code int, resultsPath string) RawOutcome {
	return RawOutcome{Kind: OutcomeExit, ExitCode: code, ResultsPath: resultsPath}
}

// Document wraps a report document.
func Document(payload []byte) RawOutcome {
	return RawOutcome{Kind: OutcomeDocument, Payload: payload}
}
