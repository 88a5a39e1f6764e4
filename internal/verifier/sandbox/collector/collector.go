// Package collector turns raw strategy outcomes into verification reports.
package collector

import (
	"encoding/json"
	"os"

	"codeverifier/internal/verifier/sandbox/result"
	"codeverifier/pkg/errors"
)

// Collect normalizes outcome. Whole-run failures come back as errors carrying
// ResultsMissing or ResultsMalformed.
func Collect(outcome result.RawOutcome) (result.Report, error) {
	switch outcome.Kind {
	case result.OutcomeTests:
		return result.NewReport(outcome.Results), nil
	case result.OutcomeExit:
		return collectExit(outcome.ExitCode, outcome.ResultsPath)
	case result.OutcomeDocument:
		return collectDocument(outcome.Payload)
	default:
		return result.Report{}, errors.Newf(errors.InternalServerError, "unknown outcome kind %d", outcome.Kind)
	}
}

// collectExit reads the driver results file. A missing file is an error
// whatever the exit code was.
func collectExit(exitCode int, path string) (result.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return result.Report{}, errors.Newf(errors.ResultsMissing, "results are missing at %s", path)
		}
		return result.Report{}, errors.Wrapf(err, errors.ResultsMissing, "read results at %s", path)
	}

	results, err := parseRecords(data)
	if err != nil {
		return result.Report{}, err
	}
	return result.Report{
		Solved:  exitCode == 0 && noneFailed(results),
		Results: results,
	}, nil
}

func parseRecords(data []byte) ([]result.TestResult, error) {
	var results []result.TestResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, errors.Wrapf(err, errors.ResultsMalformed, "failed to parse results")
	}
	if results == nil {
		return nil, errors.Newf(errors.ResultsMalformed, "failed to parse results: expected an array")
	}
	return results, nil
}

type document struct {
	Solved  bool              `json:"solved"`
	Printed string            `json:"printed"`
	Errors  string            `json:"errors"`
	Results []json.RawMessage `json:"results"`
}

// collectDocument reads a report printed by a verifier container. Records
// name their test with "call"; it is copied to "test" when absent.
func collectDocument(payload []byte) (result.Report, error) {
	var doc document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return result.Report{}, errors.Wrapf(err, errors.ResultsMalformed, "failed to parse results")
	}

	results := make([]result.TestResult, 0, len(doc.Results))
	for _, raw := range doc.Results {
		record, err := nameRecord(raw)
		if err != nil {
			return result.Report{}, err
		}
		var r result.TestResult
		if err := json.Unmarshal(record, &r); err != nil {
			return result.Report{}, errors.Wrapf(err, errors.ResultsMalformed, "failed to parse results")
		}
		results = append(results, r)
	}

	if doc.Errors != "" {
		report := result.Failed(doc.Errors)
		report.Printed = doc.Printed
		if len(results) > 0 {
			report.Results = results
		}
		return report, nil
	}
	return result.Report{
		Solved:  doc.Solved && noneFailed(results),
		Results: results,
		Printed: doc.Printed,
	}, nil
}

func nameRecord(raw json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, errors.Newf(errors.ResultsMalformed, "failed to parse results: record is not an object")
	}
	if _, ok := fields["test"]; ok {
		return raw, nil
	}
	call, ok := fields["call"]
	if !ok {
		return raw, nil
	}
	fields["test"] = call
	named, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ResultsMalformed, "failed to parse results")
	}
	return named, nil
}

// noneFailed is false when any record states it is not correct.
func noneFailed(results []result.TestResult) bool {
	for _, r := range results {
		if r.Reported() && !r.Correct {
			return false
		}
	}
	return true
}
