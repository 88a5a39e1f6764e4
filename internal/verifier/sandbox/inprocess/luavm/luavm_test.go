package luavm_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"codeverifier/internal/verifier/sandbox"
	"codeverifier/internal/verifier/sandbox/inprocess"
	"codeverifier/internal/verifier/sandbox/inprocess/luavm"
	"codeverifier/internal/verifier/sandbox/result"
	"codeverifier/internal/verifier/sandbox/spec"
)

func verify(t *testing.T, timeout time.Duration, solution, tests string) result.Report {
	t.Helper()
	req := spec.Request{
		Solution: solution,
		Tests:    tests,
		Options:  spec.ExecutionOptions{TimeoutDelay: timeout},
	}
	report, err := sandbox.TestSolution(context.Background(), inprocess.NewStrategy(luavm.New), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return report
}

func TestEndToEnd(t *testing.T) {
	tests := `test("x is 2", function() assert.equal(x, 2) end)`

	report := verify(t, time.Second, "x = 2", tests)
	if !report.Solved || len(report.Results) != 1 || !report.Results[0].Correct {
		t.Fatalf("expected solved report, got %+v", report)
	}

	report = verify(t, time.Second, "x = 1", tests)
	if report.Solved || len(report.Results) != 1 {
		t.Fatalf("expected unsolved report, got %+v", report)
	}
	if report.Results[0].Error != "AssertionError: 1 == 2" {
		t.Fatalf("unexpected error %q", report.Results[0].Error)
	}
}

func TestOrderAndIndependence(t *testing.T) {
	tests := `
test("a", function() error("boom", 0) end)
test("b", function() assert(true) end)
test("c", function() missing() end)
test("d", function() assert.deepEqual({1, {k = "v"}}, {1, {k = "v"}}) end)
`
	report := verify(t, time.Second, "y = 0", tests)
	if len(report.Results) != 4 {
		t.Fatalf("expected 4 results, got %+v", report.Results)
	}
	for i, name := range []string{"a", "b", "c", "d"} {
		if report.Results[i].Test != name {
			t.Fatalf("result %d: expected %s, got %s", i, name, report.Results[i].Test)
		}
	}
	if report.Results[0].Error != "boom" || report.Results[0].Correct {
		t.Fatalf("unexpected first result %+v", report.Results[0])
	}
	if !report.Results[1].Correct || report.Results[2].Correct || !report.Results[3].Correct {
		t.Fatalf("unexpected results %+v", report.Results)
	}
}

func TestReservedNamesRejected(t *testing.T) {
	solutions := []string{
		"assert = 1",
		"function test() end",
		"__tests__ = {}",
		"rawset(_G, 'test', 1)",
		`x = 1
local n = 0
setmetatable(_G, {
  __newindex = function() end,
  __index = function(_, k)
    if k == "test" then
      n = n + 1
      if n > 1 then return function() end end
    end
  end,
})`,
	}
	for _, solution := range solutions {
		t.Run(solution, func(t *testing.T) {
			report := verify(t, time.Second, solution, `test("t", function() end)`)
			if report.Solved || len(report.Results) != 0 {
				t.Fatalf("expected rejection, got %+v", report)
			}
			if !strings.Contains(report.Errors, "cannot be defined in a solution") {
				t.Fatalf("unexpected errors %q", report.Errors)
			}
		})
	}
}

func TestHostAccessIsRemoved(t *testing.T) {
	tests := `
test("no io", function() assert.equal(io, nil) end)
test("no os", function() assert.equal(os, nil) end)
test("no dofile", function() assert.equal(dofile, nil) end)
test("no require", function() assert.equal(require, nil) end)
test("no setfenv", function() assert.equal(setfenv, nil) end)
test("no getfenv", function() assert.equal(getfenv, nil) end)
`
	report := verify(t, time.Second, "x = 1", tests)
	if !report.Solved {
		t.Fatalf("host libraries are reachable: %+v", report.Results)
	}
}

func TestWholeRunFailures(t *testing.T) {
	report := verify(t, time.Second, "x = = 1", `test("t", function() end)`)
	if !strings.HasPrefix(report.Errors, "failed to run solution") {
		t.Fatalf("unexpected errors %q", report.Errors)
	}

	report = verify(t, time.Second, "x = 1", `test("t", function() end) nope()`)
	if !strings.HasPrefix(report.Errors, "failed to initiate tests") {
		t.Fatalf("unexpected errors %q", report.Errors)
	}
}

func TestInfiniteLoopTimesOut(t *testing.T) {
	report := verify(t, 100*time.Millisecond, "x = 1", `test("spin", function() while true do end end)`)
	if report.Solved || report.Errors != "timeout" {
		t.Fatalf("expected timeout report, got %+v", report)
	}
}

func TestAssertMethods(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"call", `assert(1 == 1)`, ""},
		{"ok message", `assert.ok(false, "custom")`, "AssertionError: custom"},
		{"notEqual", `assert.notEqual(1, 1)`, "AssertionError: 1 ~= 1"},
		{"strictEqual strings", `assert.strictEqual("a", "b")`, `AssertionError: "a" == "b"`},
		{"deepEqual extra key", `assert.deepEqual({a = 1}, {a = 1, b = 2})`, "AssertionError: "},
		{"throws", `assert.throws(function() error("x") end)`, ""},
		{"throws missing", `assert.throws(function() end)`, "AssertionError: Missing expected exception."},
		{"doesNotThrow", `assert.doesNotThrow(function() error("x", 0) end)`, "AssertionError: Got unwanted exception: x"},
		{"fail", `assert.fail("nope")`, "AssertionError: nope"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := verify(t, time.Second, "x = 1", `test("case", function() `+tc.body+` end)`)
			if len(report.Results) != 1 {
				t.Fatalf("expected one result, got %+v", report)
			}
			got := report.Results[0]
			if tc.want == "" {
				if !got.Correct {
					t.Fatalf("expected pass, got %q", got.Error)
				}
				return
			}
			if got.Correct || !strings.HasPrefix(got.Error, tc.want) {
				t.Fatalf("expected %q, got %+v", tc.want, got)
			}
		})
	}
}
