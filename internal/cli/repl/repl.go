package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	httpclient "codeverifier/internal/cli/http"

	"github.com/google/shlex"
)

// Session holds REPL state.
type Session struct {
	client       *httpclient.Client
	baseURL      string
	timeout      time.Duration
	compress     bool
	prettyJSON   bool
	input        *bufio.Reader
	outputWriter *bufio.Writer
}

func New(client *httpclient.Client, baseURL string, timeout time.Duration, prettyJSON bool) *Session {
	return NewWithIO(client, baseURL, timeout, prettyJSON, os.Stdin, os.Stdout)
}

// NewWithIO is New reading commands from in and writing to out.
func NewWithIO(client *httpclient.Client, baseURL string, timeout time.Duration, prettyJSON bool, in io.Reader, out io.Writer) *Session {
	return &Session{
		client:       client,
		baseURL:      baseURL,
		timeout:      timeout,
		prettyJSON:   prettyJSON,
		input:        bufio.NewReader(in),
		outputWriter: bufio.NewWriter(out),
	}
}

// Run reads commands until exit or end of input.
func (s *Session) Run(ctx context.Context) {
	for {
		_, _ = s.outputWriter.WriteString("verifier> ")
		_ = s.outputWriter.Flush()
		line, err := s.input.ReadString('\n')
		if err != nil {
			if err != io.EOF {
				s.printLine("read input failed: %v", err)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			s.printLine("bye")
			return
		}
		if s.handleSystemCommand(line) {
			continue
		}

		if err := s.handleCommand(ctx, line); err != nil {
			s.printLine("error: %v", err)
		}
	}
}

func (s *Session) handleSystemCommand(line string) bool {
	if line == "help" {
		s.printHelp()
		return true
	}
	if strings.HasPrefix(line, "set ") {
		s.handleSet(strings.TrimSpace(strings.TrimPrefix(line, "set ")))
		return true
	}
	if line == "show config" {
		s.printLine("base: %s", s.baseURL)
		s.printLine("timeout: %s", s.timeout)
		s.printLine("compress: %v", s.compress)
		return true
	}
	return false
}

func (s *Session) handleSet(args string) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		s.printLine("usage: set base|timeout|compress <value>")
		return
	}
	switch parts[0] {
	case "base":
		s.baseURL = parts[1]
		s.client.SetBaseURL(parts[1])
		s.printLine("base set to %s", parts[1])
	case "timeout":
		dur, err := time.ParseDuration(parts[1])
		if err != nil {
			s.printLine("invalid duration: %v", err)
			return
		}
		s.timeout = dur
		s.client.SetTimeout(dur)
		s.printLine("timeout set to %s", dur)
	case "compress":
		s.compress = parts[1] == "on" || parts[1] == "true"
		s.client.SetCompress(s.compress)
		s.printLine("compress set to %v", s.compress)
	default:
		s.printLine("unknown set command")
	}
}

func (s *Session) handleCommand(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("empty command")
	}
	switch tokens[0] {
	case "runtimes":
		runtimes, err := s.client.Runtimes(ctx)
		if err != nil {
			return err
		}
		s.printLine("%s", strings.Join(runtimes, "\n"))
		return nil
	case "verify":
		return s.handleVerify(ctx, tokens[1:])
	default:
		return fmt.Errorf("unknown command: %s", tokens[0])
	}
}

func (s *Session) handleVerify(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: verify <runtime> solution_file=... tests_file=...")
	}
	runtime := args[0]
	params := map[string]string{}
	for _, token := range args[1:] {
		parts := strings.SplitN(token, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid param: %s", token)
		}
		params[parts[0]] = parts[1]
	}

	solution, err := source(params, "solution")
	if err != nil {
		return err
	}
	if solution == "" {
		if solution, err = s.promptValue("solution"); err != nil {
			return err
		}
	}
	tests, err := source(params, "tests")
	if err != nil {
		return err
	}

	resp, err := s.client.Verify(ctx, runtime, httpclient.Submission{Solution: solution, Tests: tests})
	if err != nil {
		return err
	}
	s.renderResponse(resp)
	return nil
}

// source reads name_file when given, name otherwise.
func source(params map[string]string, name string) (string, error) {
	if path := params[name+"_file"]; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s file failed: %w", name, err)
		}
		return string(data), nil
	}
	return params[name], nil
}

func (s *Session) promptValue(prompt string) (string, error) {
	s.printLine("%s:", prompt)
	line, err := s.input.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (s *Session) renderResponse(resp httpclient.ResponseInfo) {
	s.printLine("HTTP %d (%s)", resp.StatusCode, resp.Duration)
	if len(resp.Body) == 0 {
		return
	}
	s.printLine("%s", Format(resp.Body, s.prettyJSON))
}

// Format indents body when pretty is set and body is JSON.
func Format(body []byte, pretty bool) string {
	if pretty {
		var raw interface{}
		if err := json.Unmarshal(body, &raw); err == nil {
			formatted, _ := json.MarshalIndent(raw, "", "  ")
			return string(formatted)
		}
	}
	return strings.TrimRight(string(body), "\n")
}

func (s *Session) printHelp() {
	s.printLine("commands: runtimes | verify <runtime> key=value ...")
	s.printLine("system: help | exit | set base|timeout|compress | show config")
	s.printLine("examples:")
	s.printLine("  verify javascript solution_file=./sol.js tests_file=./tests.js")
	s.printLine("  verify lua solution=\"x = 2\" tests=\"test('x', function() assert.equal(x, 2) end)\"")
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.outputWriter, format+"\n", args...)
	_ = s.outputWriter.Flush()
}
