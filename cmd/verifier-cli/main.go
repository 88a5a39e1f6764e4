package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"codeverifier/internal/cli/config"
	httpclient "codeverifier/internal/cli/http"
	"codeverifier/internal/cli/repl"
)

const defaultConfigPath = "configs/cli.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	runtime := flag.String("runtime", "", "Runtime to verify with; without it an interactive session starts")
	solutionPath := flag.String("solution", "", "Path to the solution file")
	testsPath := flag.String("tests", "", "Path to the tests file")
	compress := flag.Bool("zstd", false, "Send the request body zstd encoded")
	pretty := flag.Bool("pretty", false, "Pretty print JSON response")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *compress {
		cfg.Compress = true
	}
	if *pretty {
		trueValue := true
		cfg.PrettyJSON = &trueValue
	}
	prettyJSON := cfg.PrettyJSON != nil && *cfg.PrettyJSON

	client := httpclient.New(cfg.BaseURL, cfg.Timeout, cfg.Compress)
	if *runtime == "" {
		repl.New(client, cfg.BaseURL, cfg.Timeout, prettyJSON).Run(context.Background())
		return
	}

	os.Exit(verifyOnce(client, *runtime, *solutionPath, *testsPath, prettyJSON))
}

// verifyOnce returns the process exit code: 0 when solved, 1 when not, 2 on
// usage or transport errors.
func verifyOnce(client *httpclient.Client, runtime, solutionPath, testsPath string, pretty bool) int {
	if solutionPath == "" {
		fmt.Fprintln(os.Stderr, "-solution is required with -runtime")
		return 2
	}
	solution, err := os.ReadFile(solutionPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read solution failed: %v\n", err)
		return 2
	}
	var tests []byte
	if testsPath != "" {
		if tests, err = os.ReadFile(testsPath); err != nil {
			fmt.Fprintf(os.Stderr, "read tests failed: %v\n", err)
			return 2
		}
	}

	resp, err := client.Verify(context.Background(), runtime, httpclient.Submission{
		Solution: string(solution),
		Tests:    string(tests),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify failed: %v\n", err)
		return 2
	}
	fmt.Println(repl.Format(resp.Body, pretty))
	if resp.StatusCode != 200 {
		return 2
	}
	if !solved(resp.Body) {
		return 1
	}
	return 0
}

func solved(body []byte) bool {
	var report struct {
		Solved bool `json:"solved"`
	}
	if err := json.Unmarshal(body, &report); err != nil {
		return false
	}
	return report.Solved
}
