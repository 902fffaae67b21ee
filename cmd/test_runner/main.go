package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

var (
	verbose    = flag.Bool("v", false, "verbose output")
	short      = flag.Bool("short", false, "run only short tests")
	race       = flag.Bool("race", false, "enable the race detector")
	cover      = flag.Bool("cover", false, "report coverage")
	timeout    = flag.Duration("timeout", 5*time.Minute, "test timeout")
	testRegexp = flag.String("run", "", "run only tests matching the regular expression")
	packages   = flag.String("pkg", "./...", "comma separated package patterns, e.g. ./internal/history,./internal/mt4")
)

func main() {
	flag.Parse()

	args := []string{"test"}
	if *verbose {
		args = append(args, "-v")
	}
	if *short {
		args = append(args, "-short")
	}
	if *race {
		args = append(args, "-race")
	}
	if *cover {
		args = append(args, "-cover")
	}
	args = append(args, "-timeout="+timeout.String())
	if *testRegexp != "" {
		args = append(args, "-run="+*testRegexp)
	}
	for _, p := range strings.Split(*packages, ",") {
		if p = strings.TrimSpace(p); p != "" {
			args = append(args, p)
		}
	}

	// History files and the minute bar database of the tests go to a scratch directory so a
	// developer's .env never points them at real data.
	scratch, err := os.MkdirTemp("", "fxhistory-test-")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating scratch directory: %v\n", err)
		os.Exit(1)
	}
	defer os.RemoveAll(scratch)

	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"TEST_ENV=true",
		"HISTORY_DIR="+scratch,
		"DB_PATH="+scratch+"/history.db",
		"FEED=sqlite",
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fmt.Printf("Running tests with args: %s\n", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		code := 1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			fmt.Printf("Error running tests: %v\n", err)
		}
		os.RemoveAll(scratch)
		os.Exit(code)
	}
}
