// memshield scans text from argv or stdin and prints the verdict. It runs
// the same pipeline as the server but with the built-in rules only and no
// persistence.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/memshield/memshield/internal/guard"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	asJSON := flag.Bool("json", false, "Print the full scan result as JSON")
	flag.Parse()

	if *showVersion {
		fmt.Printf("memshield v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	content := strings.Join(flag.Args(), " ")
	if content == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read stdin: %v\n", err)
			os.Exit(1)
		}
		content = string(data)
	}
	if strings.TrimSpace(content) == "" {
		fmt.Fprintln(os.Stderr, "Usage: memshield [flags] <text>  (or pipe text on stdin)")
		os.Exit(2)
	}

	scanner := guard.NewScanner()
	result := scanner.ScanContent(content)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode result: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Printf("classification: %s\n", result.Classification)
		fmt.Printf("blocked:        %v\n", result.Blocked)
		fmt.Printf("confidence:     %.2f\n", result.Confidence)
		for _, warning := range result.Warnings {
			fmt.Printf("warning:        %s\n", warning)
		}
		if result.SanitizedContent != content {
			fmt.Printf("\nsanitized:\n%s\n", result.SanitizedContent)
		}
	}

	// Exit nonzero on blocked content so the binary composes in shell
	// pipelines that gate writes.
	if result.Blocked {
		os.Exit(3)
	}
}
