package makefile

import (
	"bufio"
	"io"
	"strings"
)

// scanResult holds the raw data a single pass over a Makefile's lines
// collects: the `.PHONY` target names and the `### Workflow` comment block,
// joined back into a markdown document (spec.md §4.3 steps 1-2).
type scanResult struct {
	phonyTargets []string
	markdown     string
}

const workflowMarker = "### Workflow"

func scan(r io.Reader) (scanResult, error) {
	var result scanResult
	var workflowLines []string
	inWorkflow := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(strings.TrimSpace(line), ".PHONY:") {
			rest := strings.TrimSpace(line)[len(".PHONY:"):]
			for _, name := range strings.Fields(rest) {
				result.phonyTargets = append(result.phonyTargets, name)
			}
			continue
		}

		if inWorkflow {
			switch {
			case strings.HasPrefix(line, "# "):
				workflowLines = append(workflowLines, line[2:])
			case strings.HasPrefix(line, "#"):
				workflowLines = append(workflowLines, line[1:])
			default:
				inWorkflow = false
			}
			continue
		}

		if strings.TrimSpace(line) == workflowMarker {
			inWorkflow = true
		}
	}
	if err := scanner.Err(); err != nil {
		return scanResult{}, err
	}

	result.markdown = strings.Join(workflowLines, "\n")
	return result, nil
}
