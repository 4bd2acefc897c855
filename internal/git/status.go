package git

import (
	"context"
	"strconv"
	"strings"
)

// Status is the parsed form of `git status --short --branch --porcelain`
// (spec §4.2.1 refresh, §3 branch engine state's git-status field).
type Status struct {
	Raw         string
	Local       string
	Remote      string
	Ahead       int
	Behind      int
	Uncommitted int
}

// parseBranchHeader parses a line like:
// "## main...origin/main [ahead 2, behind 1]" or "## main" (no upstream).
func parseBranchHeader(line string) (local, remote string, ahead, behind int) {
	line = strings.TrimPrefix(line, "## ")

	bracket := strings.Index(line, " [")
	tracking := ""
	if bracket >= 0 {
		tracking = line[bracket+2:]
		tracking = strings.TrimSuffix(tracking, "]")
		line = line[:bracket]
	}

	if dots := strings.Index(line, "..."); dots >= 0 {
		local = line[:dots]
		remote = line[dots+3:]
	} else {
		local = line
	}

	for _, part := range strings.Split(tracking, ", ") {
		part = strings.TrimSpace(part)
		fields := strings.Fields(part)
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		switch fields[0] {
		case "ahead":
			ahead = n
		case "behind":
			behind = n
		}
	}
	return local, remote, ahead, behind
}

// Status runs `git status --short --branch --porcelain` and parses it.
func (g *Git) Status(ctx context.Context) (Status, error) {
	raw, err := g.run(ctx, "status", "--short", "--branch", "--porcelain")
	if err != nil {
		return Status{}, err
	}

	lines := strings.Split(raw, "\n")
	st := Status{Raw: raw}
	if len(lines) > 0 && strings.HasPrefix(lines[0], "## ") {
		st.Local, st.Remote, st.Ahead, st.Behind = parseBranchHeader(lines[0])
		lines = lines[1:]
	}
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			st.Uncommitted++
		}
	}
	return st, nil
}
