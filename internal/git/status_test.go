package git

import "testing"

func TestParseBranchHeader(t *testing.T) {
	cases := []struct {
		line   string
		local  string
		remote string
		ahead  int
		behind int
	}{
		{"## main...origin/main [ahead 2, behind 1]", "main", "origin/main", 2, 1},
		{"## main...origin/main [ahead 3]", "main", "origin/main", 3, 0},
		{"## main", "main", "", 0, 0},
	}

	for _, c := range cases {
		local, remote, ahead, behind := parseBranchHeader(c.line)
		if local != c.local || remote != c.remote || ahead != c.ahead || behind != c.behind {
			t.Errorf("parseBranchHeader(%q) = (%q,%q,%d,%d), want (%q,%q,%d,%d)",
				c.line, local, remote, ahead, behind, c.local, c.remote, c.ahead, c.behind)
		}
	}
}

func TestGit_Status_NotARepo(t *testing.T) {
	t.Parallel()

	g := New(t.TempDir())
	_, err := g.Status(t.Context())
	if err == nil {
		t.Fatal("expected an error for a non-repository directory")
	}
}
