package makefile

// GitAction is one row of the git action table spec.md §6 names, shared by
// the Makefile parser (to classify `git <subcommand>` targets) and the
// branch engine (to build the actual command to run).
type GitAction struct {
	Key     string // e.g. "git-status"
	Command string // command template, e.g. "git status"
	Label   string // button label
	Class   string // button style: "success" | "warning" | "danger"
	Confirm bool   // requires user confirmation before running
}

// subcommand is the part of a Makefile target after "git " that selects
// this action, e.g. "reset --hard" for git-reset-hard.
var gitActionsBySubcommand = map[string]GitAction{
	"status": {Key: "git-status", Command: "git status", Label: "Status", Class: "success"},
	"diff":   {Key: "git-diff", Command: "git diff", Label: "Diff", Class: "success"},
	"fetch":  {Key: "git-fetch", Command: "git fetch", Label: "Fetch", Class: "success"},
	"pull":   {Key: "git-pull", Command: "git pull", Label: "Pull", Class: "warning"},
	"push":   {Key: "git-push", Command: "git push", Label: "Push", Class: "danger", Confirm: true},
	"reset --hard": {
		Key: "git-reset-hard", Command: "git reset --hard", Label: "Reset", Class: "danger", Confirm: true,
	},
	"commit":        {Key: "git-commit", Command: `git commit --all -m "%s" --author "%s %s"`, Label: "Commit", Class: "warning"},
	"commit --amend": {
		Key: "git-amend", Command: `git commit --all --amend -m "%s" --author "%s %s"`, Label: "Amend", Class: "warning",
	},
}

// GitActionByKey looks up a git action by its table key (e.g. "git-push").
func GitActionByKey(key string) (GitAction, bool) {
	for _, a := range gitActionsBySubcommand {
		if a.Key == key {
			return a, true
		}
	}
	return GitAction{}, false
}
