package runner

import (
	"strings"
)

// ContainerContext carries what DockerWrap needs to translate a host Spec
// into a `docker exec` invocation (spec.md §4.1 Docker wrapping).
type ContainerContext struct {
	ContainerName string
	WorkspaceHost string
	WorkspaceCtr  string
	TempHost      string
	TempCtr       string
	DefaultDir    string
	ProjectEnv    map[string]string
	DockerEnv     map[string]string
}

// DockerWrap rewrites spec into `docker exec --workdir <dir> -e VAR1 -e VAR2
// … <container> <argv…>`, merging project+docker env into the command's
// env, translating host workspace/temp paths to their in-container
// counterparts anywhere they appear in argv, and defaulting the working
// directory to the docker config's default-working-dir when spec.Dir is
// empty.
func DockerWrap(spec Spec, cc ContainerContext) Spec {
	dir := spec.Dir
	if dir == "" {
		dir = cc.DefaultDir
	}
	ctrDir := translatePath(dir, cc)

	env := map[string]string{}
	for k, v := range cc.ProjectEnv {
		env[k] = v
	}
	for k, v := range cc.DockerEnv {
		env[k] = v
	}
	for k, v := range spec.Env {
		env[k] = v
	}

	argv := []string{"docker", "exec", "--workdir", ctrDir}
	for k := range env {
		argv = append(argv, "-e", k)
	}
	argv = append(argv, cc.ContainerName)
	for _, a := range spec.Argv {
		argv = append(argv, translatePath(a, cc))
	}

	return Spec{
		Argv:    argv,
		Dir:     "",
		Env:     env,
		Timeout: spec.Timeout,
	}
}

// translatePath replaces occurrences of the host workspace/temp path with
// their in-container counterparts anywhere they appear in s (spec.md
// §4.1: "translates any string occurrence of the host workspace or temp
// path to its in-container counterpart").
func translatePath(s string, cc ContainerContext) string {
	if cc.WorkspaceHost != "" && cc.WorkspaceCtr != "" {
		s = strings.ReplaceAll(s, cc.WorkspaceHost, cc.WorkspaceCtr)
	}
	if cc.TempHost != "" && cc.TempCtr != "" {
		s = strings.ReplaceAll(s, cc.TempHost, cc.TempCtr)
	}
	return s
}
