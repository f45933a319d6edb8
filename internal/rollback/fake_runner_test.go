package rollback_test

import (
	"context"
	"fmt"
	"strings"

	"github.com/rancher/rollback-action/internal/git"
)

type fakeResponse struct {
	out string
	err error
}

// scriptedRunner answers git invocations from a table keyed by the joined
// argument list. Queued responses are consumed in order; the last one repeats.
type scriptedRunner struct {
	responses map[string][]fakeResponse
	calls     []string
	dirs      []string
}

func newScriptedRunner() *scriptedRunner {
	return &scriptedRunner{responses: map[string][]fakeResponse{}}
}

func (s *scriptedRunner) on(cmd string, responses ...fakeResponse) *scriptedRunner {
	s.responses[cmd] = append(s.responses[cmd], responses...)
	return s
}

func (s *scriptedRunner) Run(_ context.Context, dir string, args ...string) (string, error) {
	cmd := strings.Join(args, " ")
	s.calls = append(s.calls, cmd)
	s.dirs = append(s.dirs, dir)

	queue := s.responses[cmd]
	if len(queue) == 0 {
		return "", nil
	}
	resp := queue[0]
	if len(queue) > 1 {
		s.responses[cmd] = queue[1:]
	}
	return resp.out, resp.err
}

func (s *scriptedRunner) count(prefix string) int {
	n := 0
	for _, call := range s.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func (s *scriptedRunner) reset() {
	s.calls = nil
	s.dirs = nil
}

func ok(out string) fakeResponse {
	return fakeResponse{out: out}
}

func exitStatus(code int, stderr string, args ...string) fakeResponse {
	return fakeResponse{err: &git.GitError{
		Args:     args,
		ExitCode: code,
		Stderr:   stderr,
		Err:      fmt.Errorf("exit status %d", code),
	}}
}
