package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rancher/rollback-action/internal/rollback"
)

func (r *Runner) writeStepSummary(result Result) error {
	path := strings.TrimSpace(os.Getenv("GITHUB_STEP_SUMMARY"))
	if path == "" {
		return nil
	}

	ensureParentDir(path)

	var builder strings.Builder
	builder.WriteString("## Rollback summary\n\n")
	builder.WriteString(renderResultDetails(result))

	return appendFile(path, builder.String(), "step summary")
}

func (r *Runner) writeGitHubOutputs(result Result) error {
	path := strings.TrimSpace(os.Getenv("GITHUB_OUTPUT"))
	if path == "" {
		return nil
	}

	ensureParentDir(path)

	summary := outputRunSummary{
		RunID:          result.RunID,
		Repository:     result.Owner + "/" + result.Repo,
		Branch:         result.Branch.Name,
		Target:         result.Revert.Target,
		State:          string(result.State),
		PreviousHead:   result.Revert.PreviousHead,
		RollbackCommit: result.Revert.Commit,
		NoOp:           result.Revert.NoOp,
		Verified:       result.Verified,
		Published:      result.Published,
	}
	if result.State == rollback.StateFailed {
		summary.FailedAfter = string(result.LastState)
	}
	if result.Err != nil {
		summary.Error = result.Err.Error()
	}

	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal run_summary: %w", err)
	}

	var builder strings.Builder
	writeOutput(&builder, "previous_head", result.Revert.PreviousHead)
	writeOutput(&builder, "rollback_commit", result.Revert.Commit)
	writeOutput(&builder, "noop", strconv.FormatBool(result.Revert.NoOp))
	writeOutput(&builder, "published", strconv.FormatBool(result.Published))
	writeMultilineOutput(&builder, "run_summary", string(summaryJSON))

	return appendFile(path, builder.String(), "github output")
}

func renderResultDetails(result Result) string {
	var builder strings.Builder

	state := string(result.State)
	if result.State == rollback.StateFailed && result.LastState != "" {
		state = fmt.Sprintf("failed after %s", result.LastState)
	}

	commit := result.Revert.Commit
	if result.Revert.NoOp {
		commit = "already at target, nothing pushed"
	}

	published := "no"
	if result.Published {
		published = result.Publish.WorkspacePath
	}

	rows := [][2]string{
		{"Repository", result.Owner + "/" + result.Repo},
		{"Branch", result.Branch.Name},
		{"Target", result.Revert.Target},
		{"Previous HEAD", result.Revert.PreviousHead},
		{"Rollback commit", commit},
		{"State", state},
		{"Published", published},
	}
	if result.Err != nil {
		rows = append(rows, [2]string{"Error", result.Err.Error()})
	}

	builder.WriteString("| Field | Value |\n")
	builder.WriteString("| --- | --- |\n")
	for _, row := range rows {
		builder.WriteString(fmt.Sprintf("| %s | %s |\n", row[0], sanitizeMarkdownCell(row[1])))
	}

	return builder.String()
}

type outputRunSummary struct {
	RunID          string `json:"run_id"`
	Repository     string `json:"repository"`
	Branch         string `json:"branch"`
	Target         string `json:"target"`
	State          string `json:"state"`
	FailedAfter    string `json:"failed_after,omitempty"`
	PreviousHead   string `json:"previous_head"`
	RollbackCommit string `json:"rollback_commit"`
	NoOp           bool   `json:"noop"`
	Verified       bool   `json:"verified"`
	Published      bool   `json:"published"`
	Error          string `json:"error,omitempty"`
}

func ensureParentDir(path string) {
	// GitHub Actions normally creates this already.
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
			fmt.Fprintf(os.Stderr, "warning: could not create %s: %v\n", dir, mkErr)
		}
	}
}

func appendFile(path, content, what string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", what, err)
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close %s file: %v\n", what, closeErr)
		}
	}()

	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if _, err := file.WriteString(content); err != nil {
		return fmt.Errorf("write %s: %w", what, err)
	}
	return nil
}

func writeOutput(builder *strings.Builder, key, value string) {
	fmt.Fprintf(builder, "%s=%s\n", key, value)
}

func writeMultilineOutput(builder *strings.Builder, key, value string) {
	fmt.Fprintf(builder, "%s<<EOF\n%s\nEOF\n", key, value)
}

func sanitizeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "|", "\\|")
	value = strings.ReplaceAll(value, "\n", "<br>")
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	return value
}
