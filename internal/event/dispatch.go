package event

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/go-github/v55/github"
)

// DispatchPayload captures the subset of a workflow_dispatch event used to pick
// the rollback target for a single run.
type DispatchPayload struct {
	Ref        string
	Repository Repository
	Inputs     DispatchInputs
}

// Repository identifies the owner/name of the repository where the event originated.
type Repository struct {
	Owner string
	Name  string
}

// DispatchInputs are the workflow inputs understood by the rollback. Empty
// values mean "not supplied".
type DispatchInputs struct {
	Branch string `json:"branch_name"`
	Commit string `json:"commit_hash"`
}

// ParseDispatchEvent decodes a GitHub workflow_dispatch event payload from the provided reader.
func ParseDispatchEvent(r io.Reader) (DispatchPayload, error) {
	var raw github.WorkflowDispatchEvent

	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return DispatchPayload{}, fmt.Errorf("decode workflow_dispatch event: %w", err)
	}

	payload := DispatchPayload{
		Ref: strings.TrimSpace(raw.GetRef()),
		Repository: Repository{
			Owner: strings.TrimSpace(raw.GetRepo().GetOwner().GetLogin()),
			Name:  strings.TrimSpace(raw.GetRepo().GetName()),
		},
	}

	if len(raw.Inputs) > 0 && string(raw.Inputs) != "null" {
		if err := json.Unmarshal(raw.Inputs, &payload.Inputs); err != nil {
			return DispatchPayload{}, fmt.Errorf("decode workflow_dispatch inputs: %w", err)
		}
	}
	payload.Inputs.Branch = strings.TrimSpace(payload.Inputs.Branch)
	payload.Inputs.Commit = strings.TrimSpace(payload.Inputs.Commit)

	return payload, nil
}

// ParseDispatchEventFile reads the event JSON from disk.
func ParseDispatchEventFile(path string) (DispatchPayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return DispatchPayload{}, fmt.Errorf("open event file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close event file: %v\n", closeErr)
		}
	}()

	return ParseDispatchEvent(f)
}
