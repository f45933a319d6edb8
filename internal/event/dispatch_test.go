package event_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/rancher/rollback-action/internal/event"
)

var _ = Describe("ParseDispatchEvent", func() {
	const sample = `{
		"ref": "refs/heads/main",
		"workflow": ".github/workflows/rollback.yml",
		"inputs": {
			"branch_name": " release/v2 ",
			"commit_hash": "abc1234",
			"unrelated": "ignored"
		},
		"repository": {
			"name": "fleet",
			"owner": {"login": "rancher"}
		}
	}`

	It("parses repository, ref and rollback inputs", func() {
		payload, err := event.ParseDispatchEvent(strings.NewReader(sample))
		Expect(err).NotTo(HaveOccurred())

		Expect(payload.Ref).To(Equal("refs/heads/main"))
		Expect(payload.Repository).To(Equal(event.Repository{Owner: "rancher", Name: "fleet"}))
		Expect(payload.Inputs).To(Equal(event.DispatchInputs{Branch: "release/v2", Commit: "abc1234"}))
	})

	It("tolerates a dispatch without inputs", func() {
		payload, err := event.ParseDispatchEvent(strings.NewReader(`{"ref": "refs/heads/main", "inputs": null}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(payload.Inputs).To(Equal(event.DispatchInputs{}))
	})

	It("rejects inputs that are not strings", func() {
		_, err := event.ParseDispatchEvent(strings.NewReader(`{"inputs": {"branch_name": 5}}`))
		Expect(err).To(MatchError(ContainSubstring("decode workflow_dispatch inputs")))
	})

	It("returns an error for invalid JSON", func() {
		_, err := event.ParseDispatchEvent(strings.NewReader("{"))
		Expect(err).To(HaveOccurred())
	})

	It("reads the payload from disk", func() {
		dir, err := os.MkdirTemp("", "dispatch-event-")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, dir)

		path := filepath.Join(dir, "event.json")
		Expect(os.WriteFile(path, []byte(sample), 0o644)).To(Succeed())

		payload, err := event.ParseDispatchEventFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(payload.Inputs.Commit).To(Equal("abc1234"))

		_, err = event.ParseDispatchEventFile(filepath.Join(dir, "missing.json"))
		Expect(err).To(HaveOccurred())
	})
})
