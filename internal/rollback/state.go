package rollback

// State is a position in the rollback state machine.
type State string

const (
	StateAbsent         State = "absent"
	StateCloned         State = "cloned"
	StateBranchSelected State = "branch_selected"
	StateClean          State = "clean"
	StateReverted       State = "reverted"
	StatePushed         State = "pushed"
	StateFailed         State = "failed"
)

// BranchRef identifies how a branch was resolved during checkout.
type BranchRef struct {
	Name string
	// Remote is true when the branch was created from origin/<Name>.
	Remote bool
}

// RevertResult describes the outcome of RevertToCommit.
type RevertResult struct {
	// Target is the revision as supplied by the caller.
	Target string
	// TargetSHA is Target resolved to a full commit id.
	TargetSHA    string
	PreviousHead string
	// Commit is the pushed rollback commit. Empty when NoOp is set.
	Commit string
	NoOp   bool
}
