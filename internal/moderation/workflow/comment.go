package workflow

// Comment moderation states.
const (
	StateSubmitted    State = "submitted"
	StateSpamFlagged  State = "spam_flagged"
	StateSpam         State = "spam"
	StateHam          State = "ham"
	StateHamReady     State = "ham_ready"
	StateAccepted     State = "accepted"
	StateReady        State = "ready"
	StatePublished    State = "published"
	StatePublishedHam State = "published_ham"
	StateRejected     State = "rejected"
)

// Comment moderation transitions. Other components rely on these names.
const (
	TransitionRejectSpam = "reject_spam"
	TransitionAcceptHam  = "accept_ham"
	TransitionAccept     = "accept"
	TransitionPublish    = "publish"
	TransitionPublishHam = "publish_ham"
	TransitionReject     = "reject"
)

// CommentTransitions is the comment moderation graph.
//
// Every classification outcome lands in an intermediate state from which
// `accept` is valid exactly once more; the second `accept` reaches either the
// spam sink or a state awaiting human review.
var CommentTransitions = []Transition{
	{Name: TransitionRejectSpam, From: []State{StateSubmitted}, To: StateSpamFlagged},
	{Name: TransitionAcceptHam, From: []State{StateSubmitted}, To: StateHam},
	{Name: TransitionAccept, From: []State{StateSubmitted}, To: StateAccepted},
	{Name: TransitionAccept, From: []State{StateSpamFlagged}, To: StateSpam},
	{Name: TransitionAccept, From: []State{StateHam}, To: StateHamReady},
	{Name: TransitionAccept, From: []State{StateAccepted}, To: StateReady},
	{Name: TransitionPublish, From: []State{StateReady}, To: StatePublished},
	{Name: TransitionPublishHam, From: []State{StateHamReady}, To: StatePublishedHam},
	{Name: TransitionReject, From: []State{StateReady, StateHamReady}, To: StateRejected},
}

// NewCommentMachine builds the comment moderation state machine.
func NewCommentMachine() *Machine {
	return MustNew("comment", StateSubmitted, CommentTransitions)
}
