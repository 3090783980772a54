// Package scroll decides whether a view should follow newly appended content,
// based on where the user last left the scroll position.
package scroll

// DefaultThreshold is the distance from the bottom, in the caller's units,
// that still counts as being at the bottom.
const DefaultThreshold = 100

// Position is an observed scroll position.
type Position struct {
	Offset         int
	ContentHeight  int
	ViewportHeight int
}

// distanceToBottom returns how far the bottom edge of the viewport is from the
// end of the content.
func (p Position) distanceToBottom() int {
	return p.ContentHeight - p.Offset - p.ViewportHeight
}

// Action is what the caller should do after content changed.
type Action int

const (
	// ActionNone means the content size did not change.
	ActionNone Action = iota
	// ActionScrollToBottom means the view should reveal the new bottom.
	ActionScrollToBottom
	// ActionShowIndicator means new content arrived below the view.
	ActionShowIndicator
)

func (a Action) String() string {
	switch a {
	case ActionScrollToBottom:
		return "scroll-to-bottom"
	case ActionShowIndicator:
		return "show-indicator"
	default:
		return "none"
	}
}

// Coordinator tracks whether the view is at the bottom. It is not safe for
// concurrent use.
type Coordinator struct {
	threshold  int
	atBottom   bool
	lastSize   int
	hasContent bool
	pending    bool
}

// New creates a Coordinator that starts at the bottom. A negative threshold is
// treated as zero.
func New(threshold int) *Coordinator {
	if threshold < 0 {
		threshold = 0
	}
	return &Coordinator{threshold: threshold, atBottom: true}
}

// HandleScroll records a user-initiated scroll.
func (c *Coordinator) HandleScroll(p Position) {
	c.atBottom = p.distanceToBottom() <= c.threshold
	if c.atBottom {
		c.pending = false
	}
}

// ContentChanged reports the new content size and returns the action to take.
func (c *Coordinator) ContentChanged(size int) Action {
	if size == c.lastSize {
		return ActionNone
	}
	c.lastSize = size
	c.hasContent = size > 0

	if c.atBottom {
		return ActionScrollToBottom
	}
	c.pending = true
	return ActionShowIndicator
}

// ScrollToBottom records a programmatic jump to the bottom, which re-enables
// following.
func (c *Coordinator) ScrollToBottom() {
	c.atBottom = true
	c.pending = false
}

// Reset returns the coordinator to its initial state.
func (c *Coordinator) Reset() {
	*c = Coordinator{threshold: c.threshold, atBottom: true}
}

func (c *Coordinator) IsAtBottom() bool { return c.atBottom }

// ShouldAutoScroll reports whether the next content change will be followed.
func (c *Coordinator) ShouldAutoScroll() bool { return c.atBottom }

// ShowIndicator reports whether a "new content below" hint should be shown.
func (c *Coordinator) ShowIndicator() bool {
	return !c.atBottom && c.hasContent && c.pending
}
