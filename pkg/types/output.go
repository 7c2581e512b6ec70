package types

// OutputType categorizes the value carried by a NodeOutput.
type OutputType string

const (
	OutputText    OutputType = "text"
	OutputImage   OutputType = "image"
	OutputVideo   OutputType = "video"
	OutputList    OutputType = "list"
	OutputGallery OutputType = "gallery"
)

// NodeOutput is the result contract every executor returns and every
// downstream node consumes.
//
// Invariant: when Items is non-empty the node produced a fan-out result and
// Value equals Items[0], so consumers that do not understand batching still
// see a representative single value.
type NodeOutput struct {
	Value string     `json:"value"`
	Items []string   `json:"items,omitempty"`
	Type  OutputType `json:"type"`

	// Gallery carries one entry per fan-out element for media-producing
	// nodes, each with its own independent success or failure.
	Gallery []GalleryItem `json:"galleryOutputs,omitempty"`
}

// GalleryItem is one element of a fan-out result. A set Error with an empty
// URL means this element failed without aborting its siblings.
type GalleryItem struct {
	Type       OutputType `json:"type"`
	URL        string     `json:"url"`
	InputValue string     `json:"inputValue"`
	Error      string     `json:"error,omitempty"`
	Thumbnail  string     `json:"thumbnail,omitempty"`
}

// NodeStatus is the run-scoped state of a single node.
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
)

// NodeState tracks one node through a single run. Transitions are
// monotonic: pending -> running -> (completed|failed).
type NodeState struct {
	Status NodeStatus  `json:"status"`
	Output *NodeOutput `json:"output,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// RunError identifies the first failing node of a run.
type RunError struct {
	NodeID  string `json:"nodeId,omitempty"`
	Message string `json:"message"`
}

// WorkflowRunResult is the full contract returned to any caller of a run.
// Outputs holds exactly the terminal nodes' outputs; callers wanting every
// failure must walk NodeStates, since Error surfaces only the first one.
type WorkflowRunResult struct {
	Status     RunStatus             `json:"status"`
	NodeStates map[string]NodeState  `json:"nodeStates"`
	Outputs    map[string]NodeOutput `json:"outputs"`
	Error      *RunError             `json:"error,omitempty"`
}
