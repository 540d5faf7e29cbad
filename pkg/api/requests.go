package api

// custodyTestRequest is the body for POST /api/custody/test. Category and
// complexity are optional; the engine picks when they are empty.
type custodyTestRequest struct {
	Kind       string `json:"kind" binding:"required"`
	Category   string `json:"category"`
	Complexity string `json:"complexity"`
}

// decisionRequest carries the human verdict for proposal approve/reject.
// Reason is only meaningful on rejection.
type decisionRequest struct {
	Approver string `json:"approver" binding:"required"`
	Reason   string `json:"reason"`
}

// sourceRequest addresses a knowledge source by URL. Trusted defaults to
// false; untrusted sources are registered but never fetched.
type sourceRequest struct {
	URL     string `json:"url" binding:"required"`
	Trusted *bool  `json:"trusted"`
}
