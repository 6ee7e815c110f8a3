package model

// FileRef points at a file shared alongside a Slack message.
type FileRef struct {
	Name        string `json:"name"`
	DownloadURL string `json:"download_url"`
}

// InboundEvent is the validated Slack message handed to the background
// pipeline. Timestamps are Slack ts strings ("1712345678.000100").
type InboundEvent struct {
	UserID    string    `json:"user_id"`
	Channel   string    `json:"channel"`
	Text      string    `json:"text"`
	Timestamp string    `json:"timestamp"`
	ThreadTS  string    `json:"thread_ts"`
	Files     []FileRef `json:"files,omitempty"`
}

// ThreadRoot returns the thread the response should be posted to. A message
// that is not a reply roots its own thread.
func (e InboundEvent) ThreadRoot() string {
	if e.ThreadTS != "" {
		return e.ThreadTS
	}
	return e.Timestamp
}

// Role identifies the speaker of a prior thread turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one prior message in the conversation thread.
type Turn struct {
	Role      Role
	Text      string
	Timestamp string
}
