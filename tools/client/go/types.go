package client

// Document is one document submitted for percolation.
type Document struct {
	Id     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// Reply is the server's acknowledgement for one streamed message.
type Reply struct {
	Status   int    `json:"status"`
	Message  string `json:"message,omitempty"`
	Accepted int    `json:"accepted,omitempty"`
}
