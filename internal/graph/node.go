package graph

// Kind identifies the media type of a single output item.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

// FileRef points at an uploaded file owned by the editor's asset store.
// The engine treats it as an opaque identity; file bytes never pass
// through the hasher.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Item is one element of a node's output. Exactly one of Text, Data, or
// File is expected to be meaningful for a given Kind, but the engine does
// not enforce that; processors decide what they emit.
type Item struct {
	Kind Kind     `json:"kind"`
	Text string   `json:"text,omitempty"`
	Data string   `json:"data,omitempty"` // data-URL payload, may be multi-megabyte
	File *FileRef `json:"file,omitempty"`
}

// Result is the committed output of one processing run of a node.
type Result struct {
	Items []Item `json:"items"`
}

// First returns the first item of the result, or nil for an empty result.
func (r *Result) First() *Item {
	if r == nil || len(r.Items) == 0 {
		return nil
	}
	return &r.Items[0]
}

// Node is the engine's view of a single pipeline node. Config holds the
// process-specific parameters exactly as the editor stores them; Result is
// the last committed output, nil until first successful processing.
type Node struct {
	ID     string
	Type   string
	Title  string
	Config map[string]any
	Result *Result
}
