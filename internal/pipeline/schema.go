package pipeline

import "github.com/hashicorp/hcl/v2"

// configBlock holds a node's free-form parameters. Attributes are not
// schema-checked here; each processor interprets its own config.
type configBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// nodeBlock represents a `node "<type>" "<name>"` block in a pipeline file.
type nodeBlock struct {
	Type   string       `hcl:"node_type,label"`
	Name   string       `hcl:"node_name,label"`
	Title  string       `hcl:"title,optional"`
	Config *configBlock `hcl:"config,block"`
}

// edgeBlock represents an `edge` block. Endpoints are written as
// "node_name" or "node_name:handle".
type edgeBlock struct {
	Source string `hcl:"source"`
	Target string `hcl:"target"`
}

// fileRoot decodes all top-level blocks from one pipeline file. Pipelines
// may be split across several files in a directory; blocks are merged in
// file order.
type fileRoot struct {
	Nodes  []*nodeBlock `hcl:"node,block"`
	Edges  []*edgeBlock `hcl:"edge,block"`
	Remain hcl.Body     `hcl:",remain"`
}
