package match

// Document is a single incoming document as handed to the engine by a
// caller. Fields values may be scalars or []any for multi-valued fields.
type Document struct {
	Id     string         `json:"id"`
	Fields map[string]any `json:"fields"`
}

// VersionField is stripped from "*" projections. It is maintained by
// upstream indexing layers and carries no meaning for percolation results.
const VersionField = "_version_"
