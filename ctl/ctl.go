package ctl

// New builds the standard control tree: a root directory holding a
// "version" file (the version string passed to New, plus a newline)
// and a "stats" file (Prometheus text exposition of request/fid/conn
// counters). It returns the tree's srv.Backend along with the Metrics
// handle so the caller can report connection lifecycle events, which
// the backend itself cannot observe (spec.md §4.7).
func New(version string) (*Backend, *Metrics) {
	tree := NewTree()
	metrics := NewMetrics()

	tree.AddFile(tree.Root, "version", 0444, func(interface{}) string {
		return version + "\n"
	}, nil)
	tree.AddFile(tree.Root, "stats", 0444, func(arg interface{}) string {
		return metrics.Render(arg)
	}, nil)

	return NewBackend(tree, metrics), metrics
}
