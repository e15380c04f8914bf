package bundlesync

// FactoryHandle is a reference to one RPC connection factory endpoint.
//
// Clone duplicates the reference, never the underlying connection. Each
// clone is closed independently; the connection is released when the last
// reference is closed. A nil FactoryHandle means "absent".
type FactoryHandle interface {
	Clone() FactoryHandle
	Close() error
	// Target names the endpoint for logs and diagnostics.
	Target() string
}

func cloneHandle(h FactoryHandle) FactoryHandle {
	if h == nil {
		return nil
	}
	return h.Clone()
}

func closeHandle(h FactoryHandle) error {
	if h == nil {
		return nil
	}
	return h.Close()
}

func handleTarget(h FactoryHandle) string {
	if h == nil {
		return ""
	}
	return h.Target()
}
