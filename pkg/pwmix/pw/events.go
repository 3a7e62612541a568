package pw

// The client understands exactly these event kinds; everything else the
// daemon announces (factories, modules, metadata updates) is skipped at
// the dispatch layer. Register a Callback before calling Run to receive
// them - it is always invoked from the goroutine running the loop.

// GlobalEvent announces an object in the daemon's registry
type GlobalEvent struct {
	ID          uint32
	Permissions uint32
	Type        string
	Version     uint32
	Props       map[string]string
}

// GlobalRemoveEvent announces that a registry object is gone
type GlobalRemoveEvent struct {
	ID uint32
}

// DoneEvent completes a sync round-trip; Seq matches the value
// returned by the Sync call that triggered it
type DoneEvent struct {
	ID  uint32
	Seq int32
}

// ErrorEvent reports a daemon-side failure on a proxy object
type ErrorEvent struct {
	ID      uint32
	Seq     int32
	Res     int32
	Message string
}
