package process

// ProcessInfo is one live OS process as seen by a single listing
type ProcessInfo struct {
	PID  int32  `json:"pid"`
	Name string `json:"name"`
	// Exe is empty when the path cannot be read, e.g. foreign processes without elevation
	Exe string `json:"exe,omitempty"`
}
