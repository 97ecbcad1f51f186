package command

import "time"

// Result captures one finished invocation of an external command
type Result struct {
	Name      string        `json:"name"`
	Args      []string      `json:"args"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	ExitCode  int           `json:"exit_code"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Success reports whether the command exited with status 0
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}
