package process

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v4/process"
)

// ErrNotFound is returned by Get when the PID is not running
var ErrNotFound = errors.New("process not found")

// Lister enumerates running processes
type Lister struct{}

// NewLister creates a new process lister
func NewLister() *Lister {
	return &Lister{}
}

// List returns all running processes whose name could be read.
// Processes that exit mid-listing are skipped.
func (l *Lister) List(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get processes: %w", err)
	}

	processes := make([]ProcessInfo, 0, len(procs))
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := l.getProcessInfo(ctx, p)
		if err != nil {
			continue
		}
		processes = append(processes, *info)
	}

	return processes, nil
}

// Get returns information about a specific process
func (l *Lister) Get(ctx context.Context, pid int32) (*ProcessInfo, error) {
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return nil, fmt.Errorf("%w: %d", ErrNotFound, pid)
		}
		return nil, fmt.Errorf("failed to get process %d: %w", pid, err)
	}

	info, err := l.getProcessInfo(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read process %d: %w", pid, err)
	}
	return info, nil
}

func (l *Lister) getProcessInfo(ctx context.Context, p *process.Process) (*ProcessInfo, error) {
	name, err := p.NameWithContext(ctx)
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("process %d has no name", p.Pid)
	}

	// best-effort: needs elevation for processes owned by other users
	exe, _ := p.ExeWithContext(ctx)

	return &ProcessInfo{
		PID:  p.Pid,
		Name: name,
		Exe:  exe,
	}, nil
}
