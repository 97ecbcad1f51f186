package firewall

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ngenohkevin/fwcheck-agent/internal/command"
)

// ErrQueryFailed is wrapped by errors from a rule listing that could not be obtained
var ErrQueryFailed = errors.New("firewall query failed")

// noRulesOutput is what netsh prints (with exit status 1) when the rule store is empty
const noRulesOutput = "No rules match the specified criteria."

// CommandRunner runs an external command to completion
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (*command.Result, error)
}

// Source lists rules by invoking the firewall CLI
type Source struct {
	runner  CommandRunner
	command string
	args    []string
}

// NewSource creates a rule source for the given command line
func NewSource(runner CommandRunner, name string, args []string) *Source {
	return &Source{
		runner:  runner,
		command: name,
		args:    args,
	}
}

// Command returns the command line used for listings
func (s *Source) Command() string {
	return strings.TrimSpace(s.command + " " + strings.Join(s.args, " "))
}

// Rules invokes the CLI and parses its complete output
func (s *Source) Rules(ctx context.Context) ([]Rule, error) {
	result, err := s.runner.Run(ctx, s.command, s.args...)
	if err != nil {
		if result != nil && isEmptyStore(result) {
			return []Rule{}, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return Parse(result.Stdout), nil
}

func isEmptyStore(result *command.Result) bool {
	return result.ExitCode == 1 && strings.TrimSpace(result.Stdout) == noRulesOutput
}
