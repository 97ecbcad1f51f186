package firewall

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ngenohkevin/fwcheck-agent/internal/command"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, name string, args ...string) (*command.Result, error) {
	called := m.Called(ctx, name, args)
	result, _ := called.Get(0).(*command.Result)
	return result, called.Error(1)
}

var netshArgs = []string{"advfirewall", "firewall", "show", "rule", "name=all"}

func TestSource_Rules(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, "netsh", netshArgs).
		Return(&command.Result{Stdout: sampleListing}, nil)

	src := NewSource(runner, "netsh", netshArgs)
	rules, err := src.Rules(context.Background())
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	runner.AssertExpectations(t)
}

func TestSource_Command(t *testing.T) {
	src := NewSource(&mockRunner{}, "netsh", netshArgs)
	assert.Equal(t, "netsh advfirewall firewall show rule name=all", src.Command())
}

func TestSource_EmptyStoreIsNotAnError(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, "netsh", netshArgs).
		Return(&command.Result{Stdout: "\r\nNo rules match the specified criteria.\r\n", ExitCode: 1},
			errors.New("exit status 1"))

	rules, err := NewSource(runner, "netsh", netshArgs).Rules(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rules)
	assert.Empty(t, rules)
}

func TestSource_FailureIsPropagated(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, "netsh", netshArgs).
		Return(&command.Result{Stderr: "access denied", ExitCode: 5}, errors.New("exit status 5"))

	rules, err := NewSource(runner, "netsh", netshArgs).Rules(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueryFailed))
	assert.Nil(t, rules)
}

func TestSource_StartFailureIsPropagated(t *testing.T) {
	runner := &mockRunner{}
	runner.On("Run", mock.Anything, "netsh", netshArgs).Return(nil, command.ErrFailed)

	_, err := NewSource(runner, "netsh", netshArgs).Rules(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueryFailed))
	assert.True(t, errors.Is(err, command.ErrFailed))
}

func TestSource_WithRealCommand(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	script := "printf 'Rule Name: Allow HTTP\\nDirection: In\\nAction: Allow\\nProgram: /usr/bin/http\\n'"
	src := NewSource(command.NewRunner(5*time.Second), "sh", []string{"-c", script})

	matched, err := NewMatcher(src).Match(context.Background(), "/USR/BIN/HTTP")
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "Allow HTTP", matched[0].Name)

	missing := NewSource(command.NewRunner(time.Second), "fwcheck-no-such-firewall-cli", nil)
	_, err = NewMatcher(missing).Match(context.Background(), "/usr/bin/http")
	assert.True(t, errors.Is(err, ErrQueryFailed))
}
