package execshell_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/execshell"
)

type recordingCommandRunner struct {
	executionResult  execshell.ExecutionResult
	executionError   error
	recordedCommands []execshell.ShellCommand
}

func (runner *recordingCommandRunner) Run(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	runner.recordedCommands = append(runner.recordedCommands, command)
	return runner.executionResult, runner.executionError
}

func TestShellExecutorInitializationValidation(testInstance *testing.T) {
	testCases := []struct {
		name          string
		logger        *zap.Logger
		runner        execshell.CommandRunner
		expectedError error
	}{
		{name: "missing_logger", logger: nil, runner: &recordingCommandRunner{}, expectedError: execshell.ErrLoggerNotConfigured},
		{name: "missing_runner", logger: zap.NewNop(), runner: nil, expectedError: execshell.ErrCommandRunnerNotConfigured},
		{name: "fully_configured", logger: zap.NewNop(), runner: &recordingCommandRunner{}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor, creationError := execshell.NewShellExecutor(testCase.logger, testCase.runner)
			if testCase.expectedError != nil {
				require.ErrorIs(testInstance, creationError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, creationError)
			require.NotNil(testInstance, executor)
		})
	}
}

func TestShellExecutorExecuteGit(testInstance *testing.T) {
	testCases := []struct {
		name          string
		runnerResult  execshell.ExecutionResult
		runnerError   error
		expectedError any
	}{
		{name: "success", runnerResult: execshell.ExecutionResult{StandardOutput: "ok", ExitCode: 0}},
		{name: "non_zero_exit", runnerResult: execshell.ExecutionResult{StandardError: "fatal", ExitCode: 128}, expectedError: execshell.CommandFailedError{}},
		{name: "runner_failure", runnerError: errors.New("executable not found"), expectedError: execshell.CommandExecutionError{}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			runner := &recordingCommandRunner{executionResult: testCase.runnerResult, executionError: testCase.runnerError}
			executor, creationError := execshell.NewShellExecutor(zap.NewNop(), runner)
			require.NoError(testInstance, creationError)

			result, executionError := executor.ExecuteGit(context.Background(), execshell.CommandDetails{Arguments: []string{"status"}})

			require.Len(testInstance, runner.recordedCommands, 1)
			require.Equal(testInstance, execshell.CommandName("git"), runner.recordedCommands[0].Name)

			switch testCase.expectedError.(type) {
			case nil:
				require.NoError(testInstance, executionError)
				require.Equal(testInstance, testCase.runnerResult, result)
			case execshell.CommandFailedError:
				commandFailure := execshell.CommandFailedError{}
				require.ErrorAs(testInstance, executionError, &commandFailure)
				require.Equal(testInstance, 128, commandFailure.Result.ExitCode)
			case execshell.CommandExecutionError:
				executionFailure := execshell.CommandExecutionError{}
				require.ErrorAs(testInstance, executionError, &executionFailure)
			}
		})
	}
}
