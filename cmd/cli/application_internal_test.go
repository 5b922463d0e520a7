package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/temirov/codesentry/internal/utils"
)

func TestNewApplicationRegistersCommands(testInstance *testing.T) {
	application := NewApplication()

	commandNames := make([]string, 0)
	for _, subcommand := range application.rootCommand.Commands() {
		commandNames = append(commandNames, subcommand.Name())
	}
	require.Contains(testInstance, commandNames, serveCommandUseConstant)
	require.Contains(testInstance, commandNames, auditCommandUseConstant)
}

func TestInitializeConfigurationDefaults(testInstance *testing.T) {
	application := NewApplication()

	initializationError := application.initializeConfiguration(application.rootCommand)
	require.NoError(testInstance, initializationError)

	require.Equal(testInstance, string(utils.LogLevelInfo), application.configuration.Common.LogLevel)
	require.Equal(testInstance, defaultListenAddressConstant, application.configuration.Server.ListenAddress)
	require.Equal(testInstance, defaultDatabasePathConstant, application.configuration.Server.DatabasePath)
	require.Equal(testInstance, defaultCloneRootConstant, application.configuration.Server.CloneRoot)
	require.Equal(testInstance, 15*time.Second, application.configuration.Server.ReadTimeout)
	require.Equal(testInstance, 60*time.Second, application.configuration.Server.WriteTimeout)
}

func TestInitializeConfigurationFlagOverride(testInstance *testing.T) {
	application := NewApplication()

	setError := application.rootCommand.PersistentFlags().Set(logLevelFlagNameConstant, "debug")
	require.NoError(testInstance, setError)

	initializationError := application.initializeConfiguration(application.rootCommand)
	require.NoError(testInstance, initializationError)
	require.Equal(testInstance, "debug", application.configuration.Common.LogLevel)
}

func TestInitializeConfigurationEnvironmentOverride(testInstance *testing.T) {
	testInstance.Setenv("CODESENTRY_SERVER_LISTEN_ADDRESS", ":9999")

	application := NewApplication()
	initializationError := application.initializeConfiguration(application.rootCommand)
	require.NoError(testInstance, initializationError)
	require.Equal(testInstance, ":9999", application.configuration.Server.ListenAddress)
}
