package cli

import (
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/server"
)

const (
	serveCommandUseConstant   = "serve"
	serveCommandShortConstant = "Run the audit API server"
	serveCommandLongConstant  = "serve opens the store, wires the audit pipeline, and listens for audit requests over HTTP."

	serverListeningMessageConstant = "http server listening"
	logFieldListenAddressConstant  = "listen_address"
)

func (application *Application) buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   serveCommandUseConstant,
		Short: serveCommandShortConstant,
		Long:  serveCommandLongConstant,
		RunE: func(command *cobra.Command, arguments []string) error {
			logger, loggerError := application.requireLogger()
			if loggerError != nil {
				return loggerError
			}

			auditPipeline, pipelineError := application.buildPipeline(logger)
			if pipelineError != nil {
				return pipelineError
			}
			defer func() { _ = auditPipeline.persistentStore.Close() }()

			auditServer := server.New(auditPipeline.persistentStore, auditPipeline.resolver, auditPipeline.orchestrator, logger, nil)

			serverConfiguration := application.configuration.Server
			httpServer := &http.Server{
				Addr:         serverConfiguration.ListenAddress,
				Handler:      auditServer.Router(),
				ReadTimeout:  serverConfiguration.ReadTimeout,
				WriteTimeout: serverConfiguration.WriteTimeout,
			}
			logger.Info(serverListeningMessageConstant, zap.String(logFieldListenAddressConstant, serverConfiguration.ListenAddress))
			return httpServer.ListenAndServe()
		},
	}
}
