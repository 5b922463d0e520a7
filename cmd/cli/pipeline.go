package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/codesentry/internal/access"
	"github.com/temirov/codesentry/internal/analysis"
	"github.com/temirov/codesentry/internal/batcher"
	"github.com/temirov/codesentry/internal/execshell"
	"github.com/temirov/codesentry/internal/gitrepo"
	"github.com/temirov/codesentry/internal/grepscan"
	"github.com/temirov/codesentry/internal/inference"
	"github.com/temirov/codesentry/internal/orchestrator"
	"github.com/temirov/codesentry/internal/planner"
	"github.com/temirov/codesentry/internal/store"
	"github.com/temirov/codesentry/internal/synthesis"
)

const (
	storeOpenErrorTemplateConstant     = "unable to open store at %s: %w"
	executorBuildErrorTemplateConstant = "unable to build shell executor: %w"
	profilesLoadErrorTemplateConstant  = "unable to load component profiles from %s: %w"
)

// pipeline aggregates the long-lived collaborators both commands share.
type pipeline struct {
	persistentStore *store.Store
	orchestrator    *orchestrator.Orchestrator
	resolver        *access.Resolver
}

// buildPipeline assembles the audit pipeline from the loaded configuration.
func (application *Application) buildPipeline(logger *zap.Logger) (*pipeline, error) {
	configuration := application.configuration

	persistentStore, openError := store.Open(configuration.Server.DatabasePath)
	if openError != nil {
		return nil, fmt.Errorf(storeOpenErrorTemplateConstant, configuration.Server.DatabasePath, openError)
	}

	shellExecutor, executorError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner())
	if executorError != nil {
		return nil, fmt.Errorf(executorBuildErrorTemplateConstant, executorError)
	}
	repositoryManager := gitrepo.NewManager(shellExecutor, configuration.Server.CloneRoot)

	engineClient := inference.NewRetryingClient(
		inference.NewHTTPClient(inference.HTTPClientConfiguration{
			BaseURL: configuration.Inference.BaseURL,
			APIKey:  configuration.Inference.APIKey,
		}, logger),
		inference.DefaultRetryPolicy(),
		logger,
	)

	componentProfiles, profilesError := planner.LoadComponentProfiles(configuration.Server.ComponentProfilesPath)
	if profilesError != nil {
		return nil, fmt.Errorf(profilesLoadErrorTemplateConstant, configuration.Server.ComponentProfilesPath, profilesError)
	}

	batchLimits := batcher.Limits{
		SoftTokenCap:   configuration.Inference.SoftTokenCap,
		HardTokenLimit: configuration.Inference.HardTokenLimit,
		SafetyMargin:   configuration.Inference.SafetyMargin,
	}

	auditOrchestrator := orchestrator.New(orchestrator.Dependencies{
		Store:        persistentStore,
		Repositories: repositoryManager,
		Classifier:   engineClient,
		Planner:      planner.NewService(engineClient, logger),
		ScannerFactory: func(reader grepscan.FileContentReader) orchestrator.SignalScanner {
			return grepscan.NewScanner(reader)
		},
		BatcherFactory: func(loader batcher.ContentLoader) orchestrator.BatchBuilder {
			return batcher.NewBatcher(engineClient, loader, batchLimits, logger)
		},
		Runner:            analysis.NewRunner(engineClient, persistentStore, logger),
		Synthesizer:       synthesis.NewService(engineClient, persistentStore, logger),
		ComponentProfiles: componentProfiles,
		Logger:            logger,
	})

	ownershipChecker := access.NewHTTPOwnershipChecker(access.HTTPOwnershipCheckerConfiguration{
		BaseURL: configuration.Forge.BaseURL,
		Token:   configuration.Forge.Token,
	}, logger)
	tierResolver := access.NewResolver(ownershipChecker, persistentStore, 0, nil, logger)

	return &pipeline{
		persistentStore: persistentStore,
		orchestrator:    auditOrchestrator,
		resolver:        tierResolver,
	}, nil
}
