// Package cli provides the command line interface.
package cli

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/temirov/ingest/internal/config"
	"github.com/temirov/ingest/internal/gitrepo"
	"github.com/temirov/ingest/internal/ingest"
	"github.com/temirov/ingest/internal/server"
	"github.com/temirov/ingest/internal/services/clipboard"
	"github.com/temirov/ingest/internal/utils"
)

const (
	rootUse              = "ingest [source]"
	rootShortDescription = "ingest command line interface"
	rootLongDescription  = `ingest turns a git repository or a local directory into a single text digest:
a summary, a directory tree, and the concatenated file contents, sized for
use as large language model context. The source may be a local path, a
repository URL, or an owner/repo slug resolved against the known git hosts.`
	rootUsageExample = `  # Ingest the current directory into digest.txt
  ingest

  # Ingest one branch of a remote repository to stdout
  ingest https://github.com/octocat/Hello-World -b test -o -

  # Keep only Python sources and copy the digest to the clipboard
  ingest ./service -i "*.py" --copy`

	serveUse              = "serve"
	serveShortDescription = "run the ingestion HTTP service"
	serveLongDescription  = `Start an HTTP service that exposes ingestion over a JSON API.
POST /api/ingest runs one ingestion and returns the digest; GET
/api/download/{id} serves the stored digest until it is evicted.`

	versionUse              = "version"
	versionShortDescription = "print the application version"
	versionTemplate         = "ingest version: %s\n"

	configUse                  = "config"
	configShortDescription     = "manage configuration files"
	configInitUse              = "init"
	configInitShortDescription = "write a default configuration file"

	outputFlagName         = "output"
	outputFlagShorthand    = "o"
	maxSizeFlagName        = "max-size"
	maxSizeFlagShorthand   = "s"
	branchFlagName         = "branch"
	branchFlagShorthand    = "b"
	includeFlagName        = "include-pattern"
	includeFlagShorthand   = "i"
	excludeFlagName        = "exclude-pattern"
	excludeFlagShorthand   = "e"
	remoteFlagName         = "remote"
	copyFlagName           = "copy"
	tokenModelFlagName     = "token-model"
	includeOutputsFlagName = "include-outputs"
	hostFlagName           = "host"
	portFlagName           = "port"
	globalFlagName         = "global"
	forceFlagName          = "force"

	outputFlagDescription         = "output file path, - for stdout"
	maxSizeFlagDescription        = "maximum file size in bytes to include"
	branchFlagDescription         = "branch to ingest"
	includeFlagDescription        = "pattern to include, repeatable"
	excludeFlagDescription        = "pattern to exclude, repeatable"
	remoteFlagDescription         = "treat the source as a remote repository"
	copyFlagDescription           = "copy the digest to the clipboard"
	tokenModelFlagDescription     = "tokenizer model or encoding for token estimation"
	includeOutputsFlagDescription = "include notebook cell outputs"
	hostFlagDescription           = "interface to bind"
	portFlagDescription           = "port to listen on"
	globalFlagDescription         = "write the global configuration file"
	forceFlagDescription          = "overwrite an existing configuration file"

	defaultSourceArgument = "."
	stdoutOutputPath      = "-"

	environmentHostVariable = "INGEST_HOST"
	environmentPortVariable = "INGEST_PORT"

	analyzingForStdoutMessage  = "Analyzing source, preparing output for stdout..."
	analyzingSourceFormat      = "Analyzing source, output will be written to '%s'...\n"
	analysisCompleteFormat     = "Analysis complete! Output written to: %s\n"
	summaryHeading             = "\nSummary:"
	clipboardWarningFormat     = "Warning: failed to copy digest to clipboard: %v\n"
	configurationWrittenFormat = "Configuration written to %s\n"
	serverListeningFormat      = "Ingestion service listening on http://%s\n"

	digestWriteErrorFormat = "write digest to %s: %w"
	invalidPortValueFormat = "invalid %s value %q: %w"
	digestFilePermissions  = 0o644
)

// ingestFlagValues stores the root command's flag bindings.
type ingestFlagValues struct {
	outputPath       string
	maxFileSizeBytes int64
	branchName       string
	includePatterns  []string
	excludePatterns  []string
	remoteHint       bool
	copyToClipboard  bool
	tokenModel       string
	includeOutputs   bool
}

// consoleSink prints recoverable pipeline diagnostics as plain lines on the
// command's error stream.
type consoleSink struct {
	writer io.Writer
}

func (sink *consoleSink) Warnf(messageFormat string, messageArguments ...any) {
	fmt.Fprintf(sink.writer, messageFormat+"\n", messageArguments...)
}

// Execute runs the ingest application.
func Execute() error {
	rootCommand := createRootCommand()
	rootCommand.SetArgs(normalizeBooleanFlagArguments(rootCommand, os.Args[1:]))
	return rootCommand.Execute()
}

// createRootCommand builds the root Cobra command.
func createRootCommand() *cobra.Command {
	var flagValues ingestFlagValues

	rootCommand := &cobra.Command{
		Use:          rootUse,
		Short:        rootShortDescription,
		Long:         rootLongDescription,
		Example:      rootUsageExample,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			source := defaultSourceArgument
			if len(arguments) == 1 {
				source = arguments[0]
			}
			return runIngestion(command, source, &flagValues)
		},
	}

	flags := rootCommand.Flags()
	flags.StringVarP(&flagValues.outputPath, outputFlagName, outputFlagShorthand, config.DefaultOutputFileName, outputFlagDescription)
	flags.Int64VarP(&flagValues.maxFileSizeBytes, maxSizeFlagName, maxSizeFlagShorthand, config.DefaultMaxFileSizeBytes, maxSizeFlagDescription)
	flags.StringVarP(&flagValues.branchName, branchFlagName, branchFlagShorthand, "", branchFlagDescription)
	flags.StringArrayVarP(&flagValues.includePatterns, includeFlagName, includeFlagShorthand, nil, includeFlagDescription)
	flags.StringArrayVarP(&flagValues.excludePatterns, excludeFlagName, excludeFlagShorthand, nil, excludeFlagDescription)
	flags.StringVar(&flagValues.tokenModel, tokenModelFlagName, "", tokenModelFlagDescription)
	registerBooleanFlag(flags, &flagValues.remoteHint, remoteFlagName, false, remoteFlagDescription)
	registerBooleanFlag(flags, &flagValues.copyToClipboard, copyFlagName, false, copyFlagDescription)
	registerBooleanFlag(flags, &flagValues.includeOutputs, includeOutputsFlagName, true, includeOutputsFlagDescription)

	rootCommand.AddCommand(
		createServeCommand(),
		createVersionCommand(),
		createConfigCommand(),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// runIngestion executes one ingestion and writes the digest to the requested
// destination.
func runIngestion(command *cobra.Command, source string, flagValues *ingestFlagValues) error {
	applicationConfiguration, configurationError := config.LoadApplicationConfiguration(config.LoadOptions{})
	if configurationError != nil {
		return configurationError
	}
	applyIngestConfigurationDefaults(command, flagValues, applicationConfiguration.Ingest)

	outputToStdout := flagValues.outputPath == stdoutOutputPath
	if outputToStdout {
		fmt.Fprintln(command.ErrOrStderr(), analyzingForStdoutMessage)
	} else {
		fmt.Fprintf(command.ErrOrStderr(), analyzingSourceFormat, flagValues.outputPath)
	}

	runner := ingest.NewRunner(gitrepo.NewClient())
	result, runError := runner.Run(command.Context(), source, ingest.Options{
		MaxFileSizeBytes:      flagValues.maxFileSizeBytes,
		IncludePatterns:       flagValues.includePatterns,
		IgnorePatterns:        flagValues.excludePatterns,
		Branch:                flagValues.branchName,
		IsRemoteHint:          flagValues.remoteHint,
		IncludeNotebookOutput: flagValues.includeOutputs,
		TokenModel:            flagValues.tokenModel,
		Sink:                  &consoleSink{writer: command.ErrOrStderr()},
	})
	if runError != nil {
		return runError
	}

	digestText := result.Tree + "\n" + result.Content
	if outputToStdout {
		fmt.Fprint(command.OutOrStdout(), digestText)
		fmt.Fprintf(command.ErrOrStderr(), "\n%s\n", result.Summary)
	} else {
		if writeError := os.WriteFile(flagValues.outputPath, []byte(digestText), digestFilePermissions); writeError != nil {
			return fmt.Errorf(digestWriteErrorFormat, flagValues.outputPath, writeError)
		}
		fmt.Fprintf(command.OutOrStdout(), analysisCompleteFormat, flagValues.outputPath)
		fmt.Fprintln(command.OutOrStdout(), summaryHeading)
		fmt.Fprintln(command.OutOrStdout(), result.Summary)
	}

	if flagValues.copyToClipboard {
		if copyError := clipboard.NewService().Copy(digestText); copyError != nil {
			fmt.Fprintf(command.ErrOrStderr(), clipboardWarningFormat, copyError)
		}
	}
	return nil
}

// applyIngestConfigurationDefaults overlays application configuration onto
// flags the user left untouched. Configured patterns always apply; flag
// patterns extend them.
func applyIngestConfigurationDefaults(command *cobra.Command, flagValues *ingestFlagValues, ingestConfiguration config.IngestCommandConfiguration) {
	flags := command.Flags()
	if !flags.Changed(outputFlagName) && ingestConfiguration.Output != "" {
		flagValues.outputPath = ingestConfiguration.Output
	}
	if !flags.Changed(maxSizeFlagName) && ingestConfiguration.MaxFileSize > 0 {
		flagValues.maxFileSizeBytes = ingestConfiguration.MaxFileSize
	}
	if !flags.Changed(tokenModelFlagName) && ingestConfiguration.Tokens.Model != "" {
		flagValues.tokenModel = ingestConfiguration.Tokens.Model
	}
	if !flags.Changed(copyFlagName) && ingestConfiguration.Clipboard != nil {
		flagValues.copyToClipboard = *ingestConfiguration.Clipboard
	}
	if !flags.Changed(includeOutputsFlagName) && ingestConfiguration.IncludeOutputs != nil {
		flagValues.includeOutputs = *ingestConfiguration.IncludeOutputs
	}
	if len(ingestConfiguration.Exclude) > 0 {
		flagValues.excludePatterns = append(append([]string{}, ingestConfiguration.Exclude...), flagValues.excludePatterns...)
	}
	if len(ingestConfiguration.Include) > 0 {
		flagValues.includePatterns = append(append([]string{}, ingestConfiguration.Include...), flagValues.includePatterns...)
	}
}

// createServeCommand returns the serve subcommand.
func createServeCommand() *cobra.Command {
	var hostName string
	var portNumber int

	serveCommand := &cobra.Command{
		Use:   serveUse,
		Short: serveShortDescription,
		Long:  serveLongDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			_ = godotenv.Load()

			applicationConfiguration, configurationError := config.LoadApplicationConfiguration(config.LoadOptions{})
			if configurationError != nil {
				return configurationError
			}
			if !command.Flags().Changed(hostFlagName) {
				if environmentHost := os.Getenv(environmentHostVariable); environmentHost != "" {
					hostName = environmentHost
				} else if applicationConfiguration.Server.Host != "" {
					hostName = applicationConfiguration.Server.Host
				}
			}
			if !command.Flags().Changed(portFlagName) {
				if environmentPort := os.Getenv(environmentPortVariable); environmentPort != "" {
					parsedPort, parseError := strconv.Atoi(environmentPort)
					if parseError != nil {
						return fmt.Errorf(invalidPortValueFormat, environmentPortVariable, environmentPort, parseError)
					}
					portNumber = parsedPort
				} else if applicationConfiguration.Server.Port != 0 {
					portNumber = applicationConfiguration.Server.Port
				}
			}

			logger, loggerError := utils.NewApplicationLogger()
			if loggerError != nil {
				return fmt.Errorf(utils.LoggerInitializationFailedMessageFormat, loggerError)
			}
			defer logger.Sync()

			executionContext, stopSignals := signal.NotifyContext(command.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stopSignals()

			ingestionServer := server.NewServer(ingest.NewRunner(gitrepo.NewClient()), server.Config{
				Address: net.JoinHostPort(hostName, strconv.Itoa(portNumber)),
				Logger:  logger,
			})
			return ingestionServer.Run(executionContext, func(listenAddress string) {
				fmt.Fprintf(command.OutOrStdout(), serverListeningFormat, listenAddress)
			})
		},
	}

	serveCommand.Flags().StringVar(&hostName, hostFlagName, config.DefaultServerHost, hostFlagDescription)
	serveCommand.Flags().IntVar(&portNumber, portFlagName, config.DefaultServerPort, portFlagDescription)
	return serveCommand
}

// createVersionCommand returns the version subcommand.
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   versionUse,
		Short: versionShortDescription,
		Args:  cobra.NoArgs,
		Run: func(command *cobra.Command, arguments []string) {
			fmt.Fprintf(command.OutOrStdout(), versionTemplate, utils.GetApplicationVersion())
		},
	}
}

// createConfigCommand returns the config subcommand with its init action.
func createConfigCommand() *cobra.Command {
	configCommand := &cobra.Command{
		Use:   configUse,
		Short: configShortDescription,
	}
	configCommand.AddCommand(createConfigInitCommand())
	return configCommand
}

func createConfigInitCommand() *cobra.Command {
	var globalTarget bool
	var forceOverwrite bool

	initCommand := &cobra.Command{
		Use:   configInitUse,
		Short: configInitShortDescription,
		Args:  cobra.NoArgs,
		RunE: func(command *cobra.Command, arguments []string) error {
			target := config.InitTargetLocal
			if globalTarget {
				target = config.InitTargetGlobal
			}
			writtenPath, initializationError := config.InitializeConfiguration(config.InitOptions{Target: target, Force: forceOverwrite})
			if initializationError != nil {
				return initializationError
			}
			fmt.Fprintf(command.OutOrStdout(), configurationWrittenFormat, writtenPath)
			return nil
		},
	}

	initCommand.Flags().BoolVar(&globalTarget, globalFlagName, false, globalFlagDescription)
	initCommand.Flags().BoolVar(&forceOverwrite, forceFlagName, false, forceFlagDescription)
	return initCommand
}
