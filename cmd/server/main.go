package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/hbr-risk/assessment"
	"github.com/jrsteele09/hbr-risk/criteria"
	"github.com/jrsteele09/hbr-risk/internal/config"
	"github.com/jrsteele09/hbr-risk/server"
	"github.com/jrsteele09/hbr-risk/sessions"
	"github.com/jrsteele09/hbr-risk/smart"
	"github.com/jrsteele09/hbr-risk/smart/attemptrepo"
	"github.com/jrsteele09/hbr-risk/terminology"
	"github.com/jrsteele09/hbr-risk/tradeoff"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "hbr-risk",
		Short:         "PRECISE-HBR bleeding risk service for SMART on FHIR hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(evaluateCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("hbr-risk failed")
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the launch and assessment HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("recovered from panic")
			returnError = errors.New("panic recovered")
		}
	}()

	c, err := config.New()
	if err != nil {
		return err
	}
	configureLogging(c)
	displayAppname(c.GetAppName())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler, err := buildServer(ctx, c)
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() { serveErr <- listenAndServe(httpServer) }()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	returnError = shutdown(httpServer)
	log.Info().Msg("Server stopped")
	return returnError
}

// buildServer wires the launch flow and the assessment service. Expired attempts and sessions
// are swept until ctx is cancelled.
func buildServer(ctx context.Context, c config.Config) (*server.Server, error) {
	discoveryClient := &http.Client{Timeout: c.GetDiscoveryTimeout()}
	tokenClient := &http.Client{Timeout: c.GetTokenTimeout()}

	exchanger, err := smart.NewTokenExchanger(c.GetTokenClient(), tokenClient)
	if err != nil {
		return nil, err
	}

	attempts := attemptrepo.NewInMemoryRepo(c.GetAuthAttemptTTL())
	fhirSessions := sessions.NewInMemoryRepo()
	go attempts.Run(ctx, c.GetSweepInterval())
	go fhirSessions.Run(ctx, c.GetSweepInterval())

	controller, err := smart.NewController(
		smart.Deps{
			Resolver:  smart.NewDiscoveryResolver(discoveryClient, c.GetDiscoveryRetries()),
			Attempts:  attempts,
			Exchanger: exchanger,
			Identity:  smart.NewOIDCIdentityVerifier(tokenClient),
		},
		smart.ClientSettings{
			ClientID:     c.GetClientID(),
			ClientSecret: c.GetClientSecret(),
			RedirectURI:  c.GetRedirectURI(),
			Scope:        c.GetScopes(),
		},
	)
	if err != nil {
		return nil, err
	}

	opts, err := tradeoffOptions(c.GetTradeoffFile())
	if err != nil {
		return nil, err
	}
	service, err := newAssessmentService(c.GetRulesFile(), c.GetTerminologyDir(), opts...)
	if err != nil {
		return nil, err
	}

	return server.New(c, server.Deps{
		Controller:  controller,
		Assessments: service,
		Sessions:    fhirSessions,
	})
}

func newAssessmentService(rulesFile, terminologyDir string, opts ...assessment.ServiceOption) (*assessment.Service, error) {
	ruleset, err := criteria.LoadRuleset(rulesFile)
	if err != nil {
		return nil, err
	}
	registry, err := terminology.LoadDir(terminologyDir)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("rules", rulesFile).
		Str("version", ruleset.Version).
		Int("criteria", len(ruleset.Criteria)).
		Msg("criteria loaded")

	evaluator := criteria.NewEvaluator(criteria.NewRuleMatcher(registry))
	return assessment.NewService(ruleset, evaluator, opts...), nil
}

// tradeoffOptions loads the tradeoff model when a file is configured.
func tradeoffOptions(path string) ([]assessment.ServiceOption, error) {
	if path == "" {
		return nil, nil
	}
	model, err := tradeoff.LoadModel(path)
	if err != nil {
		return nil, err
	}
	return []assessment.ServiceOption{assessment.WithTradeoff(model)}, nil
}

func configureLogging(c config.EnvConfig) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
