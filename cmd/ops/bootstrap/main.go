// Package main implements the bootstrap CLI for the reminder service.
//
// It walks an operator through populating AWS SSM Parameter Store with the
// secrets the Lambda functions resolve at cold start, then prints the
// *_SSM_PARAM variables to set on each function.
//
// Usage:
//
//	go run ./cmd/ops/bootstrap --env=dev
//	go run ./cmd/ops/bootstrap --env=prod --profile=habitpulse-prod --region=us-east-1
//	go run ./cmd/ops/bootstrap --env=dev --skip-optional
//
// Existing parameters are detected first and the operator chooses to skip
// or overwrite them, so the tool is safe to re-run.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"habitpulse/internal/app"
)

var validEnvironments = map[string]bool{
	"dev":     true,
	"staging": true,
	"prod":    true,
}

// Session is the identity and configuration established at startup.
type Session struct {
	Environment string
	AWSProfile  string
	AWSRegion   string
	AccountID   string
	CallerARN   string
	AWSConfig   aws.Config
	Logger      *slog.Logger
}

func main() {
	envFlag := flag.String("env", "", "Target environment (dev/staging/prod) [required]")
	profileFlag := flag.String("profile", "", "AWS CLI profile (default: default credential chain)")
	regionFlag := flag.String("region", "us-east-1", "AWS region")
	skipOptional := flag.Bool("skip-optional", false, "Skip optional parameters without prompting")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "HabitPulse Bootstrap\n\n")
		fmt.Fprintf(os.Stderr, "Populates the SSM parameters required before the first deployment.\n\n")
		fmt.Fprintf(os.Stderr, "Usage:\n  bootstrap --env=dev [--profile=NAME] [--region=REGION] [--skip-optional]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := validateEnvironment(*envFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := app.SignalContext(context.Background())
	defer cancel()

	session, err := initializeSession(ctx, *envFlag, *profileFlag, *regionFlag, logger)
	if err != nil {
		logger.Error("initialization failed", "error", err)
		os.Exit(1)
	}

	stdin := bufio.NewReader(os.Stdin)
	if session.Environment == "prod" && !confirmProduction(session, stdin, os.Stderr) {
		fmt.Fprintln(os.Stderr, "Aborted. No changes were made.")
		return
	}

	printBanner(session, os.Stderr)

	runner := NewRunner(session, stdin)
	runner.SkipOptional = *skipOptional
	if err := runner.Run(ctx); err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}

	logger.Info("bootstrap completed",
		"env", session.Environment,
		"account", session.AccountID,
		"region", session.AWSRegion,
	)
}

func validateEnvironment(env string) error {
	if env == "" {
		return fmt.Errorf("--env is required")
	}
	if !validEnvironments[env] {
		return fmt.Errorf("invalid environment %q (must be dev, staging, or prod)", env)
	}
	return nil
}

// initializeSession loads AWS credentials and confirms them with STS
// GetCallerIdentity before anything is written.
func initializeSession(ctx context.Context, env, profile, region string, logger *slog.Logger) (*Session, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	identityCtx, identityCancel := context.WithTimeout(ctx, 10*time.Second)
	defer identityCancel()

	identity, err := sts.NewFromConfig(cfg).GetCallerIdentity(identityCtx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return nil, fmt.Errorf("verifying AWS identity (profile=%q region=%q): %w", profile, region, err)
	}

	session := &Session{
		Environment: env,
		AWSProfile:  profile,
		AWSRegion:   region,
		AccountID:   aws.ToString(identity.Account),
		CallerARN:   aws.ToString(identity.Arn),
		AWSConfig:   cfg,
		Logger:      logger,
	}
	logger.Info("AWS identity verified",
		"account_id", session.AccountID,
		"arn", session.CallerARN,
		"region", region,
	)
	return session, nil
}

// confirmProduction returns true only when the operator types "yes".
func confirmProduction(s *Session, in *bufio.Reader, out io.Writer) bool {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintln(out, "  WARNING: You are targeting the PRODUCTION environment")
	fmt.Fprintln(out, "============================================================")
	fmt.Fprintf(out, "  Account: %s\n", s.AccountID)
	fmt.Fprintf(out, "  Region:  %s\n", s.AWSRegion)
	fmt.Fprintf(out, "  ARN:     %s\n", s.CallerARN)
	fmt.Fprintln(out, "============================================================")
	fmt.Fprint(out, "\nType 'yes' to continue: ")

	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "yes")
}

func printBanner(s *Session, out io.Writer) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "------------------------------------------------------------")
	fmt.Fprintln(out, "  HabitPulse Bootstrap")
	fmt.Fprintln(out, "------------------------------------------------------------")
	fmt.Fprintf(out, "  Environment:  %s\n", s.Environment)
	fmt.Fprintf(out, "  AWS Account:  %s\n", s.AccountID)
	fmt.Fprintf(out, "  AWS Region:   %s\n", s.AWSRegion)
	fmt.Fprintf(out, "  Identity:     %s\n", s.CallerARN)
	if s.AWSProfile != "" {
		fmt.Fprintf(out, "  Profile:      %s\n", s.AWSProfile)
	}
	fmt.Fprintf(out, "  SSM Prefix:   %s\n", pathPrefix(s.Environment))
	fmt.Fprintln(out, "------------------------------------------------------------")
}
