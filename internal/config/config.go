// Package config loads the environment variables that drive the client and
// dispatcher binaries. Every missing or invalid required variable is
// collected and reported together in one error, rather than stopping at the
// first one found.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvBaseDir       = "ADBI_BASE_DIR"
	EnvSQSName       = "ADBI_SQS_NAME"
	EnvMaxWorker     = "ADBI_MAX_WORKER"
	EnvMaxRetry      = "ADBI_MAX_RETRY"
	EnvECRAccountIDs = "ADBI_ECR_ACCOUNT_IDS"
	EnvAWSRegion     = "AWS_REGION"
)

// DefaultMaxWorker is ADBI_MAX_WORKER's default when unset.
const DefaultMaxWorker = 4

// DefaultMaxRetry is ADBI_MAX_RETRY's default when unset (no retry).
const DefaultMaxRetry = 1

// ClientConfig is what a client binary needs: the base URI jobs are rooted
// under and the queue that carries their envelopes.
type ClientConfig struct {
	BaseDir   string
	QueueName string
}

// LoadClientConfig reads ADBI_BASE_DIR and ADBI_SQS_NAME, returning a
// combined error naming every missing variable at once if any are absent.
// A trailing slash on the base dir is stripped.
func LoadClientConfig() (ClientConfig, error) {
	var errs []string

	baseDir := strings.TrimSuffix(os.Getenv(EnvBaseDir), "/")
	if baseDir == "" {
		errs = append(errs, fmt.Sprintf("please specify Base Dir by %s env variable.", EnvBaseDir))
	}

	queueName := os.Getenv(EnvSQSName)
	if queueName == "" {
		errs = append(errs, fmt.Sprintf("please specify SQS name by %s env variable.", EnvSQSName))
	}

	if len(errs) > 0 {
		return ClientConfig{}, fmt.Errorf("config:\n\t%s", strings.Join(errs, "\n\t"))
	}

	return ClientConfig{BaseDir: baseDir, QueueName: queueName}, nil
}

// DispatcherConfig is what dispatcher.New needs, plus the queue name used
// to resolve the SQS queue URL at startup.
type DispatcherConfig struct {
	QueueName   string
	MaxWorker   int
	MaxRetry    int
	AWSRegion   string
	ECRAccounts []string
}

// LoadDispatcherConfig reads every dispatcher-relevant environment
// variable and returns a combined error naming every missing required
// variable at once if any are absent.
func LoadDispatcherConfig() (DispatcherConfig, error) {
	var errs []string

	queueName := os.Getenv(EnvSQSName)
	if queueName == "" {
		errs = append(errs, fmt.Sprintf("please specify SQS name by %s env variable.", EnvSQSName))
	}

	maxWorker := DefaultMaxWorker
	if raw := os.Getenv(EnvMaxWorker); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be a positive integer, got %q.", EnvMaxWorker, raw))
		} else {
			maxWorker = v
		}
	}

	maxRetry := DefaultMaxRetry
	if raw := os.Getenv(EnvMaxRetry); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be a positive integer, got %q.", EnvMaxRetry, raw))
		} else {
			maxRetry = v
		}
	}

	if len(errs) > 0 {
		return DispatcherConfig{}, fmt.Errorf("config:\n\t%s", strings.Join(errs, "\n\t"))
	}

	var ecrAccounts []string
	if raw := os.Getenv(EnvECRAccountIDs); raw != "" {
		ecrAccounts = strings.Split(raw, ",")
	}

	return DispatcherConfig{
		QueueName:   queueName,
		MaxWorker:   maxWorker,
		MaxRetry:    maxRetry,
		AWSRegion:   os.Getenv(EnvAWSRegion),
		ECRAccounts: ecrAccounts,
	}, nil
}
