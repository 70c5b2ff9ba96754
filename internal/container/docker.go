package container

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"go.uber.org/zap"
)

// DockerManager runs worker images via the local Docker daemon, logging
// into ECR when an image's registry host looks like an ECR hostname. The
// account id that owns imageID is derived from the leading component of the
// image reference; an ECR image reference always begins with
// "{account-id}.dkr.ecr.{region}.amazonaws.com/...".
type DockerManager struct {
	docker      *dockerclient.Client
	ecr         *ecr.Client
	region      string
	ecrAccounts []string
	logger      *zap.Logger

	authToken string // cached basic-auth token from the last successful Login
}

// NewDockerManager connects to the local Docker daemon (via the standard
// DOCKER_HOST / socket discovery) and builds an ECR client using the SDK's
// default credential chain. ecrAccounts, when non-empty, overrides the
// account-id derivation from the image reference (ADBI_ECR_ACCOUNT_IDS).
func NewDockerManager(ctx context.Context, region string, ecrAccounts []string, logger *zap.Logger) (*DockerManager, error) {
	dc, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("container: connect to docker daemon: %w", err)
	}

	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("container: load AWS config: %w", err)
	}

	return &DockerManager{
		docker:      dc,
		ecr:         ecr.NewFromConfig(cfg),
		region:      region,
		ecrAccounts: ecrAccounts,
		logger:      logger.Named("container"),
	}, nil
}

// isECRImage reports whether imageID references an ECR registry, i.e. its
// host component looks like "{account}.dkr.ecr.{region}.amazonaws.com".
func isECRImage(imageID string) bool {
	host := imageID
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	return strings.Contains(host, ".dkr.ecr.") && strings.HasSuffix(host, ".amazonaws.com")
}

func (m *DockerManager) Login(ctx context.Context, imageID string) error {
	if !isECRImage(imageID) {
		return nil
	}

	accountID := strings.SplitN(imageID, ".", 2)[0]
	if len(m.ecrAccounts) > 0 {
		accountID = m.ecrAccounts[0]
	}
	m.logger.Info("logging in to ECR", zap.String("account_id", accountID))

	out, err := m.ecr.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return fmt.Errorf("container: get ECR authorization token: %w", err)
	}
	if len(out.AuthorizationData) == 0 {
		return fmt.Errorf("container: no authorization data returned for account %s", accountID)
	}

	token := *out.AuthorizationData[0].AuthorizationToken
	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return fmt.Errorf("container: decode ECR authorization token: %w", err)
	}
	userPass := strings.SplitN(string(decoded), ":", 2)
	if len(userPass) != 2 {
		return fmt.Errorf("container: malformed ECR authorization token")
	}

	authConfig := registry.AuthConfig{
		Username:      userPass[0],
		Password:      userPass[1],
		ServerAddress: fmt.Sprintf("https://%s.dkr.ecr.%s.amazonaws.com/", accountID, m.region),
	}
	encoded, err := registry.EncodeAuthConfig(authConfig)
	if err != nil {
		return fmt.Errorf("container: encode docker auth config: %w", err)
	}
	m.authToken = encoded
	return nil
}

func (m *DockerManager) Pull(ctx context.Context, imageID string) error {
	m.logger.Info("pulling image", zap.String("image_id", imageID))

	opts := image.PullOptions{}
	if m.authToken != "" {
		opts.RegistryAuth = m.authToken
	}
	rc, err := m.docker.ImagePull(ctx, imageID, opts)
	if err != nil {
		return fmt.Errorf("container: pull %s: %w", imageID, err)
	}
	defer rc.Close()
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("container: read pull progress for %s: %w", imageID, err)
	}
	return nil
}

func (m *DockerManager) Run(ctx context.Context, imageID string, argv []string, runtimeConfig map[string]any) (RunResult, error) {
	envList, labels := splitRuntimeConfig(runtimeConfig)

	m.logger.Info("running container", zap.String("image_id", imageID), zap.Strings("argv", argv))

	created, err := m.docker.ContainerCreate(ctx, &container.Config{
		Image:  imageID,
		Cmd:    argv,
		Env:    envList,
		Labels: labels,
	}, nil, nil, nil, "")
	if err != nil {
		return RunResult{Success: false, Message: err.Error()}, nil
	}
	containerID := created.ID

	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), removeTimeout)
		defer cancel()
		if err := m.docker.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			m.logger.Warn("failed to remove container", zap.String("container_id", containerID), zap.Error(err))
		}
	}()

	if err := m.docker.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return RunResult{Success: false, Message: err.Error()}, nil
	}

	statusCh, errCh := m.docker.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return RunResult{Success: false, Message: err.Error()}, nil
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	stdout, stderr, err := m.collectLogs(ctx, containerID)
	if err != nil {
		return RunResult{Success: false, Message: err.Error()}, nil
	}

	return RunResult{
		Success:  exitCode == 0,
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
	}, nil
}

// splitRuntimeConfig maps the recognized "environment" key (a string map,
// arriving as map[string]string or as map[string]any after a JSON decode)
// onto the container's env list. Every other key is attached as a label so
// it remains inspectable on the container without the manager needing to
// understand it.
func splitRuntimeConfig(runtimeConfig map[string]any) (envList []string, labels map[string]string) {
	for key, value := range runtimeConfig {
		if key == "environment" {
			switch env := value.(type) {
			case map[string]string:
				for k, v := range env {
					envList = append(envList, k+"="+v)
				}
			case map[string]any:
				for k, v := range env {
					envList = append(envList, fmt.Sprintf("%s=%v", k, v))
				}
			}
			continue
		}
		if labels == nil {
			labels = make(map[string]string)
		}
		labels[key] = fmt.Sprintf("%v", value)
	}
	return envList, labels
}

func (m *DockerManager) collectLogs(ctx context.Context, containerID string) (stdout, stderr string, err error) {
	rc, err := m.docker.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", fmt.Errorf("container: fetch logs for %s: %w", containerID, err)
	}
	defer rc.Close()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, rc); err != nil {
		return "", "", fmt.Errorf("container: demux logs for %s: %w", containerID, err)
	}
	return outBuf.String(), errBuf.String(), nil
}

const removeTimeout = 30 * time.Second

var _ Manager = (*DockerManager)(nil)
