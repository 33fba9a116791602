package testcontainers

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Credentials baked into the Dockerfile.
const (
	User     = "testuser"
	Password = "password"
	Home     = "/home/testuser"
)

// SSHContainer represents an OpenSSH server container
type SSHContainer struct {
	Container testcontainers.Container
	Host      string
	Port      int
}

// StartSSHContainer builds and starts the OpenSSH container next to this file.
func StartSSHContainer(ctx context.Context) (*SSHContainer, error) {
	dockerfilePath, err := filepath.Abs("testcontainers/Dockerfile")
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path to Dockerfile: %w", err)
	}

	req := testcontainers.ContainerRequest{
		FromDockerfile: testcontainers.FromDockerfile{
			Context:    filepath.Dir(dockerfilePath),
			Dockerfile: "Dockerfile",
		},
		ExposedPorts: []string{"22/tcp"},
		WaitingFor:   wait.ForListeningPort("22/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	mappedPort, err := container.MappedPort(ctx, "22/tcp")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	return &SSHContainer{
		Container: container,
		Host:      host,
		Port:      mappedPort.Int(),
	}, nil
}

// Connection returns the connection inputs of the container.
func (c *SSHContainer) Connection(sessionID string) map[string]string {
	return map[string]string{
		"host":      c.Host,
		"port":      fmt.Sprint(c.Port),
		"username":  User,
		"password":  Password,
		"sessionId": sessionID,
	}
}

// Stop stops the SSH server container
func (c *SSHContainer) Stop(ctx context.Context) error {
	return c.Container.Terminate(ctx)
}
