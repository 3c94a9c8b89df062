// Package common holds shared helpers for integration tests.
package common

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	surrealImage = "surrealdb/surrealdb:v3.0.0"
	surrealPort  = "8000/tcp"

	// SurrealUser and SurrealPass are the root credentials of the test instance.
	SurrealUser = "root"
	SurrealPass = "root"
)

// SurrealAddrEnv points the tests at an already running SurrealDB instead of
// starting a container, e.g. ws://localhost:8000/rpc.
const SurrealAddrEnv = "GATEKEEP_TEST_SURREALDB"

var (
	surrealOnce sync.Once
	surreal     *SurrealDB
	surrealErr  error
)

// SurrealDB is the shared test database endpoint.
type SurrealDB struct {
	addr      string
	container testcontainers.Container
}

// StartSurrealDB returns the process-wide SurrealDB, starting a container on
// first use.
func StartSurrealDB(t *testing.T) *SurrealDB {
	t.Helper()
	surrealOnce.Do(func() {
		if addr := os.Getenv(SurrealAddrEnv); addr != "" {
			surreal = &SurrealDB{addr: addr}
			return
		}
		surreal, surrealErr = runSurrealContainer(context.Background())
	})
	if surrealErr != nil {
		t.Fatalf("SurrealDB unavailable: %v", surrealErr)
	}
	return surreal
}

func runSurrealContainer(ctx context.Context) (*SurrealDB, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        surrealImage,
			ExposedPorts: []string{surrealPort},
			Cmd:          []string{"start", "--user", SurrealUser, "--pass", SurrealPass},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort(surrealPort),
				wait.ForLog("Started web server"),
			).WithDeadline(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}
	endpoint, err := c.PortEndpoint(ctx, surrealPort, "ws")
	if err != nil {
		c.Terminate(ctx)
		return nil, fmt.Errorf("resolve endpoint: %w", err)
	}
	return &SurrealDB{addr: endpoint + "/rpc", container: c}, nil
}

// Address returns the WebSocket RPC address.
func (s *SurrealDB) Address() string {
	return s.addr
}

// Terminate stops the container, if one was started.
func (s *SurrealDB) Terminate() {
	if s != nil && s.container != nil {
		s.container.Terminate(context.Background())
	}
}
