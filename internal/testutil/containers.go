// Package testutil starts the Postgres and object-store containers used by
// integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cloo-solutions/fhirchat/internal/database"
	"github.com/cloo-solutions/fhirchat/internal/logging"
	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	pgvectorImage = "pgvector/pgvector:0.8.1-pg18"
	rustFSImage   = "rustfs/rustfs:latest"

	testDBUser     = "fhirchat"
	testDBPassword = "fhirchat"
	testDBName     = "fhirchat"

	// RustFSAccessKey and RustFSSecretKey are the credentials of the test object store
	RustFSAccessKey = "rustfsadmin"
	RustFSSecretKey = "rustfsadmin"
)

type container struct {
	testcontainers.Container
	host string
	port string
}

// start runs req and resolves the host port mapped to port. The container
// is terminated when t finishes.
func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port string) container {
	t.Helper()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(c) })

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", req.Image, err)
	}
	mapped, err := c.MappedPort(ctx, nat.Port(port))
	if err != nil {
		t.Fatalf("failed to get %s port: %v", req.Image, err)
	}

	return container{Container: c, host: host, port: mapped.Port()}
}

// PostgresContainer is a pgvector-enabled Postgres
type PostgresContainer struct {
	container
}

// NewPostgresContainer starts an empty pgvector Postgres
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	c := start(ctx, t, testcontainers.ContainerRequest{
		Image:        pgvectorImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     testDBUser,
			"POSTGRES_PASSWORD": testDBPassword,
			"POSTGRES_DB":       testDBName,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "5432")
	return &PostgresContainer{container: c}
}

// ConnectionString returns the PostgreSQL connection string
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		testDBUser, testDBPassword, pc.host, pc.port, testDBName)
}

// RustFSContainer is an S3-compatible object store used as the archive target
type RustFSContainer struct {
	container
}

// NewRustFSContainer starts an empty RustFS server
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	c := start(ctx, t, testcontainers.ContainerRequest{
		Image:        rustFSImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSAccessKey,
			"RUSTFS_SECRET_KEY": RustFSSecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")
	return &RustFSContainer{container: c}
}

// Endpoint returns the RustFS endpoint URL
func (rc *RustFSContainer) Endpoint() string {
	return fmt.Sprintf("http://%s:%s", rc.host, rc.port)
}

// StartPostgres starts a container, applies the migrations in migrationsDir
// and returns a pool that is closed when t finishes.
func StartPostgres(ctx context.Context, t *testing.T, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	pc := NewPostgresContainer(ctx, t)
	if err := database.RunMigrations(pc.ConnectionString(), migrationsDir, logging.Nop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	var (
		pool *pgxpool.Pool
		err  error
	)
	for attempt := 1; attempt <= 5; attempt++ {
		pool, err = database.NewPool(ctx, database.Config{URL: pc.ConnectionString(), MaxConns: 4})
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	return pool
}
