package integration

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestBackupCleanIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		FromDockerfile: testcontainers.FromDockerfile{
			Context:    "../../", // Root of repo
			Dockerfile: "Dockerfile",
			KeepImage:  true,
		},
		Files: []testcontainers.ContainerFile{
			{
				Reader:            strings.NewReader("nightly dump"),
				ContainerFilePath: "/data/src/dump.sql",
				FileMode:          0o644,
			},
		},
		Env: map[string]string{
			"BACKUPCLEAN_LOG_FORMAT":   "json",
			"BACKUPCLEAN_HISTORY_DB":   "/data/history.db",
			"BACKUPCLEAN_METRICS_FILE": "/data/backupclean.prom",
		},
		Cmd:        []string{"/data/src", "/data/dst", "1"},
		WaitingFor: wait.ForExit().WithExitTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start container: %v", err)
	}
	defer func() { _ = container.Terminate(ctx) }()

	state, err := container.State(ctx)
	if err != nil {
		t.Fatalf("Failed to get container state: %v", err)
	}
	if state.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %d", state.ExitCode)
	}

	logs, err := container.Logs(ctx)
	if err != nil {
		t.Fatalf("Failed to read logs: %v", err)
	}
	defer func() { _ = logs.Close() }()
	logText, _ := io.ReadAll(logs)
	for _, want := range []string{"File copied", "Backup completed", "Cleanup completed"} {
		if !strings.Contains(string(logText), want) {
			t.Errorf("Expected %q in logs:\n%s", want, logText)
		}
	}

	copied, err := container.CopyFileFromContainer(ctx, "/data/dst/dump.sql")
	if err != nil {
		t.Fatalf("Failed to copy backup out of container: %v", err)
	}
	defer func() { _ = copied.Close() }()
	content, _ := io.ReadAll(copied)
	if string(content) != "nightly dump" {
		t.Errorf("Expected backup content %q, got %q", "nightly dump", content)
	}

	prom, err := container.CopyFileFromContainer(ctx, "/data/backupclean.prom")
	if err != nil {
		t.Fatalf("Failed to copy metrics out of container: %v", err)
	}
	defer func() { _ = prom.Close() }()
	metrics, _ := io.ReadAll(prom)
	if !strings.Contains(string(metrics), "backupclean_copied_files") {
		t.Errorf("Expected copied_files metric, got:\n%s", metrics)
	}
}
