package integration_test

import (
	"context"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/rpggio/runledger/internal/testserver"
)

func binaryPath(t *testing.T) string {
	t.Helper()
	for _, p := range []string{"./bin/runledger", "../../bin/runledger"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	t.Skip("Server binary not found. Run 'go build -o bin/runledger ./cmd/runledger' first.")
	return ""
}

func stdioCommand(ctx context.Context, path string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, path, "serve")
	cmd.Env = append(os.Environ(),
		"RUNLEDGER_TRANSPORT_MODE=stdio",
		"RUNLEDGER_DB_PATH=:memory:",
		"RUNLEDGER_DATASETS_PATH=",
	)
	return cmd
}

// TestStdioProtocolCompliance drives the built binary over stdio with the SDK
// client.
func TestStdioProtocolCompliance(t *testing.T) {
	path := binaryPath(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdkmcp.CommandTransport{Command: stdioCommand(ctx, path)}, nil)
	require.NoError(t, err, "Failed to connect to server")
	defer session.Close()

	t.Run("ServerInfo", func(t *testing.T) {
		initResult := session.InitializeResult()
		require.NotNil(t, initResult)
		require.NotNil(t, initResult.ServerInfo)
		require.Equal(t, "runledger", initResult.ServerInfo.Name)
	})

	t.Run("ListTools", func(t *testing.T) {
		tools, err := session.ListTools(ctx, nil)
		require.NoError(t, err, "tools/list failed")
		require.Len(t, tools.Tools, 9)
	})

	t.Run("CreateAndListExperiments", func(t *testing.T) {
		result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{
			Name:      "create_experiment",
			Arguments: map[string]any{"name": "stdio"},
		})
		require.NoError(t, err)
		require.False(t, result.IsError, "create_experiment returned error: %v", result)

		result, err = session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "list_experiments"})
		require.NoError(t, err)
		require.False(t, result.IsError)
		text, ok := result.Content[0].(*sdkmcp.TextContent)
		require.True(t, ok)
		require.Contains(t, text.Text, "stdio")
	})
}

// TestStdioProtocol_StdoutHygiene checks that stdout carries nothing but
// JSON-RPC messages.
func TestStdioProtocol_StdoutHygiene(t *testing.T) {
	path := binaryPath(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := stdioCommand(ctx, path)
	stdin, err := cmd.StdinPipe()
	require.NoError(t, err)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())
	defer func() {
		_ = stdin.Close()
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	initReq := `{"jsonrpc":"2.0","method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1.0"}},"id":1}`
	_, err = stdin.Write([]byte(initReq + "\n"))
	require.NoError(t, err)

	first := make([]byte, 1)
	read := make(chan error, 1)
	go func() {
		_, err := io.ReadFull(stdout, first)
		read <- err
	}()
	select {
	case err := <-read:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for server response")
	}
	require.Equal(t, byte('{'), first[0], "stdout must start with a JSON-RPC message")
}

// TestStdioProtocol_InProcess serves the MCP server over an in-process pipe
// pair, the same framing the stdio transport uses.
func TestStdioProtocol_InProcess(t *testing.T) {
	ts := testserver.New(t)
	require.Equal(t, 200, ts.Upload(t, "iris.csv", testserver.IrisCSV(30)))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientRead, serverWrite := io.Pipe()
	serverRead, clientWrite := io.Pipe()

	served := make(chan error, 1)
	go func() {
		served <- ts.App.MCP.Run(ctx, &sdkmcp.IOTransport{Reader: serverRead, Writer: serverWrite})
	}()

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, &sdkmcp.IOTransport{Reader: clientRead, Writer: clientWrite}, nil)
	require.NoError(t, err)

	result, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: "list_datasets"})
	require.NoError(t, err)
	require.False(t, result.IsError)
	text, ok := result.Content[0].(*sdkmcp.TextContent)
	require.True(t, ok)
	require.Contains(t, text.Text, "iris.csv")

	require.NoError(t, session.Close())
	select {
	case <-served:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after the client closed")
	}
}
