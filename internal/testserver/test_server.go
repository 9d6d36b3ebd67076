// Package testserver starts a complete in-memory runledger instance behind
// httptest for end-to-end tests.
package testserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rpggio/runledger/internal/config"
	"github.com/rpggio/runledger/internal/server"
)

type TestServer struct {
	Server *httptest.Server
	App    *server.Server
	Token  string
}

// Option adjusts the configuration before the instance starts.
type Option func(*config.Config)

// WithAuthToken requires bearer authentication on mutating routes.
func WithAuthToken(token string) Option {
	return func(c *config.Config) { c.Server.AuthToken = token }
}

// WithWorkers sets the number of concurrent training jobs.
func WithWorkers(n int) Option {
	return func(c *config.Config) { c.Jobs.Workers = n }
}

// WithStepDelay sets the pause between training steps.
func WithStepDelay(d time.Duration) Option {
	return func(c *config.Config) { c.Jobs.StepDelay = d }
}

func New(t *testing.T, opts ...Option) *TestServer {
	t.Helper()

	cfg := config.Default()
	cfg.DB.Path = ":memory:"
	cfg.Datasets.Path = ""
	cfg.Jobs.StepDelay = 0
	for _, opt := range opts {
		opt(&cfg)
	}

	app, err := server.New(cfg, server.Options{Version: "test"})
	require.NoError(t, err)

	srv := httptest.NewServer(app.Handler)

	ts := &TestServer{
		Server: srv,
		App:    app,
		Token:  cfg.Server.AuthToken,
	}

	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = app.Close(ctx)
	})

	return ts
}

// URL joins path onto the server base URL.
func (ts *TestServer) URL(path string) string {
	return ts.Server.URL + path
}

// Do sends a JSON request and decodes the response into out when out is not
// nil. It returns the status code.
func (ts *TestServer) Do(t *testing.T, method, path string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.URL(path), reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	ts.authorize(req)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

// Upload posts content as a multipart dataset upload.
func (ts *TestServer) Upload(t *testing.T, filename string, content []byte) int {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, ts.URL("/upload"), &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())
	ts.authorize(req)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func (ts *TestServer) authorize(req *http.Request) {
	if ts.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.Token)
	}
}

// IrisCSV returns n rows of well separated three-class data with iris-style
// column names.
func IrisCSV(n int) []byte {
	rng := rand.New(rand.NewPCG(11, 29))
	species := []string{"setosa", "versicolor", "virginica"}
	var b strings.Builder
	b.WriteString("sepal_length,sepal_width,petal_length,petal_width,species\n")
	for i := 0; i < n; i++ {
		c := i % 3
		fmt.Fprintf(&b, "%.2f,%.2f,%.2f,%.2f,%s\n",
			5+float64(c)*1.2+rng.NormFloat64()*0.2,
			3+float64(c%2)*0.6+rng.NormFloat64()*0.2,
			1.5+float64(c)*2+rng.NormFloat64()*0.3,
			0.2+float64(c)*0.8+rng.NormFloat64()*0.1,
			species[c])
	}
	return []byte(b.String())
}
