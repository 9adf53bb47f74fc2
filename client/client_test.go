package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/perclft/qcircuit/analysis"
	"github.com/perclft/qcircuit/api"
	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/jobs"
	"github.com/perclft/qcircuit/jobs/memstore"
	"github.com/perclft/qcircuit/simulator"
	"github.com/perclft/qcircuit/source"
)

const bellJSON = `{"operations":[{"gate":"H","qubits":[0]},{"gate":"CNOT","qubits":[0,1]},{"gate":"MEASURE","qubits":[0,1]}]}`

// newService starts a complete in-process service with a running worker pool.
func newService(t *testing.T) *Client {
	t.Helper()
	log := zaptest.NewLogger(t)
	devices := backends.NewRegistry(simulator.New(3, 0, log))
	sources := source.NewResolver()
	store, queue := memstore.NewStore(), memstore.NewQueue()

	analyzer := analysis.NewService(devices, nil, log)
	app := api.New(api.Deps{
		Devices:  devices,
		Analyzer: analyzer,
		Cache:    analyzer,
		Jobs:     jobs.NewScheduler(store, queue, devices, log),
		Sources:  sources,
		Logger:   log,
	})
	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	worker := jobs.NewWorker(store, queue, devices, sources, jobs.WorkerConfig{Concurrency: 2}, log)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = worker.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		queue.Close()
		<-done
	})

	return New(srv.URL + "/")
}

func TestClient_EndToEnd(t *testing.T) {
	c := newService(t)
	ctx := context.Background()

	v, err := c.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "1.0", v)

	report, err := c.Transpile(ctx, api.TranspileRequest{
		QPUName:  "sycamore",
		ImplData: base64.StdEncoding.EncodeToString([]byte(bellJSON)),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Width)
	assert.Equal(t, 1, report.MeasurementOperations)

	transpiled, err := json.Marshal(report.TranspiledCircuit)
	require.NoError(t, err)

	shots := 50
	loc, err := c.Execute(ctx, api.ExecuteRequest{
		TranspileRequest:  api.TranspileRequest{QPUName: "sycamore"},
		TranspiledCircuit: transpiled,
		Shots:             &shots,
	})
	require.NoError(t, err)
	require.NotEmpty(t, loc)

	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	view, err := c.Wait(wctx, loc, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, view.Complete)
	assert.Equal(t, jobs.StatusComplete, view.Status)
	assert.Equal(t, shots, view.Result.Total())

	byID, err := c.Result(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, view, byID)
}

func TestClient_DevicesAndCache(t *testing.T) {
	c := newService(t)
	ctx := context.Background()

	devices, err := c.Devices(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, devices)
	names := make([]string, 0, len(devices))
	for _, d := range devices {
		names = append(names, d.Name)
	}
	assert.IsIncreasing(t, names)
	assert.Contains(t, names, "ionq-aria")

	st, err := c.CacheStats(ctx)
	require.NoError(t, err)
	assert.False(t, st.Enabled)

	req := api.TranspileRequest{QPUName: "sycamore", ImplData: base64.StdEncoding.EncodeToString([]byte(bellJSON))}
	ok, err := c.Invalidate(ctx, req)
	require.NoError(t, err)
	assert.False(t, ok)

	req.QPUName = "toaster"
	_, err = c.Invalidate(ctx, req)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestClient_Errors(t *testing.T) {
	c := newService(t)
	ctx := context.Background()

	_, err := c.Result(ctx, "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)

	_, err = c.Execute(ctx, api.ExecuteRequest{TranspileRequest: api.TranspileRequest{QPUName: "toaster"}})
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.NotEmpty(t, apiErr.Message)
}

func TestClient_TranspileFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, api.Prefix+"/transpile", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "transpilation failed"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Transpile(context.Background(), api.TranspileRequest{QPUName: "sycamore"})
	var te *TranspileError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "transpilation failed", te.Message)
}

func TestClient_WaitHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(jobs.View{ID: "j1", Status: jobs.StatusPending})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	v, err := New(srv.URL).Wait(ctx, "j1", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, "j1", v.ID)
}
