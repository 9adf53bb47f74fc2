package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/perclft/qcircuit/analysis"
	"github.com/perclft/qcircuit/backend/backends"
	"github.com/perclft/qcircuit/jobs"
	"github.com/perclft/qcircuit/jobs/memstore"
	"github.com/perclft/qcircuit/simulator"
	"github.com/perclft/qcircuit/source"
)

const bellJSON = `{"operations":[
	{"gate":"H","qubits":[0]},
	{"gate":"CNOT","qubits":[0,1]},
	{"gate":"MEASURE","qubits":[0,1],"key":"result"}
]}`

const bellQASM = `OPENQASM 2.0;
include "qelib1.inc";
qreg q[2];
creg c[2];
h q[0];
cx q[0],q[1];
measure q -> c;
`

type testServer struct {
	app    *fiber.App
	store  *memstore.Store
	queue  *memstore.Queue
	worker *jobs.Worker
}

func newTestServer(t *testing.T, checks ...ReadinessCheck) *testServer {
	t.Helper()
	log := zaptest.NewLogger(t)
	devices := backends.NewRegistry(simulator.New(7, 0, log))
	sources := source.NewResolver(source.WithLogger(log))
	ts := &testServer{store: memstore.NewStore(), queue: memstore.NewQueue()}
	ts.worker = jobs.NewWorker(ts.store, ts.queue, devices, sources, jobs.WorkerConfig{Concurrency: 1}, log)
	ts.app = New(Deps{
		Devices:  devices,
		Analyzer: analysis.NewService(devices, nil, log),
		Jobs:     jobs.NewScheduler(ts.store, ts.queue, devices, log),
		Sources:  sources,
		Checks:   checks,
		Logger:   log,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func (ts *testServer) drain(t *testing.T) {
	t.Helper()
	for {
		item, ok := ts.queue.TryDequeue()
		if !ok {
			return
		}
		require.NoError(t, ts.worker.Process(context.Background(), item))
	}
}

func inline(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

func TestTranspile_InlineJSON(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, Prefix+"/transpile", TranspileRequest{
		QPUName:  "local-simulator",
		ImplData: inline(bellJSON),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	assert.EqualValues(t, 3, out["depth"])
	assert.EqualValues(t, 1, out["multi-qubit-gate-depth"])
	assert.EqualValues(t, 2, out["width"])
	assert.EqualValues(t, 3, out["total-number-of-operations"])
	assert.EqualValues(t, 1, out["number-of-single-qubit-gates"])
	assert.EqualValues(t, 1, out["number-of-multi-qubit-gates"])
	assert.EqualValues(t, 1, out["number-of-measurement-operations"])
	assert.Contains(t, out, "transpiled-circuit")
	assert.Contains(t, out["transpiled-qasm"], "OPENQASM 2.0;")
}

func TestTranspile_QASMFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, bellQASM)
	}))
	defer srv.Close()
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, Prefix+"/transpile", TranspileRequest{
		QPUName:      "ionq-aria",
		ImplLanguage: "openqasm",
		ImplURL:      srv.URL + "/bell.qasm",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out TranspileResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 2, out.Width)
	assert.Equal(t, 1, out.MultiQubitGates)
	for _, op := range out.TranspiledCircuit.Operations {
		assert.NotEqual(t, "CNOT", op.Gate)
	}
}

func TestTranspile_URLTakesPrecedenceOverData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, bellQASM)
	}))
	defer srv.Close()
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, Prefix+"/transpile", TranspileRequest{
		QPUName:      "sycamore",
		ImplLanguage: "openqasm",
		ImplURL:      srv.URL + "/bell.qasm",
		ImplData:     "%%% not base64 %%%",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out TranspileResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, 2, out.Width)
}

func TestTranspile_RejectsBadRequests(t *testing.T) {
	ts := newTestServer(t)

	cases := map[string]TranspileRequest{
		"unknown backend":   {QPUName: "toaster", ImplData: inline(bellJSON)},
		"no source":         {QPUName: "sycamore"},
		"bad base64":        {QPUName: "sycamore", ImplData: "%%%"},
		"unknown language":  {QPUName: "sycamore", ImplLanguage: "quil", ImplData: inline(bellJSON)},
		"unparsable source": {QPUName: "sycamore", ImplData: inline("{not json")},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, Prefix+"/transpile", req)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
			assert.Contains(t, string(body), `"error"`)
		})
	}

	req := httptest.NewRequest(http.MethodPost, Prefix+"/transpile", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTranspile_FailureIsReportedInBody(t *testing.T) {
	ts := newTestServer(t)
	ops := make([]string, 24)
	for i := range ops {
		ops[i] = fmt.Sprintf(`{"gate":"H","qubits":[%d]}`, i)
	}
	wide := `{"operations":[` + strings.Join(ops, ",") + `]}`

	resp, body := ts.do(t, http.MethodPost, Prefix+"/transpile", TranspileRequest{
		QPUName:  "sycamore23",
		ImplData: inline(wide),
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"error":"transpilation failed"}`, string(body))
}

func TestExecute_ThenPollResult(t *testing.T) {
	ts := newTestServer(t)
	shots := 200

	resp, body := ts.do(t, http.MethodPost, Prefix+"/execute", ExecuteRequest{
		TranspileRequest:  TranspileRequest{QPUName: "local-simulator"},
		TranspiledCircuit: json.RawMessage(bellJSON),
		Shots:             &shots,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var accepted ExecuteResponse
	require.NoError(t, json.Unmarshal(body, &accepted))
	assert.True(t, strings.HasPrefix(accepted.Location, jobs.DefaultResultsPath))
	assert.Equal(t, accepted.Location, resp.Header.Get("Location"))

	resp, body = ts.do(t, http.MethodGet, accepted.Location, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending jobs.View
	require.NoError(t, json.Unmarshal(body, &pending))
	assert.False(t, pending.Complete)
	assert.Nil(t, pending.Result)

	ts.drain(t)

	resp, body = ts.do(t, http.MethodGet, accepted.Location, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var done jobs.View
	require.NoError(t, json.Unmarshal(body, &done))
	assert.True(t, done.Complete)
	assert.Equal(t, shots, done.Result.Total())
	for outcome := range done.Result {
		assert.Contains(t, []string{"00", "11"}, outcome)
	}
}

func TestExecute_DefaultShotsAndStringCircuit(t *testing.T) {
	ts := newTestServer(t)
	raw, err := json.Marshal(bellJSON)
	require.NoError(t, err)

	resp, body := ts.do(t, http.MethodPost, Prefix+"/execute", ExecuteRequest{
		TranspileRequest:  TranspileRequest{QPUName: "local-simulator"},
		TranspiledCircuit: raw,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	ts.drain(t)

	var accepted ExecuteResponse
	require.NoError(t, json.Unmarshal(body, &accepted))
	_, body = ts.do(t, http.MethodGet, accepted.Location, nil)
	var done jobs.View
	require.NoError(t, json.Unmarshal(body, &done))
	assert.Equal(t, DefaultShots, done.Result.Total())
}

func TestExecute_DeferredSource(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, Prefix+"/execute", ExecuteRequest{
		TranspileRequest: TranspileRequest{
			QPUName:      "sycamore",
			ImplLanguage: "openqasm",
			ImplData:     inline(bellQASM),
		},
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))
	ts.drain(t)

	var accepted ExecuteResponse
	require.NoError(t, json.Unmarshal(body, &accepted))
	_, body = ts.do(t, http.MethodGet, accepted.Location, nil)
	var done jobs.View
	require.NoError(t, json.Unmarshal(body, &done))
	assert.True(t, done.Complete, string(body))
	assert.Equal(t, DefaultShots, done.Result.Total())
}

func TestExecute_RejectsBadRequests(t *testing.T) {
	ts := newTestServer(t)
	zero := 0

	cases := map[string]ExecuteRequest{
		"zero shots": {
			TranspileRequest:  TranspileRequest{QPUName: "local-simulator"},
			TranspiledCircuit: json.RawMessage(bellJSON),
			Shots:             &zero,
		},
		"unknown backend": {
			TranspileRequest:  TranspileRequest{QPUName: "toaster"},
			TranspiledCircuit: json.RawMessage(bellJSON),
		},
		"no circuit": {
			TranspileRequest: TranspileRequest{QPUName: "local-simulator"},
		},
		"malformed circuit": {
			TranspileRequest:  TranspileRequest{QPUName: "local-simulator"},
			TranspiledCircuit: json.RawMessage(`"{oops"`),
		},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := ts.do(t, http.MethodPost, Prefix+"/execute", req)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
		})
	}
	assert.Zero(t, ts.store.Len())
	assert.Zero(t, ts.queue.Len())
}

func TestDevices(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, Prefix+"/devices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var devices []DeviceResponse
	require.NoError(t, json.Unmarshal(body, &devices))
	require.Len(t, devices, len(backends.DefaultDevices()))
	assert.Equal(t, "aspen-m-3", devices[0].Name)
	assert.Equal(t, 80, devices[0].MaxQubits)
	assert.Contains(t, devices[0].NativeGates, "CZ")

	for _, d := range devices {
		if d.Name == "local-simulator" {
			assert.Equal(t, "simulator", d.Kind)
			assert.Empty(t, d.NativeGates)
		}
	}
}

func TestCache_StatsAndInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	log := zaptest.NewLogger(t)
	devices := backends.NewRegistry(simulator.New(7, 0, log))
	analyzer := analysis.NewService(devices, analysis.NewRedisCache(rdb, time.Minute), log)
	ts := &testServer{app: New(Deps{
		Devices:  devices,
		Analyzer: analyzer,
		Cache:    analyzer,
		Sources:  source.NewResolver(),
		Logger:   log,
	})}

	req := TranspileRequest{QPUName: "sycamore", ImplData: inline(bellJSON)}
	for range 2 {
		resp, body := ts.do(t, http.MethodPost, Prefix+"/transpile", req)
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	}

	resp, body := ts.do(t, http.MethodGet, Prefix+"/cache", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st CacheStatsResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.Enabled)
	assert.EqualValues(t, 1, st.Hits)
	assert.EqualValues(t, 1, st.Misses)

	resp, body = ts.do(t, http.MethodPost, Prefix+"/cache/invalidate", req)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"invalidated":true}`, string(body))
	assert.Empty(t, mr.Keys())

	resp, body = ts.do(t, http.MethodPost, Prefix+"/cache/invalidate", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"invalidated":false}`, string(body))

	resp, _ = ts.do(t, http.MethodPost, Prefix+"/cache/invalidate", TranspileRequest{QPUName: "toaster", ImplData: inline(bellJSON)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCache_Disabled(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, Prefix+"/cache", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"enabled":false`)

	resp, body = ts.do(t, http.MethodPost, Prefix+"/cache/invalidate", TranspileRequest{QPUName: "sycamore", ImplData: inline(bellJSON)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"invalidated":false}`, string(body))
}

func TestResult_UnknownID(t *testing.T) {
	ts := newTestServer(t)
	resp, body := ts.do(t, http.MethodGet, Prefix+"/results/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "does-not-exist")
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, Prefix+"/version", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"version":"1.0"}`, string(body))

	resp, body = ts.do(t, http.MethodGet, Prefix+"/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "running")

	resp, body = ts.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"service":"qcircuit","status":"ok"}`, string(body))

	resp, body = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "qcircuit_http_requests_total")
}

func TestReadyz(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		ts := newTestServer(t, ReadinessCheck{Name: "store", Check: memstore.NewStore().Ping})
		resp, body := ts.do(t, http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Status string `json:"status"`
			Checks []struct {
				Name   string `json:"name"`
				Status string `json:"status"`
			} `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(body, &out))
		assert.Equal(t, "ready", out.Status)
		require.Len(t, out.Checks, 1)
		assert.Equal(t, "store", out.Checks[0].Name)
		assert.Equal(t, "ok", out.Checks[0].Status)
	})

	t.Run("not ready", func(t *testing.T) {
		ts := newTestServer(t, ReadinessCheck{
			Name:  "redis",
			Check: func(context.Context) error { return errors.New("connection refused") },
		})
		resp, body := ts.do(t, http.MethodGet, "/readyz", nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Contains(t, string(body), "not_ready")
		assert.Contains(t, string(body), "connection refused")
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
