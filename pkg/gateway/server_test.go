package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stagehq/stagehand/pkg/adapters/memory"
	"github.com/stagehq/stagehand/pkg/domain"
	"github.com/stagehq/stagehand/pkg/drivers/sim"
	"github.com/stagehq/stagehand/pkg/gateway"
	"github.com/stagehq/stagehand/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T) *httptest.Server {
	t.Helper()

	reg := registry.New()
	_, err := reg.Register(context.Background(), "lo", sim.New(sim.Settings{MaxFrequency: 6e9}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	server := gateway.NewServer(reg, memory.NewLocker())
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(gateway.TokenHeader, token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func lock(t *testing.T, ts *httptest.Server, name, clientID string, ttl time.Duration) string {
	t.Helper()
	resp, data := doJSON(t, http.MethodPost, ts.URL+"/v1/instruments/"+name+"/lock", "", map[string]any{
		"client_id": clientID,
		"ttl_ms":    ttl.Milliseconds(),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, "lock failed: %s", data)
	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func TestHealthz(t *testing.T) {
	ts := newTestGateway(t)

	resp, data := doJSON(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(data))
}

func TestListAndInfo(t *testing.T) {
	ts := newTestGateway(t)

	resp, data := doJSON(t, http.MethodGet, ts.URL+"/v1/instruments/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []struct {
		Name  string `json:"name"`
		State string `json:"state"`
	}
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "lo", list[0].Name)
	assert.Equal(t, "ready", list[0].State)

	resp, data = doJSON(t, http.MethodGet, ts.URL+"/v1/instruments/lo/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info struct {
		Parameters []struct {
			Name string `json:"name"`
		} `json:"parameters"`
	}
	require.NoError(t, json.Unmarshal(data, &info))
	assert.NotEmpty(t, info.Parameters, "info includes the parameter descriptors")

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/instruments/ghost/", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLockExclusivity(t *testing.T) {
	ts := newTestGateway(t)

	token := lock(t, ts, "lo", "client-a", time.Minute)

	resp, data := doJSON(t, http.MethodPost, ts.URL+"/v1/instruments/lo/lock", "", map[string]any{
		"client_id": "client-b",
	})
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
	var eb struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &eb))
	assert.Equal(t, "locked", eb.Error)

	// Unlock, then the second client gets its turn.
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/instruments/lo/lock", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	lock(t, ts, "lo", "client-b", time.Minute)
}

func TestUnlockIsIdempotent(t *testing.T) {
	ts := newTestGateway(t)
	token := lock(t, ts, "lo", "client-a", time.Minute)

	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/v1/instruments/lo/lock", token, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/instruments/lo/lock", token, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode, "a stale token unlock is a no-op")

	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/v1/instruments/lo/lock", "bogus", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestGuardedOperationsRequireLease(t *testing.T) {
	ts := newTestGateway(t)

	resp, _ := doJSON(t, http.MethodPut, ts.URL+"/v1/instruments/lo/parameters/frequency", "",
		map[string]any{"value": 2e9})
	assert.Equal(t, http.StatusLocked, resp.StatusCode, "no token, no write")

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/instruments/lo/trigger", "wrong-token",
		map[string]any{"seq": 1})
	assert.Equal(t, http.StatusLocked, resp.StatusCode)
}

func TestParameterRoundtrip(t *testing.T) {
	ts := newTestGateway(t)
	token := lock(t, ts, "lo", "client-a", time.Minute)

	resp, _ := doJSON(t, http.MethodPut, ts.URL+"/v1/instruments/lo/parameters/frequency", token,
		map[string]any{"value": 2e9})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, data := doJSON(t, http.MethodGet, ts.URL+"/v1/instruments/lo/parameters/frequency", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Value float64 `json:"value"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, 2e9, body.Value)
}

func TestParameterValidationSurfacesOnWire(t *testing.T) {
	ts := newTestGateway(t)
	token := lock(t, ts, "lo", "client-a", time.Minute)

	resp, data := doJSON(t, http.MethodPut, ts.URL+"/v1/instruments/lo/parameters/frequency", token,
		map[string]any{"value": 9e9})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var eb struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &eb))
	assert.Equal(t, "invalid_value", eb.Error)
}

func TestTriggerAndRead(t *testing.T) {
	ts := newTestGateway(t)
	token := lock(t, ts, "lo", "client-a", time.Minute)

	resp, _ := doJSON(t, http.MethodPut, ts.URL+"/v1/instruments/lo/parameters/output", token,
		map[string]any{"value": "on"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/instruments/lo/trigger", token,
		map[string]any{"seq": 1})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// A duplicate trigger for the same sequence is accepted and ignored.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/instruments/lo/trigger", token,
		map[string]any{"seq": 1})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, data := doJSON(t, http.MethodGet, ts.URL+"/v1/instruments/lo/read?seq=1", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var read struct {
		Seq    uint64             `json:"seq"`
		Values map[string]float64 `json:"values"`
	}
	require.NoError(t, json.Unmarshal(data, &read))
	assert.Equal(t, uint64(1), read.Seq)
	assert.Contains(t, read.Values, "i")
	assert.Contains(t, read.Values, "q")
}

// stuckDriver hangs in SetParameter until the operation context is
// cancelled, simulating an instrument that stops answering mid-write.
type stuckDriver struct{}

func (stuckDriver) Connect(ctx context.Context) error             { return nil }
func (stuckDriver) Close(ctx context.Context) error               { return nil }
func (stuckDriver) Ping(ctx context.Context) error                { return nil }
func (stuckDriver) Parameters() []domain.ParameterDescriptor      { return nil }
func (stuckDriver) Trigger(ctx context.Context, seq uint64) error { return nil }

func (stuckDriver) SetParameter(ctx context.Context, name string, value any) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stuckDriver) GetParameter(ctx context.Context, name string) (any, error) {
	return nil, nil
}

func (stuckDriver) Read(ctx context.Context, seq uint64) (map[string]float64, error) {
	return nil, nil
}

func TestLeaseExpiryCancelsInFlightOperation(t *testing.T) {
	reg := registry.New()
	_, err := reg.Register(context.Background(), "dmm", stuckDriver{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close(context.Background()) })

	ts := httptest.NewServer(gateway.NewServer(reg, memory.NewLocker()).Handler())
	t.Cleanup(ts.Close)

	token := lock(t, ts, "dmm", "client-a", 50*time.Millisecond)

	// The write hangs on the instrument; the lease expiring mid-call must
	// cancel it and surface as a timeout, not leave the request stuck.
	start := time.Now()
	resp, data := doJSON(t, http.MethodPut, ts.URL+"/v1/instruments/dmm/parameters/range", token,
		map[string]any{"value": 10})
	elapsed := time.Since(start)

	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	var eb struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &eb))
	assert.Equal(t, "timed_out", eb.Error)
	assert.Less(t, elapsed, 2*time.Second, "expiry must unblock the call, not a client timeout")
}

func TestLeaseExpiryFreesInstrument(t *testing.T) {
	ts := newTestGateway(t)
	token := lock(t, ts, "lo", "client-a", 30*time.Millisecond)

	time.Sleep(80 * time.Millisecond)

	resp, _ := doJSON(t, http.MethodPut, ts.URL+"/v1/instruments/lo/parameters/frequency", token,
		map[string]any{"value": 2e9})
	assert.Equal(t, http.StatusLocked, resp.StatusCode, "an expired token no longer guards writes")

	lock(t, ts, "lo", "client-b", time.Minute)
}

func TestBadRequestBodies(t *testing.T) {
	ts := newTestGateway(t)

	for _, tc := range []struct {
		method, path string
	}{
		{http.MethodPost, "/v1/instruments/lo/lock"},
		{http.MethodPut, "/v1/instruments/lo/parameters/frequency"},
		{http.MethodPost, "/v1/instruments/lo/trigger"},
	} {
		req, err := http.NewRequest(tc.method, ts.URL+tc.path, bytes.NewReader([]byte("{not json")))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "%s %s", tc.method, tc.path)
	}

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/instruments/lo/read?seq=banana", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
