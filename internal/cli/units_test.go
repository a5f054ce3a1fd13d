package cli

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/courier/internal/testutil"
)

func TestBatch_AllSucceed(t *testing.T) {
	f := newCLIFixture(t, "dir")
	f.ft.Handle("/v1/a", testutil.Route{Body: `{}`}).
		Handle("/v1/b", testutil.Route{Body: `{}`})

	out, err := f.run("batch", "a", "b")
	require.NoError(t, err)
	assert.Contains(t, out, "batch succeeded (2/2 succeeded)")
}

func TestBatch_StopsOnFailure(t *testing.T) {
	f := newCLIFixture(t, "dir")
	f.ft.Handle("/v1/a", testutil.Route{Body: `{}`}).
		Handle("/v1/b", testutil.Route{Status: http.StatusInternalServerError})

	out, err := f.run("batch", "a", "b")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "batch failed")
	assert.Contains(t, out, "failed at b")
}

func TestBatch_ContinueOnFailure(t *testing.T) {
	f := newCLIFixture(t, "dir")
	f.ft.Handle("/v1/a", testutil.Route{Body: `{}`}).
		Handle("/v1/b", testutil.Route{Status: http.StatusInternalServerError}).
		Handle("/v1/c", testutil.Route{Body: `{}`})

	out, err := f.run("batch", "a", "b", "c", "--continue-on-failure")
	require.NoError(t, err)
	assert.Contains(t, out, "batch succeeded (2/3 succeeded)")
	assert.Equal(t, 3, len(f.ft.Calls()))
}

func TestBatch_JSON(t *testing.T) {
	f := newCLIFixture(t, "dir")
	f.ft.Handle("/v1/a", testutil.Route{Body: `{}`})

	out, err := f.run("--format", "json", "batch", "a")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   UnitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "batch", resp.Data.Kind)
	assert.Equal(t, "succeeded", resp.Data.State)
	require.Len(t, resp.Data.Requests, 1)
	assert.Equal(t, "a", resp.Data.Requests[0].Target)
}

func TestChain_StopsAtFailure(t *testing.T) {
	f := newCLIFixture(t, "dir")
	f.ft.Handle("/v1/login", testutil.Route{Status: http.StatusUnauthorized}).
		Handle("/v1/profile", testutil.Route{Body: `{}`})

	out, err := f.run("--format", "json", "chain", "login", "profile")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   UnitResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "failed", resp.Data.State)
	assert.Equal(t, "login", resp.Data.FailedRequest)
	require.Len(t, resp.Data.Requests, 2)
	assert.Equal(t, "idle", resp.Data.Requests[1].State)
	assert.Zero(t, f.ft.CallCount("/v1/profile"))
}

func TestChain_Failover(t *testing.T) {
	f := newCLIFixture(t, "dir")
	f.ft.Handle("/v1/primary", testutil.Route{Status: http.StatusServiceUnavailable}).
		Handle("/v1/mirror", testutil.Route{Body: `{}`}).
		Handle("/v1/backup", testutil.Route{Body: `{}`})

	out, err := f.run("chain", "primary", "mirror", "backup", "--stop-on-success", "--continue-on-failure")
	require.NoError(t, err)
	assert.Contains(t, out, "chain succeeded (1/3 succeeded)")
	assert.Zero(t, f.ft.CallCount("/v1/backup"))
}

func TestChain_FailoverExhausted(t *testing.T) {
	f := newCLIFixture(t, "dir")
	f.ft.Handle("/v1/primary", testutil.Route{Status: http.StatusServiceUnavailable})

	out, err := f.run("chain", "primary", "mirror", "--stop-on-success", "--continue-on-failure")
	require.Error(t, err)
	assert.Contains(t, out, "chain failed (0/2 succeeded)")
}
