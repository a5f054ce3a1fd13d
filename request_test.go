package courier

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/courier/internal/testutil"
)

func TestRequest_SuccessLifecycle(t *testing.T) {
	ft := testutil.NewFakeTransport().Handle("/v1/users", testutil.Route{
		Body:   `{"name":"ada"}`,
		Header: http.Header{"X-Trace": {"t1"}},
	})
	m := newTestManager(t, ft)
	rec := &recorder{}

	opts := append(rec.callbacks(""), WithAccessory(rec.accessory("")))
	r := m.NewRequest(http.MethodGet, "users", opts...)
	assert.Equal(t, StateIdle, r.State())
	assert.Empty(t, r.ID())

	r.Start()
	waitDone(t, r.Done())

	assert.Equal(t, StateSucceeded, r.State())
	assert.Equal(t, "req-1", r.ID())
	assert.Equal(t, []string{"will_start", "will_stop", "success", "did_stop"}, rec.list())
	assert.Equal(t, map[string]any{"name": "ada"}, r.Value())
	assert.NoError(t, r.Err())
	assert.Equal(t, 200, r.StatusCode())
	assert.Equal(t, "t1", r.ResponseHeader().Get("X-Trace"))
	assert.Equal(t, `{"name":"ada"}`, string(r.ResponseBytes()))
	assert.Equal(t, "https://api.test/v1/users", r.URL())
	assert.False(t, r.IsDataFromCache())
}

func TestRequest_SchemaDecoding(t *testing.T) {
	type user struct {
		Name string `json:"name"`
	}
	ft := testutil.NewFakeTransport().Handle("/v1/users/1", testutil.Route{Body: `{"name":"ada"}`})
	m := newTestManager(t, ft)

	r := m.NewRequest(http.MethodGet, "users/1", Schema[user]())
	r.Start()
	waitDone(t, r.Done())

	got, err := ValueAs[user](r)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.Name)

	_, err = ValueAs[string](r)
	assert.Error(t, err)
}

func TestRequest_StatusFailure(t *testing.T) {
	ft := testutil.NewFakeTransport().Handle("/v1/boom", testutil.Route{Status: 500, Body: "<html>oops</html>"})
	m := newTestManager(t, ft)
	rec := &recorder{}

	r := m.NewRequest(http.MethodGet, "boom", rec.callbacks("")...)
	r.Start()
	waitDone(t, r.Done())

	assert.Equal(t, StateFailed, r.State())
	assert.Equal(t, []string{"failure"}, rec.list())
	assert.True(t, IsLogicError(r.Err()))
	assert.Nil(t, r.Value())

	var re *Error
	require.True(t, errors.As(r.Err(), &re))
	assert.Equal(t, 500, re.StatusCode)
	assert.Equal(t, r.ID(), re.RequestID)
}

func TestRequest_CustomStatusValidator(t *testing.T) {
	ft := testutil.NewFakeTransport().Handle("/v1/missing", testutil.Route{Status: 404, Body: `{}`})
	m := newTestManager(t, ft)

	r := m.NewRequest(http.MethodGet, "missing", WithStatusValidator(StatusInRange(200, 404)))
	r.Start()
	waitDone(t, r.Done())

	assert.Equal(t, StateSucceeded, r.State())
}

func TestRequest_DecodeFailureOnSuccessStatus(t *testing.T) {
	ft := testutil.NewFakeTransport().Handle("/v1/bad", testutil.Route{Body: "not json"})
	m := newTestManager(t, ft)

	r := m.NewRequest(http.MethodGet, "bad")
	r.Start()
	waitDone(t, r.Done())

	assert.Equal(t, StateFailed, r.State())
	assert.True(t, IsDecodeError(r.Err()))
}

func TestRequest_NetworkFailure(t *testing.T) {
	boom := errors.New("connection reset")
	ft := testutil.NewFakeTransport().Handle("/v1/net", testutil.Route{Err: boom})
	m := newTestManager(t, ft)

	r := m.NewRequest(http.MethodGet, "net")
	r.Start()
	waitDone(t, r.Done())

	assert.Equal(t, StateFailed, r.State())
	assert.True(t, IsNetworkError(r.Err()))
	assert.ErrorIs(t, r.Err(), boom)
}

func TestRequest_Timeout(t *testing.T) {
	ft := testutil.NewFakeTransport().Handle("/v1/slow", testutil.Route{Delay: 5 * time.Second})
	m := newTestManager(t, ft)
	rec := &recorder{}

	opts := append(rec.callbacks(""), WithTimeout(20*time.Millisecond))
	r := m.NewRequest(http.MethodGet, "slow", opts...)
	r.Start()
	waitDone(t, r.Done())

	assert.Equal(t, StateFailed, r.State())
	assert.True(t, IsNetworkError(r.Err()))
	assert.Contains(t, r.Err().Error(), "timed out")
	assert.Equal(t, []string{"failure"}, rec.list())
}

func TestRequest_CancelIdle(t *testing.T) {
	ft := testutil.NewFakeTransport().Handle("/v1/users", testutil.Route{Body: `{}`})
	m := newTestManager(t, ft)
	rec := &recorder{}

	opts := append(rec.callbacks(""), WithAccessory(rec.accessory("")))
	r := m.NewRequest(http.MethodGet, "users", opts...)
	r.Cancel()
	waitDone(t, r.Done())

	assert.Equal(t, StateCancelled, r.State())
	assert.True(t, IsCancelled(r.Err()))
	assert.Equal(t, []string{"cancelled"}, rec.list())

	r.Start()
	assert.Equal(t, StateCancelled, r.State())
	assert.Empty(t, ft.Calls())
}

func TestRequest_CancelStarted(t *testing.T) {
	gate := make(chan struct{})
	defer close(gate)
	ft := testutil.NewFakeTransport().Handle("/v1/slow", testutil.Route{Gate: gate, Body: `{}`})
	m := newTestManager(t, ft)
	rec := &recorder{}

	opts := append(rec.callbacks(""), WithAccessory(rec.accessory("")))
	r := m.NewRequest(http.MethodGet, "slow", opts...)
	r.Start()
	require.Eventually(t, func() bool { return ft.Active() == 1 }, time.Second, time.Millisecond)

	r.Cancel()
	assert.Equal(t, StateCancelled, r.State())
	waitDone(t, r.Done())

	assert.Equal(t, []string{"will_start", "will_stop", "cancelled", "did_stop"}, rec.list())
	assert.Nil(t, r.ResponseBytes())
	assert.Eventually(t, func() bool { return ft.Active() == 0 }, time.Second, time.Millisecond)

	// Cancelling again changes nothing.
	r.Cancel()
	assert.Equal(t, StateCancelled, r.State())
	assert.Equal(t, []string{"will_start", "will_stop", "cancelled", "did_stop"}, rec.list())
}

func TestRequest_StartIsIdempotent(t *testing.T) {
	ft := testutil.NewFakeTransport().Handle("/v1/users", testutil.Route{Body: `{}`})
	m := newTestManager(t, ft)

	r := m.NewRequest(http.MethodGet, "users")
	r.Start()
	r.Start()
	m.Add(r)
	waitDone(t, r.Done())

	assert.Equal(t, 1, ft.CallCount("/v1/users"))
	assert.Equal(t, "req-1", r.ID())
}

func TestRequest_ComposeFailureSkipsNetwork(t *testing.T) {
	ft := testutil.NewFakeTransport()
	m := New(SessionConfig{}, WithTransport(ft), WithLogger(discardLogger()))
	t.Cleanup(m.Close)
	rec := &recorder{}

	r := m.NewRequest(http.MethodGet, "users", rec.callbacks("")...)
	r.Start()
	waitDone(t, r.Done())

	assert.Equal(t, StateFailed, r.State())
	assert.True(t, IsNetworkError(r.Err()))
	assert.Contains(t, r.Err().Error(), "compose url")
	assert.Equal(t, []string{"failure"}, rec.list())
	assert.Empty(t, ft.Calls())
}

func TestRequest_URLRequestFilterFailure(t *testing.T) {
	ft := testutil.NewFakeTransport().Handle("/v1/users", testutil.Route{Body: `{}`})
	m := newTestManager(t, ft, WithURLFilter(URLFilterFuncs{
		Request: func(*http.Request, *Request) error { return errors.New("signing key unavailable") },
	}))

	r := m.NewRequest(http.MethodGet, "users")
	r.Start()
	waitDone(t, r.Done())

	assert.True(t, IsNetworkError(r.Err()))
	assert.Contains(t, r.Err().Error(), "url request filter")
	assert.Empty(t, ft.Calls())
}

func TestRequest_HeadersAndUserAgent(t *testing.T) {
	ft := testutil.NewFakeTransport().Handle("/v1/users", testutil.Route{Body: `{}`})
	m := New(SessionConfig{
		BaseURL:   testBaseURL,
		Header:    http.Header{"X-App": {"courier"}, "X-Env": {"prod"}},
		UserAgent: "courier-test/1.0",
	}, WithTransport(ft), WithLogger(discardLogger()))
	t.Cleanup(m.Close)

	r := m.NewRequest(http.MethodGet, "users", WithHeader("X-Env", "staging"))
	r.Start()
	waitDone(t, r.Done())

	calls := ft.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "courier", calls[0].Header.Get("X-App"))
	assert.Equal(t, []string{"staging"}, calls[0].Header.Values("X-Env"))
	assert.Equal(t, "courier-test/1.0", calls[0].Header.Get("User-Agent"))
}

func TestRequest_ParamsPlacement(t *testing.T) {
	ft := testutil.NewFakeTransport().
		Handle("/v1/search", testutil.Route{Body: `{}`}).
		Handle("/v1/users", testutil.Route{Body: `{}`})
	m := newTestManager(t, ft)

	get := m.NewRequest(http.MethodGet, "search", WithParams(map[string]any{"q": "go", "page": 2}))
	form := m.NewRequest(http.MethodPost, "users", WithParams(map[string]any{"name": "ada"}))
	js := m.NewRequest(http.MethodPost, "users",
		WithParams(map[string]any{"user.name": "ada", "admin": true}),
		WithBodyEncoding(BodyJSON))

	for _, r := range []*Request{get, form, js} {
		r.Start()
		waitDone(t, r.Done())
	}

	calls := ft.Calls()
	require.Len(t, calls, 3)
	byMethodBody := map[string]testutil.Call{}
	for _, c := range calls {
		if c.Method == http.MethodGet {
			byMethodBody["get"] = c
		} else if strings.HasPrefix(c.Header.Get("Content-Type"), "application/json") {
			byMethodBody["json"] = c
		} else {
			byMethodBody["form"] = c
		}
	}

	assert.Equal(t, "https://api.test/v1/search?page=2&q=go", byMethodBody["get"].URL)
	assert.Equal(t, "name=ada", string(byMethodBody["form"].Body))
	assert.Equal(t, "application/x-www-form-urlencoded", byMethodBody["form"].Header.Get("Content-Type"))
	assert.JSONEq(t, `{"admin":true,"user":{"name":"ada"}}`, string(byMethodBody["json"].Body))
}

func TestRequest_ResponseFilterOrder(t *testing.T) {
	ft := testutil.NewFakeTransport().Handle("/v1/users", testutil.Route{Body: `{}`})
	rec := &recorder{}
	m := newTestManager(t, ft, WithResponseFilter(ResponseFilterFunc(func(_ *Request, err error) error {
		rec.add("manager")
		return err
	})))

	r := m.NewRequest(http.MethodGet, "users", WithResponseFilter(ResponseFilterFunc(func(_ *Request, err error) error {
		rec.add("request")
		return errors.New("rejected by policy")
	})))
	r.Start()
	waitDone(t, r.Done())

	assert.Equal(t, []string{"manager", "request"}, rec.list())
	assert.Equal(t, StateFailed, r.State())
	assert.True(t, IsLogicError(r.Err()))
}

func TestRequest_FilterSeesEarlierError(t *testing.T) {
	ft := testutil.NewFakeTransport().Handle("/v1/gone", testutil.Route{Status: 410})
	m := newTestManager(t, ft)

	var seen error
	r := m.NewRequest(http.MethodGet, "gone", WithResponseFilter(ResponseFilterFunc(func(_ *Request, err error) error {
		seen = err
		return nil
	})))
	r.Start()
	waitDone(t, r.Done())

	assert.True(t, IsLogicError(seen))
	assert.Equal(t, StateSucceeded, r.State())
}
