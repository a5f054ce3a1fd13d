package courier

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/courier/internal/testutil"
)

func runWithFilter(t *testing.T, body string, f ResponseFilter) *Request {
	t.Helper()
	ft := testutil.NewFakeTransport().Handle("/v1/x", testutil.Route{Body: body})
	m := newTestManager(t, ft)
	r := m.NewRequest(http.MethodGet, "x", WithResponseFilter(f))
	r.Start()
	waitDone(t, r.Done())
	return r
}

func TestEnvelopeFilter(t *testing.T) {
	f := EnvelopeFilter{CodePath: "code", MessagePath: "msg"}

	ok := runWithFilter(t, `{"code":0,"data":{}}`, f)
	assert.Equal(t, StateSucceeded, ok.State())

	bad := runWithFilter(t, `{"code":1001,"msg":"quota exceeded"}`, f)
	require.Equal(t, StateFailed, bad.State())
	var re *Error
	require.True(t, errors.As(bad.Err(), &re))
	assert.Equal(t, KindLogic, re.Kind)
	assert.Equal(t, "1001", re.AppCode)
	assert.Equal(t, "quota exceeded", re.Message)
	assert.Equal(t, 200, re.StatusCode)

	noCode := runWithFilter(t, `{"data":{}}`, f)
	assert.Equal(t, StateSucceeded, noCode.State())
}

func TestEnvelopeFilter_CustomOKCodes(t *testing.T) {
	f := EnvelopeFilter{CodePath: "status", OKCodes: []string{"ok", "partial"}}

	assert.Equal(t, StateSucceeded, runWithFilter(t, `{"status":"partial"}`, f).State())
	assert.Equal(t, StateFailed, runWithFilter(t, `{"status":"denied"}`, f).State())
}

func TestJSONValidator(t *testing.T) {
	v := JSONValidator{
		"id":         JSONNumber,
		"name":       JSONString,
		"tags":       JSONArray,
		"meta":       JSONObject,
		"active":     JSONBool,
		"meta.extra": JSONAny,
	}

	good := runWithFilter(t, `{"id":1,"name":"a","tags":[],"meta":{"extra":null},"active":false}`, v)
	assert.Equal(t, StateSucceeded, good.State())

	bad := runWithFilter(t, `{"id":"1","tags":[],"meta":{},"active":true}`, v)
	require.Equal(t, StateFailed, bad.State())
	assert.True(t, IsLogicError(bad.Err()))
	assert.Contains(t, bad.Err().Error(), "id: want number")
	assert.Contains(t, bad.Err().Error(), "meta.extra: missing")
	assert.Contains(t, bad.Err().Error(), "name: missing")
}
