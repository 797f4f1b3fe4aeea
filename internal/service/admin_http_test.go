package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sol-txflow/internal/logic/outcome"
	"sol-txflow/internal/pkg/types"
)

type fakeLookup struct {
	records map[string]*outcome.Record
	err     error
}

func (f *fakeLookup) Lookup(_ context.Context, sig string) (*outcome.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.records[sig], nil
}

func serve(a *AdminHTTP, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestAdminHTTP_Healthz(t *testing.T) {
	a := NewAdminHTTP(":0", &fakeLookup{}, func(context.Context) (map[string]any, error) {
		return map[string]any{"registry": 3}, nil
	})
	w := serve(a, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(3), body["registry"])

	a = NewAdminHTTP(":0", &fakeLookup{}, func(context.Context) (map[string]any, error) {
		return nil, errors.New("rpc unreachable")
	})
	w = serve(a, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "rpc unreachable")
}

func TestAdminHTTP_Outcome(t *testing.T) {
	var sig types.Signature
	sig[0] = 7
	lookup := &fakeLookup{records: map[string]*outcome.Record{
		sig.String(): {Signature: sig.String(), Outcome: "SUCCEEDED", Slot: 42},
	}}
	a := NewAdminHTTP(":0", lookup, nil)

	w := serve(a, "/v1/outcomes/"+sig.String())
	assert.Equal(t, http.StatusOK, w.Code)
	var rec outcome.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, uint64(42), rec.Slot)

	var other types.Signature
	other[0] = 8
	assert.Equal(t, http.StatusNotFound, serve(a, "/v1/outcomes/"+other.String()).Code)
	assert.Equal(t, http.StatusBadRequest, serve(a, "/v1/outcomes/nope").Code)

	lookup.err = errors.New("redis down")
	assert.Equal(t, http.StatusInternalServerError, serve(a, "/v1/outcomes/"+sig.String()).Code)
}

func TestAdminHTTP_Metrics(t *testing.T) {
	w := serve(NewAdminHTTP(":0", &fakeLookup{}, nil), "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}
