package httpexec

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

func TestExecuteStep_SuccessParsesJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e := New()
	result, err := e.ExecuteStep(context.Background(), registry.TaskStep{ID: "t1"}, nil, map[string]string{"url": srv.URL})
	require.NoError(t, err)
	assert.Equal(t, srv.URL, result.ResolvedURL)
	assert.Equal(t, http.MethodGet, result.HTTPMethod)
	assert.Equal(t, 200, result.Output["statusCode"])
}

func TestExecuteStep_MissingURLErrors(t *testing.T) {
	e := New()
	_, err := e.ExecuteStep(context.Background(), registry.TaskStep{ID: "t1"}, nil, map[string]string{})
	require.Error(t, err)
}

func TestExecuteStep_NonSuccessStatusReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer srv.Close()

	e := New()
	_, err := e.ExecuteStep(context.Background(), registry.TaskStep{ID: "t1"}, nil, map[string]string{"url": srv.URL})
	require.Error(t, err)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 500, statusErr.StatusCode)
}
