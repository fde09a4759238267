// Package httpexec is a concrete, minimal TaskStepExecutor: it issues the
// plain HTTP call a TaskStep's resolved input describes. §1 treats the
// inner task-step executor as an external collaborator specified only by
// its contract with the orchestrator; this is one conforming
// implementation for the common "http call" task kind, not a
// replacement for a richer external executor.
package httpexec

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/daz23456/workflow-sub005/pkg/orchestrator"
	"github.com/daz23456/workflow-sub005/pkg/registry"
)

const defaultMethod = http.MethodGet

// maxResponsePreview bounds how much of a response body is read into
// the task's output (or into StatusError.Body).
const maxResponsePreview = 64 * 1024

// Executor calls resolvedInput["url"] with resolvedInput["method"]
// (default GET), optionally sending resolvedInput["body"] as the
// request body when present.
type Executor struct {
	Client *http.Client
}

// New builds an Executor with a bounded default client timeout; the
// orchestrator's own per-execution deadline still governs cancellation.
func New() *Executor {
	return &Executor{Client: &http.Client{Timeout: 60 * time.Second}}
}

func (e *Executor) ExecuteStep(ctx context.Context, step registry.TaskStep, task *registry.WorkflowTaskResource, resolvedInput map[string]string) (orchestrator.StepResult, error) {
	url := resolvedInput["url"]
	if url == "" {
		return orchestrator.StepResult{}, fmt.Errorf("httpexec: task %q has no resolved url", step.ID)
	}
	method := strings.ToUpper(resolvedInput["method"])
	if method == "" {
		method = defaultMethod
	}

	var body io.Reader
	if raw := resolvedInput["body"]; raw != "" {
		body = strings.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return orchestrator.StepResult{ResolvedURL: url, HTTPMethod: method}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := e.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return orchestrator.StepResult{ResolvedURL: url, HTTPMethod: method}, err
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponsePreview)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return orchestrator.StepResult{ResolvedURL: url, HTTPMethod: method}, err
	}

	if resp.StatusCode >= 400 {
		return orchestrator.StepResult{ResolvedURL: url, HTTPMethod: method},
			&StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var output any
	if err := json.Unmarshal(raw, &output); err != nil {
		output = string(raw)
	}

	return orchestrator.StepResult{
		Output:      map[string]any{"body": output, "statusCode": resp.StatusCode},
		ResolvedURL: url,
		HTTPMethod:  method,
	}, nil
}

// StatusError reports an HTTP response with status 400 or above. The
// orchestrator classifies it like any other step error (ErrorTypeOther
// unless the context expired or was cancelled); the status code is not
// copied into the task's error info and appears only in the message.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpexec: unexpected status %d", e.StatusCode)
}
