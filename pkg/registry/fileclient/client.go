// Package fileclient is a filesystem-backed registry.Client: it reads
// declarative Workflow/WorkflowTask YAML documents from a directory tree
// instead of a live cluster-style API. §1 treats the registry client as
// an external collaborator exposing only list(kind, namespace); this is
// one conforming, dependency-free implementation of that contract for
// local runs and tests, not a stand-in for a real cluster client.
package fileclient

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/daz23456/workflow-sub005/pkg/registry"
	"github.com/daz23456/workflow-sub005/pkg/yamlparser"
)

const (
	kindWorkflow     = "Workflow"
	kindWorkflowTask = "WorkflowTask"
)

// Client walks Dir for *.yaml/*.yml files, parsing the kind
// discriminator from each to route it to the workflow or task list.
type Client struct {
	Dir string
}

// New builds a Client rooted at dir.
func New(dir string) *Client {
	return &Client{Dir: dir}
}

func (c *Client) ListWorkflows(ctx context.Context, namespace string) ([]registry.WorkflowResource, error) {
	var out []registry.WorkflowResource
	err := c.walk(func(kind, body string) error {
		if kind != kindWorkflow && kind != "" {
			return nil
		}
		wf, err := yamlparser.Parse(body)
		if err != nil {
			return err
		}
		if namespace != "" && wf.Metadata.Namespace != namespace {
			return nil
		}
		out = append(out, *wf)
		return nil
	})
	return out, err
}

func (c *Client) ListWorkflowTasks(ctx context.Context, namespace string) ([]registry.WorkflowTaskResource, error) {
	var out []registry.WorkflowTaskResource
	err := c.walk(func(kind, body string) error {
		if kind != kindWorkflowTask {
			return nil
		}
		task, err := yamlparser.ParseTask(body)
		if err != nil {
			return err
		}
		if namespace != "" && task.Metadata.Namespace != namespace {
			return nil
		}
		out = append(out, *task)
		return nil
	})
	return out, err
}

func (c *Client) walk(visit func(kind, body string) error) error {
	return filepath.WalkDir(c.Dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("fileclient: reading %s: %w", path, err)
		}
		kind, err := yamlparser.Kind(string(data))
		if err != nil {
			return fmt.Errorf("fileclient: parsing kind of %s: %w", path, err)
		}
		return visit(kind, string(data))
	})
}
