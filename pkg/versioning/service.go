// Package versioning implements the workflow version history described
// in §3 ("Workflow version record") and §4.2's versioning contract.
package versioning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

// Version is an immutable snapshot of a workflow spec appended whenever
// its content hash changes.
type Version struct {
	WorkflowName string
	Revision     int
	CapturedAt   time.Time
	ContentHash  string
	SpecSnapshot []byte
}

// Repository is the durable store contract for workflow versions (§6).
type Repository interface {
	Latest(ctx context.Context, workflowName string) (*Version, error)
	Append(ctx context.Context, version Version) error
	List(ctx context.Context, workflowName string) ([]Version, error)
}

// Service computes content hashes and appends new versions on change.
type Service struct {
	repo Repository
	now  func() time.Time
}

// New builds a Service backed by repo. A nil repo is rejected by the
// caller; unlike the execution engine, version tracking has no defined
// no-op mode.
func New(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// CanonicalJSON serializes spec with sorted object keys and stable list
// order, the deterministic hash input required by §3/§8.
func CanonicalJSON(spec registry.WorkflowSpec) ([]byte, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return canonicalize(generic), nil
}

// CanonicalValueJSON serializes an arbitrary decoded JSON value (as
// produced by json.Unmarshal into `any`) with sorted object keys, the
// same canonicalization CanonicalJSON applies to a WorkflowSpec. Used by
// the execution engine to snapshot an input object deterministically.
func CanonicalValueJSON(v any) []byte {
	return canonicalize(v)
}

func canonicalize(v any) []byte {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = append(buf, canonicalize(val[k])...)
		}
		buf = append(buf, '}')
		return buf
	case []any:
		buf := []byte{'['}
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, canonicalize(item)...)
		}
		buf = append(buf, ']')
		return buf
	default:
		b, _ := json.Marshal(val)
		return b
	}
}

// ContentHash returns hex(SHA-256(canonical-JSON(spec))).
func ContentHash(spec registry.WorkflowSpec) (string, error) {
	canon, err := CanonicalJSON(spec)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// CreateVersionIfChanged computes the workflow's content hash and appends
// a new Version iff it differs from the latest stored hash. Returns true
// when a new version was appended.
func (s *Service) CreateVersionIfChanged(ctx context.Context, workflow registry.WorkflowResource) (bool, error) {
	hash, err := ContentHash(workflow.Spec)
	if err != nil {
		return false, err
	}

	latest, err := s.repo.Latest(ctx, workflow.Metadata.Name)
	if err != nil {
		return false, err
	}
	if latest != nil && latest.ContentHash == hash {
		return false, nil
	}

	snapshot, err := json.Marshal(workflow.Spec)
	if err != nil {
		return false, err
	}

	revision := 1
	if latest != nil {
		revision = latest.Revision + 1
	}

	err = s.repo.Append(ctx, Version{
		WorkflowName: workflow.Metadata.Name,
		Revision:     revision,
		CapturedAt:   s.now(),
		ContentHash:  hash,
		SpecSnapshot: snapshot,
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
