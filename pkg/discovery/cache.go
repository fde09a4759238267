// Package discovery provides a lazily-refreshed, TTL-cached view over the
// resource registry (§4.1), plus change-detection events fired on the set
// of discovered workflow names.
package discovery

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/daz23456/workflow-sub005/pkg/blastradius"
	"github.com/daz23456/workflow-sub005/pkg/registry"
)

// DefaultTTL is the default freshness window for a cache entry.
const DefaultTTL = 30 * time.Second

// allNamespacesKey is the cache key used when namespace is nil/empty,
// distinct from the literal "default" per §4.1.
const allNamespacesKey = "\x00__all_namespaces__\x00"

// ChangeEvent reports the delta computed on a refresh that actually hit
// the registry (§4.1). Added/Removed are workflow names.
type ChangeEvent struct {
	Namespace string
	Added     []string
	Removed   []string
}

// Listener receives change events. Implementations must not block; slow
// listeners should buffer internally.
type Listener func(ChangeEvent)

type workflowEntry struct {
	data      []registry.WorkflowResource
	fetchedAt time.Time
}

type taskEntry struct {
	data      []registry.WorkflowTaskResource
	fetchedAt time.Time
}

// Cache is a per-(kind,namespace) TTL cache over a registry.Client, with
// single-flight refresh and workflows_changed notification.
type Cache struct {
	client registry.Client
	ttl    time.Duration
	log    *logrus.Logger

	mu          sync.RWMutex
	workflows   map[string]*workflowEntry
	tasks       map[string]*taskEntry
	lastNames   map[string]map[string]struct{}
	listenersMu sync.RWMutex
	listeners   []Listener

	group       singleflight.Group
	blastRadius *blastradius.Index
}

// New builds a Cache with the given TTL (DefaultTTL if ttl <= 0).
func New(client registry.Client, ttl time.Duration, log *logrus.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Cache{
		client:    client,
		ttl:       ttl,
		log:       log,
		workflows:   make(map[string]*workflowEntry),
		tasks:       make(map[string]*taskEntry),
		lastNames:   make(map[string]map[string]struct{}),
		blastRadius: blastradius.New(),
	}
}

// BlastRadius returns the used_by/contains index (§3), rebuilt wholesale
// on every successful discovery refresh this cache performs.
func (c *Cache) BlastRadius() *blastradius.Index {
	return c.blastRadius
}

// OnWorkflowsChanged registers a listener for workflows_changed events.
func (c *Cache) OnWorkflowsChanged(l Listener) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, l)
}

func namespaceKey(namespace string) string {
	if namespace == "" {
		return allNamespacesKey
	}
	return namespace
}

// DiscoverWorkflows returns the cached workflow list for namespace,
// refreshing it (single-flight) if the entry is stale or absent. On a
// refresh that actually reached the registry, change detection runs and
// workflows_changed may fire.
func (c *Cache) DiscoverWorkflows(ctx context.Context, namespace string) ([]registry.WorkflowResource, error) {
	key := namespaceKey(namespace)

	c.mu.RLock()
	entry, ok := c.workflows[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.data, nil
	}

	v, err, _ := c.group.Do("workflows:"+key, func() (any, error) {
		c.mu.RLock()
		entry, ok := c.workflows[key]
		fresh := ok && time.Since(entry.fetchedAt) < c.ttl
		c.mu.RUnlock()
		if fresh {
			return entry.data, nil
		}

		data, err := c.client.ListWorkflows(ctx, namespace)
		if err != nil {
			// Previous cache entry is not invalidated on registry error;
			// stale data remains visible to subsequent callers.
			return nil, err
		}

		c.mu.Lock()
		c.workflows[key] = &workflowEntry{data: data, fetchedAt: time.Now()}
		c.mu.Unlock()

		c.blastRadius.Rebuild(data)
		c.detectChange(key, namespace, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]registry.WorkflowResource), nil
}

// DiscoverTasks returns the cached task list for namespace, refreshing it
// (single-flight) if stale or absent.
func (c *Cache) DiscoverTasks(ctx context.Context, namespace string) ([]registry.WorkflowTaskResource, error) {
	key := namespaceKey(namespace)

	c.mu.RLock()
	entry, ok := c.tasks[key]
	c.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		return entry.data, nil
	}

	v, err, _ := c.group.Do("tasks:"+key, func() (any, error) {
		c.mu.RLock()
		entry, ok := c.tasks[key]
		fresh := ok && time.Since(entry.fetchedAt) < c.ttl
		c.mu.RUnlock()
		if fresh {
			return entry.data, nil
		}

		data, err := c.client.ListWorkflowTasks(ctx, namespace)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.tasks[key] = &taskEntry{data: data, fetchedAt: time.Now()}
		c.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]registry.WorkflowTaskResource), nil
}

// GetWorkflowByName scans the cached workflow list for namespace and
// returns the one matching name (case-sensitive on the display name, per
// §3's "preserved for display" invariant), or nil if absent.
func (c *Cache) GetWorkflowByName(ctx context.Context, name, namespace string) (*registry.WorkflowResource, error) {
	workflows, err := c.DiscoverWorkflows(ctx, namespace)
	if err != nil {
		return nil, err
	}
	for i := range workflows {
		if workflows[i].Metadata.Name == name {
			return &workflows[i], nil
		}
	}
	return nil, nil
}

func (c *Cache) detectChange(key, namespace string, data []registry.WorkflowResource) {
	newNames := make(map[string]struct{}, len(data))
	for _, w := range data {
		if w.Metadata.Name == "" {
			continue
		}
		newNames[w.Metadata.Name] = struct{}{}
	}

	c.mu.Lock()
	oldNames := c.lastNames[key]
	c.lastNames[key] = newNames
	c.mu.Unlock()

	var added, removed []string
	for n := range newNames {
		if oldNames == nil {
			added = append(added, n)
			continue
		}
		if _, ok := oldNames[n]; !ok {
			added = append(added, n)
		}
	}
	for n := range oldNames {
		if _, ok := newNames[n]; !ok {
			removed = append(removed, n)
		}
	}

	if len(added) == 0 && len(removed) == 0 {
		return
	}

	event := ChangeEvent{Namespace: namespace, Added: added, Removed: removed}
	c.listenersMu.RLock()
	listeners := append([]Listener(nil), c.listeners...)
	c.listenersMu.RUnlock()

	for _, l := range listeners {
		l(event)
	}
	c.log.WithFields(logrus.Fields{
		"namespace": namespace,
		"added":     added,
		"removed":   removed,
	}).Info("workflows_changed")
}
