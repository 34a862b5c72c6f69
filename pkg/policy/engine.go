package policy

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strings"
	"sync"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"
)

// EngineOptions control OPA engine construction and runtime behaviour.
type EngineOptions struct {
	// Entrypoint is the default policy decision path (e.g. "signals/decision").
	Entrypoint string
	// Modules contains the Rego modules that should be loaded into the engine.
	Modules map[string]string
	// CacheMaxEntries bounds the decision cache size (LRU). Zero selects the
	// default size; negative disables caching entirely.
	CacheMaxEntries int
}

// Engine evaluates policy decisions using an embedded OPA SDK instance.
type Engine struct {
	moduleOrder   []string
	parsedModules map[string]*ast.Module
	entrypoint    string
	cache         *decisionCache
	queries       map[string]*rego.PreparedEvalQuery
	mu            sync.RWMutex
}

const (
	defaultEntrypoint    = "signals/decision"
	defaultCacheCapacity = 1024
)

// NewEngine constructs an Engine for the supplied configuration and entrypoint.
func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}

	if len(opts.Modules) == 0 {
		return nil, errors.New("policy engine requires at least one rego module")
	}

	maxEntries := opts.CacheMaxEntries
	switch {
	case maxEntries == 0:
		maxEntries = defaultCacheCapacity
	case maxEntries < 0:
		maxEntries = 0
	}

	var cache *decisionCache
	if maxEntries > 0 {
		cache = newDecisionCache(maxEntries)
	}

	moduleOrder := make([]string, 0, len(opts.Modules))
	for name := range opts.Modules {
		moduleOrder = append(moduleOrder, name)
	}
	sort.Strings(moduleOrder)

	parsedModules := make(map[string]*ast.Module, len(opts.Modules))
	for _, name := range moduleOrder {
		module, err := ast.ParseModuleWithOpts(name, opts.Modules[name], ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		parsedModules[name] = module
	}

	engine := &Engine{
		moduleOrder:   moduleOrder,
		parsedModules: parsedModules,
		entrypoint:    entry,
		cache:         cache,
		queries:       make(map[string]*rego.PreparedEvalQuery),
	}

	// Warm the default entrypoint to surface compile errors early.
	if _, err := engine.getPreparedQuery(ctx, entry); err != nil {
		return nil, fmt.Errorf("compile rego modules: %w", err)
	}

	return engine, nil
}

// Evaluate executes the policy using the supplied input and converts the result.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Decision, error) {
	entry := strings.TrimSpace(input.Entrypoint)
	if entry == "" {
		entry = e.entrypoint
	}
	if entry == "" {
		return Decision{}, errors.New("policy engine requires an entrypoint")
	}

	payload := map[string]any{
		"signal_id":         input.SignalID,
		"pipeline_id":       input.PipelineID,
		"node_id":           input.NodeID,
		"policy_generation": strings.TrimSpace(input.Generation),
		"attributes":        cloneAnyMap(input.Attributes),
	}

	cacheKey, shouldCache := e.cacheKey(entry, input)
	if shouldCache {
		if cached, ok := e.cache.Get(cacheKey); ok {
			return cloneDecision(cached), nil
		}
	}

	prepared, err := e.getPreparedQuery(ctx, entry)
	if err != nil {
		return Decision{}, fmt.Errorf("prepare query: %w", err)
	}

	results, err := prepared.Eval(ctx, rego.EvalInput(payload))
	if err != nil {
		return Decision{}, fmt.Errorf("opa decision: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Action: ActionAllow, Metadata: map[string]string{}}, nil
	}

	decisionPayload, ok := results[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return Decision{}, fmt.Errorf("opa decision: unexpected result type %T", results[0].Expressions[0].Value)
	}

	action, err := parseAction(decisionPayload["action"])
	if err != nil {
		return Decision{}, err
	}

	reason, _ := decisionPayload["reason"].(string)
	decision := Decision{
		Action:   action,
		Reason:   reason,
		Metadata: parseMetadata(decisionPayload["metadata"]),
		Outputs:  extractDecisionOutputs(decisionPayload),
	}

	if shouldCache {
		e.cache.Add(cacheKey, decision)
	}

	return decision, nil
}

// FlushCache clears all cached decisions. Safe to call concurrently.
func (e *Engine) FlushCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

// Close releases underlying OPA resources.
func (e *Engine) Close(_ context.Context) error {
	return nil
}

func (e *Engine) getPreparedQuery(ctx context.Context, entry string) (*rego.PreparedEvalQuery, error) {
	e.mu.RLock()
	if prepared, ok := e.queries[entry]; ok {
		e.mu.RUnlock()
		return prepared, nil
	}
	e.mu.RUnlock()

	query := "data." + strings.ReplaceAll(entry, "/", ".")

	opts := make([]func(*rego.Rego), 0, len(e.parsedModules)+1)
	opts = append(opts, rego.Query(query))
	for _, name := range e.moduleOrder {
		opts = append(opts, rego.ParsedModule(e.parsedModules[name]))
	}

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Another goroutine may have already prepared the query; respect first entry.
	if existing, ok := e.queries[entry]; ok {
		return existing, nil
	}

	e.queries[entry] = &prepared
	return &prepared, nil
}

// cacheKey generates a deterministic hash key for caching policy decisions.
// Inputs without a signal, pipeline and generation are never cached: the
// generation is what invalidates stale decisions across policy reloads.
func (e *Engine) cacheKey(entry string, input Input) (string, bool) {
	if e.cache == nil || input.DisableCache {
		return "", false
	}

	signal := strings.TrimSpace(input.SignalID)
	pipeline := strings.TrimSpace(input.PipelineID)
	generation := strings.TrimSpace(input.Generation)
	if signal == "" || pipeline == "" || generation == "" {
		return "", false
	}

	h := sha256.New()
	writeCacheKeyField(h, entry)
	writeCacheKeyField(h, signal)
	writeCacheKeyField(h, pipeline)
	writeCacheKeyField(h, strings.TrimSpace(input.NodeID))
	writeCacheKeyField(h, generation)

	return hex.EncodeToString(h.Sum(nil)), true
}

// writeCacheKeyField writes a field to the hash followed by a null delimiter.
func writeCacheKeyField(h hash.Hash, value string) {
	h.Write([]byte(value))
	h.Write([]byte{0})
}

func cloneDecision(dec Decision) Decision {
	return Decision{
		Action:   dec.Action,
		Reason:   dec.Reason,
		Metadata: cloneStringMap(dec.Metadata),
		Outputs:  cloneAnyMap(dec.Outputs),
	}
}

func cloneAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

type decisionCache struct {
	mu      sync.Mutex
	max     int
	order   *list.List
	entries map[string]*list.Element
}

type cacheItem struct {
	key   string
	value Decision
}

func newDecisionCache(capacity int) *decisionCache {
	return &decisionCache{
		max:     capacity,
		order:   list.New(),
		entries: make(map[string]*list.Element, capacity),
	}
}

func (c *decisionCache) Get(key string) (Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return Decision{}, false
	}
	c.order.MoveToFront(elem)
	item := elem.Value.(cacheItem)
	return item.value, true
}

func (c *decisionCache) Add(key string, value Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		elem.Value = cacheItem{key: key, value: value}
		c.order.MoveToFront(elem)
		return
	}

	elem := c.order.PushFront(cacheItem{key: key, value: value})
	c.entries[key] = elem

	if c.order.Len() <= c.max {
		return
	}

	tail := c.order.Back()
	if tail != nil {
		c.order.Remove(tail)
		item := tail.Value.(cacheItem)
		delete(c.entries, item.key)
	}
}

func (c *decisionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element, c.max)
}

func parseAction(value any) (Action, error) {
	if value == nil {
		return ActionAllow, nil
	}
	text, ok := value.(string)
	if !ok {
		return Action(""), fmt.Errorf("opa decision: action must be string, got %T", value)
	}
	switch Action(strings.ToLower(text)) {
	case ActionAllow:
		return ActionAllow, nil
	case ActionFlag:
		return ActionFlag, nil
	case ActionBlock:
		return ActionBlock, nil
	default:
		return Action(""), fmt.Errorf("opa decision: unknown action %q", text)
	}
}

func parseMetadata(value any) map[string]string {
	if value == nil {
		return map[string]string{}
	}

	switch typed := value.(type) {
	case map[string]string:
		return cloneStringMap(typed)
	case map[string]any:
		result := make(map[string]string, len(typed))
		for key, raw := range typed {
			if str, ok := raw.(string); ok {
				result[key] = str
			}
		}
		return result
	default:
		return map[string]string{}
	}
}

func extractDecisionOutputs(payload map[string]any) map[string]any {
	outputs := make(map[string]any)
	for key, value := range payload {
		switch strings.ToLower(key) {
		case "action", "reason", "metadata":
			continue
		default:
			outputs[key] = value
		}
	}
	return outputs
}

func cloneStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
