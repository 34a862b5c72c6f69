package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/sigflowai/sigflow-oss/pkg/domain"
	"github.com/sigflowai/sigflow-oss/pkg/engine/runtime"
)

func plugin(id string, cat domain.NodeCategory) *runtime.Func {
	return &runtime.Func{
		Name: id, Kind: cat, Impl: id,
		Fn: func(_ context.Context, state *domain.PipelineState) (*domain.PipelineState, error) {
			return state, nil
		},
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := New()

	if err := reg.Register(plugin("sma", domain.CategoryEnrichment)); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, ok := reg.Get("sma")
	if !ok || got.ID() != "sma" {
		t.Fatalf("get returned %v, %v", got, ok)
	}
	if !reg.IsEnabled("sma") {
		t.Fatal("registered plugin should be enabled by default")
	}

	meta, ok := reg.Meta("sma")
	if !ok || meta.Category != domain.CategoryEnrichment || meta.RegisteredAt.IsZero() {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestRegisterRejectsInvalidPlugins(t *testing.T) {
	reg := New()

	if err := reg.Register(nil); !errors.Is(err, domain.ErrInvalidPlugin) {
		t.Fatalf("expected ErrInvalidPlugin for nil, got %v", err)
	}
	if err := reg.Register(plugin("", domain.CategoryEnrichment)); !errors.Is(err, domain.ErrInvalidPlugin) {
		t.Fatalf("expected ErrInvalidPlugin for empty id, got %v", err)
	}
	if err := reg.Register(plugin("x", domain.NodeCategory("mystery"))); !errors.Is(err, domain.ErrInvalidPlugin) {
		t.Fatalf("expected ErrInvalidPlugin for unknown category, got %v", err)
	}

	noName := plugin("named", domain.CategoryEnrichment)
	noName.Impl = ""
	if err := reg.Register(noName); !errors.Is(err, domain.ErrInvalidPlugin) {
		t.Fatalf("expected ErrInvalidPlugin for empty plugin name, got %v", err)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	reg := New()

	if err := reg.Register(plugin("sma", domain.CategoryEnrichment)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(plugin("sma", domain.CategoryEnrichment)); !errors.Is(err, domain.ErrPluginExists) {
		t.Fatalf("expected ErrPluginExists, got %v", err)
	}
}

func TestUnregister(t *testing.T) {
	reg := New()

	if err := reg.Register(plugin("sma", domain.CategoryEnrichment)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Unregister("sma"); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if _, ok := reg.Get("sma"); ok {
		t.Fatal("plugin still resolvable after unregister")
	}
	if len(reg.ListByCategory(domain.CategoryEnrichment)) != 0 {
		t.Fatal("category index not cleaned up")
	}

	if err := reg.Unregister("sma"); !errors.Is(err, domain.ErrPluginNotFound) {
		t.Fatalf("expected ErrPluginNotFound, got %v", err)
	}
}

func TestListOrdering(t *testing.T) {
	reg := New()

	for _, id := range []string{"rsi", "momentum", "sma"} {
		if err := reg.Register(plugin(id, domain.CategoryEnrichment)); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	if err := reg.Register(plugin("feed", domain.CategoryIngress)); err != nil {
		t.Fatalf("register feed: %v", err)
	}

	enrichment := reg.ListByCategory(domain.CategoryEnrichment)
	want := []string{"momentum", "rsi", "sma"}
	if len(enrichment) != len(want) {
		t.Fatalf("expected %d enrichment plugins, got %d", len(want), len(enrichment))
	}
	for i, p := range enrichment {
		if p.ID() != want[i] {
			t.Fatalf("listing not ordered by id: got %s at %d", p.ID(), i)
		}
	}

	all := reg.ListAll()
	if len(all) != 4 || all[0].ID() != "feed" {
		t.Fatalf("unexpected full listing: %v", all)
	}
}

func TestEnableDisable(t *testing.T) {
	reg := New()

	if err := reg.Register(plugin("sma", domain.CategoryEnrichment)); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := reg.Disable("sma"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if reg.IsEnabled("sma") {
		t.Fatal("plugin still enabled after disable")
	}

	if err := reg.Enable("sma"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !reg.IsEnabled("sma") {
		t.Fatal("plugin not enabled after enable")
	}

	if err := reg.Disable("ghost"); !errors.Is(err, domain.ErrPluginNotFound) {
		t.Fatalf("expected ErrPluginNotFound, got %v", err)
	}
	if reg.IsEnabled("ghost") {
		t.Fatal("unknown plugin reported enabled")
	}
}
