package strategy

import (
	"testing"

	"marlin/internal/domain"
)

type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string { return s.name }
func (s *stubStrategy) Buy(_ []domain.Bar, _ string) ([]domain.Signal, error) {
	return nil, nil
}
func (s *stubStrategy) Sell(_ []domain.Bar, _ string) ([]domain.Signal, error) {
	return nil, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubStrategy{name: "beta"})
	r.Register(&stubStrategy{name: "alpha"})

	if _, ok := r.Get("missing"); ok {
		t.Error("Get returned ok for unregistered strategy")
	}

	s, ok := r.Get("alpha")
	if !ok {
		t.Fatal("Get did not find registered strategy")
	}
	if s.Name() != "alpha" {
		t.Errorf("Name = %q, want alpha", s.Name())
	}

	names := r.List()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List = %v, want [alpha beta]", names)
	}
}

func TestRegistryReplaceSameName(t *testing.T) {
	r := NewRegistry()
	first := &stubStrategy{name: "dup"}
	second := &stubStrategy{name: "dup"}
	r.Register(first)
	r.Register(second)

	got, _ := r.Get("dup")
	if got != Strategy(second) {
		t.Error("Register did not replace the earlier strategy with the same name")
	}
	if len(r.List()) != 1 {
		t.Errorf("List length = %d, want 1", len(r.List()))
	}
}
