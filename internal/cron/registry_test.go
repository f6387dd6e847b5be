package cron

import (
	"testing"
)

func newRegistry(t *testing.T, jobs ...Job) *Registry {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return registry
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	expiry := &testJob{name: "commitment_expiry"}
	sweep := &testJob{name: "token_sweep"}
	registry := newRegistry(t, expiry)
	if err := registry.Register(sweep); err != nil {
		t.Fatalf("register: %v", err)
	}

	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != expiry || jobs[1] != sweep {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsUnusableJobs(t *testing.T) {
	registry := newRegistry(t, &testJob{name: "commitment_expiry"})

	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil job to be rejected")
	}
	if err := registry.Register(&testJob{name: "  "}); err == nil {
		t.Fatalf("expected blank name to be rejected")
	}
	if err := registry.Register(&testJob{name: "commitment_expiry"}); err == nil {
		t.Fatalf("expected duplicate name to be rejected")
	}
	if _, err := NewRegistry(&testJob{name: "a"}, &testJob{name: "a"}); err == nil {
		t.Fatalf("expected constructor to surface duplicate")
	}
	if got := len(registry.Jobs()); got != 1 {
		t.Fatalf("expected 1 job after rejections, got %d", got)
	}
}
