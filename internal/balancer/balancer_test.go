package balancer

import (
	"net/url"
	"testing"
)

func newTestBalancer(t *testing.T, n int) *Balancer {
	t.Helper()
	b := &Balancer{sticky: make(map[string]int)}
	for i := 0; i < n; i++ {
		u, _ := url.Parse("http://instance")
		inst := &Instance{URL: u}
		inst.healthy.Store(true)
		b.instances = append(b.instances, inst)
	}
	return b
}

func TestPickRoundRobin_SkipsUnhealthy(t *testing.T) {
	b := newTestBalancer(t, 3)
	b.instances[0].healthy.Store(false)

	seen := map[int]bool{}
	for i := 0; i < 10; i++ {
		inst := b.pickRoundRobin()
		if inst == nil {
			t.Fatal("expected an instance")
		}
		for idx, candidate := range b.instances {
			if candidate == inst {
				seen[idx] = true
			}
		}
	}
	if seen[0] {
		t.Error("round robin selected an unhealthy instance")
	}
}

func TestPickRoundRobin_NoneHealthy(t *testing.T) {
	b := newTestBalancer(t, 2)
	for _, inst := range b.instances {
		inst.healthy.Store(false)
	}
	if got := b.pickRoundRobin(); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestPickSticky_SameSessionSameInstance(t *testing.T) {
	b := newTestBalancer(t, 4)

	first := b.pickSticky("session-a")
	for i := 0; i < 5; i++ {
		got := b.pickSticky("session-a")
		if got != first {
			t.Errorf("sticky routing changed instance for the same session")
		}
	}
}

func TestPickSticky_FailsOverWhenPinnedInstanceUnhealthy(t *testing.T) {
	b := newTestBalancer(t, 2)

	first := b.pickSticky("session-b")
	var pinnedIdx int
	for idx, inst := range b.instances {
		if inst == first {
			pinnedIdx = idx
		}
	}
	b.instances[pinnedIdx].healthy.Store(false)

	got := b.pickSticky("session-b")
	if got == first {
		t.Error("expected failover away from the unhealthy pinned instance")
	}
}
