package pause_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/zephyrtronium/themer/pause"
)

func TestGate(t *testing.T) {
	var g pause.Gate
	if g.Paused() {
		t.Fatal("zero gate is paused")
	}
	done := make(chan struct{})
	g.Trip(10*time.Millisecond, func() { close(done) })
	if !g.Paused() {
		t.Error("gate isn't paused after trip")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("gate never resumed")
	}
	if g.Paused() {
		t.Error("gate is paused after resume")
	}
}

func TestGateRetrip(t *testing.T) {
	var g pause.Gate
	var n atomic.Int32
	g.Trip(time.Hour, func() { n.Add(1) })
	done := make(chan struct{})
	g.Trip(10*time.Millisecond, func() {
		n.Add(1)
		close(done)
	})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("gate never resumed")
	}
	if g.Paused() {
		t.Error("later trip didn't reset the gate")
	}
	if got := n.Load(); got != 1 {
		t.Errorf("wrong number of resumes: want 1, got %d", got)
	}
}

func TestGateStaleTimer(t *testing.T) {
	var g pause.Gate
	var n atomic.Int32
	g.Trip(5*time.Millisecond, func() { n.Add(1) })
	g.Trip(time.Hour, func() { n.Add(1) })
	time.Sleep(50 * time.Millisecond)
	if !g.Paused() {
		t.Error("earlier timer reopened the gate")
	}
	if got := n.Load(); got != 0 {
		t.Errorf("stale timer resumed: got %d calls", got)
	}
}
