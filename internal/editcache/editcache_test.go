package editcache

import (
	"testing"
	"time"

	"github.com/sydlexius/playbill/internal/reconcile"
)

func edit(itemID string) *reconcile.EditCast {
	return &reconcile.EditCast{ItemID: itemID, ItemName: "Item " + itemID}
}

func TestOpenAndGet(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Stop()

	s := c.Open(edit("1"))
	if s.Token == "" {
		t.Fatal("expected a token")
	}
	got := c.Get(s.Token)
	if got == nil || got.Cast.ItemID != "1" {
		t.Fatalf("Get() = %+v", got)
	}
	if c.Get("unknown") != nil {
		t.Error("unknown token should miss")
	}
}

func TestReopenReplacesSession(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Stop()

	first := c.Open(edit("1"))
	second := c.Open(edit("1"))
	if c.Get(first.Token) != nil {
		t.Error("first session should be replaced")
	}
	if c.Get(second.Token) == nil {
		t.Error("second session should be live")
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d", c.Len())
	}
}

func TestExpiry(t *testing.T) {
	c := New(10*time.Millisecond, 10)
	defer c.Stop()

	s := c.Open(edit("1"))
	time.Sleep(20 * time.Millisecond)
	if c.Get(s.Token) != nil {
		t.Error("expired session should miss")
	}
}

func TestClose(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Stop()

	s := c.Open(edit("1"))
	c.Close(s.Token)
	if c.Get(s.Token) != nil {
		t.Error("closed session should miss")
	}
	// A later session for the same item is unaffected.
	again := c.Open(edit("1"))
	if c.Get(again.Token) == nil {
		t.Error("reopened session should be live")
	}
}

func TestBoundEvictsOldest(t *testing.T) {
	c := New(time.Minute, 2)
	defer c.Stop()

	a := c.Open(edit("a"))
	time.Sleep(time.Millisecond)
	b := c.Open(edit("b"))
	time.Sleep(time.Millisecond)
	d := c.Open(edit("d"))

	if c.Len() != 2 {
		t.Fatalf("Len() = %d", c.Len())
	}
	if c.Get(a.Token) != nil {
		t.Error("oldest session should be evicted")
	}
	if c.Get(b.Token) == nil || c.Get(d.Token) == nil {
		t.Error("newer sessions should survive")
	}
}
