package proc

import (
	"errors"
	"testing"
)

type fakeStoppoint struct {
	id          int
	addr        VirtualAddress
	enabled     bool
	deallocated bool
	failDealloc bool
}

func (sp *fakeStoppoint) ID() int                 { return sp.id }
func (sp *fakeStoppoint) Address() VirtualAddress { return sp.addr }
func (sp *fakeStoppoint) IsEnabled() bool         { return sp.enabled }
func (sp *fakeStoppoint) Deallocate() error {
	if sp.failDealloc {
		return errors.New("deallocation failed")
	}
	sp.enabled = false
	sp.deallocated = true
	return nil
}

func assertNoError(err error, t testing.TB, s string) {
	t.Helper()
	if err != nil {
		t.Fatalf("failed assertion %s: %s\n", s, err)
	}
}

func TestStoppointCollectionLookup(t *testing.T) {
	var c StoppointCollection[int, *fakeStoppoint]
	if !c.Empty() || c.Len() != 0 {
		t.Fatal("new collection is not empty")
	}

	a := c.Push(&fakeStoppoint{id: 1, addr: 0x1000})
	c.Push(&fakeStoppoint{id: 2, addr: 0x2000, enabled: true})

	if a.ID() != 1 {
		t.Fatalf("Push returned the wrong element %d", a.ID())
	}
	if c.Len() != 2 || c.Empty() {
		t.Fatalf("wrong size %d", c.Len())
	}
	if !c.ContainsID(1) || !c.ContainsID(2) || c.ContainsID(3) {
		t.Error("ContainsID mismatch")
	}
	if !c.ContainsAddress(0x1000) || c.ContainsAddress(0x1001) {
		t.Error("ContainsAddress mismatch")
	}
	if c.EnabledStoppointAtAddress(0x1000) || !c.EnabledStoppointAtAddress(0x2000) || c.EnabledStoppointAtAddress(0x3000) {
		t.Error("EnabledStoppointAtAddress mismatch")
	}

	sp, err := c.GetByAddress(0x2000)
	assertNoError(err, t, "GetByAddress")
	if sp.ID() != 2 {
		t.Errorf("GetByAddress returned stoppoint %d", sp.ID())
	}
	sp, err = c.GetByID(1)
	assertNoError(err, t, "GetByID")
	if sp.Address() != 0x1000 {
		t.Errorf("GetByID returned stoppoint at %s", sp.Address())
	}

	_, err = c.GetByID(44)
	var nf StoppointNotFoundError
	if !errors.As(err, &nf) || nf.Key != 44 {
		t.Errorf("expected StoppointNotFoundError for id 44, got %v", err)
	}
	_, err = c.GetByAddress(0x44)
	if !errors.As(err, &nf) || nf.Key != VirtualAddress(0x44) {
		t.Errorf("expected StoppointNotFoundError for address 0x44, got %v", err)
	}
}

func TestStoppointCollectionRemove(t *testing.T) {
	var c StoppointCollection[int, *fakeStoppoint]
	a := c.Push(&fakeStoppoint{id: 1, addr: 0x1000, enabled: true})
	b := c.Push(&fakeStoppoint{id: 2, addr: 0x2000})
	d := c.Push(&fakeStoppoint{id: 3, addr: 0x3000})

	assertNoError(c.RemoveByID(1), t, "RemoveByID(1)")
	if !a.deallocated || a.enabled {
		t.Error("removed stoppoint was not deallocated")
	}
	if c.ContainsID(1) || c.Len() != 2 {
		t.Error("stoppoint 1 still in the collection")
	}

	assertNoError(c.RemoveByAddress(0x3000), t, "RemoveByAddress(0x3000)")
	if !d.deallocated || c.ContainsAddress(0x3000) {
		t.Error("stoppoint 3 not removed")
	}

	if err := c.RemoveByID(1); err == nil {
		t.Error("removing a missing id succeeded")
	}
	if err := c.RemoveByAddress(0x1000); err == nil {
		t.Error("removing a missing address succeeded")
	}

	b.failDealloc = true
	if err := c.RemoveByID(2); err == nil {
		t.Error("failed deallocation not reported")
	}
	if !c.ContainsID(2) {
		t.Error("stoppoint removed even though deallocation failed")
	}
}

func TestStoppointCollectionTraversal(t *testing.T) {
	var c StoppointCollection[int, *fakeStoppoint]
	for i := 1; i <= 3; i++ {
		c.Push(&fakeStoppoint{id: i, addr: VirtualAddress(i * 0x10)})
	}

	var ids []int
	c.ForEach(func(sp *fakeStoppoint) {
		ids = append(ids, sp.ID())
		sp.enabled = true
	})
	if len(ids) != 3 || ids[0] != 1 || ids[1] != 2 || ids[2] != 3 {
		t.Errorf("wrong traversal order %v", ids)
	}
	for _, sp := range c.All() {
		if !sp.IsEnabled() {
			t.Errorf("ForEach mutation lost for %d", sp.ID())
		}
	}

	snapshot := c.All()
	assertNoError(c.RemoveByID(2), t, "RemoveByID(2)")
	if len(snapshot) != 3 {
		t.Error("snapshot changed after removal")
	}

	c.Push(&fakeStoppoint{id: 4, failDealloc: true})
	if err := c.Deallocate(); err == nil {
		t.Error("Deallocate did not report failure")
	}
	if c.Len() != 1 || !c.ContainsID(4) {
		t.Errorf("unexpected contents after Deallocate: %d elements", c.Len())
	}
}
