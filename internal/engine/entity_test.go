package engine

import "testing"

type renderOnly struct {
	Base
	renders int
}

func (r *renderOnly) Render() { r.renders++ }

func TestBaseDefaultsAreNoOps(t *testing.T) {
	eng := NewEngine()
	r := &renderOnly{}
	eng.AddEntity(r)
	eng.AddEntity(Base{})

	eng.Tick(1)
	eng.Tick(-1)

	if r.renders != 2 {
		t.Errorf("Expected Render to run every tick even without an Update override, got %d", r.renders)
	}
}

func TestFuncEntity(t *testing.T) {
	var total float64
	f := Func(func(dt float64) { total += dt })

	f.Update(0.25)
	f.Render()
	f.Update(0.5)

	if total != 0.75 {
		t.Errorf("Expected accumulated dt 0.75, got %v", total)
	}
}
