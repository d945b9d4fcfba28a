package engine

// Entity is a unit of simulated state driven by the Engine.
//
// Update advances the entity by dt seconds. Render is called right after
// Update within the same tick, whether or not Update changed anything.
// A panic from either method is not recovered; it aborts the current tick.
type Entity interface {
	Update(dt float64)
	Render()
}

// Base provides no-op Update and Render. Embed it in concrete entities
// that only care about one of the two.
type Base struct{}

// Update does nothing.
func (Base) Update(float64) {}

// Render does nothing.
func (Base) Render() {}

// Func adapts a plain update function into an Entity with a no-op Render.
type Func func(dt float64)

// Update calls f(dt).
func (f Func) Update(dt float64) { f(dt) }

// Render does nothing.
func (Func) Render() {}
