package preview

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the geometry backend behind the preview builder.
// Implementations provide solid modeling behind this interface so
// backends can be swapped without changing the rest of the system.
type Kernel interface {
	// Primitives, centered at the origin. Capsule runs along Z.
	Sphere(radius float64) Solid
	Capsule(height, radius float64) Solid

	// Combining and placing
	Union(a, b Solid) Solid
	Translate(s Solid, x, y, z float64) Solid
	Scale(s Solid, x, y, z float64) Solid

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}
