// Package sdfx implements the preview.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library.
package sdfx

import (
	"fmt"

	"github.com/Grimnirrrr/keratin/pkg/preview"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ preview.Kernel = (*Kernel)(nil)

// defaultMeshCells controls marching cubes tessellation resolution.
const defaultMeshCells = 120

// solid wraps an sdf.SDF3 to implement preview.Solid.
type solid struct {
	s sdf.SDF3
}

// BoundingBox returns the axis-aligned bounding box.
func (s *solid) BoundingBox() (min, max [3]float64) {
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// Kernel implements preview.Kernel using sdfx.
type Kernel struct{}

// New returns a new Kernel.
func New() *Kernel {
	return &Kernel{}
}

// unwrap extracts the underlying sdf.SDF3 from a preview.Solid.
func unwrap(s preview.Solid) sdf.SDF3 {
	return s.(*solid).s
}

// wrap creates a preview.Solid from an sdf.SDF3.
func wrap(s sdf.SDF3) preview.Solid {
	return &solid{s: s}
}

// Sphere creates a sphere of the given radius centered at the origin.
func (k *Kernel) Sphere(radius float64) preview.Solid {
	s, err := sdf.Sphere3D(radius)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Sphere3D: %v", err))
	}
	return wrap(s)
}

// Capsule creates a capsule with the given total height along Z,
// centered at the origin: a cylinder with spherical end caps. Heights
// at or below the diameter degrade to a plain sphere.
func (k *Kernel) Capsule(height, radius float64) preview.Solid {
	if height <= 2*radius {
		return k.Sphere(radius)
	}
	body := height - 2*radius
	cyl, err := sdf.Cylinder3D(body, radius, 0)
	if err != nil {
		panic(fmt.Sprintf("sdfx.Cylinder3D: %v", err))
	}
	end := unwrap(k.Sphere(radius))
	top := sdf.Transform3D(end, sdf.Translate3d(v3.Vec{Z: body / 2}))
	bottom := sdf.Transform3D(end, sdf.Translate3d(v3.Vec{Z: -body / 2}))
	return wrap(sdf.Union3D(sdf.Union3D(cyl, top), bottom))
}

// Union returns the union of two solids.
func (k *Kernel) Union(a, b preview.Solid) preview.Solid {
	return wrap(sdf.Union3D(unwrap(a), unwrap(b)))
}

// Translate moves a solid by (x, y, z).
func (k *Kernel) Translate(s preview.Solid, x, y, z float64) preview.Solid {
	m := sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z})
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// Scale scales a solid about the origin by (x, y, z).
func (k *Kernel) Scale(s preview.Solid, x, y, z float64) preview.Solid {
	m := sdf.Scale3d(v3.Vec{X: x, Y: y, Z: z})
	return wrap(sdf.Transform3D(unwrap(s), m))
}

// ToMesh converts a solid to a triangle mesh using marching cubes.
func (k *Kernel) ToMesh(s preview.Solid) (*preview.Mesh, error) {
	sdf3 := unwrap(s)

	renderer := render.NewMarchingCubesUniform(defaultMeshCells)
	triangles := render.ToTriangles(sdf3, renderer)

	numTri := len(triangles)
	numVerts := numTri * 3

	vertices := make([]float32, 0, numVerts*3)
	normals := make([]float32, 0, numVerts*3)
	indices := make([]uint32, 0, numVerts)

	for i, tri := range triangles {
		n := tri.Normal()
		nx := float32(n.X)
		ny := float32(n.Y)
		nz := float32(n.Z)

		for j := 0; j < 3; j++ {
			v := tri.V[j]
			vertices = append(vertices, float32(v.X), float32(v.Y), float32(v.Z))
			normals = append(normals, nx, ny, nz)
			indices = append(indices, uint32(i*3+j))
		}
	}

	return &preview.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}, nil
}
