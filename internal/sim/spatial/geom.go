package spatial

import "math"

type Vec3 struct {
	X, Y, Z float64
}

func VecFrom(a [3]float64) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }

func (v Vec3) Array() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

func (v Vec3) Scale(s float64) Vec3 { return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s} }

// AABB is an axis-aligned bounding box. Min must not exceed Max on any axis.
type AABB struct {
	Min, Max Vec3
}

// BoxAround returns the cube of half-extent r centred on c.
func BoxAround(c Vec3, r float64) AABB {
	return AABB{
		Min: Vec3{X: c.X - r, Y: c.Y - r, Z: c.Z - r},
		Max: Vec3{X: c.X + r, Y: c.Y + r, Z: c.Z + r},
	}
}

func BoxFrom(min, max [3]float64) AABB { return AABB{Min: VecFrom(min), Max: VecFrom(max)} }

func (b AABB) Valid() bool {
	if math.IsNaN(b.Min.X) || math.IsNaN(b.Min.Y) || math.IsNaN(b.Min.Z) ||
		math.IsNaN(b.Max.X) || math.IsNaN(b.Max.Y) || math.IsNaN(b.Max.Z) {
		return false
	}
	return b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

func (b AABB) Center() Vec3 { return b.Min.Add(b.Max).Scale(0.5) }

func (b AABB) Union(o AABB) AABB {
	return AABB{
		Min: Vec3{X: math.Min(b.Min.X, o.Min.X), Y: math.Min(b.Min.Y, o.Min.Y), Z: math.Min(b.Min.Z, o.Min.Z)},
		Max: Vec3{X: math.Max(b.Max.X, o.Max.X), Y: math.Max(b.Max.Y, o.Max.Y), Z: math.Max(b.Max.Z, o.Max.Z)},
	}
}

func (b AABB) Contains(o AABB) bool {
	return b.Min.X <= o.Min.X && b.Min.Y <= o.Min.Y && b.Min.Z <= o.Min.Z &&
		o.Max.X <= b.Max.X && o.Max.Y <= b.Max.Y && o.Max.Z <= b.Max.Z
}

// Intersects reports whether the boxes overlap. Touching faces count as overlap.
func (b AABB) Intersects(o AABB) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X &&
		b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y &&
		b.Min.Z <= o.Max.Z && o.Min.Z <= b.Max.Z
}

// IntersectsSphere is the exact box/sphere test: distance from the sphere
// centre to the closest point of the box is at most the radius.
func (b AABB) IntersectsSphere(s Sphere) bool {
	d2 := 0.0
	for _, ax := range [3][3]float64{
		{s.Center.X, b.Min.X, b.Max.X},
		{s.Center.Y, b.Min.Y, b.Max.Y},
		{s.Center.Z, b.Min.Z, b.Max.Z},
	} {
		c, lo, hi := ax[0], ax[1], ax[2]
		if c < lo {
			d2 += (lo - c) * (lo - c)
		} else if c > hi {
			d2 += (c - hi) * (c - hi)
		}
	}
	return d2 <= s.Radius*s.Radius
}

func (b AABB) SurfaceArea() float64 {
	dx := b.Max.X - b.Min.X
	dy := b.Max.Y - b.Min.Y
	dz := b.Max.Z - b.Min.Z
	return 2 * (dx*dy + dy*dz + dz*dx)
}

func (b AABB) Expand(margin float64) AABB {
	m := Vec3{X: margin, Y: margin, Z: margin}
	return AABB{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

func (b AABB) Translate(d Vec3) AABB { return AABB{Min: b.Min.Add(d), Max: b.Max.Add(d)} }

type Sphere struct {
	Center Vec3
	Radius float64
}

func (s Sphere) Bounds() AABB { return BoxAround(s.Center, s.Radius) }
