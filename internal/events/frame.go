package events

import "math"

// Quat is a unit rotation quaternion.
type Quat struct {
	X float32 `json:"x" yaml:"x"`
	Y float32 `json:"y" yaml:"y"`
	Z float32 `json:"z" yaml:"z"`
	W float32 `json:"w" yaml:"w"`
}

// IdentityQuat is the no-op rotation.
var IdentityQuat = Quat{W: 1}

// AxisAngle builds a rotation of angle radians around axis.
func AxisAngle(axis Vec3, angle float64) Quat {
	length := axis.Length()
	if length == 0 {
		return IdentityQuat
	}
	half := angle / 2
	s := float32(math.Sin(half)) / length
	return Quat{X: axis.X * s, Y: axis.Y * s, Z: axis.Z * s, W: float32(math.Cos(half))}
}

// Conjugate returns the inverse rotation of a unit quaternion.
func (q Quat) Conjugate() Quat {
	return Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	u := Vec3{X: q.X, Y: q.Y, Z: q.Z}
	t := u.Cross(v).Scale(2)
	return v.Add(t.Scale(q.W)).Add(u.Cross(t))
}

// Transform is a rigid body reference frame: a rotation followed by a
// translation to Origin. The zero Rotation is treated as identity.
type Transform struct {
	Origin   Vec3 `json:"origin" yaml:"origin"`
	Rotation Quat `json:"rotation" yaml:"rotation"`
}

func (t Transform) rotation() Quat {
	if t.Rotation == (Quat{}) {
		return IdentityQuat
	}
	return t.Rotation
}

// ToWorld maps a body-local point into world space.
func (t Transform) ToWorld(local Vec3) Vec3 {
	return t.rotation().Rotate(local).Add(t.Origin)
}

// ToLocal maps a world point into body-local space.
func (t Transform) ToLocal(world Vec3) Vec3 {
	return t.rotation().Conjugate().Rotate(world.Sub(t.Origin))
}
