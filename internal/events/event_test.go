package events

import (
	"math"
	"testing"

	"github.com/google/uuid"
)

func TestEventCategoryFollowsPayload(t *testing.T) {
	cases := []struct {
		payload Payload
		want    Category
	}{
		{Damage{EntityID: uuid.New(), PartID: 7}, CategoryDamage},
		{Impact{OriginID: uuid.New()}, CategoryImpact},
		{Explosion{OriginID: uuid.New(), Radius: 4}, CategoryExplosion},
		{Tracer{}, CategoryTracer},
	}
	for _, tc := range cases {
		evt := New(12.5, tc.payload)
		if evt.Category() != tc.want {
			t.Fatalf("expected category %s, got %s", tc.want, evt.Category())
		}
		if evt.EntryTime() != 12.5 {
			t.Fatalf("expected entry time 12.5, got %v", evt.EntryTime())
		}
	}
}

func TestEventAge(t *testing.T) {
	evt := New(100, Tracer{})
	if got := evt.Age(101); got != 1 {
		t.Fatalf("expected age 1, got %v", got)
	}
	if got := evt.Age(99); got != -1 {
		t.Fatalf("expected age -1, got %v", got)
	}
}

func TestNewPanicsOnNilPayload(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for nil payload")
		}
	}()
	New(0, nil)
}

func TestZeroEventHasInvalidCategory(t *testing.T) {
	var evt Event
	if evt.Category().Valid() {
		t.Fatalf("expected zero event category to be invalid")
	}
}

func TestCategoriesCoverEveryKind(t *testing.T) {
	seen := make(map[Category]bool)
	for _, c := range Categories() {
		if !c.Valid() {
			t.Fatalf("category %v reported invalid", c)
		}
		seen[c] = true
	}
	if len(seen) != CategoryCount {
		t.Fatalf("expected %d categories, got %d", CategoryCount, len(seen))
	}
}

func TestTransformRoundTrip(t *testing.T) {
	frame := Transform{
		Origin:   Vec3{X: 6000, Y: -12, Z: 40},
		Rotation: AxisAngle(Vec3{Y: 1}, math.Pi/2),
	}
	local := Vec3{X: 1, Y: 2, Z: 3}
	world := frame.ToWorld(local)
	back := frame.ToLocal(world)
	if !back.Approx(local, 1e-3) {
		t.Fatalf("expected %+v after round trip, got %+v", local, back)
	}
}

func TestTransformRotatesAroundAxis(t *testing.T) {
	frame := Transform{Rotation: AxisAngle(Vec3{Z: 1}, math.Pi/2)}
	got := frame.ToWorld(Vec3{X: 1})
	if !got.Approx(Vec3{Y: 1}, 1e-5) {
		t.Fatalf("expected +X to rotate onto +Y, got %+v", got)
	}
}

func TestZeroTransformIsIdentity(t *testing.T) {
	var frame Transform
	p := Vec3{X: 3, Y: 4, Z: 5}
	if got := frame.ToLocal(p); got != p {
		t.Fatalf("expected identity, got %+v", got)
	}
}
