package gaze

import (
	"math"
	"testing"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

func vecEquals(a, b Vec3) bool {
	return floatEquals(a.X, b.X) && floatEquals(a.Y, b.Y) && floatEquals(a.Z, b.Z)
}

func TestClosestPoints_Parallel(t *testing.T) {
	r1 := Ray{Origin: Vec3{0, 0, 0}, Direction: Vec3{1, 0, 0}}
	r2 := Ray{Origin: Vec3{0, 1, 0}, Direction: Vec3{1, 0, 0}}

	p1, p2, parallel := ClosestPointsOnTwoRays(r1, r2)

	if !parallel {
		t.Fatal("Expected parallel=true for parallel rays")
	}
	if p1 != (Vec3{}) || p2 != (Vec3{}) {
		t.Errorf("Expected zero fallback points, got %v and %v", p1, p2)
	}
}

func TestClosestPoints_Skew(t *testing.T) {
	r1 := Ray{Origin: Vec3{0, 0, 0}, Direction: Vec3{1, 0, 0}}
	r2 := Ray{Origin: Vec3{0, 1, 0}, Direction: Vec3{0, 0, 1}}

	p1, p2, parallel := ClosestPointsOnTwoRays(r1, r2)

	if parallel {
		t.Fatal("Expected non-parallel rays")
	}
	if !vecEquals(p1, Vec3{0, 0, 0}) {
		t.Errorf("Expected p1=(0,0,0), got %v", p1)
	}
	if !vecEquals(p2, Vec3{0, 1, 0}) {
		t.Errorf("Expected p2=(0,1,0), got %v", p2)
	}
	if !floatEquals(p1.Distance(p2), 1) {
		t.Errorf("Expected distance 1, got %v", p1.Distance(p2))
	}
}

func TestClosestPoints_Converging(t *testing.T) {
	// Two eyes 6cm apart looking at a point 1m ahead
	target := Vec3{0, 0, 1}
	right := Ray{Origin: Vec3{0.03, 0, 0}}
	right.Direction = target.Sub(right.Origin).Normalize()
	left := Ray{Origin: Vec3{-0.03, 0, 0}}
	left.Direction = target.Sub(left.Origin).Normalize()

	p1, p2, parallel := ClosestPointsOnTwoRays(right, left)

	if parallel {
		t.Fatal("Expected converging rays")
	}
	if !vecEquals(p1.Midpoint(p2), target) {
		t.Errorf("Expected midpoint at %v, got %v", target, p1.Midpoint(p2))
	}
}

func TestVec3Ops(t *testing.T) {
	a := Vec3{1, 2, 3}
	b := Vec3{4, 5, 6}

	if got := a.Dot(b); !floatEquals(got, 32) {
		t.Errorf("Dot: got %v, want 32", got)
	}
	if got := a.Cross(b); got != (Vec3{-3, 6, -3}) {
		t.Errorf("Cross: got %v", got)
	}
	if got := (Vec3{3, 4, 0}).Length(); !floatEquals(got, 5) {
		t.Errorf("Length: got %v, want 5", got)
	}
	if got := (Vec3{}).Normalize(); got != (Vec3{}) {
		t.Errorf("Normalize of zero should stay zero, got %v", got)
	}
}

func TestHeadTransform_ToWorld(t *testing.T) {
	// Head at (1,1.6,0) turned to face +X
	head := HeadTransform{
		Position: Vec3{1, 1.6, 0},
		Forward:  Vec3{1, 0, 0},
		Up:       Vec3{0, 1, 0},
	}

	// One metre ahead in head space is one metre along +X in world space
	got := head.ToWorld(Vec3{0, 0, 1})
	if !vecEquals(got, Vec3{2, 1.6, 0}) {
		t.Errorf("Expected (2,1.6,0), got %v", got)
	}

	ray := head.WorldRay(Ray{Direction: Vec3{0, 0, 1}})
	if !vecEquals(ray.Direction, Vec3{1, 0, 0}) {
		t.Errorf("Expected world direction +X, got %v", ray.Direction)
	}
}

func TestPlaneCaster(t *testing.T) {
	wall := PlaneCaster{Point: Vec3{0, 0, 5}, Normal: Vec3{0, 0, -1}, Name: "wall"}

	hit, ok := wall.RayCast(Ray{Origin: Vec3{}, Direction: Vec3{0, 0, 1}})
	if !ok {
		t.Fatal("Expected hit on wall")
	}
	if !vecEquals(hit.Point, Vec3{0, 0, 5}) || hit.Collider != "wall" {
		t.Errorf("Unexpected hit %+v", hit)
	}

	if _, ok := wall.RayCast(Ray{Origin: Vec3{}, Direction: Vec3{0, 0, -1}}); ok {
		t.Error("Expected no hit when looking away from the wall")
	}
	if _, ok := wall.RayCast(Ray{Origin: Vec3{}, Direction: Vec3{1, 0, 0}}); ok {
		t.Error("Expected no hit for ray parallel to the wall")
	}
}
