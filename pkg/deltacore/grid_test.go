package deltacore

import "testing"

func TestBuildGridRejectsEvenOrSmallN(t *testing.T) {
	if _, err := BuildGrid(100, 4, CIRCLE); err == nil {
		t.Error("expected error for even N")
	}
	if _, err := BuildGrid(100, 1, CIRCLE); err == nil {
		t.Error("expected error for N < 3")
	}
	if _, err := BuildGrid(0, 5, CIRCLE); err == nil {
		t.Error("expected error for non-positive probe radius")
	}
}

// TestFiveByFiveCircleClassification is scenario 1 from spec.md section 8:
// a 5x5 CIRCLE grid with probe_radius=100 has its center at index 12 and
// corners (indices 0, 4, 20, 24) classified INACTIVE.
func TestFiveByFiveCircleClassification(t *testing.T) {
	g, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	if g.CenterIndex() != 12 {
		t.Errorf("expected center index 12, got %d", g.CenterIndex())
	}
	for _, i := range []int{0, 4, 20, 24} {
		if g.Classification(i) != INACTIVE {
			t.Errorf("expected index %d INACTIVE, got %v", i, g.Classification(i))
		}
	}
}

func TestExactlyOneCenterPoint(t *testing.T) {
	for _, shape := range []Shape{CIRCLE, SQUARE} {
		g, err := BuildGrid(100, 5, shape)
		if err != nil {
			t.Fatal(err)
		}
		count := 0
		for i := range g.Points() {
			c := g.Classification(i)
			if c != INACTIVE && c != ACTIVE && c != ACTIVE_NEIGHBOR && c != CENTER {
				t.Fatalf("classification %d out of range at index %d", c, i)
			}
			if c == CENTER {
				count++
			}
		}
		if count != 1 {
			t.Errorf("shape %v: expected exactly one CENTER point, got %d", shape, count)
		}
	}
}

func TestSquareGridAllActiveExceptCenter(t *testing.T) {
	g, err := BuildGrid(100, 5, SQUARE)
	if err != nil {
		t.Fatal(err)
	}
	for i, gp := range g.Points() {
		if i == g.CenterIndex() {
			if gp.Classification != CENTER {
				t.Errorf("expected center point classified CENTER")
			}
			continue
		}
		if gp.Classification != ACTIVE {
			t.Errorf("index %d: expected ACTIVE on a SQUARE grid, got %v", i, gp.Classification)
		}
	}
}

func TestTowerPointNearCanonicalLocation(t *testing.T) {
	g, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	idx := g.TowerPoint(TowerZ)
	p := g.Points()[idx].Coord
	if p.X != 0 {
		t.Errorf("Z tower point expected x=0, got %v", p.X)
	}
	if p.Y <= 0 {
		t.Errorf("Z tower point expected positive y, got %v", p.Y)
	}
}

func TestNearestIndexRestrictedToActiveOrCenter(t *testing.T) {
	g, err := BuildGrid(100, 5, CIRCLE)
	if err != nil {
		t.Fatal(err)
	}
	idx := g.NearestIndex(Point2D{X: 0, Y: 0})
	c := g.Classification(idx)
	if c != ACTIVE && c != CENTER {
		t.Errorf("nearest_index returned a non ACTIVE/CENTER point: %v", c)
	}
}
