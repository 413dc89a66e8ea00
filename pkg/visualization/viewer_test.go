package visualization

import (
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"nucleofind/pkg/grid"
)

// testGrid builds a zero-boundary grid filled by f.
func testGrid(t *testing.T, shape [3]int, f func(x, y, z int) float32) *grid.Grid {
	t.Helper()
	g, err := grid.NewOrthogonalGrid(shape, 1, r3.Vec{}, nil)
	if err != nil {
		t.Fatalf("Failed to create grid: %v", err)
	}
	for x := 0; x < shape[0]; x++ {
		for y := 0; y < shape[1]; y++ {
			for z := 0; z < shape[2]; z++ {
				g.Set(x, y, z, f(x, y, z))
			}
		}
	}
	return g
}

// TestExtractSlice verifies slice shapes and the min/max grey scaling
func TestExtractSlice(t *testing.T) {
	nx, ny, nz := 10, 8, 5
	// Each z plane has a unique value; the range is [-1, 3].
	g := testGrid(t, [3]int{nx, ny, nz}, func(_, _, z int) float32 { return float32(z) - 1 })
	viewer := NewViewer(g)

	for z := 0; z < nz; z++ {
		img, err := viewer.ExtractSlice("z", z)
		if err != nil {
			t.Fatalf("Failed to extract Z slice at position %d: %v", z, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != nx || bounds.Dy() != ny {
			t.Errorf("Expected Z slice dimensions %dx%d, got %dx%d", nx, ny, bounds.Dx(), bounds.Dy())
		}

		gray16Img, ok := img.(*image.Gray16)
		if !ok {
			t.Fatalf("Expected *image.Gray16, got %T", img)
		}
		expectedValue := float64(z) / float64(nz-1) * 65535
		got := float64(gray16Img.Gray16At(nx/2, ny/2).Y)
		if math.Abs(got-expectedValue) > 1.0 {
			t.Errorf("Expected Z slice value ~%.0f at center, got %.0f", expectedValue, got)
		}
	}

	imgX, err := viewer.ExtractSlice("x", nx/2)
	if err != nil {
		t.Fatalf("Failed to extract X slice: %v", err)
	}
	if b := imgX.Bounds(); b.Dx() != nz || b.Dy() != ny {
		t.Errorf("Expected X slice dimensions %dx%d, got %dx%d", nz, ny, b.Dx(), b.Dy())
	}

	imgY, err := viewer.ExtractSlice("Y", ny/2)
	if err != nil {
		t.Fatalf("Failed to extract Y slice: %v", err)
	}
	if b := imgY.Bounds(); b.Dx() != nx || b.Dy() != nz {
		t.Errorf("Expected Y slice dimensions %dx%d, got %dx%d", nx, nz, b.Dx(), b.Dy())
	}

	if _, err := viewer.ExtractSlice("invalid", 0); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
	if _, err := viewer.ExtractSlice("z", nz); err == nil {
		t.Error("Expected error for out of bounds position, got nil")
	}
	if _, err := viewer.ExtractSlice("x", -1); err == nil {
		t.Error("Expected error for negative position, got nil")
	}
}

// TestConstantGrid checks that a flat grid renders black instead of dividing by zero
func TestConstantGrid(t *testing.T) {
	g := testGrid(t, [3]int{3, 3, 3}, func(_, _, _ int) float32 { return 0.5 })
	img, err := NewViewer(g).ExtractSlice("z", 1)
	if err != nil {
		t.Fatalf("Failed to extract slice: %v", err)
	}
	if v := img.(*image.Gray16).Gray16At(1, 1).Y; v != 0 {
		t.Errorf("Expected 0 for a constant grid, got %d", v)
	}
}

// TestExtractRegion verifies that 3D regions are copied x-major
func TestExtractRegion(t *testing.T) {
	shape := [3]int{10, 10, 5}
	g := testGrid(t, shape, func(x, y, z int) float32 { return float32(100*x + 10*y + z) })
	viewer := NewViewer(g)

	start, size := [3]int{2, 3, 1}, [3]int{4, 3, 2}
	region, err := viewer.ExtractRegion(start, size)
	if err != nil {
		t.Fatalf("Failed to extract region: %v", err)
	}
	if len(region) != size[0]*size[1]*size[2] {
		t.Fatalf("Expected region size %d, got %d", size[0]*size[1]*size[2], len(region))
	}

	i := 0
	for x := 0; x < size[0]; x++ {
		for y := 0; y < size[1]; y++ {
			for z := 0; z < size[2]; z++ {
				want := g.At(start[0]+x, start[1]+y, start[2]+z)
				if region[i] != want {
					t.Errorf("Region value mismatch at (%d,%d,%d): expected %f, got %f", x, y, z, want, region[i])
				}
				i++
			}
		}
	}

	if _, err := viewer.ExtractRegion([3]int{-1, 0, 0}, [3]int{1, 1, 1}); err == nil {
		t.Error("Expected error for negative start coordinate, got nil")
	}
	if _, err := viewer.ExtractRegion([3]int{}, [3]int{0, 1, 1}); err == nil {
		t.Error("Expected error for zero size, got nil")
	}
	if _, err := viewer.ExtractRegion([3]int{9, 0, 0}, [3]int{2, 1, 1}); err == nil {
		t.Error("Expected error for region extending beyond grid, got nil")
	}
}

// TestSaveSliceSequence verifies that a sequence of slices can be saved
func TestSaveSliceSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	tempDir := t.TempDir()

	g := testGrid(t, [3]int{5, 5, 3}, func(x, _, _ int) float32 { return float32(x) })
	viewer := NewViewer(g)

	outputDir := filepath.Join(tempDir, "slices")
	n, err := viewer.SaveSliceSequence("z", outputDir)
	if err != nil {
		t.Fatalf("Failed to save slice sequence: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 slices written, got %d", n)
	}
	for z := 0; z < 3; z++ {
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_z_%03d.jpg", z))
		if _, err := os.Stat(filename); os.IsNotExist(err) {
			t.Errorf("Expected slice file does not exist: %s", filename)
		}
	}

	if _, err := viewer.SaveSliceSequence("invalid", outputDir); err == nil {
		t.Error("Expected error for invalid axis, got nil")
	}
}
