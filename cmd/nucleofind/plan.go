package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nucleofind/pkg/crystal"
	"nucleofind/pkg/prediction"
)

// planReport is the JSON form of a prediction geometry.
type planReport struct {
	Cell         string     `json:"cell"`
	SpaceGroup   string     `json:"space_group"`
	Spacing      float64    `json:"spacing"`
	BoxMinimum   [3]float64 `json:"box_minimum"`
	BoxMaximum   [3]float64 `json:"box_maximum"`
	WorkingShape [3]int     `json:"working_shape"`
	TileSize     int        `json:"tile_size"`
	Overlap      int        `json:"overlap"`
	Tiles        int        `json:"tiles"`
	CoarseCount  [3]int     `json:"coarse_count"`
	BufferShape  [3]int     `json:"buffer_shape"`
	ValidShape   [3]int     `json:"valid_shape"`
	OutputShape  [3]int     `json:"output_shape"`
	FirstTile    string     `json:"first_tile"`
	LastTile     string     `json:"last_tile"`
}

const planExample = `  nucleofind plan --cell 40.2,40.2,101.3 --spacegroup "P 43 21 2"
  nucleofind plan --cell 30,40,50,90,104.5,90 --spacegroup "C 1 2 1" --json`

func newPlanCommand(a *app) *cobra.Command {
	var (
		cellFlag string
		sgFlag   string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:     "plan",
		Short:   "Show the working grid, tiling and output grid for a unit cell",
		Example: planExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cell, err := parseCell(cellFlag)
			if err != nil {
				return err
			}
			sg, err := crystal.FindSpaceGroup(sgFlag)
			if err != nil {
				return fmt.Errorf("%w (known: %s)", err, strings.Join(crystal.KnownSpaceGroups(), ", "))
			}
			params, err := prediction.ParamsFromConfig(a.cfg)
			if err != nil {
				return err
			}
			geo, err := prediction.PlanGeometry(cell, sg, params)
			if err != nil {
				return err
			}
			a.logger.Debug("Planned geometry", zap.Stringer("cell", cell), zap.Stringer("space_group", sg))

			report := newPlanReport(cell, sg, params, geo)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printPlan(cmd.OutOrStdout(), report)
			return nil
		},
	}
	cmd.Flags().StringVar(&cellFlag, "cell", "", "unit cell a,b,c[,alpha,beta,gamma] in Å and degrees")
	cmd.Flags().StringVar(&sgFlag, "spacegroup", "P 1", "Hermann-Mauguin space group name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	_ = cmd.MarkFlagRequired("cell")
	return cmd
}

// parseCell reads "a,b,c" or "a,b,c,alpha,beta,gamma".
func parseCell(s string) (crystal.UnitCell, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 && len(parts) != 6 {
		return crystal.UnitCell{}, fmt.Errorf("cell must have 3 or 6 comma-separated values, got %q", s)
	}
	vals := []float64{0, 0, 0, 90, 90, 90}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return crystal.UnitCell{}, fmt.Errorf("cell value %q: %w", p, err)
		}
		vals[i] = v
	}
	return crystal.NewUnitCell(vals[0], vals[1], vals[2], vals[3], vals[4], vals[5])
}

func newPlanReport(cell crystal.UnitCell, sg *crystal.SpaceGroup, params prediction.Params, geo *prediction.Geometry) planReport {
	ts := geo.Plan.Translations()
	return planReport{
		Cell:         cell.String(),
		SpaceGroup:   sg.String(),
		Spacing:      params.Spacing,
		BoxMinimum:   [3]float64{geo.Box.Minimum.X, geo.Box.Minimum.Y, geo.Box.Minimum.Z},
		BoxMaximum:   [3]float64{geo.Box.Maximum.X, geo.Box.Maximum.Y, geo.Box.Maximum.Z},
		WorkingShape: geo.WorkingShape,
		TileSize:     geo.Plan.TileSize,
		Overlap:      geo.Plan.Overlap,
		Tiles:        len(ts),
		CoarseCount:  geo.Plan.CoarseCount,
		BufferShape:  geo.Plan.BufferShape(),
		ValidShape:   geo.Plan.ValidShape(),
		OutputShape:  geo.OutputShape,
		FirstTile:    ts[0].String(),
		LastTile:     ts[len(ts)-1].String(),
	}
}

func printPlan(w io.Writer, r planReport) {
	fmt.Fprintf(w, "Cell:          %s\n", r.Cell)
	fmt.Fprintf(w, "Space group:   %s\n", r.SpaceGroup)
	fmt.Fprintf(w, "Bounding box:  %.3f,%.3f,%.3f -> %.3f,%.3f,%.3f\n",
		r.BoxMinimum[0], r.BoxMinimum[1], r.BoxMinimum[2], r.BoxMaximum[0], r.BoxMaximum[1], r.BoxMaximum[2])
	fmt.Fprintf(w, "Working grid:  %v at %g Å\n", r.WorkingShape, r.Spacing)
	fmt.Fprintf(w, "Tiles:         %d (%v, size %d, stride %d, %s..%s)\n",
		r.Tiles, r.CoarseCount, r.TileSize, r.Overlap, r.FirstTile, r.LastTile)
	fmt.Fprintf(w, "Buffers:       %v (valid %v)\n", r.BufferShape, r.ValidShape)
	fmt.Fprintf(w, "Output grid:   %v\n", r.OutputShape)
}

func newSpaceGroupsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "spacegroups",
		Short: "List the built-in space groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range crystal.KnownSpaceGroups() {
				sg, err := crystal.FindSpaceGroup(name)
				if err != nil {
					return err
				}
				b := sg.Brick()
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %2d ops  asu x<=%g y<=%g z<=%g\n",
					name, len(sg.Operators()), b.Max.X, b.Max.Y, b.Max.Z)
			}
			return nil
		},
	}
}
