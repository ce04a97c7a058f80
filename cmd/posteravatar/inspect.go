package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/posteravatar/internal/animation"
	"github.com/normanking/posteravatar/internal/asset"
	"github.com/normanking/posteravatar/internal/scene"
)

func inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [model]",
		Short: "Report a character's clips, categories and normalization",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := cfg.Viewer.ModelURL
			if len(args) == 1 {
				url = args[0]
			}
			ctx, stop := signalContext()
			defer stop()

			ch, err := asset.NewLoader(nil, zlog()).LoadCharacter(ctx, url, nil)
			if err != nil {
				return fmt.Errorf("failed to load model: %w", err)
			}
			writeReport(os.Stdout, ch, cfg.Viewer.TargetSize)
			return nil
		},
	}
}

// writeReport prints what the viewer would do with ch: its clip buckets after
// fallback, the normalization and the camera framing.
func writeReport(w io.Writer, ch *asset.Character, targetSize float32) {
	st := newStyles(w)
	field := func(name, format string, args ...any) {
		fmt.Fprintln(w, st.label.Render(name)+fmt.Sprintf(format, args...))
	}

	fmt.Fprintln(w, st.title.Render("character"))
	field("model", "%s", ch.URL)
	field("nodes", "%d", len(ch.Graph.Nodes))
	field("meshes", "%d (%d vertices)", len(ch.Meshes), ch.VertexCount())
	field("skins", "%d", len(ch.Skins))
	field("textures", "%d", len(ch.Images))

	p := scene.Normalize(ch.Bounds, targetSize)
	f := scene.FrameFor(p.Size)
	field("scale", "%.4f", p.Scale)
	field("size", "%.3f x %.3f x %.3f", p.Size.X(), p.Size.Y(), p.Size.Z())
	field("lift", "%.3f", p.Lift)
	field("camera", "(%.3f, %.3f, %.3f) zoom %.3f..%.3f",
		f.Position.X(), f.Position.Y(), f.Position.Z(), f.MinDistance, f.MaxDistance)

	clips := make([][]string, 0, len(ch.Clips))
	for i, clip := range ch.Clips {
		clips = append(clips, []string{
			fmt.Sprint(i),
			clip.Name,
			fmt.Sprintf("%.2fs", clip.Duration),
			string(animation.Classify(clip.Name, i)),
		})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.title.Render(fmt.Sprintf("clips (%d)", len(ch.Clips))))
	fmt.Fprintln(w, reportTable(st, []string{"#", "name", "duration", "classified"}, clips))

	lib := animation.NewLibrary(animation.NewMixer(ch.Graph.RestPose()), ch.Clips, zerolog.Nop())
	cats := make([][]string, 0, len(animation.Categories))
	for _, cat := range animation.Categories {
		names := make([]string, 0)
		for _, a := range lib.Actions(cat) {
			names = append(names, a.Clip().Name)
		}
		note := ""
		if lib.Backfilled(cat) {
			note = "fallback"
		}
		cats = append(cats, []string{string(cat), strings.Join(names, ", "), note})
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.title.Render("categories"))
	fmt.Fprintln(w, reportTable(st, []string{"category", "clips", "note"}, cats))
}

func reportTable(st styles, headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.border).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return st.header
			}
			return st.cell
		}).
		String()
}
