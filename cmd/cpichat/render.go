package main

import (
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/cpichat/pkg/render"
	"github.com/go-go-golems/cpichat/pkg/segments"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Split a message into prose and code segments and print them",
	Long: "Reads a message from file (or stdin) and prints its segments as yaml,\n" +
		"as html with highlighted code blocks, or highlighted for the terminal.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}
		style, err := cmd.Flags().GetString("style")
		if err != nil {
			return err
		}
		width, err := cmd.Flags().GetInt("width")
		if err != nil {
			return err
		}

		var in io.Reader = os.Stdin
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrapf(err, "could not open %s", args[0])
			}
			defer func() {
				_ = f.Close()
			}()
			in = f
		}

		return renderMessage(in, cmd.OutOrStdout(), output, style, width)
	},
}

func init() {
	renderCmd.Flags().StringP("output", "o", "yaml", "Output format (yaml, html, term)")
	renderCmd.Flags().String("style", render.DefaultStyle, "Chroma style for code blocks")
	renderCmd.Flags().Int("width", 80, "Wrap width for term output")
}

func renderMessage(in io.Reader, out io.Writer, output string, style string, width int) error {
	b, err := io.ReadAll(in)
	if err != nil {
		return errors.Wrap(err, "could not read message")
	}
	segs := segments.ParseBytes(b)

	switch output {
	case "yaml":
		s, err := render.SegmentsToYAML(segs)
		if err != nil {
			return err
		}
		_, err = out.Write(s)
		return err

	case "html":
		s, err := render.NewHTMLRenderer(render.WithHTMLCodeStyle(style)).RenderSegments(segs)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, s)
		return err

	case "term":
		r, err := render.NewTerminalRenderer(render.WithWidth(width), render.WithCodeStyle(style))
		if err != nil {
			return err
		}
		s, err := r.RenderSegments(segs)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, s)
		return err
	}

	return errors.Errorf("unknown output format %q", output)
}
