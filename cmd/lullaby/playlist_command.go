package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lucianfialho/urban-lullaby/internal/media/ffmpeg"
	"github.com/lucianfialho/urban-lullaby/internal/playlist"
)

func newPlaylistCommand(ctx *commandContext) *cobra.Command {
	playlistCmd := &cobra.Command{
		Use:   "playlist",
		Short: "Playlist manifest utilities",
	}
	playlistCmd.AddCommand(newPlaylistVerifyCommand(ctx))
	return playlistCmd
}

func newPlaylistVerifyCommand(ctx *commandContext) *cobra.Command {
	var decode bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "verify <manifest>",
		Short: "Check that every file in an ffconcat manifest exists and is readable",
		Long: "Check every entry of an ffconcat manifest. With --decode the whole playlist is\n" +
			"also decoded through ffmpeg's concat demuxer. Without --decode no\n" +
			"configuration is required.",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			var opts []playlist.VerifyOption
			if decode {
				binary := "ffmpeg"
				if cfg, err := ctx.ensureConfig(); err == nil {
					binary = cfg.FFmpegBinary()
				}
				opts = append(opts, playlist.WithDecodeCheck(ffmpeg.New(binary)))
			}

			report, err := playlist.Verify(cmd.Context(), manifest, opts...)
			if err != nil {
				return err
			}
			if asJSON {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				renderReport(cmd, report)
			}
			if !report.OK() {
				return fmt.Errorf("manifest %s failed verification", manifest)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&decode, "decode", false, "Decode the full playlist with ffmpeg")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func renderReport(cmd *cobra.Command, report playlist.Report) {
	out := cmd.OutOrStdout()
	columns := []column{
		{title: "#", right: true},
		{title: "File"},
		{title: "Artist"},
		{title: "Title"},
		{title: "Size", right: true},
		{title: "Result"},
	}
	rows := make([][]string, 0, len(report.Entries))
	for i, e := range report.Entries {
		result := "ok"
		switch {
		case !e.Exists:
			result = "missing"
		case e.Size == 0:
			result = "empty"
		case e.Error != "":
			result = e.Error
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			filepath.Base(e.Path),
			e.Artist,
			e.Title,
			strconv.FormatInt(e.Size, 10),
			result,
		})
	}
	fmt.Fprintln(out, renderTable(columns, rows))

	p := newStatusPrinter(out)
	if report.DecodeError != "" {
		p.line("Decode", statusError, report.DecodeError)
	}
	if report.OK() {
		p.line("Manifest", statusOK, fmt.Sprintf("%d entries", len(report.Entries)))
	} else {
		p.line("Manifest", statusError, fmt.Sprintf("%d of %d entries failed", report.Failed(), len(report.Entries)))
	}
}
