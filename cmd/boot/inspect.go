package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-boot/engine"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFDD57"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#98FB98"))
)

var errNotLinkable = stderrors.New("module cannot be linked against this host")

// inspectReport is the JSON form of engine.Info.
type inspectReport struct {
	Location string          `json:"location"`
	Entry    string          `json:"entry,omitempty"`
	EntryErr string          `json:"entry_error,omitempty"`
	Imports  []engine.Import `json:"imports"`
	Exports  []engine.Export `json:"exports"`
	Sections []sectionReport `json:"sections"`
	Size     int             `json:"size"`
	Version  uint16          `json:"version"`
	Linkable bool            `json:"linkable"`
}

type sectionReport struct {
	Name   string `json:"name"`
	Offset int    `json:"offset"`
	Size   uint32 `json:"size"`
	ID     byte   `json:"id"`
}

func newInspectCmd(std streams, configFile *string) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Report a module's imports, exports and entry without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(cmd, *configFile, std)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			eng, err := newEngine(ctx, cfg, logger, std)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close(ctx) }()

			info, err := eng.Inspect(ctx, cfg.Module.Location)
			if err != nil {
				return err
			}

			if asJSON {
				err = writeReport(std.out, info)
			} else {
				err = renderInfo(std.out, info)
			}
			if err != nil {
				return err
			}
			if !info.Linkable() {
				return reportedError{errNotLinkable}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newReport(info *engine.Info) inspectReport {
	r := inspectReport{
		Location: info.Location,
		Entry:    info.Entry,
		Imports:  info.Imports,
		Exports:  info.Exports,
		Sections: make([]sectionReport, 0, len(info.Sections)),
		Size:     info.Size,
		Version:  info.Version,
		Linkable: info.Linkable(),
	}
	if info.EntryErr != nil {
		r.EntryErr = info.EntryErr.Error()
	}
	for _, s := range info.Sections {
		r.Sections = append(r.Sections, sectionReport{Name: s.Name, Offset: s.Offset, Size: s.Size, ID: s.ID})
	}
	return r
}

func writeReport(w io.Writer, info *engine.Info) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newReport(info))
}

func renderInfo(w io.Writer, info *engine.Info) error {
	entry := okStyle.Render(info.Entry)
	if info.EntryErr != nil {
		entry = errorStyle.Render(info.EntryErr.Error())
	}

	summary := table.New().
		Border(lipgloss.HiddenBorder()).
		Row("location", info.Location).
		Row("size", strconv.Itoa(info.Size)+" bytes").
		Row("version", strconv.Itoa(int(info.Version))).
		Row("entry", entry)

	sections := table.New().Headers("id", "section", "offset", "size")
	for _, s := range info.Sections {
		sections.Row(strconv.Itoa(int(s.ID)), s.Name, strconv.Itoa(s.Offset), strconv.FormatUint(uint64(s.Size), 10))
	}

	imports := table.New().Headers("import", "signature", "host")
	for _, imp := range info.Imports {
		status := okStyle.Render("ok")
		switch {
		case !imp.Provided:
			status = errorStyle.Render("missing")
		case imp.Want != "":
			status = errorStyle.Render("want " + imp.Want)
		}
		imports.Row(imp.Module+"."+imp.Name, imp.Signature, status)
	}

	exports := table.New().Headers("export", "signature")
	for _, exp := range info.Exports {
		exports.Row(exp.Name, exp.Signature)
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n\n%s\n%s\n\n%s\n%s\n\n%s\n%s\n",
		headingStyle.Render("module"), summary.Render(),
		headingStyle.Render("sections"), sections.Render(),
		headingStyle.Render("imports"), imports.Render(),
		headingStyle.Render("exports"), exports.Render())
	return err
}
