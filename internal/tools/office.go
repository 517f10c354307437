package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docbot/internal/services"
)

// OfficeFormat describes one family of Office documents LibreOffice converts.
type OfficeFormat struct {
	Name       string
	Filter     string
	Extensions []string
}

var (
	FormatWord = OfficeFormat{
		Name:       "word",
		Filter:     "pdf:writer_pdf_Export",
		Extensions: []string{".doc", ".docx"},
	}
	FormatPresentation = OfficeFormat{
		Name:       "powerpoint",
		Filter:     "pdf:impress_pdf_Export",
		Extensions: []string{".ppt", ".pptx", ".pps", ".ppsx"},
	}
	FormatSpreadsheet = OfficeFormat{
		Name:       "excel",
		Filter:     "pdf:calc_pdf_Export",
		Extensions: []string{".xls", ".xlsx", ".xlsm", ".xlsb", ".csv"},
	}
)

// OfficeFormatByName resolves a format from its name; unknown names convert
// with the generic pdf filter.
func OfficeFormatByName(name string) OfficeFormat {
	for _, f := range []OfficeFormat{FormatWord, FormatPresentation, FormatSpreadsheet} {
		if f.Name == name {
			return f
		}
	}
	return OfficeFormat{Name: name, Filter: "pdf"}
}

// Accepts reports whether filename carries one of the format's extensions.
func (f OfficeFormat) Accepts(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, candidate := range f.Extensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// LibreOffice converts Office documents to PDF in headless mode.
type LibreOffice struct {
	binary string
	xvfb   string
	runner *Runner
}

// NewLibreOffice constructs the converter. xvfb may be empty to disable the
// virtual display fallback.
func NewLibreOffice(binary, xvfb string, runner *Runner) *LibreOffice {
	if binary == "" {
		binary = "soffice"
	}
	return &LibreOffice{binary: binary, xvfb: xvfb, runner: runner}
}

// Convert renders input into outDir and returns the produced PDF path.
func (l *LibreOffice) Convert(ctx context.Context, input, outDir string, format OfficeFormat) (string, error) {
	absInput, err := filepath.Abs(input)
	if err != nil {
		return "", fmt.Errorf("resolve input: %w", err)
	}
	absOut, err := filepath.Abs(outDir)
	if err != nil {
		return "", fmt.Errorf("resolve output directory: %w", err)
	}
	if err := os.MkdirAll(absOut, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(absInput), filepath.Ext(absInput))
	expected := filepath.Join(absOut, stem+".pdf")

	_, runErr := l.runner.Run(ctx, Command{
		Binary: l.binary,
		Args:   ConvertArgs(absInput, absOut, format),
		Dir:    absOut,
		Env:    headlessEnv(absOut),
	})
	var toolErr *services.ExternalToolError
	if runErr != nil && errors.As(runErr, &toolErr) && strings.Contains(toolErr.Stderr, "Can't open display") && l.xvfb != "" {
		_, runErr = l.runner.Run(ctx, Command{
			Binary: l.xvfb,
			Args:   []string{"-a", l.binary, "--headless", "--convert-to", "pdf", "--outdir", absOut, absInput},
			Dir:    absOut,
			Env:    []string{"HOME=" + absOut},
		})
	}
	if runErr != nil {
		return "", runErr
	}
	if info, err := os.Stat(expected); err != nil || info.Size() == 0 {
		return "", &services.ExternalToolError{
			Tool:    services.ToolLibreOffice,
			Message: "LibreOffice error: conversion produced no output for " + filepath.Base(absInput),
			Command: l.binary,
		}
	}
	return expected, nil
}

// ConvertArgs builds the headless conversion argument list.
func ConvertArgs(input, outDir string, format OfficeFormat) []string {
	filter := format.Filter
	if filter == "" {
		filter = "pdf"
	}
	return []string{
		"--headless",
		"--norestore",
		"--invisible",
		"--nologo",
		"--nolockcheck",
		"--nodefault",
		"--nofirststartwizard",
		"--convert-to", filter,
		"--outdir", outDir,
		input,
	}
}

func headlessEnv(home string) []string {
	return []string{
		"HOME=" + home,
		"DISPLAY=",
		"SAL_USE_VCLPLUGIN=svp",
		"SAL_DISABLE_SYNCHRONIZATION=1",
		"LC_ALL=C.UTF-8",
		"LANG=C.UTF-8",
		"AVOIDX11=1",
		"QT_QPA_PLATFORM=offscreen",
		"XAUTHORITY=/dev/null",
		"NO_AT_BRIDGE=1",
		"XDG_RUNTIME_DIR=/tmp",
	}
}
