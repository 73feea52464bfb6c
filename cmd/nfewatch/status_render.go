package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"nfewatch/internal/api"
	"nfewatch/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := statusKindLabel(kind)
	if message != "" {
		statusText = fmt.Sprintf("[%s] %s", statusText, message)
	} else {
		statusText = fmt.Sprintf("[%s]", statusText)
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// systemLines renders the daemon, monitor and store lines of a live status.
func systemLines(status api.DaemonStatus, colorize bool) []string {
	lines := make([]string, 0, 8)
	lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))

	monitor := status.Monitor
	interval := formatMillis(monitor.IntervalMS)
	if monitor.Running {
		lines = append(lines, renderStatusLine("Monitor", statusOK, "Polling every "+interval, colorize))
	} else {
		lines = append(lines, renderStatusLine("Monitor", statusWarn, "Stopped (run `nfewatch monitor start`)", colorize))
	}

	lastCheck := "never"
	if monitor.LastCheck != "" {
		lastCheck = monitor.LastCheck
	}
	lines = append(lines, renderStatusLine("Last check", statusInfo, lastCheck, colorize))
	lines = append(lines, renderStatusLine("Processed", statusInfo, strconv.FormatInt(monitor.Processed, 10), colorize))
	if monitor.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, monitor.LastError, colorize))
	}

	if status.Store.Connected {
		lines = append(lines, renderStatusLine("Record store", statusOK, status.Store.BaseURL, colorize))
	} else {
		lines = append(lines, renderStatusLine("Record store", statusError, status.Store.BaseURL+" (disconnected)", colorize))
	}

	watch := fmt.Sprintf("%d running task(s), %d awaited file(s)", monitor.RunningTasks, monitor.WaitingFiles)
	kind := statusInfo
	if status.Watching {
		kind = statusOK
		watch = "Active, " + watch
	}
	lines = append(lines, renderStatusLine("Watch", kind, watch, colorize))
	return lines
}

// checkLines renders preflight results for an offline status.
func checkLines(results []preflight.Result, colorize bool) []string {
	lines := make([]string, 0, len(results))
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
		}
		lines = append(lines, renderStatusLine(result.Name, kind, result.Detail, colorize))
	}
	return lines
}

func outcomeCountRows(counts map[string]int) [][]string {
	if len(counts) == 0 {
		return nil
	}
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	rows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		rows = append(rows, []string{humanLabel(kind), strconv.Itoa(counts[kind])})
	}
	return rows
}

func formatMillis(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}
