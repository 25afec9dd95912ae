/*
hmi.go Terminal dashboard for a running network. A splash page leads to an overview with one table
per entity kind, redrawn from the latest snapshot on every refresh.
*/

package hmi

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell"
	"github.com/rivo/tview"

	"github.com/ohowland/powernet/internal/pkg/network"
)

const logo = "-=<( powernet )>=-"

// Source provides the snapshot to draw.
type Source interface {
	Name() string
	Snapshot() network.Snapshot
}

// Page builds one dashboard page.
type Page func(*HMI) (title string, content tview.Primitive)

// HMI is the dashboard application.
type HMI struct {
	app       *tview.Application
	pages     *tview.Pages
	source    Source
	header    *tview.TextView
	splash    *tview.TextView
	batteries *tview.Table
	devices   *tview.Table
	sockets   *tview.Table
}

var (
	batteryHeader = []string{"Battery", "Charge Ah", "Charge %", "Status", "Connections"}
	deviceHeader  = []string{"Device", "Kind", "Active", "Powered", "Running", "Power In W"}
	socketHeader  = []string{"Socket", "Plugged", "Plug"}
)

// New lays out the pages without starting the terminal.
func New(source Source) *HMI {
	h := &HMI{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		source:    source,
		header:    tview.NewTextView(),
		splash:    tview.NewTextView(),
		batteries: newTable(" Batteries ", batteryHeader),
		devices:   newTable(" Devices ", deviceHeader),
		sockets:   newTable(" Sockets ", socketHeader),
	}
	for _, page := range []Page{Splash, Overview} {
		title, content := page(h)
		h.pages.AddPage(title, content, true, title == "Splash")
	}
	h.Refresh(source.Snapshot())
	return h
}

func newTable(title string, header []string) *tview.Table {
	table := tview.NewTable().SetFixed(1, 1)
	for column, name := range header {
		table.SetCell(0, column, tview.NewTableCell(name).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false))
	}
	table.SetBorder(true).SetTitle(title)
	table.SetSelectable(true, false).SetSeparator(' ')
	return table
}

func setRow(table *tview.Table, row int, cells ...string) {
	for column, text := range cells {
		color := tcell.ColorWhite
		if column == 0 {
			color = tcell.ColorDarkCyan
		}
		table.SetCell(row, column, tview.NewTableCell(text).
			SetTextColor(color).
			SetAlign(tview.AlignLeft))
	}
}

func truncate(table *tview.Table, rows int) {
	for table.GetRowCount() > rows {
		table.RemoveRow(table.GetRowCount() - 1)
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// Refresh redraws every table from snap. Call it from the application goroutine once Run
// has started.
func (h *HMI) Refresh(snap network.Snapshot) {
	h.header.SetText(fmt.Sprintf("%s  tick %d  elapsed %v", h.source.Name(), snap.Tick, snap.Elapsed))
	h.splash.SetText(splashText(h.source.Name(), snap))

	for i, b := range snap.Batteries {
		setRow(h.batteries, i+1,
			b.Name,
			fmt.Sprintf("%.2f", b.CurrentCharge),
			fmt.Sprintf("%.1f", b.ChargePercentage),
			b.ChargeStatus.String(),
			fmt.Sprintf("%d", b.Connections))
	}
	truncate(h.batteries, len(snap.Batteries)+1)

	for i, d := range snap.Devices {
		setRow(h.devices, i+1,
			d.Name,
			string(d.Kind),
			onOff(d.Active),
			onOff(d.Powered),
			onOff(d.Running),
			fmt.Sprintf("%.1f", d.PowerIn))
	}
	truncate(h.devices, len(snap.Devices)+1)

	names := make(map[string]string)
	for _, p := range snap.Plugs {
		names[p.PID.String()] = p.Name
	}
	for i, s := range snap.Sockets {
		plug := "-"
		if s.IsPluggedIn {
			plug = names[s.Plug.String()]
		}
		setRow(h.sockets, i+1, s.Name, onOff(s.IsPluggedIn), plug)
	}
	truncate(h.sockets, len(snap.Sockets)+1)
}

// Run draws until ctx is done or the user quits, refreshing every interval.
func (h *HMI) Run(ctx context.Context, interval time.Duration) error {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				snap := h.source.Snapshot()
				h.app.QueueUpdateDraw(func() {
					h.Refresh(snap)
				})
			case <-ctx.Done():
				h.app.Stop()
				return
			}
		}
	}()

	layout := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(h.pages, 0, 1, true)
	return h.app.SetRoot(layout, true).Run()
}

// Splash names the network and counts what it holds. Enter moves to the overview.
func Splash(h *HMI) (title string, content tview.Primitive) {
	h.splash.SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true).
		SetDoneFunc(func(key tcell.Key) {
			h.pages.SwitchToPage("Overview")
			h.app.SetFocus(h.devices)
		})
	h.splash.SetBorder(true).SetTitle(" " + h.source.Name() + " ")
	return "Splash", h.splash
}

// splashText is the splash body for network name holding snap.
func splashText(name string, snap network.Snapshot) string {
	plugged := 0
	for _, s := range snap.Sockets {
		if s.IsPluggedIn {
			plugged++
		}
	}
	running := 0
	for _, d := range snap.Devices {
		if d.Running {
			running++
		}
	}
	return fmt.Sprintf("[blue]%s[white]\n[::b]%s[::-]\n\n"+
		"%d batteries\n%d devices, %d running\n%d plugs\n%d sockets, %d plugged\n\n"+
		"[darkmagenta]press enter[white]",
		logo, tview.Escape(name),
		len(snap.Batteries), len(snap.Devices), running, len(snap.Plugs), len(snap.Sockets), plugged)
}

// Overview stacks the header and the three entity tables.
func Overview(h *HMI) (title string, content tview.Primitive) {
	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(h.header, 1, 0, false).
		AddItem(h.batteries, 0, 1, false).
		AddItem(h.devices, 0, 2, true).
		AddItem(h.sockets, 0, 2, false)
	return "Overview", flex
}
