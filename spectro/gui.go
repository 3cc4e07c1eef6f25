package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/itohio/spectrodo/pkg/chart"
	"github.com/itohio/spectrodo/pkg/config"
	"github.com/itohio/spectrodo/pkg/console"
	"github.com/itohio/spectrodo/pkg/report"
	"github.com/itohio/spectrodo/pkg/sensor"
	"github.com/itohio/spectrodo/pkg/session"
)

// maxOutputLines bounds the text shown in the output pane.
const maxOutputLines = 400

// appState holds the application state. Fields are only touched on the Fyne goroutine.
type appState struct {
	cfg     *config.Config
	cfgPath string
	window  fyne.Window

	dev     sensor.Sensor
	sess    *session.Session
	console *console.Console
	busy    bool

	chart  *chart.SpectrumWidget
	output *outputPane

	connectBtn *widget.Button
	blankBtn   *widget.Button
	sampleBtn  *widget.Button
	bulbBtn    *widget.Button
	reprintBtn *widget.Button
	exportBtn  *widget.Button
}

func runGUI(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	// Create Fyne application
	application := app.NewWithID("com.itohio.spectrodo")

	// Create main window
	window := application.NewWindow("AS7265x DO Colorimetry")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:     cfg,
		cfgPath: c.String(flagConfig),
		window:  window,
		chart:   chart.New(),
		output:  newOutputPane(),
	}

	toolbar := createToolbar(state)
	split := container.NewVSplit(state.chart, state.output.scroll)
	split.Offset = 0.6

	window.SetContent(container.NewBorder(toolbar, nil, nil, nil, split))
	window.SetOnClosed(func() {
		if state.dev != nil {
			if err := state.dev.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close sensor")
			}
		}
	})
	window.ShowAndRun()
	return nil
}

// createToolbar creates the application toolbar with Connect, Settings and the command buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	state.connectBtn = widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})

	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	state.blankBtn = widget.NewButton("Blank", func() { runCommand(state, console.CmdBlank) })
	state.sampleBtn = widget.NewButton("Sample", func() { runCommand(state, console.CmdSample) })
	state.bulbBtn = widget.NewButtonWithIcon("Bulb", theme.VisibilityIcon(), func() { runCommand(state, console.CmdBulb) })
	state.reprintBtn = widget.NewButtonWithIcon("", theme.ViewRefreshIcon(), func() { runCommand(state, console.CmdReprint) })
	state.exportBtn = widget.NewButtonWithIcon("", theme.DocumentSaveIcon(), func() { handleExport(state) })

	updateCommandButtons(state)

	return container.NewBorder(
		nil, // top
		nil, // bottom
		container.NewHBox(state.connectBtn, settingsBtn), // left
		container.NewHBox(state.blankBtn, state.sampleBtn, state.bulbBtn, state.reprintBtn, state.exportBtn), // right
		nil, // center (spacer)
	)
}

// handleConnect handles the connect/disconnect button click.
func handleConnect(state *appState) {
	if state.busy {
		return
	}
	if state.dev != nil {
		disconnect(state)
		return
	}

	dev, err := sensor.New(state.cfg)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}

	state.busy = true
	updateCommandButtons(state)
	state.connectBtn.Disable()

	sensorCfg := state.cfg.Sensor
	go func() {
		err := sensor.Setup(context.Background(), dev, sensorCfg)
		fyne.Do(func() {
			state.busy = false
			state.connectBtn.Enable()
			if err != nil {
				dev.Close()
				if errors.Is(err, sensor.ErrNotDetected) {
					err = fmt.Errorf("AS7265x not detected. Check Qwiic cable/power (3.3V) and I2C wires: %w", err)
				}
				dialog.ShowError(err, state.window)
				updateCommandButtons(state)
				return
			}
			attach(state, dev)
		})
	}()
}

// attach creates a fresh session for a connected sensor.
func attach(state *appState, dev sensor.Sensor) {
	state.dev = dev
	state.sess = session.New(dev, state.cfg)
	state.console = console.New(state.output, state.sess, console.WithChartDir(state.cfg.Report.ChartDir))

	state.sess.OnUpdate(func(snap session.Snapshot) {
		fyne.Do(func() {
			state.chart.UpdateData(snap)
			updateBulbButton(state.bulbBtn, snap.Bulb)
		})
	})

	state.output.Clear()
	state.console.Banner()
	state.console.Ready()
	state.chart.UpdateData(state.sess.Snapshot())
	updateBulbButton(state.bulbBtn, state.sess.Snapshot().Bulb)
	state.connectBtn.SetIcon(theme.LogoutIcon())
	updateCommandButtons(state)
	log.Info().Str("driver", state.cfg.Sensor.Driver).Msg("connected")
}

func disconnect(state *appState) {
	if err := state.dev.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close sensor")
	}
	state.dev = nil
	state.sess = nil
	state.console = nil
	state.connectBtn.SetIcon(theme.LoginIcon())
	updateCommandButtons(state)
	log.Info().Msg("disconnected")
}

// runCommand dispatches a console command off the UI goroutine. Commands run one at a time.
func runCommand(state *appState, cmd byte) {
	if state.console == nil || state.busy {
		return
	}
	state.busy = true
	updateCommandButtons(state)

	con := state.console
	go func() {
		con.Dispatch(context.Background(), cmd)
		fyne.Do(func() {
			state.busy = false
			updateCommandButtons(state)
		})
	}()
}

// handleExport saves the absorbance chart of the last sample.
func handleExport(state *appState) {
	if state.sess == nil {
		return
	}
	snap := state.sess.Snapshot()
	if snap.SampleAt.IsZero() {
		dialog.ShowInformation("Export", "No sample captured yet.", state.window)
		return
	}

	dir := state.cfg.Report.ChartDir
	if dir == "" {
		dir = "."
	}
	path, err := report.Export(dir, snap.SampleAt, snap.Absorbance, snap.Top)
	if err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	dialog.ShowInformation("Export", "Chart saved to "+path, state.window)
}

// updateCommandButtons enables the command buttons only while a session is idle.
func updateCommandButtons(state *appState) {
	ready := state.sess != nil && !state.busy
	for _, btn := range []*widget.Button{state.blankBtn, state.sampleBtn, state.bulbBtn, state.reprintBtn, state.exportBtn} {
		if ready {
			btn.Enable()
		} else {
			btn.Disable()
		}
	}
}

// updateBulbButton updates the bulb button's visual state.
func updateBulbButton(btn *widget.Button, isOn bool) {
	if isOn {
		btn.Importance = widget.HighImportance
	} else {
		btn.Importance = widget.MediumImportance
	}
	btn.Refresh()
}

// outputPane is a scrolling monospace text view that console output is written to.
// Write may be called from any goroutine.
type outputPane struct {
	grid   *widget.TextGrid
	scroll *container.Scroll

	mu    sync.Mutex
	lines []string
	tail  string
}

func newOutputPane() *outputPane {
	grid := widget.NewTextGrid()
	return &outputPane{
		grid:   grid,
		scroll: container.NewScroll(grid),
	}
}

// Write appends p and schedules a redraw on the Fyne goroutine.
func (o *outputPane) Write(p []byte) (int, error) {
	o.mu.Lock()
	parts := strings.Split(o.tail+string(p), "\n")
	o.tail = parts[len(parts)-1]
	o.lines = append(o.lines, parts[:len(parts)-1]...)
	if len(o.lines) > maxOutputLines {
		o.lines = o.lines[len(o.lines)-maxOutputLines:]
	}
	text := strings.Join(o.lines, "\n")
	if o.tail != "" {
		text += "\n" + o.tail
	}
	o.mu.Unlock()

	fyne.Do(func() {
		o.grid.SetText(text)
		o.scroll.ScrollToBottom()
	})
	return len(p), nil
}

// Clear removes all text.
func (o *outputPane) Clear() {
	o.mu.Lock()
	o.lines = o.lines[:0]
	o.tail = ""
	o.mu.Unlock()
	o.grid.SetText("")
}
