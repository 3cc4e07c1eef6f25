package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/spectrodo/pkg/config"
	"github.com/itohio/spectrodo/pkg/sensor"
)

var (
	gainOptions = []string{"1x", "3.7x", "16x", "64x"}
	modeOptions = []string{"4chan", "4chan_2", "6chan_continuous", "6chan_one_shot"}
)

// showSettingsDialog displays a settings dialog with tabs for all configuration options.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createSerialTab(state),
		createSensorTab(state),
		createCaptureTab(state),
		createMockTab(state),
	)

	content := container.NewBorder(nil, nil, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

// saveConfig validates and writes the configuration.
func saveConfig(state *appState) bool {
	if err := state.cfg.Validate(); err != nil {
		dialog.ShowError(err, state.window)
		return false
	}
	if err := state.cfg.Save(state.cfgPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return false
	}
	return true
}

// reconnect drops the current sensor and connects again with the new configuration.
func reconnect(state *appState) {
	if state.dev == nil {
		return
	}
	if state.busy {
		dialog.ShowInformation("Settings", "Saved. Reconnect after the running command to apply.", state.window)
		return
	}
	disconnect(state)
	handleConnect(state)
}

// createSerialTab creates the Serial configuration tab.
func createSerialTab(state *appState) *container.TabItem {
	ports, err := sensor.Ports()
	portOptions := []string{}
	if err == nil {
		for _, port := range ports {
			portOptions = append(portOptions, port.Name)
		}
	}

	currentPort := state.cfg.Serial.Port
	found := false
	for _, opt := range portOptions {
		if opt == currentPort {
			found = true
			break
		}
	}
	if !found && currentPort != "" {
		portOptions = append(portOptions, currentPort)
	}

	portSelect := widget.NewSelect(portOptions, nil)
	if currentPort != "" {
		portSelect.SetSelected(currentPort)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Serial.BaudRate))

	timeoutEntry := widget.NewEntry()
	timeoutEntry.SetText(state.cfg.Serial.Timeout.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
			{Text: "Reply Timeout", Widget: timeoutEntry},
		},
		OnSubmit: func() {
			old := state.cfg.Serial
			if portSelect.Selected != "" {
				state.cfg.Serial.Port = portSelect.Selected
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				state.cfg.Serial.BaudRate = baud
			}
			if timeout, err := time.ParseDuration(timeoutEntry.Text); err == nil && timeout > 0 {
				state.cfg.Serial.Timeout = timeout
			}
			if !saveConfig(state) {
				return
			}

			if old != state.cfg.Serial && state.cfg.Sensor.Driver == config.DriverSerial {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Serial", form)
}

// createSensorTab creates the Sensor configuration tab.
func createSensorTab(state *appState) *container.TabItem {
	driverSelect := widget.NewSelect([]string{config.DriverSerial, config.DriverI2C, config.DriverMock}, nil)
	driverSelect.SetSelected(state.cfg.Sensor.Driver)

	busEntry := widget.NewEntry()
	busEntry.SetText(state.cfg.Sensor.I2CBus)
	busEntry.SetPlaceHolder("first available")

	cyclesEntry := widget.NewEntry()
	cyclesEntry.SetText(strconv.Itoa(int(state.cfg.Sensor.IntegrationCycles)))

	gainSelect := widget.NewSelect(gainOptions, nil)
	gainSelect.SetSelected(state.cfg.Sensor.Gain)

	modeSelect := widget.NewSelect(modeOptions, nil)
	modeSelect.SetSelected(state.cfg.Sensor.MeasurementMode)

	indicatorCheck := widget.NewCheck("", nil)
	indicatorCheck.SetChecked(state.cfg.Sensor.Indicator)

	bulbCheck := widget.NewCheck("", nil)
	bulbCheck.SetChecked(state.cfg.Sensor.Bulb)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Driver", Widget: driverSelect},
			{Text: "I2C Bus", Widget: busEntry},
			{Text: "Integration (x2.8ms)", Widget: cyclesEntry},
			{Text: "Gain", Widget: gainSelect},
			{Text: "Measurement Mode", Widget: modeSelect},
			{Text: "Indicator LED", Widget: indicatorCheck},
			{Text: "Bulb at startup", Widget: bulbCheck},
		},
		OnSubmit: func() {
			oldDriver, oldBus := state.cfg.Sensor.Driver, state.cfg.Sensor.I2CBus

			state.cfg.Sensor.Driver = driverSelect.Selected
			state.cfg.Sensor.I2CBus = busEntry.Text
			if cycles, err := strconv.Atoi(cyclesEntry.Text); err == nil && cycles >= 1 && cycles <= 255 {
				state.cfg.Sensor.IntegrationCycles = uint8(cycles)
			}
			state.cfg.Sensor.Gain = gainSelect.Selected
			state.cfg.Sensor.MeasurementMode = modeSelect.Selected
			state.cfg.Sensor.Indicator = indicatorCheck.Checked
			state.cfg.Sensor.Bulb = bulbCheck.Checked
			if !saveConfig(state) {
				return
			}

			switch {
			case state.dev == nil:
			case oldDriver != state.cfg.Sensor.Driver || oldBus != state.cfg.Sensor.I2CBus:
				reconnect(state)
			default:
				// Same sensor: apply the new settings in place. The blank is kept.
				if err := sensor.Setup(context.Background(), state.dev, state.cfg.Sensor); err != nil {
					dialog.ShowError(err, state.window)
				}
			}
		},
	}

	return container.NewTabItem("Sensor", form)
}

// createCaptureTab creates the Capture configuration tab.
func createCaptureTab(state *appState) *container.TabItem {
	samplesEntry := widget.NewEntry()
	samplesEntry.SetText(strconv.Itoa(state.cfg.Capture.Samples))

	settleEntry := widget.NewEntry()
	settleEntry.SetText(state.cfg.Capture.SettleDelay.String())

	thresholdEntry := widget.NewEntry()
	thresholdEntry.SetText(strconv.FormatFloat(state.cfg.Capture.ValidThreshold, 'g', -1, 64))

	withBulbCheck := widget.NewCheck("", nil)
	withBulbCheck.SetChecked(state.cfg.Capture.WithBulb)

	topEntry := widget.NewEntry()
	topEntry.SetText(strconv.Itoa(state.cfg.Capture.TopN))

	chartDirEntry := widget.NewEntry()
	chartDirEntry.SetText(state.cfg.Report.ChartDir)
	chartDirEntry.SetPlaceHolder("disabled")

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Samples per capture", Widget: samplesEntry},
			{Text: "Settle delay", Widget: settleEntry},
			{Text: "Valid threshold", Widget: thresholdEntry},
			{Text: "Bulb during measurement", Widget: withBulbCheck},
			{Text: "Top channels", Widget: topEntry},
			{Text: "Chart directory", Widget: chartDirEntry},
		},
		OnSubmit: func() {
			if n, err := strconv.Atoi(samplesEntry.Text); err == nil {
				state.cfg.Capture.Samples = n
			}
			if d, err := time.ParseDuration(settleEntry.Text); err == nil {
				state.cfg.Capture.SettleDelay = d
			}
			if th, err := strconv.ParseFloat(thresholdEntry.Text, 64); err == nil {
				state.cfg.Capture.ValidThreshold = th
			}
			state.cfg.Capture.WithBulb = withBulbCheck.Checked
			if n, err := strconv.Atoi(topEntry.Text); err == nil {
				state.cfg.Capture.TopN = n
			}
			state.cfg.Report.ChartDir = chartDirEntry.Text
			saveConfig(state)
			// Capture settings take effect on the next connect.
		},
	}

	return container.NewTabItem("Capture", form)
}

// createMockTab creates the Mock sensor configuration tab.
func createMockTab(state *appState) *container.TabItem {
	lampEntry := widget.NewEntry()
	lampEntry.SetText(fmt.Sprintf("%.1f", state.cfg.Mock.Lamp))

	ambientEntry := widget.NewEntry()
	ambientEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Mock.Ambient))

	noiseLevelEntry := widget.NewEntry()
	noiseLevelEntry.SetText(fmt.Sprintf("%.4f", state.cfg.Mock.NoiseLevel))

	clearReadsEntry := widget.NewEntry()
	clearReadsEntry.SetText(strconv.Itoa(state.cfg.Mock.ClearReads))

	peakEntry := widget.NewEntry()
	peakEntry.SetText(fmt.Sprintf("%.3f", state.cfg.Mock.PeakA))

	peakChannelEntry := widget.NewEntry()
	peakChannelEntry.SetText(strconv.Itoa(state.cfg.Mock.PeakChannel))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Lamp level", Widget: lampEntry},
			{Text: "Ambient level", Widget: ambientEntry},
			{Text: "Noise Level (relative)", Widget: noiseLevelEntry},
			{Text: "Clear water reads", Widget: clearReadsEntry},
			{Text: "Peak absorbance", Widget: peakEntry},
			{Text: "Peak channel (0-17)", Widget: peakChannelEntry},
		},
		OnSubmit: func() {
			if v, err := strconv.ParseFloat(lampEntry.Text, 64); err == nil {
				state.cfg.Mock.Lamp = v
			}
			if v, err := strconv.ParseFloat(ambientEntry.Text, 64); err == nil {
				state.cfg.Mock.Ambient = v
			}
			if v, err := strconv.ParseFloat(noiseLevelEntry.Text, 64); err == nil {
				state.cfg.Mock.NoiseLevel = v
			}
			if v, err := strconv.Atoi(clearReadsEntry.Text); err == nil {
				state.cfg.Mock.ClearReads = v
			}
			if v, err := strconv.ParseFloat(peakEntry.Text, 64); err == nil {
				state.cfg.Mock.PeakA = v
			}
			if v, err := strconv.Atoi(peakChannelEntry.Text); err == nil {
				state.cfg.Mock.PeakChannel = v
			}
			if !saveConfig(state) {
				return
			}
			if state.cfg.Sensor.Driver == config.DriverMock {
				reconnect(state)
			}
		},
	}

	return container.NewTabItem("Mock", form)
}
