package ui

import (
	"errors"
	"fmt"
	"slices"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/data/binding"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/calvinmclean/autoechem/controller"
)

// Settings are the choices made in the ConfigWindow. They are remembered between launches.
type Settings struct {
	Profile     string
	ConsolePort string
	Simulate    bool
}

// Preference keys of the Settings fields
const (
	SettingProfile     = "profile"
	SettingConsolePort = "consolePort"
	SettingSimulate    = "simulate"
)

type ConfigWindow struct {
	app      fyne.App
	OnSubmit func(Settings)
	// Explicit lists the settings given on the command line or in the environment. Saved
	// preferences do not replace them.
	Explicit []string
}

func NewConfigWindow(app fyne.App) *ConfigWindow {
	return &ConfigWindow{
		app: app,
	}
}

func loadSettingsFromPreferences(prefs fyne.Preferences, s *Settings, explicit []string) {
	if !slices.Contains(explicit, SettingProfile) {
		s.Profile = prefs.StringWithFallback(SettingProfile, s.Profile)
	}
	if !slices.Contains(explicit, SettingConsolePort) {
		s.ConsolePort = prefs.StringWithFallback(SettingConsolePort, s.ConsolePort)
	}
	if !slices.Contains(explicit, SettingSimulate) {
		s.Simulate = prefs.BoolWithFallback(SettingSimulate, s.Simulate)
	}
}

func saveSettingsToPreferences(prefs fyne.Preferences, s *Settings) {
	prefs.SetString(SettingProfile, s.Profile)
	prefs.SetString(SettingConsolePort, s.ConsolePort)
	prefs.SetBool(SettingSimulate, s.Simulate)
}

// Show opens the window with defaults taken from the loaded configuration, overridden by the last
// submitted Settings unless they are Explicit
func (cw *ConfigWindow) Show(defaults Settings) {
	window := cw.app.NewWindow("Auto Echem - Configuration")
	window.Resize(fyne.NewSize(400, 220))
	window.SetCloseIntercept(func() {
		// Treat window close as cancel
		window.Close()
		cw.app.Quit()
	})
	window.Show()

	settings := defaults
	loadSettingsFromPreferences(cw.app.Preferences(), &settings, cw.Explicit)

	serialPorts, err := controller.GetSerialPorts()
	if err != nil && !errors.Is(err, controller.ErrNoUSBSerial) {
		showError(cw.app, window, fmt.Errorf("error getting serial ports: %w", err))
		return
	}
	serialPorts = append([]string{controller.SerialPortNone}, serialPorts...)
	if settings.ConsolePort == "" || !slices.Contains(serialPorts, settings.ConsolePort) {
		settings.ConsolePort = controller.SerialPortNone
	}

	profiles := controller.ProfileNames()
	if !slices.Contains(profiles, settings.Profile) {
		settings.Profile = controller.DefaultProfile
	}

	profileEntry := widget.NewSelect(profiles, nil)
	profileEntry.Bind(binding.BindString(&settings.Profile))

	serialEntry := widget.NewSelect(serialPorts, nil)
	serialEntry.Bind(binding.BindString(&settings.ConsolePort))

	simulateEntry := widget.NewCheck("", nil)
	simulateEntry.Bind(binding.BindBool(&settings.Simulate))

	submitButton := widget.NewButton("Submit", func() {
		saveSettingsToPreferences(cw.app.Preferences(), &settings)
		if cw.OnSubmit != nil {
			cw.OnSubmit(settings)
		}
		window.Close()
	})
	submitButton.Importance = widget.HighImportance

	form := container.NewVBox(
		widget.NewCard("Configuration", "", container.NewVBox(
			container.NewGridWithColumns(2,
				widget.NewLabel("Profile:"),
				profileEntry,
			),
			container.NewGridWithColumns(2,
				widget.NewLabel("Console Serial Port:"),
				serialEntry,
			),
			container.NewGridWithColumns(2,
				widget.NewLabel("Simulate:"),
				simulateEntry,
			),
		)),
		container.NewHBox(
			widget.NewButton("Cancel", func() {
				window.Close()
				cw.app.Quit()
			}),
			submitButton,
		),
	)

	window.SetContent(form)
}

func showError(app fyne.App, window fyne.Window, err error) {
	d := dialog.NewError(err, window)
	d.SetOnClosed(func() {
		app.Quit()
	})
	d.Show()
}

// ShowError opens a window with err and quits the app when it is dismissed
func ShowError(app fyne.App, err error) {
	window := app.NewWindow("Auto Echem - Error")
	window.Resize(fyne.NewSize(400, 150))
	window.Show()
	showError(app, window, err)
}
