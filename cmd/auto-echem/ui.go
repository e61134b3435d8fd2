package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"

	"github.com/calvinmclean/autoechem/controller"
	"github.com/calvinmclean/autoechem/ui"
)

func runUI(ctx context.Context, changed func(flag string) bool) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	// Stop in the window cancels the run but keeps the window open to show the outcome
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	application := app.NewWithID("io.github.calvinmclean.autoechem")

	var (
		wg     sync.WaitGroup
		runErr error
	)

	configWindow := ui.NewConfigWindow(application)
	configWindow.Explicit = explicitSettings(changed)
	configWindow.OnSubmit = func(s ui.Settings) {
		v.Set("profile", s.Profile)
		v.Set("simulate", s.Simulate)
		v.Set("console.port", s.ConsolePort)

		cfg, err := controller.LoadConfig(v, configPath)
		if err != nil {
			ui.ShowError(application, err)
			return
		}
		c, err := controller.New(cfg, logger)
		if err != nil {
			ui.ShowError(application, err)
			return
		}

		var out io.Writer = os.Stdout
		var closePort func() error
		if cfg.Console.Port != "" && cfg.Console.Port != controller.SerialPortNone {
			port, err := controller.OpenConsolePort(cfg.Console)
			if err != nil {
				c.Close()
				ui.ShowError(application, err)
				return
			}
			out = io.MultiWriter(os.Stdout, port)
			closePort = port.Close
		}

		runner := ui.NewRunnerUI(application, cfg.Plan.Experiments, out, cfg.Unattended)
		runner.Show(cancel)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.Close()
			if closePort != nil {
				defer closePort()
			}

			err := c.Run(ctx, runner, runner)
			if ctx.Err() != nil {
				logger.Warn("run stopped, switching off all devices")
				err = errors.Join(err, c.SwitchOff())
			}
			runErr = err
			runner.Finished(err)
		}()
	}

	configWindow.Show(ui.Settings{
		Profile:     cfg.Profile,
		ConsolePort: cfg.Console.Port,
		Simulate:    cfg.Simulate,
	})

	quit := make(chan struct{})
	go func() {
		select {
		case <-sigCtx.Done():
			fyne.Do(func() {
				application.Quit()
			})
		case <-quit:
		}
	}()

	application.Run()
	close(quit)
	cancel()
	wg.Wait()
	return runErr
}

// explicitSettings lists the window settings that were given by a flag or an environment variable
func explicitSettings(changed func(flag string) bool) []string {
	var explicit []string
	for _, s := range []struct{ setting, flag, env string }{
		{ui.SettingProfile, "profile", "AUTOECHEM_PROFILE"},
		{ui.SettingConsolePort, "console-port", "AUTOECHEM_CONSOLE_PORT"},
		{ui.SettingSimulate, "simulate", "AUTOECHEM_SIMULATE"},
	} {
		_, fromEnv := os.LookupEnv(s.env)
		if changed(s.flag) || fromEnv {
			explicit = append(explicit, s.setting)
		}
	}
	return explicit
}
