package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/calvinmclean/autoechem/controller"
	"github.com/calvinmclean/autoechem/sequencer"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	configPath string
	v          = viper.New()
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "auto-echem",
		Short:        "Run the automated electrochemistry instrument",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default searches /etc/auto-echem, $HOME/.auto-echem and .)")
	flags.String("profile", controller.DefaultProfile, "built-in profile: "+strings.Join(controller.ProfileNames(), ", "))
	flags.Bool("simulate", false, "use simulated pins and a virtual clock")
	flags.Bool("unattended", false, "start every vial without asking the operator")
	flags.String("console-port", "", "serial port for operator prompts instead of the terminal")
	flags.String("log-level", "", "debug, info, warn or error")
	flags.String("log-file", "", "also write JSON logs to this rotating file")

	for key, flag := range map[string]string{
		"profile":      "profile",
		"simulate":     "simulate",
		"unattended":   "unattended",
		"console.port": "console-port",
		"log.level":    "log-level",
		"log.file":     "log-file",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		newRunCommand(),
		newStirCommand(),
		newOffCommand(),
		newPortsCommand(),
		newPlanCommand(),
	)
	return root
}

func newRunCommand() *cobra.Command {
	var enableUI bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Prime the lines and run every experiment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if enableUI || os.Getenv("ENABLE_UI") == "true" {
				return runUI(cmd.Context(), cmd.Flags().Changed)
			}
			return runCLI(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&enableUI, "ui", false, "show the operator window")
	return cmd
}

func newStirCommand() *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "stir",
		Short: "Run only the stirrer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withController(cmd.Context(), func(ctx context.Context, c *controller.Controller) error {
				err := c.Stir(ctx, duration)
				if err == nil {
					fmt.Println("Done")
				}
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to stir")
	return cmd
}

func newOffCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "off",
		Short: "Power off the steppers, stop the pump and close the valves",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withController(cmd.Context(), func(_ context.Context, c *controller.Controller) error {
				return c.SwitchOff()
			})
		},
	}
}

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List USB serial ports that can carry the operator console",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := controller.GetSerialPorts()
			if err != nil {
				return err
			}
			for _, p := range ports {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
}

func newPlanCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Validate the configuration and print the effective plan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := controller.LoadConfig(v, configPath)
			if err != nil {
				return err
			}
			plan, err := cfg.SequencerPlan()
			if err != nil {
				return err
			}
			printPlan(cmd.OutOrStdout(), cfg, plan)
			return nil
		},
	}
}

func printPlan(out io.Writer, cfg controller.Config, plan sequencer.Plan) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	defer w.Flush()

	d := plan.Durations
	for _, row := range [][2]string{
		{"profile", cfg.Profile},
		{"simulate", fmt.Sprint(cfg.Simulate)},
		{"experiments", fmt.Sprint(plan.Experiments)},
		{"cleaning cycles", fmt.Sprint(plan.CleaningCycles)},
		{"vial coordinates (mm)", fmt.Sprint(plan.Coordinates[:plan.Experiments+1])},
		{"waste coordinate (mm)", fmt.Sprint(plan.WasteCoordinate)},
		{"steps per mm", fmt.Sprint(plan.StepsPerMM)},
		{"prime / dispense steps", fmt.Sprintf("%d / %d (%s)", plan.PrimeSteps, plan.DispenseSteps, plan.SyringeDirection)},
		{"stir direction", plan.StirDirection.String()},
		{"pump fill / purge", fmt.Sprintf("%s / %s", d.PumpFill, d.Purge)},
		{"settle / reaction", fmt.Sprintf("%s / %s", d.Settle, d.Reaction)},
		{"drain", d.Drain.String()},
		{"cleaning pump / stir", fmt.Sprintf("%s / %s", d.CleaningPump, d.Cleaning)},
	} {
		fmt.Fprintf(w, "%s:\t%s\n", row[0], row[1])
	}
}

// setup loads the configuration and creates the logger
func setup() (controller.Config, *zap.Logger, error) {
	cfg, err := controller.LoadConfig(v, configPath)
	if err != nil {
		return controller.Config{}, nil, err
	}
	logger, err := controller.NewLogger(cfg.Log)
	if err != nil {
		return controller.Config{}, nil, err
	}
	return cfg, logger, nil
}

// withController builds the instrument and runs f with a context that is cancelled by SIGINT or
// SIGTERM. When interrupted, every device is switched off before returning.
func withController(ctx context.Context, f func(context.Context, *controller.Controller) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	c, err := controller.New(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = f(ctx, c)
	if ctx.Err() != nil {
		logger.Warn("interrupted, switching off all devices")
		return errors.Join(err, c.SwitchOff())
	}
	return err
}

func runCLI(ctx context.Context) error {
	return withController(ctx, func(ctx context.Context, c *controller.Controller) error {
		console, closeConsole, err := openConsole(c.Config())
		if err != nil {
			return err
		}
		defer closeConsole()

		return c.Run(ctx, console)
	})
}

// openConsole picks the operator console: none when unattended, a serial port when configured,
// otherwise the terminal
func openConsole(cfg controller.Config) (sequencer.Console, func(), error) {
	if cfg.Unattended {
		return sequencer.AutoConfirm{W: os.Stdout}, func() {}, nil
	}

	if cfg.Console.Port == "" || cfg.Console.Port == controller.SerialPortNone {
		return sequencer.NewLineConsole(os.Stdin, os.Stdout), func() {}, nil
	}

	port, err := controller.OpenConsolePort(cfg.Console)
	if err != nil {
		return nil, nil, err
	}
	return sequencer.NewLineConsole(port, io.MultiWriter(os.Stdout, port)), func() { _ = port.Close() }, nil
}
