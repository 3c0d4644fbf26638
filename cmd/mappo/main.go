package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mappo/internal/agenda"
	"mappo/internal/catalog"
	"mappo/internal/config"
	"mappo/internal/database"
	"mappo/internal/google"
	"mappo/internal/icloud"
	"mappo/internal/local"
	"mappo/internal/models"
	"mappo/internal/planner"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/oauth2"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	// Load .env file first, but don't error if it doesn't exist.
	config.LoadDotEnv()

	app := &cli.App{
		Name:  "mappo",
		Usage: "Schedule Mappo travel experiences in your calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "provider", Usage: "Calendar provider: local, google or icloud. Overrides MAPPO_PROVIDER."},
			&cli.StringFlag{Name: "platform", Usage: "Calendar model: ios or android. Overrides MAPPO_PLATFORM."},
		},
		Commands: []*cli.Command{
			authCommand(),
			packagesCommand(),
			optionsCommand(),
			scheduleCommand(),
			eventsCommand(),
			permissionCommand(),
			seedCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// env bundles what every command needs.
type env struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider planner.CalendarProvider
	device   *local.Provider
	close    func()
}

func loadConfig(c *cli.Context) (*config.Config, *slog.Logger, error) {
	if v := c.String("provider"); v != "" {
		os.Setenv("MAPPO_PROVIDER", v)
	}
	if v := c.String("platform"); v != "" {
		os.Setenv("MAPPO_PLATFORM", v)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, setupLogger(cfg.LogLevel, cfg.LogFile), nil
}

func openEnv(c *cli.Context) (*env, error) {
	cfg, logger, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, logger: logger, close: func() {}}

	switch cfg.Provider {
	case config.ProviderLocal:
		db, err := database.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open device calendar: %w", err)
		}
		e.device = local.NewProvider(logger, db)
		e.provider = e.device
		e.close = func() { db.Close() }

	case config.ProviderGoogle:
		account := cfg.GoogleAccount
		if account == "" {
			accounts, err := google.GetTokenAccounts(".")
			if err != nil || len(accounts) == 0 {
				return nil, fmt.Errorf("no google accounts found. Run the 'auth' command first")
			}
			account = accounts[0]
		}
		client, err := google.NewClient(c.Context, logger, cfg.GoogleClientID, cfg.GoogleClientSecret, account, cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to create google client for account %s: %w", account, err)
		}
		e.provider = client

	case config.ProviderICloud:
		client, err := icloud.NewClient(logger, cfg.ICloudEndpoint, cfg.ICloudUsername, cfg.ICloudPassword, cfg.ICloudCalendarName, cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to create icloud client: %w", err)
		}
		e.provider = client
	}

	logger.Debug("Calendar provider ready.", "provider", cfg.Provider, "platform", cfg.Platform)
	return e, nil
}

func (e *env) now() time.Time {
	return time.Now().In(e.cfg.Location)
}

func (e *env) catalog() (*catalog.Catalog, error) {
	cat, err := catalog.Load(e.cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return cat, nil
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authenticate with a Google account to get an API token.",
		Action: func(c *cli.Context) error {
			cfg, logger, err := loadConfig(c)
			if err != nil {
				return err
			}
			logger.Info("Starting Google authentication flow.")

			oauthConfig, err := google.GetOAuthConfigForAuthFlow(cfg.GoogleClientID, cfg.GoogleClientSecret)
			if err != nil {
				return fmt.Errorf("failed to get google oauth config: %w", err)
			}

			authURL := oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
			fmt.Printf("Go to the following link in your browser then type the "+
				"authorization code: \n%v\n", authURL)

			fmt.Print("Enter Authorization Code: ")
			reader := bufio.NewReader(os.Stdin)
			authCode, _ := reader.ReadString('\n')
			authCode = strings.TrimSpace(authCode)

			token, err := google.TokenFromWeb(c.Context, oauthConfig, authCode)
			if err != nil {
				return fmt.Errorf("unable to retrieve token from web: %w", err)
			}

			fmt.Print("Enter a name for this account (e.g., 'personal', 'work'): ")
			accountName, _ := reader.ReadString('\n')
			accountName = strings.TrimSpace(accountName)
			tokenFile := google.TokenFile(accountName)

			if err := google.SaveToken(tokenFile, token); err != nil {
				return fmt.Errorf("failed to save token: %w", err)
			}

			logger.Info("Successfully authenticated and saved token.", "file", tokenFile)
			return nil
		},
	}
}

func packagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "packages",
		Usage: "List the experiences that can be scheduled.",
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}
			cat, err := catalog.Load(cfg.Catalog)
			if err != nil {
				return fmt.Errorf("failed to load catalog: %w", err)
			}
			for _, p := range cat.Packages() {
				fmt.Printf("%-14s %s (%v)\n", p.ID, p.Title, p.Duration())
				fmt.Printf("%-14s %s\n", "", p.MeetingPoint)
				for _, r := range p.Recommendations {
					fmt.Printf("%-14s · %s\n", "", r)
				}
			}
			return nil
		},
	}
}

func optionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "options",
		Usage: "Show the schedule options offered right now.",
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfig(c)
			if err != nil {
				return err
			}
			printOptions(planner.GenerateOptions(time.Now().In(cfg.Location)))
			return nil
		},
	}
}

func printOptions(options []models.ScheduleOption) {
	for _, o := range options {
		fmt.Printf("%-9s %s\n", o.ID, o.Label)
	}
}

func scheduleCommand() *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "Add an experience to your calendar.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "package", Required: true, Usage: "Package id (see 'packages')."},
			&cli.StringFlag{Name: "option", Usage: "Option id: tomorrow, weekend or sunset. Omit to list the options."},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()

			cat, err := e.catalog()
			if err != nil {
				return err
			}
			pkg, err := cat.Find(c.String("package"))
			if err != nil {
				return err
			}

			flow := planner.NewFlow(e.logger, e.provider, e.cfg.Platform)
			if err := flow.SelectPackage(pkg, e.now()); err != nil {
				return err
			}
			if c.String("option") == "" {
				fmt.Printf("Programar experiencia: %s\n", pkg.Title)
				printOptions(flow.Options())
				return nil
			}

			res, err := flow.Choose(c.Context, c.String("option"))
			if err != nil {
				title, body := planner.UserMessage(err)
				fmt.Fprintf(os.Stderr, "%s: %s\n", title, body)
				return err
			}
			fmt.Printf("¡Experiencia agendada! %s\n", res.Message())
			e.logger.Debug("Event written.", "eventID", res.EventID, "calendarID", res.CalendarID)
			return nil
		},
	}
}

func eventsCommand() *cli.Command {
	open := func(c *cli.Context) (*env, *agenda.Manager, error) {
		e, err := openEnv(c)
		if err != nil {
			return nil, nil, err
		}
		m := agenda.NewManager(e.logger, e.provider, e.cfg.Platform)
		if _, err := m.Open(c.Context); err != nil {
			e.close()
			return nil, nil, agendaError(err)
		}
		return e, m, nil
	}

	return &cli.Command{
		Name:  "events",
		Usage: "Manage the events of the device calendar.",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List events from 15 days ago to 60 days ahead.",
				Action: func(c *cli.Context) error {
					e, m, err := open(c)
					if err != nil {
						return err
					}
					defer e.close()

					events, err := m.Events(c.Context, e.now())
					if err != nil {
						return agendaError(err)
					}
					if len(events) == 0 {
						fmt.Println("No hay eventos disponibles en este rango de fechas.")
						return nil
					}
					for _, ev := range events {
						title := ev.Title
						if title == "" {
							title = "Sin título"
						}
						start := ev.StartDate.In(e.cfg.Location)
						fmt.Printf("%s  %s - %s  %s", ev.ID, start.Format("2006-01-02 15:04"), ev.EndDate.In(e.cfg.Location).Format("15:04"), title)
						if ev.Location != "" {
							fmt.Printf(" @ %s", ev.Location)
						}
						fmt.Println()
					}
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Create a sample planning meeting two hours from now.",
				Action: func(c *cli.Context) error {
					e, m, err := open(c)
					if err != nil {
						return err
					}
					defer e.close()

					id, err := m.CreateSample(c.Context, e.now())
					if err != nil {
						return agendaError(err)
					}
					fmt.Printf("Evento creado: %s\n", id)
					return nil
				},
			},
			{
				Name:      "rename",
				Usage:     "Rename an event, extending it by 30 minutes.",
				ArgsUsage: "EVENT_ID TITLE",
				Action: func(c *cli.Context) error {
					e, m, err := open(c)
					if err != nil {
						return err
					}
					defer e.close()

					title := strings.Join(c.Args().Tail(), " ")
					if err := m.Rename(c.Context, c.Args().First(), title, e.now()); err != nil {
						return agendaError(err)
					}
					fmt.Println("Evento actualizado.")
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete an event.",
				ArgsUsage: "EVENT_ID",
				Action: func(c *cli.Context) error {
					e, m, err := open(c)
					if err != nil {
						return err
					}
					defer e.close()

					if err := m.Delete(c.Context, c.Args().First()); err != nil {
						return agendaError(err)
					}
					fmt.Println("Evento eliminado.")
					return nil
				},
			},
		},
	}
}

// agendaError prints the alert the calendar screen shows for err and returns it.
func agendaError(err error) error {
	msg := "Error: no fue posible completar la operación."
	switch {
	case errors.Is(err, planner.ErrPermissionDenied):
		msg = "Permiso requerido: activa el acceso al calendario para continuar."
	case errors.Is(err, agenda.ErrNoCalendar):
		msg = "Calendario no encontrado: crea un calendario en tu dispositivo."
	case errors.Is(err, agenda.ErrSelectionRequired):
		msg = "Selecciona un evento: indica un evento y escribe un nuevo título."
	case errors.Is(err, agenda.ErrEventNotFound):
		msg = "Evento no encontrado: actualiza la lista y vuelve a intentarlo."
	}
	fmt.Fprintln(os.Stderr, msg)
	return err
}

func permissionCommand() *cli.Command {
	set := func(status planner.PermissionStatus) cli.ActionFunc {
		return func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			if e.device == nil {
				return fmt.Errorf("permissions can only be changed on the local provider")
			}
			return e.device.SetPermission(c.Context, status)
		}
	}
	return &cli.Command{
		Name:  "permission",
		Usage: "Grant or deny calendar access on the local device.",
		Subcommands: []*cli.Command{
			{Name: "grant", Usage: "Allow calendar access.", Action: set(planner.PermissionGranted)},
			{Name: "deny", Usage: "Deny calendar access.", Action: set(planner.PermissionDenied)},
		},
	}
}

func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Add demo calendars to the local device.",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "read-only", Usage: "Only add calendars that do not allow modifications."},
		},
		Action: func(c *cli.Context) error {
			e, err := openEnv(c)
			if err != nil {
				return err
			}
			defer e.close()
			if e.device == nil {
				return fmt.Errorf("seeding is only available on the local provider")
			}
			return seedDevice(c.Context, e.logger, e.device, c.Bool("read-only"))
		},
	}
}

func seedDevice(ctx context.Context, logger *slog.Logger, device *local.Provider, readOnly bool) error {
	for _, cal := range local.DemoCalendars(readOnly) {
		if err := device.Seed(ctx, cal); err != nil {
			return fmt.Errorf("failed to seed calendar %q: %w", cal.Title, err)
		}
		logger.Info("Seeded calendar.", "calendarID", cal.ID, "title", cal.Title, "modifiable", cal.AllowsModifications)
	}
	return nil
}

func setupLogger(level, file string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	if file != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		})
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: logLevel}))
}
