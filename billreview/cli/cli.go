package cli

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli"

	"github.com/clarity-dx/bill-review/billreview/analyzer"
	"github.com/clarity-dx/bill-review/billreview/claimgen"
	"github.com/clarity-dx/bill-review/billreview/claims"
	"github.com/clarity-dx/bill-review/billreview/cleanup"
	"github.com/clarity-dx/bill-review/billreview/console"
	"github.com/clarity-dx/bill-review/billreview/constants"
	"github.com/clarity-dx/bill-review/billreview/dashboard"
	"github.com/clarity-dx/bill-review/billreview/database"
	"github.com/clarity-dx/bill-review/billreview/health"
	"github.com/clarity-dx/bill-review/billreview/models/postgres"
	"github.com/clarity-dx/bill-review/billreview/monitoring"
	"github.com/clarity-dx/bill-review/billreview/ppo"
	"github.com/clarity-dx/bill-review/billreview/report"
	"github.com/clarity-dx/bill-review/billreview/resolution"
	"github.com/clarity-dx/bill-review/billreview/rules"
	"github.com/clarity-dx/bill-review/billreview/validation"
	"github.com/clarity-dx/bill-review/billreview/web"
	"github.com/clarity-dx/bill-review/conf"
	"github.com/clarity-dx/bill-review/log"
)

// App Name and usage.  Edit them here to prevent breaking tests
const Name = "billreview"
const Usage = "Medical bill review validation CLI"

const shutdownTimeout = 30 * time.Second

func GetApp() *cli.App {
	return setUpApp()
}

func setUpApp() *cli.App {
	app := cli.NewApp()
	app.Name = Name
	app.Usage = Usage
	app.Version = constants.Version
	app.Before = func(c *cli.Context) error {
		log.SetupLoggers()
		return nil
	}

	var (
		claimsPath, logDir, rulesPath, inputFile, directory, outputDir string
		state, tin, providerName, cpt, modifier, rate, defaultRate     string
		migrationsPath, orderPrefix                                    string
		uploadDir                                                      string
		count, thresholdHr                                             int
		exportDB                                                       bool
	)
	app.Commands = []cli.Command{
		{
			Name:  "start-api",
			Usage: "Start the validation dashboard API",
			Action: func(c *cli.Context) error {
				return startAPI(app)
			},
		},
		{
			Name:  "start-console",
			Usage: "Start the rate analysis console",
			Action: func(c *cli.Context) error {
				return startConsole(app)
			},
		},
		{
			Name:     "validate",
			Category: "Validation",
			Usage:    "Validate every claim file under a local directory or s3:// prefix",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "claims",
					Usage:       "Directory or s3:// prefix holding the HCFA claim documents",
					EnvVar:      "CLAIMS_PATH",
					Destination: &claimsPath,
				},
				cli.StringFlag{
					Name:        "log-dir",
					Usage:       "Directory the validation session files are written to",
					Value:       "./validation_logs",
					EnvVar:      "VALIDATION_LOG_DIR",
					Destination: &logDir,
				},
				cli.StringFlag{
					Name:        "rules",
					Usage:       "TOML file with bundle and allowed unit rules",
					EnvVar:      "RULES_PATH",
					Destination: &rulesPath,
				},
			},
			Action: func(c *cli.Context) error {
				return validate(app, claimsPath, logDir, rulesPath)
			},
		},
		{
			Name:     "analyze-rates",
			Category: "Rates",
			Usage:    "Analyze the rate failures of a validation_failures file",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "input",
					Usage:       "validation_failures JSON file",
					Destination: &inputFile,
				},
				cli.StringFlag{
					Name:        "directory",
					Usage:       "Directory searched for the newest validation_failures file when no input is given",
					Destination: &directory,
				},
				cli.StringFlag{
					Name:        "output",
					Usage:       "Directory the reports are written to",
					Value:       "./output",
					Destination: &outputDir,
				},
				cli.BoolFlag{
					Name:        "export-db",
					Usage:       "Copy the analyzed rows into the rate_failures table",
					Destination: &exportDB,
				},
			},
			Action: func(c *cli.Context) error {
				return analyzeRates(app, inputFile, directory, outputDir, exportDB)
			},
		},
		{
			Name:     "update-rate",
			Category: "Rates",
			Usage:    "Set the PPO rate of a single procedure",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "state", Usage: "Rendering state", Value: "XX", Destination: &state},
				cli.StringFlag{Name: "tin", Usage: "Provider TIN", Destination: &tin},
				cli.StringFlag{Name: "provider", Usage: "Provider name", Destination: &providerName},
				cli.StringFlag{Name: "cpt", Usage: "Procedure code", Destination: &cpt},
				cli.StringFlag{Name: "modifier", Usage: "Procedure modifier", Destination: &modifier},
				cli.StringFlag{Name: "rate", Usage: "Contracted rate", Destination: &rate},
			},
			Action: func(c *cli.Context) error {
				return updateRate(app, state, tin, providerName, cpt, modifier, rate)
			},
		},
		{
			Name:     "update-rates",
			Category: "Rates",
			Usage:    "Price every rate failure of a validation_failures file at a default rate",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "input", Usage: "validation_failures JSON file", Destination: &inputFile},
				cli.StringFlag{Name: "default-rate", Usage: "Rate applied to each failed line", Value: "500", Destination: &defaultRate},
				cli.StringFlag{Name: "state", Usage: "Rendering state", Value: "XX", Destination: &state},
			},
			Action: func(c *cli.Context) error {
				return updateRates(app, inputFile, defaultRate, state)
			},
		},
		{
			Name:     "migrate",
			Category: "Database",
			Usage:    "Apply the SQL migrations",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:        "path",
					Usage:       "Directory holding the migration files",
					Value:       "./db/migrations/billreview",
					Destination: &migrationsPath,
				},
			},
			Action: func(c *cli.Context) error {
				return runMigrations(app, migrationsPath)
			},
		},
		{
			Name:     "generate-claims",
			Category: "Data generation",
			Usage:    "Write synthetic HCFA claim documents for local testing",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "count", Usage: "Number of claims", Value: 10, Destination: &count},
				cli.StringFlag{Name: "output", Usage: "Output directory", Value: "./claims", Destination: &outputDir},
				cli.StringFlag{Name: "order-prefix", Usage: "Prefix of the generated order IDs", Value: claimgen.DefaultOrderPrefix, Destination: &orderPrefix},
			},
			Action: func(c *cli.Context) error {
				return generateClaims(app, count, outputDir, orderPrefix, rulesPath)
			},
		},
		{
			Name:     "cleanup",
			Category: "Maintenance",
			Usage:    "Archive old validation sessions and remove expired console uploads",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:        "threshold-hr",
					Usage:       "Age in hours after which files expire",
					Value:       24,
					EnvVar:      "ARCHIVE_THRESHOLD_HR",
					Destination: &thresholdHr,
				},
				cli.StringFlag{
					Name:        "log-dir",
					Usage:       "Directory holding the validation session files",
					Value:       "./validation_logs",
					EnvVar:      "VALIDATION_LOG_DIR",
					Destination: &logDir,
				},
				cli.StringFlag{
					Name:        "upload-dir",
					Usage:       "Directory holding console uploads",
					EnvVar:      "CONSOLE_UPLOAD_DIR",
					Destination: &uploadDir,
				},
			},
			Action: func(c *cli.Context) error {
				return cleanupFiles(app, thresholdHr, logDir, uploadDir, time.Now())
			},
		},
	}
	return app
}

func connect(ctx context.Context) (*sql.DB, *database.Config, error) {
	cfg, err := database.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := database.ConnectWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return db, cfg, nil
}

func startAPI(app *cli.App) error {
	ctx := context.Background()
	cfg, err := web.LoadConfig()
	if err != nil {
		return err
	}

	db, dbCfg, err := connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close(db)

	store, err := resolution.Open(dbCfg.DatabaseURL, log.API)
	if err != nil {
		return err
	}

	h := dashboard.NewHandler(dashboard.NewService(cfg.LogDir, store), health.NewHealthChecker(db))
	srv := cfg.NewServer(fmt.Sprintf(":%d", cfg.APIPort), web.NewDashboardRouter(h, cfg.CORSAllowedOrigins))

	fmt.Fprintf(app.Writer, "Starting dashboard API on %s...\n", srv.Addr)
	return serve(srv)
}

func startConsole(app *cli.App) error {
	ctx := context.Background()
	cfg, err := web.LoadConfig()
	if err != nil {
		return err
	}
	consoleCfg, err := console.LoadConfig()
	if err != nil {
		return err
	}

	db, dbCfg, err := connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close(db)

	pool, err := database.ConnectPool(ctx, dbCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	h := console.NewHandler(consoleCfg, ppo.NewUpdater(db, pool, log.Analyzer))
	srv := cfg.NewServer(fmt.Sprintf(":%d", cfg.ConsolePort), web.NewConsoleRouter(h))

	fmt.Fprintf(app.Writer, "Starting rate console on %s...\n", srv.Addr)
	return serve(srv)
}

// serve runs srv until SIGINT or SIGTERM, then shuts it down gracefully.
func serve(srv *http.Server) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.API.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func validate(app *cli.App, claimsPath, logDir, rulesPath string) error {
	if claimsPath == "" {
		return errors.New("claims is required")
	}

	r, err := rules.Load(rulesPath)
	if err != nil {
		return err
	}

	srcCfg := claims.SourceConfig{}
	if err = conf.Checkout(&srcCfg); err != nil {
		return err
	}
	srcCfg.Path = claimsPath
	src, err := claims.NewSource(srcCfg, log.Validation)
	if err != nil {
		return err
	}

	session, err := report.NewSession(logDir, log.Validation)
	if err != nil {
		return err
	}

	timer := monitoring.GetTimer()
	defer timer.Close()
	ctx, stop := signal.NotifyContext(monitoring.NewContext(context.Background(), timer), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, end := monitoring.NewParent(ctx, "validate")
	defer end()

	db, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close(db)

	pipeline := &validation.Pipeline{
		Repo:     postgres.NewRepository(db),
		Rules:    r,
		Sink:     session,
		Logger:   log.Validation,
		Progress: app.ErrWriter,
	}
	processed, runErr := pipeline.Run(ctx, src)

	// Results gathered before an interruption are still written.
	paths, err := session.Save()
	if err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(app.Writer, "Processed %d files\n", processed)
	fmt.Fprintf(app.Writer, "Passes: %s\nFailures: %s\nSummary: %s\n", paths.Passes, paths.Failures, paths.Summary)
	return nil
}

func analyzeRates(app *cli.App, input, directory, outputDir string, exportDB bool) error {
	path := input
	if path == "" {
		if directory == "" {
			return errors.New("either input or directory is required")
		}
		latest, err := analyzer.GetLatestFile(directory)
		if err != nil {
			return err
		}
		if latest == "" {
			return fmt.Errorf("no validation failure files found in %s", directory)
		}
		path = latest
	}

	res, err := analyzer.Run(path, outputDir, time.Now(), log.Analyzer)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Writer, "Analyzed %d rate failures from %s\n", len(res.Rows), path)
	if p := res.Summary.UniqueProviders; p != nil {
		fmt.Fprintf(app.Writer, "Providers: %d\n", p.Count)
	}
	if f := res.Summary.FinancialImpact; f != nil {
		fmt.Fprintf(app.Writer, "Total charges: %.2f\n", f.TotalCharge)
	}

	types := make([]string, 0, len(res.Reports))
	for t := range res.Reports {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(app.Writer, "%s report: %s\n", t, res.Reports[t])
	}

	if !exportDB {
		return nil
	}

	ctx := context.Background()
	cfg, err := database.LoadConfig()
	if err != nil {
		return err
	}
	pool, err := database.ConnectPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	n, err := analyzer.ExportRateFailures(ctx, pool, res.Rows)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Writer, "Exported %d rows to rate_failures\n", n)
	return nil
}

func updateRate(app *cli.App, state, tin, providerName, cpt, modifier, rate string) error {
	switch {
	case tin == "":
		return errors.New("tin is required")
	case cpt == "":
		return errors.New("cpt is required")
	case rate == "":
		return errors.New("rate is required")
	}
	amount, err := decimal.NewFromString(rate)
	if err != nil {
		return errors.Wrapf(err, "invalid rate %q", rate)
	}

	ctx := context.Background()
	db, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close(db)

	msg, err := ppo.NewUpdater(db, nil, log.Analyzer).UpdateSingleRate(ctx, state, tin, providerName, cpt, modifier, amount)
	if err != nil {
		return err
	}
	fmt.Fprintln(app.Writer, msg)
	return nil
}

func updateRates(app *cli.App, input, defaultRate, state string) error {
	if input == "" {
		return errors.New("input is required")
	}
	amount, err := decimal.NewFromString(defaultRate)
	if err != nil {
		return errors.Wrapf(err, "invalid default rate %q", defaultRate)
	}

	p := analyzer.NewParser(log.Analyzer)
	if err = p.LoadFile(input); err != nil {
		return err
	}
	if len(p.ExtractRateFailures()) == 0 {
		return analyzer.ErrNoRateFailures
	}

	ctx := context.Background()
	db, _, err := connect(ctx)
	if err != nil {
		return err
	}
	defer database.Close(db)

	rep, err := ppo.NewUpdater(db, nil, log.Analyzer).UpdateRatesFromFailures(ctx, p.Rows(), amount, state)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Writer, "Updated %d rates, %d failed\n", rep.Updated, rep.Failed)
	for _, d := range rep.Details {
		if d.Status != "updated" {
			fmt.Fprintf(app.Writer, "  %s: %s\n", d.CPT, d.Reason)
		}
	}
	return nil
}

func runMigrations(app *cli.App, path string) error {
	if path == "" {
		return errors.New("path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(err, "migrations path %s", path)
	}

	cfg, err := database.LoadConfig()
	if err != nil {
		return err
	}

	m, err := migrate.New("file://"+path, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "failed to load migrations")
	}
	defer m.Close()

	if err = m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errors.Wrap(err, "failed to apply migrations")
	}

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Writer, "Database at migration version %d (dirty: %t)\n", version, dirty)
	return nil
}

func generateClaims(app *cli.App, count int, outputDir, orderPrefix, rulesPath string) error {
	if count <= 0 {
		return errors.New("count must be positive")
	}
	r, err := rules.Load(rulesPath)
	if err != nil {
		return err
	}

	paths, err := claimgen.NewGenerator(r, orderPrefix).WriteClaims(outputDir, count)
	if err != nil {
		return err
	}
	fmt.Fprintf(app.Writer, "Generated %d claims in %s\n", len(paths), outputDir)
	return nil
}

func cleanupFiles(app *cli.App, thresholdHr int, logDir, uploadDir string, now time.Time) error {
	if thresholdHr < 0 {
		return errors.New("threshold-hr must not be negative")
	}
	if uploadDir == "" {
		cfg, err := console.LoadConfig()
		if err != nil {
			return err
		}
		uploadDir = cfg.UploadDir
	}

	cutoff := cleanup.CutoffTime(now, thresholdHr)
	archived, err := cleanup.ArchiveSessions(logDir, filepath.Join(logDir, cleanup.ArchiveDirName), cutoff)
	if err != nil {
		return err
	}
	removed, err := cleanup.RemoveExpired(uploadDir, cutoff)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.Writer, "Archived %d session files, removed %d uploads\n", archived, removed)
	return nil
}
