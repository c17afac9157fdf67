package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"ejrbom/config"
	"ejrbom/loader"
	"ejrbom/matching"
	"ejrbom/reconcile"
	"ejrbom/sources"
	"ejrbom/store"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// application はコマンド間で共有する依存関係です。
type application struct {
	cfg     config.Config
	log     *logrus.Logger
	db      *sqlx.DB
	service *reconcile.Service
	closers []func() error
}

func (a *application) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.WithError(err).Warn("close failed")
		}
	}
}

func newApplication(c *cli.Context) (*application, error) {
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	config.SetConfigFilePath(c.String("config"))
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cutoff, err := cfg.Cutoff()
	if err != nil {
		return nil, fmt.Errorf("invalid cutoff date %q: %w", cfg.CutoffDate, err)
	}

	log.WithField("path", cfg.DatabasePath).Info("Connecting to database...")
	db, err := loader.OpenDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	app := &application{cfg: cfg, log: log, db: db, closers: []func() error{db.Close}}

	if err := loader.InitDatabase(db, log); err != nil {
		app.Close()
		return nil, fmt.Errorf("database initialization failed: %w", err)
	}

	var ej reconcile.EJSource
	switch cfg.EJ.Mode {
	case "sql":
		src, err := sources.NewEJSQLSource(cfg.EJ.Driver, cfg.EJ.DSN, cfg.EJ.Query, cutoff, log)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, src.Close)
		ej = src
	default:
		ej = sources.NewEJCSVSource(cfg.EJ.CSVPath, cfg.EJ.CSVShiftJIS, cutoff, log)
	}

	rbom := sources.NewRBOMClient(sources.RBOMConfig{
		BaseURL:        cfg.RBOM.BaseURL,
		APIKey:         cfg.RBOM.APIKey,
		TimeoutSeconds: cfg.RBOM.TimeoutSeconds,
		CacheSize:      cfg.RBOM.CacheSize,
		CacheTTL:       cfg.RBOM.CacheTTL(),
	}, log)

	st := store.New(db, log)
	app.service = reconcile.NewService(ej, rbom, st, matching.NewEngine(log), cutoff, log)
	return app, nil
}

// dateRangeFlags は --from/--to を解釈します。未指定の場合は抽出下限日と今日の遅い方から既定日数分です。
func dateRangeFlags(c *cli.Context, cfg config.Config) (sources.DateRange, error) {
	from, to := c.String("from"), c.String("to")
	if from == "" {
		start := time.Now()
		if cutoff, err := cfg.Cutoff(); err == nil && start.Before(cutoff) {
			start = cutoff
		}
		from = start.Format("2006-01-02")
	}
	if to == "" {
		f, err := time.Parse("2006-01-02", from)
		if err != nil {
			return sources.DateRange{}, fmt.Errorf("%w: from %q", sources.ErrInvalidRange, from)
		}
		to = f.AddDate(0, 0, cfg.DefaultWindowDays).Format("2006-01-02")
	}
	return sources.ParseDateRange(from, to)
}

var rangeFlags = []cli.Flag{
	&cli.StringFlag{Name: "from", Usage: "納期開始日 (YYYY-MM-DD)"},
	&cli.StringFlag{Name: "to", Usage: "納期終了日 (YYYY-MM-DD)"},
}

func serveCommand(c *cli.Context) error {
	app, err := newApplication(c)
	if err != nil {
		return err
	}
	defer app.Close()

	mux := http.NewServeMux()
	SetupRoutes(mux, app.service)

	addr := app.cfg.ListenAddr
	if v := c.String("addr"); v != "" {
		addr = v
	}
	app.log.Infof("Starting server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		return fmt.Errorf("server start error: %w", err)
	}
	return nil
}

func runCommand(c *cli.Context) error {
	app, err := newApplication(c)
	if err != nil {
		return err
	}
	defer app.Close()

	dr, err := dateRangeFlags(c, app.cfg)
	if err != nil {
		return err
	}
	res, err := app.service.Run(c.Context, dr, c.String("name"))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func nearMissCommand(c *cli.Context) error {
	app, err := newApplication(c)
	if err != nil {
		return err
	}
	defer app.Close()

	dr, err := dateRangeFlags(c, app.cfg)
	if err != nil {
		return err
	}
	misses, err := app.service.NearMisses(c.Context, dr)
	if err != nil {
		return err
	}
	for _, m := range misses {
		fmt.Printf("%s\t%s\t%s\t%s+%d\t%s\t差:%s\n",
			m.EJOrderNo, m.EJItemCode, m.EJQuantity, m.RBOMOrderNo, m.RBOMLineNo, m.RBOMQuantity, m.QuantityDiff)
	}
	app.log.Infof("潜在的マッチング候補: %d件", len(misses))
	return nil
}

func pingCommand(c *cli.Context) error {
	app, err := newApplication(c)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
	defer cancel()
	status := app.service.TestConnections(ctx)
	for name, err := range map[string]error{"EJ": status.EJ, "rBOM": status.RBOM} {
		if err != nil {
			fmt.Printf("%s: NG (%v)\n", name, err)
		} else {
			fmt.Printf("%s: OK\n", name)
		}
	}
	if status.EJ != nil || status.RBOM != nil {
		return cli.Exit("connection test failed", 1)
	}
	return nil
}

func main() {
	app := &cli.App{
		Name:  "ejrbom",
		Usage: "EJ発注残とrBOM発注明細のマッピングツール",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "./ejrbom_config.json", Usage: "設定ファイル", EnvVars: []string{"EJRBOM_CONFIG"}},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "HTTP API を起動します",
				Flags:  []cli.Flag{&cli.StringFlag{Name: "addr", Usage: "待ち受けアドレス (例 :8080)"}},
				Action: serveCommand,
			},
			{
				Name:   "run",
				Usage:  "自動マッピングを実行し結果を保存します",
				Flags:  append([]cli.Flag{&cli.StringFlag{Name: "name", Usage: "抽出条件名"}}, rangeFlags...),
				Action: runCommand,
			},
			{
				Name:   "near-miss",
				Usage:  "品目コードが一致し数量だけが異なる候補を表示します",
				Flags:  rangeFlags,
				Action: nearMissCommand,
			},
			{
				Name:   "ping",
				Usage:  "EJ・rBOM への接続を確認します",
				Action: pingCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
