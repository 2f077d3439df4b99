// CLAUDE:SUMMARY One-shot CLI: run a pasted MAWB batch from a file and print results.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/clearway/dutyrec/artifact"
	"github.com/clearway/dutyrec/config"
	"github.com/clearway/dutyrec/dutyrun"
	"github.com/clearway/dutyrec/mawbinput"
	"github.com/clearway/dutyrec/pdfproc"
	"github.com/clearway/dutyrec/portal"
	"github.com/clearway/dutyrec/secrets"
	"github.com/clearway/dutyrec/session"
	"github.com/clearway/dutyrec/store"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	inputPath := flag.String("input", "-", "input file with pasted rows, - for stdin")
	brokerRef := flag.String("broker", "", "broker id or name")
	formatRef := flag.String("format", "", "format id or name")
	sectionsFlag := flag.String("sections", "ams,entries,custom,download_7501_pdf", "comma separated stages to run")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if err := run(*configPath, *inputPath, *brokerRef, *formatRef, *sectionsFlag, logger); err != nil {
		fmt.Fprintln(os.Stderr, "dutyrun:", err)
		os.Exit(1)
	}
}

func run(configPath, inputPath, brokerRef, formatRef, sectionsFlag string, logger *slog.Logger) error {
	if brokerRef == "" || formatRef == "" {
		return fmt.Errorf("-broker and -format are required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	text, err := readInput(inputPath)
	if err != nil {
		return err
	}
	parsed := mawbinput.Parse(text)
	if len(parsed) == 0 {
		return fmt.Errorf("no valid MAWBs in input")
	}

	var storeOpts []store.Option
	if cfg.Passphrase != "" {
		box, err := secrets.NewBox(cfg.Passphrase)
		if err != nil {
			return err
		}
		storeOpts = append(storeOpts, store.WithSecrets(box))
	}
	storeOpts = append(storeOpts, store.WithLogger(logger))

	st, err := store.Open(cfg.DBPath, storeOpts...)
	if err != nil {
		return err
	}
	defer st.Close()

	broker, err := findBroker(ctx, st, brokerRef)
	if err != nil {
		return err
	}
	format, err := findFormat(ctx, st, formatRef)
	if err != nil {
		return err
	}

	items := make([]*store.BatchItem, 0, len(parsed))
	for _, it := range parsed {
		items = append(items, &store.BatchItem{
			MAWB:           it.MAWB,
			AirportCode:    it.AirportCode,
			Customer:       it.Customer,
			CheckbookHAWBs: it.CheckbookHAWBs,
			BrokerID:       broker.ID,
			FormatID:       format.ID,
		})
	}

	sections := map[string]bool{}
	for _, s := range strings.Split(sectionsFlag, ",") {
		if s = strings.TrimSpace(s); s != "" {
			sections[s] = true
		}
	}

	batch, err := st.CreateBatch(ctx, sections, "cli", items)
	if err != nil {
		return err
	}

	files, err := session.NewFileStore(cfg.SessionsDir)
	if err != nil {
		return err
	}
	sessions := session.New(session.Config{
		BaseURL:      cfg.Portal.BaseURL,
		ProbeTimeout: time.Duration(cfg.Portal.ProbeTimeout) * time.Second,
		LoginTimeout: time.Duration(cfg.Portal.LoginTimeout) * time.Second,
		Logger:       logger,
	}, files)

	var artifacts dutyrun.ArtifactStore
	if cfg.Storage.Bucket != "" {
		gw, err := artifact.New(ctx, artifact.Config{
			Bucket:     cfg.Storage.Bucket,
			Region:     cfg.Storage.Region,
			Endpoint:   cfg.Storage.Endpoint,
			Prefix:     cfg.Storage.Prefix,
			PresignTTL: cfg.PresignTTL(),
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		artifacts = gw
	}

	pipeline := dutyrun.NewPipeline(dutyrun.Config{
		Portal: portal.Config{
			BaseURL:   cfg.Portal.BaseURL,
			UserAgent: cfg.Portal.UserAgent,
			Logger:    logger,
		},
		PresignTTL: cfg.PresignTTL(),
		Logger:     logger,
	}, sessions, artifacts, pdfproc.New(pdfproc.Config{GSBinary: cfg.PDF.GSBinary, Logger: logger}))

	orch := dutyrun.NewOrchestrator(st, pipeline, logger)

	hooks := dutyrun.BatchHooks{
		Progress: func(percent int, message string) {
			fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", percent, message)
		},
	}
	if err := orch.RunBatch(ctx, batch.ID, hooks); err != nil {
		return err
	}

	results, err := st.ListResults(ctx, "", batch.ID, len(items), 0)
	if err != nil {
		return err
	}
	return printResults(os.Stdout, results)
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func findBroker(ctx context.Context, st *store.Store, ref string) (*store.Broker, error) {
	if b, err := st.GetBroker(ctx, ref); err != nil {
		return nil, err
	} else if b != nil {
		return b, nil
	}
	brokers, err := st.ListBrokers(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, b := range brokers {
		if strings.EqualFold(b.Name, ref) {
			return b, nil
		}
	}
	return nil, fmt.Errorf("broker %q not found", ref)
}

func findFormat(ctx context.Context, st *store.Store, ref string) (*store.Format, error) {
	if f, err := st.GetFormat(ctx, ref); err != nil {
		return nil, err
	} else if f != nil {
		return f, nil
	}
	formats, err := st.ListFormats(ctx, false)
	if err != nil {
		return nil, err
	}
	for _, f := range formats {
		if strings.EqualFold(f.Name, ref) {
			return f, nil
		}
	}
	return nil, fmt.Errorf("format %q not found", ref)
}

// printResults writes one line per MAWB plus the summary JSON for
// failed items' diagnosis.
func printResults(w io.Writer, results []*store.Result) error {
	for _, r := range results {
		var summary map[string]string
		if r.SummaryJSON != "" {
			json.Unmarshal([]byte(r.SummaryJSON), &summary)
		}
		line := fmt.Sprintf("%s  %-7s  ams=%s  report=%s  7501=%s",
			mawbinput.Format(r.MAWB), r.Status,
			orNA(summary["AMS Duty"]), orNA(summary["Report Duty"]), orNA(summary["7501 Duty"]))
		if r.ErrorMessage != "" {
			line += "  error=" + r.ErrorMessage
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
