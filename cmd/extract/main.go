package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"clinichire.app/scout/common/logger"
	"clinichire.app/scout/core/config"
	"clinichire.app/scout/internal/extract"
	"clinichire.app/scout/internal/http/dto"
	"clinichire.app/scout/internal/service"
)

func main() {
	schemaFlag := flag.String("schema", "position", "record schema: position or competitor")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: extract [-schema position|competitor] [url ...]")
		fmt.Fprintln(os.Stderr, "With no url, reads one url per line from stdin.")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeCLI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg)

	schema, err := extract.ParseSchemaKind(*schemaFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	inference, err := extract.NewInferenceClient(cfg.Extract)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create inference client: %v\n", err)
		os.Exit(1)
	}
	if inference.Demo() {
		slog.WarnContext(ctx, "EXTRACT_LLM_API_KEY not set, printing demo records")
	}

	pipeline := extract.NewPipeline(
		extract.NewHTTPFetcher(extract.FetcherConfig{
			Timeout:           cfg.Fetch.Timeout,
			MaxBytes:          cfg.Fetch.MaxBytes,
			UserAgent:         cfg.Fetch.UserAgent,
			AllowPrivateHosts: cfg.Fetch.AllowPrivateHosts,
		}),
		inference,
		extract.NewSchemas(cfg.Extract.PositionMaxChars, cfg.Extract.CompetitorMaxChars),
		extract.WithRecorder(extract.LogRecorder{}),
	)
	svc := service.NewServices(pipeline).Extraction()

	if flag.NArg() > 0 {
		failed := false
		for _, rawURL := range flag.Args() {
			if !run(ctx, svc, os.Stdout, rawURL, schema) {
				failed = true
			}
		}
		if failed {
			os.Exit(1)
		}
		return
	}

	fmt.Fprintln(os.Stderr, "Enter a URL (or 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" || line == "q" {
			break
		}

		run(ctx, svc, os.Stdout, line, schema)
	}
}

// run prints the same body the HTTP API would return and reports success.
func run(ctx context.Context, svc service.ExtractionService, out io.Writer, rawURL string, schema extract.SchemaKind) bool {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)

	res, err := svc.Extract(ctx, rawURL, schema)
	if err != nil {
		status, body := dto.FromError(err)
		_ = enc.Encode(body)
		fmt.Fprintf(os.Stderr, "extraction failed (%d): %v\n", status, err)
		return false
	}

	_ = enc.Encode(dto.FromResult(res))
	return true
}
