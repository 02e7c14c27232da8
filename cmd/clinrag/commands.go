package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/bytedance/sonic"
	"github.com/poiesic/clinrag/core"
	"github.com/poiesic/clinrag/ingestion"
	"github.com/poiesic/clinrag/reembed"
	"github.com/poiesic/clinrag/retry"
	"github.com/poiesic/clinrag/search"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func workerCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Int("workers") < 1 {
		return fmt.Errorf("workers must be at least 1")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	opts := []ingestion.Option{ingestion.WithChunking(c.Int("chunk-size"), c.Int("overlap"))}
	if n := c.Int("pool-size"); n > 0 {
		opts = append(opts, ingestion.WithPoolSize(n))
	}

	workers := make([]*ingestion.Worker, 0, c.Int("workers"))
	defer func() {
		for _, w := range workers {
			w.Release()
		}
	}()
	for range c.Int("workers") {
		w, err := db.NewWorker(opts...)
		if err != nil {
			return fmt.Errorf("failed to create worker: %w", err)
		}
		workers = append(workers, w)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error { return w.Run(gctx) })
	}
	if c.Bool("reaper") {
		reaper := db.NewReaper(ingestion.WithStaleAfter(c.Duration("stale-after")))
		g.Go(func() error { return reaper.Run(gctx) })
	}

	fmt.Fprintf(c.App.ErrWriter, "Started %d worker(s); press Ctrl-C to stop\n", len(workers))
	return g.Wait()
}

func ingestCommand(c *cli.Context) error {
	type input struct {
		title string
		body  []byte
	}

	var inputs []input
	if c.Args().Len() == 0 {
		if c.String("title") == "" {
			return fmt.Errorf("--title is required when reading from stdin")
		}
		body, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
		inputs = append(inputs, input{title: c.String("title"), body: body})
	}
	for _, path := range c.Args().Slice() {
		body, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		title := c.String("title")
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		inputs = append(inputs, input{title: title, body: body})
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	for _, in := range inputs {
		doc, created, err := db.Store().AddDocument(c.Context, &core.Document{
			Title: in.title,
			Body:  string(in.body),
		})
		if err != nil {
			return fmt.Errorf("failed to queue %q: %w", in.title, err)
		}
		if created {
			fmt.Fprintf(c.App.Writer, "queued %d %s\n", doc.Id, doc.Title)
		} else {
			fmt.Fprintf(c.App.Writer, "duplicate of %d (%s)\n", doc.Id, doc.Stage)
		}
	}
	return nil
}

func documentsCommand(c *cli.Context) error {
	stage := core.Stage(strings.ToLower(c.String("stage")))
	if stage != "" {
		if err := core.ValidateStage(stage); err != nil {
			return err
		}
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	docs, err := db.Store().ListDocuments(c.Context, stage)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTAGE\tUPDATED\tTITLE")
	for _, doc := range docs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", doc.Id, doc.Stage, doc.UpdatedAt.Format(time.RFC3339), doc.Title)
	}
	return tw.Flush()
}

func parseIDs(args []string) ([]core.ID, error) {
	ids := make([]core.ID, 0, len(args))
	for _, arg := range args {
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid document id %q", arg)
		}
		ids = append(ids, core.ID(n))
	}
	return ids, nil
}

func requeueCommand(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return fmt.Errorf("at least one document id is required")
	}
	ids, err := parseIDs(c.Args().Slice())
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	var errs []error
	for _, id := range ids {
		if err := db.Store().Requeue(c.Context, id); err != nil {
			errs = append(errs, fmt.Errorf("document %d: %w", id, err))
			continue
		}
		fmt.Fprintf(c.App.Writer, "requeued %d\n", id)
	}
	return errors.Join(errs...)
}

func reapCommand(c *cli.Context) error {
	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	ids, err := db.NewReaper(ingestion.WithStaleAfter(c.Duration("older-than"))).Sweep(c.Context)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "requeued %d stale document(s)\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(c.App.Writer, "  %d\n", id)
	}
	return nil
}

func askCommand(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("a question is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	answerer, err := db.NewAnswerer(search.WithK(c.Int("k")))
	if err != nil {
		return err
	}
	answer, err := answerer.Ask(c.Context, question)
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, answer.Answer)
	if len(answer.Citations) > 0 {
		fmt.Fprintln(c.App.Writer)
		for _, citation := range answer.Citations {
			fmt.Fprintln(c.App.Writer, citation)
		}
	}
	return nil
}

func lookupCommand(c *cli.Context) error {
	system, err := core.ParseCodeSystem(c.String("system"))
	if err != nil {
		return err
	}
	term := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if term == "" {
		return fmt.Errorf("a search term is required")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	result, err := db.Registry().Run(c.Context, core.CodeLookupAction{System: system, Name: term})
	if err != nil {
		return err
	}
	if result == nil {
		fmt.Fprintf(c.App.Writer, "no %s code found for %q\n", system, term)
		return nil
	}
	fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", result.System, result.Code, result.Name)
	return nil
}

// readInput returns the named file, or stdin when no file is given.
func readInput(c *cli.Context) (string, error) {
	if c.Args().Len() > 0 {
		data, err := os.ReadFile(c.Args().First())
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", c.Args().First(), err)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return string(data), nil
}

func noteCommand(c *cli.Context) error {
	raw, err := readInput(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	builder, err := db.NewNoteBuilder()
	if err != nil {
		return err
	}
	note, err := builder.Build(c.Context, raw)
	if err != nil {
		return err
	}
	out, err := sonic.ConfigStd.MarshalIndent(note, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}

func summarizeCommand(c *cli.Context) error {
	text, err := readInput(c)
	if err != nil {
		return err
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	summarizer, err := db.NewSummarizer()
	if err != nil {
		return err
	}
	summary, err := summarizer.Summarize(c.Context, text)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, summary)
	return nil
}

func reembedCommand(c *cli.Context) error {
	config := &reembed.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		Policy:         retry.DefaultPolicy(),
	}
	if config.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if config.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}

	db, err := openDatabase(c)
	if err != nil {
		return err
	}
	defer db.Close()

	reembedder, err := db.NewReembedder(config, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n\n", c.String("embedding-model"))
	if _, err := reembedder.Run(c.Context); err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	return nil
}

