package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"docvault/client/internal/cache"
	"docvault/client/internal/config"
	"docvault/client/internal/decode"
	"docvault/client/internal/gateway"
	"docvault/client/internal/tagsync"
	"docvault/client/internal/util"
	"docvault/client/internal/version"
	"docvault/client/internal/viewer"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gw := gateway.New(cfg.GatewayURL, cfg.AuthToken, cfg.HTTPTimeout, log)

	var store *cache.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		var err error
		store, err = cache.New(cfg.RedisURL, cfg.CacheTTL, log)
		if err != nil {
			log.Warn().Err(err).Msg("query cache unavailable, reads go straight to the gateway")
			store = nil
		} else {
			defer store.Close()
		}
	}

	versions := version.NewStore(gw, store, cfg.MaxUploadBytes, log)

	var err error
	switch os.Args[1] {
	case "list":
		err = runList(ctx, versions)
	case "versions":
		err = runVersions(ctx, versions, os.Args[2:])
	case "open":
		err = runOpen(ctx, cfg, gw, versions, log, os.Args[2:])
	case "upload":
		err = runUpload(ctx, gw, versions, log, os.Args[2:])
	case "rollback":
		err = runRollback(ctx, versions, os.Args[2:])
	case "delete":
		err = runDelete(ctx, versions, os.Args[2:])
	case "tags":
		err = runTags(ctx, gw)
	case "audit":
		err = runAudit(ctx, versions, os.Args[2:])
	case "signout":
		err = runSignout(ctx, store)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error().Err(err).Msg(os.Args[1] + " failed")
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: docview <command> [arguments]

commands:
  list                              list documents
  versions <document-id>            show a document's version history
  open <document-id>                open the current version for viewing
  upload <document-id> [flags]      upload a new version
  rollback <document-id> <version-id> [-reason ...]
  delete <document-id> <version-id>
  tags                              list known tags
  audit <document-id>               show a document's audit trail
  signout                           clear the local query cache`)
}

func runList(ctx context.Context, versions *version.Store) error {
	docs, err := versions.Documents(ctx)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		fmt.Printf("%s  v%-3d %-8s %-10s %s\n",
			doc.ID, doc.Version, doc.FileType, util.FormatSize(doc.FileSize), doc.Title)
	}
	return nil
}

func runVersions(ctx context.Context, versions *version.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: docview versions <document-id>")
	}
	list, err := versions.Versions(ctx, args[0])
	if err != nil {
		return err
	}
	for _, v := range list {
		marker := " "
		if v.IsCurrent {
			marker = "*"
		}
		fmt.Printf("%s v%-3d %s  %-10s %s  %s\n",
			marker, v.VersionNumber, v.ID, util.FormatSize(v.FileSize),
			v.CreatedAt.Format("2006-01-02 15:04"), v.ChangesDescription)
	}
	return nil
}

func runOpen(ctx context.Context, cfg config.Config, gw *gateway.Client, versions *version.Store, log zerolog.Logger, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: docview open <document-id>")
	}

	renderer := decode.NewRenderer(cfg.ChromiumPath, cfg.RendererProbe, log)
	renderer.Load(ctx)
	decoder := decode.New(gw, renderer, log)

	done := make(chan viewer.Snapshot, 1)
	v := viewer.New(versions, decoder, log,
		viewer.WithChangeHook(func(snap viewer.Snapshot) {
			if snap.State == viewer.StateReady || snap.State == viewer.StateError {
				select {
				case done <- snap:
				default:
				}
			}
		}),
		viewer.WithFallbackHook(func(url string) {
			fmt.Printf("document cannot be displayed inline, download it from:\n%s\n", url)
			select {
			case done <- viewer.Snapshot{State: viewer.StateClosed}:
			default:
			}
		}),
	)
	defer v.Close()

	v.Open(ctx, args[0])

	select {
	case snap := <-done:
		if snap.State == viewer.StateError {
			return snap.Err
		}
		printResult(snap)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printResult(snap viewer.Snapshot) {
	if snap.Result == nil {
		return
	}
	switch snap.Result.Mode {
	case decode.ModeText:
		fmt.Println(snap.Result.Text)
	case decode.ModeHTML:
		fmt.Println(snap.Result.HTML)
	case decode.ModePDF, decode.ModeImage, decode.ModeDownload:
		fmt.Println(snap.Result.URL)
	}
}

func runUpload(ctx context.Context, gw *gateway.Client, versions *version.Store, log zerolog.Logger, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	filePath := fs.String("file", "", "path of the file to upload (required)")
	title := fs.String("title", "", "title for the new version")
	description := fs.String("description", "", "description for the new version")
	inherit := fs.Bool("inherit", false, "inherit title, description, and tags from the current version")
	message := fs.String("message", "", "what changed in this version")
	reason := fs.String("reason", "", "why this version was uploaded")
	tagSpec := fs.String("tags", "", "comma-separated key=value tags")

	if len(args) < 1 {
		return fmt.Errorf("usage: docview upload <document-id> -file <path> [flags]")
	}
	documentID := args[0]
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *filePath == "" {
		return fmt.Errorf("-file is required")
	}

	file, err := os.Open(*filePath)
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat upload: %w", err)
	}

	var tagIDs []int64
	if *tagSpec != "" {
		refs, err := parseTagRefs(*tagSpec)
		if err != nil {
			return err
		}
		engine := tagsync.New(gw, log)
		result, err := engine.Reconcile(ctx, refs)
		if err != nil {
			return err
		}
		for _, failure := range result.Failures {
			log.Warn().Str("key", failure.Ref.Key).Err(failure.Err).Msg("tag skipped")
		}
		tagIDs = result.TagIDs
	}

	created, err := versions.Create(ctx, documentID, version.CreateVersionInput{
		FileName:           info.Name(),
		File:               file,
		FileSize:           info.Size(),
		InheritMetadata:    *inherit,
		Title:              *title,
		Description:        *description,
		TagIDs:             tagIDs,
		ChangesDescription: *message,
		Reason:             *reason,
	})
	if err != nil {
		return err
	}
	fmt.Printf("uploaded version %d (%s)\n", created.VersionNumber, created.ID)
	return nil
}

func runRollback(ctx context.Context, versions *version.Store, args []string) error {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	reason := fs.String("reason", "", "why the document is being rolled back")

	if len(args) < 2 {
		return fmt.Errorf("usage: docview rollback <document-id> <version-id> [-reason ...]")
	}
	if err := fs.Parse(args[2:]); err != nil {
		return err
	}

	doc, err := versions.Rollback(ctx, args[0], args[1], *reason)
	if err != nil {
		return err
	}
	fmt.Printf("rolled back %s, now at version %d\n", doc.ID, doc.Version)
	return nil
}

func runDelete(ctx context.Context, versions *version.Store, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: docview delete <document-id> <version-id>")
	}
	if err := versions.Delete(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Printf("deleted version %s\n", args[1])
	return nil
}

func runTags(ctx context.Context, gw *gateway.Client) error {
	tags, err := gw.ListTags(ctx)
	if err != nil {
		return err
	}
	for _, tag := range tags {
		fmt.Printf("%-5d %s\n", tag.ID, tag.Display())
	}
	return nil
}

func runAudit(ctx context.Context, versions *version.Store, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: docview audit <document-id>")
	}
	entries, err := versions.AuditLog(ctx, args[0])
	if err != nil {
		return err
	}
	for _, entry := range entries {
		fmt.Printf("%s  %-20s %s %s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Action,
			entry.ResourceType, entry.ResourceName)
	}
	return nil
}

func runSignout(ctx context.Context, store *cache.Store) error {
	if store == nil {
		return nil
	}
	if err := store.Clear(ctx); err != nil {
		return err
	}
	fmt.Println("local cache cleared")
	return nil
}

func parseTagRefs(raw string) ([]tagsync.Ref, error) {
	var refs []tagsync.Ref
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, found := strings.Cut(part, "=")
		if !found {
			return nil, fmt.Errorf("tag %q must be key=value", part)
		}
		refs = append(refs, tagsync.Ref{Key: key, Value: value})
	}
	return tagsync.NormalizeRefs(refs), nil
}
