package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"toh-translator/internal/compress"
	"toh-translator/internal/config"
	"toh-translator/internal/document"
	"toh-translator/internal/memory"
	"toh-translator/internal/merge"
	"toh-translator/internal/pipeline"
	"toh-translator/internal/tables"
	"toh-translator/internal/tagcheck"
	"toh-translator/internal/textutil"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Version information, set with -ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI application.
func Execute() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd := &cobra.Command{
		Use:   "toh-translator",
		Short: "Text extraction and insertion for Tales of Hearts DS",
		Long: `Extracts the game's menu and script texts into XML documents for
translators, and inserts the translated documents back into the binaries.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(extractCmd())
	rootCmd.AddCommand(insertCmd())
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(mergeCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(changesCmd())
	rootCmd.AddCommand(memoryCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func extractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract texts into XML documents",
	}

	menu := &cobra.Command{
		Use:   "menu [friendly-name...]",
		Short: "Extract the menu files described in the project file",
		RunE: func(cmd *cobra.Command, args []string) error {
			fresh, _ := cmd.Flags().GetBool("fresh")
			return runExtractMenu(args, fresh)
		},
	}
	menu.Flags().Bool("fresh", false, "Do not keep translations from the existing documents")

	scripts := &cobra.Command{
		Use:   "scripts <dir> <out-dir>",
		Short: "Extract every script member under a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtractScripts(args[0], args[1])
		},
	}

	cmd.AddCommand(menu, scripts)
	return cmd
}

func insertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insert",
		Short: "Insert translated documents back into the binaries",
	}

	menu := &cobra.Command{
		Use:   "menu [friendly-name...]",
		Short: "Rebuild the menu files described in the project file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsertMenu(args)
		},
	}

	scr := &cobra.Command{
		Use:   "script <member> <document> <out>",
		Short: "Rebuild one script member from its document",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInsertScript(args[0], args[1], args[2])
		},
	}

	cmd.AddCommand(menu, scr)
	return cmd
}

func archiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Unpack and repack FPS4 containers",
	}

	unpack := &cobra.Command{
		Use:   "unpack <header> [detail] <out-dir>",
		Short: "Write every member of a container to a directory",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			header, detail, rest := containerArgs(args, 1)
			return runUnpack(header, detail, rest[0])
		},
	}

	repack := &cobra.Command{
		Use:   "repack <header> [detail] <members-dir> <out-prefix>",
		Short: "Rebuild a container from an unpacked directory",
		Args:  cobra.RangeArgs(3, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			header, detail, rest := containerArgs(args, 2)
			return runRepack(header, detail, rest[0], rest[1])
		},
	}

	cmd.AddCommand(unpack, repack)
	return cmd
}

// containerArgs splits "<header> [detail] <rest...>" where rest has n items.
func containerArgs(args []string, n int) (header, detail string, rest []string) {
	if len(args) == n+2 {
		return args[0], args[1], args[2:]
	}
	return args[0], "", args[1:]
}

func mergeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <fresh> <saved> <out>",
		Short: "Carry translations from a saved document into a fresh one",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(args[0], args[1], args[2])
		},
	}
}

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <document>...",
		Short: "Report translations whose control tags differ from the original",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strict, _ := cmd.Flags().GetBool("strict")
			return runCheck(args, strict)
		},
	}
	cmd.Flags().Bool("strict", false, "Fail when any issue is found")
	return cmd
}

func changesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "changes <document-dir>",
		Short: "List documents with translations selected for insertion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChanges(args[0])
		},
	}
}

func memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Share translations through the PostgreSQL translation memory",
	}

	push := &cobra.Command{
		Use:   "push <document>...",
		Short: "Store the selected translations of documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemory(args, true)
		},
	}

	pull := &cobra.Command{
		Use:   "pull <document>...",
		Short: "Fill untranslated entries of documents from memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMemory(args, false)
		},
	}

	cmd.AddCommand(push, pull)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("toh-translator version %s (%s)\n", version, commit)
		},
	}
}

// setupContext creates a cancellable context with signal handling.
func setupContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Warn().Msg("Received shutdown signal, cancelling...")
		cancel()
	}()

	return ctx, cancel
}

// loadConfig reads the environment and applies the log level.
func loadConfig() *config.Config {
	cfg := config.Load()
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warn().Str("level", cfg.LogLevel).Msg("Unknown log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return cfg
}

// initPipeline loads the project file and the encoding tables.
func initPipeline(cfg *config.Config) (*config.Project, *pipeline.Pipeline, error) {
	project, err := config.LoadProject(cfg.ProjectPath)
	if err != nil {
		return nil, nil, err
	}
	if project.Paths.Tables == "" {
		return nil, nil, fmt.Errorf("project file %s: paths.tables is not set", cfg.ProjectPath)
	}
	ts, err := tables.Load(project.Paths.Tables)
	if err != nil {
		return nil, nil, err
	}
	p, err := pipeline.New(ts, pipeline.Options{
		Rules:     project.StructRules,
		Statuses:  document.NewStatuses(cfg.InsertStatuses...),
		Workers:   cfg.WorkerCount,
		LZ:        compress.NewExternal(cfg.LZTool),
		Alignment: project.Archive.Alignment,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init pipeline: %w", err)
	}
	return project, p, nil
}

// selectMenu returns the descriptors named in names, or all of them.
func selectMenu(project *config.Project, names []string) ([]config.MenuFile, error) {
	if len(names) == 0 {
		return project.Menu, nil
	}
	var out []config.MenuFile
	for _, n := range names {
		mf, ok := project.MenuFile(n)
		if !ok {
			return nil, fmt.Errorf("no menu file named %q in the project file", n)
		}
		out = append(out, mf)
	}
	return out, nil
}

// menuSource is the directory holding a menu file: the extracted copy
// when there is one, the original otherwise.
func menuSource(project *config.Project, mf config.MenuFile) string {
	if project.Paths.Extracted != "" {
		if _, err := os.Stat(filepath.Join(project.Paths.Extracted, mf.FilePath)); err == nil {
			return project.Paths.Extracted
		}
	}
	return project.Paths.Original
}

// runExtractMenu handles the `extract menu` command.
func runExtractMenu(names []string, fresh bool) error {
	cfg := loadConfig()
	project, p, err := initPipeline(cfg)
	if err != nil {
		return err
	}
	menus, err := selectMenu(project, names)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(project.Paths.MenuXML, 0755); err != nil {
		return fmt.Errorf("create menu directory: %w", err)
	}

	for _, mf := range menus {
		out := filepath.Join(project.Paths.MenuXML, mf.FriendlyName+".xml")
		saved := out
		if fresh {
			saved = ""
		}
		doc, stale, err := p.ExtractMenuFile(mf, menuSource(project, mf), saved)
		if err != nil {
			return fmt.Errorf("extract %s: %w", mf.FriendlyName, err)
		}
		logStale(mf.FriendlyName, stale)
		if err := doc.Save(out); err != nil {
			return err
		}
		log.Info().Str("file", mf.FriendlyName).Int("entries", len(doc.Entries())).Msg("Extracted menu file")
	}
	return nil
}

// runInsertMenu handles the `insert menu` command. Every descriptor is
// attempted; failures are reported together at the end.
func runInsertMenu(names []string) error {
	cfg := loadConfig()
	project, p, err := initPipeline(cfg)
	if err != nil {
		return err
	}
	menus, err := selectMenu(project, names)
	if err != nil {
		return err
	}

	var errs []error
	for _, mf := range menus {
		docPath := filepath.Join(project.Paths.MenuXML, mf.FriendlyName+".xml")
		res, err := p.InsertMenuFile(mf, menuSource(project, mf), docPath, project.Paths.Build)
		if err != nil {
			log.Error().Err(err).Str("file", mf.FriendlyName).Msg("Menu insertion failed")
			errs = append(errs, err)
		}
		if res != nil {
			log.Info().
				Str("file", mf.FriendlyName).
				Int("placed", res.Placed).
				Int("truncated", len(res.Truncations)).
				Msg("Inserted menu file")
		}
	}
	return errors.Join(errs...)
}

// runExtractScripts handles the `extract scripts` command.
func runExtractScripts(dir, outDir string) error {
	ctx, cancel := setupContext()
	defer cancel()

	cfg := loadConfig()
	_, p, err := initPipeline(cfg)
	if err != nil {
		return err
	}

	outcomes, err := p.ExtractScripts(ctx, dir, outDir)
	written, skipped := 0, 0
	for _, o := range outcomes {
		if o.Output != "" {
			written++
		}
		skipped += o.Skipped
		if o.Stale > 0 {
			log.Info().Str("member", filepath.Base(o.Member)).Int("stale", o.Stale).Msg("Saved entries no longer extracted")
		}
	}
	log.Info().
		Int("members", len(outcomes)).
		Int("documents", written).
		Int("skipped_records", skipped).
		Msg("Script extraction complete")
	return err
}

// runInsertScript handles the `insert script` command.
func runInsertScript(member, docPath, out string) error {
	ctx, cancel := setupContext()
	defer cancel()

	cfg := loadConfig()
	_, p, err := initPipeline(cfg)
	if err != nil {
		return err
	}
	res, err := p.InsertScriptFile(ctx, member, docPath, out)
	if res != nil {
		log.Info().Str("member", filepath.Base(member)).Int("placed", res.Placed).Msg("Inserted script")
	}
	return err
}

// runUnpack handles the `archive unpack` command.
func runUnpack(header, detail, outDir string) error {
	ctx, cancel := setupContext()
	defer cancel()

	cfg := loadConfig()
	_, p, err := initPipeline(cfg)
	if err != nil {
		return err
	}
	n, err := p.UnpackArchive(ctx, header, detail, outDir)
	if err != nil {
		return err
	}
	log.Info().Int("files", n).Str("out", outDir).Msg("Unpacked container")
	return nil
}

// runRepack handles the `archive repack` command.
func runRepack(header, detail, membersDir, outPrefix string) error {
	ctx, cancel := setupContext()
	defer cancel()

	cfg := loadConfig()
	_, p, err := initPipeline(cfg)
	if err != nil {
		return err
	}
	if err := p.RepackArchive(ctx, header, detail, membersDir, outPrefix); err != nil {
		return err
	}
	log.Info().Str("out", outPrefix).Msg("Repacked container")
	return nil
}

// runMerge handles the `merge` command.
func runMerge(freshPath, savedPath, out string) error {
	loadConfig()
	fresh, err := document.Load(freshPath)
	if err != nil {
		return err
	}
	saved, err := document.Load(savedPath)
	if err != nil {
		return err
	}
	res := merge.Merge(fresh, saved)
	logStale(filepath.Base(freshPath), res.Stale)
	if err := fresh.Save(out); err != nil {
		return err
	}
	log.Info().Int("merged", res.Merged).Int("stale", len(res.Stale)).Msg("Merged documents")
	return nil
}

func logStale(file string, stale []merge.StaleKey) {
	for _, s := range stale {
		log.Info().
			Str("file", file).
			Str("section", s.Section).
			Int("id", s.ID).
			Str("text", textutil.Truncate(s.Text, 30)).
			Msg("Stale translation key")
	}
}

// runCheck handles the `check` command.
func runCheck(paths []string, strict bool) error {
	loadConfig()
	total := 0
	for _, path := range paths {
		doc, err := document.Load(path)
		if err != nil {
			return err
		}
		for _, is := range tagcheck.Check(doc) {
			total++
			ev := log.Warn().Str("file", filepath.Base(path)).Str("section", is.Section).Int("id", is.ID)
			if len(is.Diff.Missing) > 0 {
				ev = ev.Strs("missing", is.Diff.Missing)
			}
			if len(is.Diff.Extra) > 0 {
				ev = ev.Strs("extra", is.Diff.Extra)
			}
			if is.Untranslated {
				ev = ev.Bool("untranslated", true)
			}
			ev.Msg("Tag mismatch")
		}
	}
	log.Info().Int("documents", len(paths)).Int("issues", total).Msg("Check complete")
	if strict && total > 0 {
		return fmt.Errorf("%d issues found", total)
	}
	return nil
}

// runChanges handles the `changes` command.
func runChanges(dir string) error {
	cfg := loadConfig()
	_, p, err := initPipeline(cfg)
	if err != nil {
		return err
	}
	ch, err := p.FindChanges(dir)
	if err != nil {
		return err
	}
	for _, d := range ch.Documents {
		fmt.Println(d)
	}
	log.Info().Int("documents", len(ch.Documents)).Strs("archives", ch.Archives).Msg("Found changes")
	return nil
}

// runMemory handles `memory push` and `memory pull`.
func runMemory(paths []string, push bool) error {
	ctx, cancel := setupContext()
	defer cancel()

	cfg := loadConfig()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	backend, err := memory.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer backend.Close()
	log.Info().Msg("Connected to PostgreSQL")

	mem := memory.New(backend)
	statuses := document.NewStatuses(cfg.InsertStatuses...)
	if !push {
		if err := mem.Preload(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to preload translation memory")
		}
	}

	for _, path := range paths {
		doc, err := document.Load(path)
		if err != nil {
			return err
		}
		if push {
			n, err := mem.Push(ctx, doc, statuses)
			if err != nil {
				return fmt.Errorf("push %s: %w", path, err)
			}
			log.Info().Str("file", filepath.Base(path)).Int("stored", n).Msg("Pushed translations")
			continue
		}
		n := mem.Pull(ctx, doc)
		if n > 0 {
			if err := doc.Save(path); err != nil {
				return err
			}
		}
		log.Info().Str("file", filepath.Base(path)).Int("filled", n).Msg("Pulled translations")
	}
	return nil
}
