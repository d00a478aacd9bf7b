// Package main provides the entry point for the ReadSync CLI application.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/readsync/internal/doc"
	"github.com/dgnsrekt/readsync/internal/progress"
	"github.com/dgnsrekt/readsync/internal/recog"
	"github.com/dgnsrekt/readsync/read"
	"github.com/dgnsrekt/readsync/read/audio"
	"github.com/dgnsrekt/readsync/read/highlight"
	"github.com/dgnsrekt/readsync/read/pageindex"
	"github.com/dgnsrekt/readsync/read/playback"
	"github.com/dgnsrekt/readsync/read/provider"
	"github.com/dgnsrekt/readsync/read/rsvp"
	"github.com/dgnsrekt/readsync/read/segment"
	"github.com/dgnsrekt/readsync/read/speakalong"
	"github.com/dgnsrekt/readsync/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile    string
	providerID    string
	voice         string
	speed         float64
	wpm           int
	width         uint
	mouse         bool
	followAlong   bool
	blocksPerPage int

	rootCmd = &cobra.Command{
		Use:   "readsync FILE",
		Short: "Read markdown aloud, word by word",
		Long: paragraph(fmt.Sprintf(
			"\nRead a markdown document with %s: spoken audio, rapid word streaming and follow-along highlighting, all synchronized to the page.",
			keyword("readsync"))),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ExactArgs(1),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
		RunE: execute,
	}
)

func validateOptions(cmd *cobra.Command) error {
	providerID = viper.GetString("provider")
	voice = viper.GetString("voice")
	speed = viper.GetFloat64("speed")
	wpm = viper.GetInt("wpm")
	mouse = viper.GetBool("mouse")
	followAlong = viper.GetBool("follow")
	blocksPerPage = viper.GetInt("blocks_per_page")
	width = viper.GetUint("width")

	switch providerID {
	case "piper", "remote", "system", "mock":
	default:
		return fmt.Errorf("unknown provider %q (piper, remote, system, mock)", providerID)
	}
	if speed < 0.25 || speed > 3.0 {
		return fmt.Errorf("speed must be between 0.25 and 3.0, got %.2f", speed)
	}
	if wpm < 60 || wpm > 1200 {
		return fmt.Errorf("wpm must be between 60 and 1200, got %d", wpm)
	}
	if providerID == "remote" && viper.GetString("remote.endpoint") == "" {
		return errors.New("remote provider needs remote.endpoint in the config")
	}

	// Detect terminal width
	if !cmd.Flags().Changed("width") {
		isTerminal := term.IsTerminal(int(os.Stdout.Fd()))
		if isTerminal && width == 0 {
			w, _, err := term.GetSize(int(os.Stdout.Fd()))
			if err == nil {
				width = uint(w) //nolint:gosec
			}
			if width > 120 {
				width = 120
			}
		}
		if width == 0 {
			width = 80
		}
	}
	return nil
}

func execute(_ *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("unable to get absolute path: %w", err)
	}
	st, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("unable to open file: %w", err)
	}
	if st.IsDir() {
		return fmt.Errorf("%s is a directory, not a document", path)
	}
	return runTUI(path)
}

func runTUI(path string) error {
	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	cfg.Path = path
	cfg.Provider = providerID
	cfg.Voice = voice
	cfg.Speed = speed
	cfg.WPM = wpm
	cfg.FollowAlong = followAlong
	cfg.EnableMouse = mouse

	src, err := doc.Open(path, blocksPerPage)
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck

	seg := segment.New()
	index := pageindex.New(src, seg)
	arena := highlight.New(highlight.DefaultStyles())
	bridge := ui.NewBridge()

	// A re-render invalidates every derived position.
	cancelWatch, err := src.Watch(func() {
		index.InvalidateAll()
		arena.ClearAll()
	})
	if err != nil {
		log.Warn("document watching unavailable", "err", err)
	} else {
		defer cancelWatch()
	}

	scope := gap.NewScope(gap.User, "readsync")
	reg := buildRegistry(scope)
	defer reg.Close() //nolint:errcheck

	store := openStore(scope)
	defer func() {
		if store != nil {
			_ = store.Close()
		}
	}()

	ctrl := playback.New(src, index, arena, reg, storeOrNil(store), bridge.Notify, playback.Config{
		Doc:      path,
		Provider: providerID,
		Voice:    voice,
		Speed:    speed,
	})
	if store != nil {
		if page, ok := store.LastPage(path); ok && page < src.PageCount() {
			ctrl.JumpTo(page, 0)
		}
	}

	stream := rsvp.New(src, index, arena, bridge.Notify, wpm)

	var matcher *speakalong.Matcher
	if modelPath := viper.GetString("follow.model"); modelPath != "" {
		rec := recog.New(recog.Config{ModelPath: modelPath})
		defer rec.Close() //nolint:errcheck
		matcher = speakalong.New(rec, src, index, arena, reg, bridge.Notify)
	}

	model := ui.NewModel(cfg, ui.Deps{
		Source:     src,
		Arena:      arena,
		Controller: ctrl,
		Streamer:   stream,
		Matcher:    matcher,
		Bridge:     bridge,
	})

	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	if _, err := tea.NewProgram(model, opts...).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// buildRegistry registers a lazy factory per provider id; nothing heavy
// happens until a provider is first selected.
func buildRegistry(scope *gap.Scope) *provider.Registry {
	reg := provider.NewRegistry()

	reg.Register("mock", func() (provider.Provider, error) {
		return provider.NewMock(audio.NewOtoPlayer()), nil
	})
	reg.Register("system", func() (provider.Provider, error) {
		return provider.NewSystem()
	})
	reg.Register("piper", func() (provider.Provider, error) {
		dataDir, err := scope.DataPath("piper")
		if err != nil {
			dataDir = filepath.Join(os.TempDir(), "readsync-piper")
		}
		return provider.NewPiper(provider.PiperConfig{
			BinaryPath: viper.GetString("piper.binary"),
			ModelPath:  viper.GetString("piper.model"),
			ModelURL:   viper.GetString("piper.model_url"),
			DataDir:    dataDir,
		})
	})
	reg.Register("remote", func() (provider.Provider, error) {
		return provider.NewRemote(provider.RemoteConfig{
			Endpoint: viper.GetString("remote.endpoint"),
			Language: viper.GetString("remote.language"),
		})
	})
	return reg
}

// openStore opens the reading-progress store; a failure here degrades to a
// session without persistence rather than aborting.
func openStore(scope *gap.Scope) *progress.Store {
	path, err := scope.DataPath("progress.zst")
	if err != nil {
		log.Warn("no data directory for reading progress", "err", err)
		return nil
	}
	store, err := progress.Open(path)
	if err != nil {
		log.Warn("reading progress unavailable", "path", path, "err", err)
		return nil
	}
	return store
}

// storeOrNil avoids handing the controller a typed nil.
func storeOrNil(s *progress.Store) read.ProgressStore {
	if s == nil {
		return nil
	}
	return s
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

// setupLog sends logs to a file when READSYNC_DEBUG is set and discards
// them otherwise; stdout belongs to the TUI.
func setupLog() (func() error, error) {
	if os.Getenv("READSYNC_DEBUG") == "" {
		log.SetOutput(io.Discard)
		return func() error { return nil }, nil
	}
	scope := gap.NewScope(gap.User, "readsync")
	path, err := scope.LogPath("readsync.log")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec
	if err != nil {
		return nil, err
	}
	log.SetOutput(f)
	log.SetLevel(log.DebugLevel)
	return f.Close, nil
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVarP(&providerID, "provider", "e", "system", "speech provider (piper/remote/system/mock)")
	rootCmd.Flags().StringVar(&voice, "voice", "", "provider voice id")
	rootCmd.Flags().Float64VarP(&speed, "speed", "x", 1.0, "playback speed multiplier")
	rootCmd.Flags().IntVar(&wpm, "wpm", 250, "words per minute for rapid word streaming")
	rootCmd.Flags().UintVarP(&width, "width", "w", 0, "word-wrap at width (set to 0 to detect)")
	rootCmd.Flags().BoolVarP(&followAlong, "follow", "f", false, "start in follow-along mode")
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel")
	_ = rootCmd.Flags().MarkHidden("mouse")
	rootCmd.Flags().IntVar(&blocksPerPage, "blocks-per-page", doc.DefaultBlocksPerPage, "blocks per page")

	// Config bindings
	_ = viper.BindPFlag("provider", rootCmd.Flags().Lookup("provider"))
	_ = viper.BindPFlag("voice", rootCmd.Flags().Lookup("voice"))
	_ = viper.BindPFlag("speed", rootCmd.Flags().Lookup("speed"))
	_ = viper.BindPFlag("wpm", rootCmd.Flags().Lookup("wpm"))
	_ = viper.BindPFlag("width", rootCmd.Flags().Lookup("width"))
	_ = viper.BindPFlag("follow", rootCmd.Flags().Lookup("follow"))
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("blocks_per_page", rootCmd.Flags().Lookup("blocks-per-page"))

	viper.SetDefault("provider", "system")
	viper.SetDefault("speed", 1.0)
	viper.SetDefault("wpm", 250)
	viper.SetDefault("width", 0)
	viper.SetDefault("blocks_per_page", doc.DefaultBlocksPerPage)
	viper.SetDefault("remote.language", "en")
	viper.SetDefault("piper.model_url", "")
	viper.SetDefault("follow.model", "")

	rootCmd.AddCommand(configCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "readsync")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "readsync")}, dirs...)
	}

	if c := os.Getenv("READSYNC_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("readsync")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("readsync")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "readsync.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}

var keyword = lipgloss.NewStyle().
	Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#ECFD65"}).
	Render

func paragraph(s string) string {
	return lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2).Render(s)
}
