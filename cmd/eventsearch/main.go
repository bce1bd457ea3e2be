package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"eventsearch/internal/cache"
	"eventsearch/internal/config"
	"eventsearch/internal/corpus"
	"eventsearch/internal/embedding"
	"eventsearch/internal/embedding/openai"
	"eventsearch/internal/embedding/termfreq"
	"eventsearch/internal/index"
	"eventsearch/internal/index/memory"
	"eventsearch/internal/index/qdrant"
	"eventsearch/internal/logging"
	"eventsearch/internal/retriever"
	"eventsearch/internal/tui"
)

var cfgPath string

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "eventsearch",
		Short:         "Semantic search over a local event corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config YAML (default: ./config.yaml, then ~/.config/eventsearch/config.yaml)")

	root.AddCommand(newIndexCmd(), newSearchCmd(), newChatCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.AppConfig, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	cfg, path, err := config.LoadDefault()
	if err != nil {
		return nil, err
	}
	logging.Debug("main", "using config at %s", path)
	return cfg, nil
}

// assemble wires the configured components into a retrieval service. The
// returned closer releases any backing resources and may be nil.
func assemble(cfg *config.AppConfig) (*retriever.Service, func(), error) {
	loader := &corpus.Loader{
		Path:        cfg.Corpus.Path,
		EnglishPath: cfg.Corpus.EnglishPath,
	}

	fallback := termfreq.New()

	var provider embedding.Backend
	switch cfg.Embedder.Type {
	case "openai", "":
		oc := cfg.Embedder.OpenAI
		if oc == nil {
			oc = &config.OpenAIEmbedderConfig{}
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   oc.BaseURL,
			APIKeyEnv: oc.APIKeyEnv,
			Model:     oc.Model,
			Timeout:   time.Duration(oc.TimeoutSecs) * time.Second,
			BatchSize: oc.BatchSize,
		})
		if err != nil {
			logging.Warn("main", "embeddings provider unavailable (%v); using keyword fallback", err)
		} else {
			provider = client
		}
	case "termfreq":
		// no external provider; fallback serves as the primary backend
	default:
		return nil, nil, fmt.Errorf("unknown embedder type: %s", cfg.Embedder.Type)
	}

	var idx index.Index
	var closer func()
	switch cfg.Index.Type {
	case "memory", "":
		var store cache.Store
		if cc := cfg.Index.Cache; cc != nil && cc.Path != "" {
			switch cc.Type {
			case "jsonfile", "":
				store = cache.NewJSONFile(cc.Path)
			case "sqlite":
				db, err := cache.OpenSQLite(cc.Path)
				if err != nil {
					return nil, nil, fmt.Errorf("open embedding cache: %w", err)
				}
				store = db
				closer = func() { _ = db.Close() }
			default:
				return nil, nil, fmt.Errorf("unknown cache type: %s", cc.Type)
			}
		}
		idx = memory.New(store)
	case "qdrant":
		qc := cfg.Index.Qdrant
		if qc == nil {
			return nil, nil, fmt.Errorf("qdrant config missing")
		}
		idx = qdrant.New(qdrant.Config{
			URL:        qc.URL,
			APIKey:     qc.APIKey,
			Collection: qc.Collection,
			Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
		})
	default:
		return nil, nil, fmt.Errorf("unknown index type: %s", cfg.Index.Type)
	}

	svc := retriever.New(loader, provider, fallback, idx, retriever.Config{
		TopK:           cfg.Retriever.TopK,
		MinScore:       cfg.Retriever.MinScore,
		RecomputeState: cfg.Corpus.StateRefresh == "query",
	})
	return svc, closer, nil
}

func newIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Load the corpus and (re)build the vector index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, closer, err := assemble(cfg)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			if err := svc.Refresh(cmd.Context()); err != nil {
				return err
			}
			st := svc.Stats()
			fmt.Printf("Indexed %d events (mode: %s)\n", st.Total, st.Mode)
			for state, n := range st.ByState {
				fmt.Printf("  %-10s %d\n", state, n)
			}
			return nil
		},
	}
}

func newSearchCmd() *cobra.Command {
	var topK int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a one-shot query against the corpus",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, closer, err := assemble(cfg)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			results, err := svc.Search(cmd.Context(), strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetEscapeHTML(false)
				return enc.Encode(results)
			}
			if len(results) == 0 {
				fmt.Println("No matching events.")
				return nil
			}
			for i, r := range results {
				fmt.Printf("%d. %s (%.3f)\n", i+1, r.Title, r.Score)
				if r.Period != "" {
					fmt.Printf("   %s [%s]\n", r.Period, r.State)
				}
				if r.Place != "" {
					fmt.Printf("   %s\n", r.Place)
				}
				if r.URL != "" && r.URL != "#" {
					fmt.Printf("   %s\n", r.URL)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", 0, "number of results (0 uses the configured default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit results as JSON")
	return cmd
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive search UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, closer, err := assemble(cfg)
			if err != nil {
				return err
			}
			if closer != nil {
				defer closer()
			}
			// Warm the index up front so the first keystroke is not the
			// one paying for the build.
			if err := svc.Refresh(cmd.Context()); err != nil {
				return err
			}

			if cfg.Corpus.Watch {
				w, err := corpus.Watch(cfg.Corpus.Path, 0, func() {
					logging.Info("main", "corpus changed; rebuilding index")
					if err := svc.Refresh(context.Background()); err != nil {
						logging.Warn("main", "rebuild after corpus change failed: %v", err)
					}
				})
				if err != nil {
					logging.Warn("main", "corpus watcher unavailable: %v", err)
				} else {
					defer w.Close()
				}
			}

			// Keep diagnostics off the terminal while the TUI owns it.
			logging.SetOutput(io.Discard)
			p := tea.NewProgram(tui.New(svc), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}
