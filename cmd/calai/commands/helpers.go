package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/calai/calai-go/internal/agent"
	"github.com/calai/calai-go/internal/budget"
	"github.com/calai/calai-go/internal/calendar"
	"github.com/calai/calai-go/internal/compose"
	"github.com/calai/calai-go/internal/embedder"
	"github.com/calai/calai-go/internal/events"
	"github.com/calai/calai-go/internal/google"
	"github.com/calai/calai-go/internal/kb"
	"github.com/calai/calai-go/internal/provider"
	"github.com/calai/calai-go/internal/server"
	"github.com/calai/calai-go/internal/store"
)

// runtime bundles the wired pipeline shared by the serve and ask commands.
type runtime struct {
	// agent is the fully wired query pipeline.
	agent *agent.Agent
	// kb owns the knowledge-base index lifecycle, exposed for rebuilds.
	kb *kb.Service
	// auth manages Google OAuth artifacts for the server's connect endpoints.
	auth *google.Auth
	// pingers are the dependency probes for the server's readiness endpoint.
	pingers []server.Pinger
	// close releases resources held by the runtime (the pending-round store).
	close func()
}

// buildRuntime wires the embedder, knowledge base, calendar collaborators,
// composer, and pending store into an agent. The calendar side is optional:
// without a stored OAuth token the agent still answers knowledge-base
// questions and reports the calendar as unavailable for the rest.
func buildRuntime(ctx context.Context, log *slog.Logger) (*runtime, error) {
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("embedder: %w", err)
	}

	kbSvc, err := kb.NewService(ctx, emb, kb.Config{
		Path:         envOrDefault("KB_PATH", "./kb"),
		CacheDir:     envOrDefault("KB_CACHE_DIR", defaultCalaiPath("cache")),
		Model:        embedder.ModelNameFromEnv(),
		ChunkSize:    envInt("KB_CHUNK_SIZE", 0),
		ChunkOverlap: envInt("KB_CHUNK_OVERLAP", 0),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("knowledge base: %w", err)
	}

	// Zero topK/threshold select the package defaults.
	kbRetriever, err := kb.NewRetriever(kbSvc, emb, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("knowledge base: %w", err)
	}

	tz, err := loadTimezone()
	if err != nil {
		return nil, err
	}

	auth := google.NewAuth(envOrDefault("CALENDAR_AUTH_DIR", defaultCalaiPath("")))

	rt := &runtime{
		kb:      kbSvc,
		auth:    auth,
		pingers: []server.Pinger{server.NewEmbedderPinger(emb)},
		close:   func() {},
	}

	var (
		calProvider calendar.Provider
		evRetriever *events.Retriever
		resolver    *calendar.Resolver
	)
	if auth.Status().HasToken {
		client, err := auth.Client(ctx)
		if err != nil {
			return nil, fmt.Errorf("calendar auth: %w", err)
		}
		gp, err := calendar.NewGoogleProvider(ctx, client, tz)
		if err != nil {
			return nil, fmt.Errorf("calendar: %w", err)
		}
		calProvider = gp
		resolver = calendar.NewResolver(gp)

		evRetriever, err = events.NewRetriever(gp, emb)
		if err != nil {
			return nil, fmt.Errorf("events: %w", err)
		}
		if days := envInt("CALENDAR_LOOKAHEAD_DAYS", 0); days > 0 {
			evRetriever.SetLookahead(time.Duration(days) * 24 * time.Hour)
		}

		rt.pingers = append(rt.pingers, server.NewCalendarPinger(gp))
		log.Info("calendar connected", slog.String("timezone", tz.String()))
	} else {
		log.Warn("calendar not connected, run 'calai connect' to enable calendar features")
	}

	composer, err := buildComposer(ctx, log)
	if err != nil {
		return nil, err
	}

	pending := openPendingStore(log)
	if pending != nil {
		rt.close = func() { _ = pending.Close() }
	}

	rt.agent, err = agent.New(&agent.Config{
		KB:       kbRetriever,
		Events:   evRetriever,
		Provider: calProvider,
		Resolver: resolver,
		Composer: composer,
		Pending:  pending,
		Timezone: tz,
	})
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("agent: %w", err)
	}

	return rt, nil
}

// buildComposer selects the answer composer. With MODEL_PROVIDER set the LLM
// strategy runs first and the deterministic summary remains the fallback;
// without it answers are deterministic summaries only.
func buildComposer(ctx context.Context, log *slog.Logger) (*compose.Composer, error) {
	if os.Getenv("MODEL_PROVIDER") == "" {
		log.Info("MODEL_PROVIDER not set, using deterministic answer composition")
		return compose.NewComposer(), nil
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("model provider: %w", err)
	}
	log.Info("model provider initialised", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

	maxTokens := envInt("MODEL_MAX_CONTEXT_TOKENS", budget.DefaultMaxContextTokens)
	return compose.NewComposer(compose.NewLLMStrategy(chatModel, maxTokens)), nil
}

// openPendingStore opens the clarification-round store. CALAI_PENDING_DB
// overrides the default path (~/.calai/pending.db); set to "disabled" to
// turn off slot-fill follow-ups. Open failures disable the store with a
// warning rather than aborting startup.
func openPendingStore(log *slog.Logger) store.ClarificationStore {
	dbPath := os.Getenv("CALAI_PENDING_DB")
	if dbPath == "disabled" {
		log.Info("pending store disabled via CALAI_PENDING_DB=disabled")
		return nil
	}
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			log.Warn("pending store: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
	}
	s, err := store.Open(dbPath)
	if err != nil {
		log.Warn("pending store: failed to open, disabling", slog.Any("error", err))
		return nil
	}
	log.Info("pending store opened", slog.String("path", dbPath))
	return s
}

// loadTimezone resolves CALENDAR_TIMEZONE, defaulting to the system zone.
func loadTimezone() (*time.Location, error) {
	name := os.Getenv("CALENDAR_TIMEZONE")
	if name == "" {
		return time.Local, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid CALENDAR_TIMEZONE %q: %w", name, err)
	}
	return tz, nil
}

// defaultCalaiPath returns ~/.calai/<elem>, falling back to a relative path
// when the home directory cannot be resolved.
func defaultCalaiPath(elem string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".calai", elem)
	}
	return filepath.Join(home, ".calai", elem)
}

// envOrDefault returns the env var value, or fallback when unset or empty.
func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt returns the integer value of the env var, or fallback when unset,
// empty, or not parseable.
func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
