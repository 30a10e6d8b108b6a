package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/calai/calai-go/internal/embedder"
	"github.com/calai/calai-go/internal/kb"
	"github.com/calai/calai-go/internal/logging"
)

// NewIndexCmd constructs the `calai index` command, which chunks and embeds
// the knowledge-base files and persists the index cache.
func NewIndexCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build or rebuild the knowledge-base index",
		Long: `Chunk and embed the knowledge-base source files, then persist the index
cache so later commands start without re-embedding.

The source directory comes from --path, the KB_PATH environment variable,
or ./kb in that order. Serving processes pick up a rebuilt cache on
restart, or immediately via POST /api/index/rebuild.

Examples:
  calai index
  calai index --path ./docs
  EMBEDDING_MODEL=nomic-embed-text calai index`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Catch embedding backend misconfiguration before any work.
			if err := embedder.ValidateForIndex(log); err != nil {
				return fmt.Errorf("index: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			kbPath := path
			if kbPath == "" {
				kbPath = envOrDefault("KB_PATH", "./kb")
			}

			svc, err := kb.NewService(ctx, emb, kb.Config{
				Path:         kbPath,
				CacheDir:     envOrDefault("KB_CACHE_DIR", defaultCalaiPath("cache")),
				Model:        embedder.ModelNameFromEnv(),
				ChunkSize:    envInt("KB_CHUNK_SIZE", 0),
				ChunkOverlap: envInt("KB_CHUNK_OVERLAP", 0),
			}, log)
			if err != nil {
				return fmt.Errorf("index: %w", err)
			}

			// NewService may have loaded a stale cache; force a fresh build.
			if err := svc.Rebuild(ctx, log); err != nil {
				return fmt.Errorf("index: %w", err)
			}

			idx := svc.Index()
			fmt.Printf("indexed %d chunks from %s\n", idx.Len(), kbPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "Knowledge-base source directory (default: $KB_PATH or ./kb)")

	return cmd
}
