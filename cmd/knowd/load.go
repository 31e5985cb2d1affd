package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aneven/knowd/internal/config"
	"github.com/aneven/knowd/internal/provider"
	"github.com/aneven/knowd/internal/storage"
)

// loadChunk is one line of a chunk file.
type loadChunk struct {
	ID       string          `json:"id"`
	Content  string          `json:"content"`
	Category string          `json:"category"`
	Metadata json.RawMessage `json:"metadata"`
}

var loadCmd = &cobra.Command{
	Use:   "load [file]",
	Short: "Load document chunks from a JSONL file into the knowledge base",
	Long: `Load reads one JSON object per line ({"content": ..., "category": ..., "metadata": {...}})
and inserts each as a chunk. Embeddings are computed through Ollama unless
--skip-embed is set; unembedded chunks are served by keyword retrieval only
until re-embedded. The server picks up new chunks on restart.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		skipEmbed, _ := cmd.Flags().GetBool("skip-embed")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		roles, err := config.LoadRoles(cfg.Storage.RolesFile)
		if err != nil {
			return fmt.Errorf("loading roles: %w", err)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		chunks, err := readChunkFile(f.Name(), bufio.NewScanner(f), roles)
		if err != nil {
			return err
		}
		if len(chunks) == 0 {
			printWarning("no chunks found in %s", args[0])
			return nil
		}

		ctx := cmd.Context()
		if !skipEmbed {
			ollama := provider.New(cfg.Ollama.BaseURL, cfg.Ollama.GenModel, cfg.Ollama.EmbedModel)
			if !ollama.IsRunning(ctx) {
				printWarning("Ollama not reachable at %s, loading without embeddings", cfg.Ollama.BaseURL)
			} else {
				for i := range chunks {
					vec, err := ollama.Embed(ctx, chunks[i].Content)
					if err != nil {
						return fmt.Errorf("embedding chunk %s: %w", chunks[i].ID, err)
					}
					chunks[i].Embedding = vec
				}
			}
		}

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		if err := store.SaveChunks(chunks); err != nil {
			return fmt.Errorf("saving chunks: %w", err)
		}

		embedded := 0
		for _, c := range chunks {
			if len(c.Embedding) > 0 {
				embedded++
			}
		}
		printSuccess("Loaded %d chunks (%d embedded)", len(chunks), embedded)
		return nil
	},
}

func init() {
	loadCmd.Flags().Bool("skip-embed", false, "store chunks without embeddings (keyword retrieval only)")
}

func readChunkFile(name string, sc *bufio.Scanner, roles *config.Roles) ([]storage.Chunk, error) {
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var chunks []storage.Chunk
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}

		var lc loadChunk
		if err := json.Unmarshal([]byte(text), &lc); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		if strings.TrimSpace(lc.Content) == "" {
			return nil, fmt.Errorf("%s:%d: chunk has no content", name, line)
		}
		if !roles.ValidCategory(lc.Category) {
			return nil, fmt.Errorf("%s:%d: undeclared category %q", name, line, lc.Category)
		}
		if lc.ID == "" {
			lc.ID = uuid.NewString()
		}

		metadata := string(lc.Metadata)
		if metadata == "null" {
			metadata = ""
		}
		chunks = append(chunks, storage.Chunk{
			ID:        lc.ID,
			Content:   lc.Content,
			Category:  lc.Category,
			Metadata:  metadata,
			CreatedAt: time.Now().UTC(),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return chunks, nil
}
