package retrieval

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	logx "github.com/pdfchat-core/server/pkg/logger"
)

// DocumentSource is the slice of the document store the index needs:
// enumerate indexable files, resolve their paths, and obtain stable ids.
type DocumentSource interface {
	ListFiles() ([]string, error)
	FilePath(filename string) string
	AddDocument(filename string) (string, error)
}

type IndexConfig struct {
	// PersistPath stores the vector database on disk when non-empty.
	PersistPath string `envconfig:"INDEX_DIR" default:"data/index"`
	Compress    bool   `envconfig:"INDEX_COMPRESS" default:"false"`

	Collection   string `envconfig:"INDEX_COLLECTION" default:"documents"`
	ChunkSize    int    `envconfig:"CHUNK_SIZE" default:"1000"`
	ChunkOverlap int    `envconfig:"CHUNK_OVERLAP" default:"150"`

	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	TopK           int    `envconfig:"RETRIEVAL_TOP_K" default:"4"`
}

// SearchResult is one raw nearest-neighbour hit from the index.
type SearchResult struct {
	Text       string
	Source     string
	DocID      string
	Similarity float32
}

// Index is an embedded vector index over the document store, backed by
// chromem-go. Rebuilds fill a fresh generation-named collection and swap
// it in atomically, so concurrent readers always see a complete index.
type Index struct {
	cfg    IndexConfig
	source DocumentSource
	embed  chromem.EmbeddingFunc

	mu  sync.RWMutex
	db  *chromem.DB
	col *chromem.Collection
	gen int
}

func NewIndex(cfg IndexConfig, source DocumentSource, embed chromem.EmbeddingFunc) (*Index, error) {
	var (
		db  *chromem.DB
		err error
	)
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(cfg.PersistPath, cfg.Compress)
		if err != nil {
			logx.Warn().Err(err).Str("path", cfg.PersistPath).Msg("failed to load persisted index, starting fresh")
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	ix := &Index{cfg: cfg, source: source, embed: embed, db: db}
	ix.adoptLatestGeneration()
	return ix, nil
}

// adoptLatestGeneration picks up the newest persisted collection, if any.
func (ix *Index) adoptLatestGeneration() {
	prefix := ix.cfg.Collection + "-g"
	for name, col := range ix.db.ListCollections() {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		gen, err := strconv.Atoi(strings.TrimPrefix(name, prefix))
		if err != nil {
			continue
		}
		if gen > ix.gen || ix.col == nil {
			ix.gen = gen
			ix.col = col
		}
	}
	if ix.col != nil {
		logx.Info().Int("generation", ix.gen).Int("chunks", ix.col.Count()).Msg("loaded vector index")
	}
}

// snapshot returns the current collection; nil when never built.
func (ix *Index) snapshot() *chromem.Collection {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.col
}

// HasDocuments reports whether the index holds at least one chunk.
func (ix *Index) HasDocuments() bool {
	col := ix.snapshot()
	return col != nil && col.Count() > 0
}

// Search runs a nearest-neighbour query, optionally constrained by exact
// metadata matches (source filename, document id).
func (ix *Index) Search(ctx context.Context, query string, k int, where map[string]string) ([]SearchResult, error) {
	col := ix.snapshot()
	if col == nil || col.Count() == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = ix.cfg.TopK
	}
	if n := col.Count(); k > n {
		k = n
	}

	results, err := col.Query(ctx, query, k, where, nil)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			Text:       r.Content,
			Source:     r.Metadata["source"],
			DocID:      r.Metadata["doc_id"],
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

// Rebuild regenerates the index from the document store's current file
// set. The previous generation stays queryable until the new one is
// complete, then the snapshot pointer is swapped and the old generation
// dropped.
func (ix *Index) Rebuild(ctx context.Context) error {
	files, err := ix.source.ListFiles()
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}

	var docs []chromem.Document
	for _, filename := range files {
		docID, err := ix.source.AddDocument(filename)
		if err != nil {
			return fmt.Errorf("register %s: %w", filename, err)
		}
		text, err := ExtractText(ix.source.FilePath(filename))
		if err != nil {
			logx.Warn().Err(err).Str("filename", filename).Msg("skipping unreadable document")
			continue
		}
		for n, chunk := range SplitText(text, ix.cfg.ChunkSize, ix.cfg.ChunkOverlap) {
			docs = append(docs, chromem.Document{
				ID:      fmt.Sprintf("%s-%d", docID, n),
				Content: chunk,
				Metadata: map[string]string{
					"source": filename,
					"doc_id": docID,
					"chunk":  strconv.Itoa(n),
				},
			})
		}
	}

	ix.mu.RLock()
	nextGen := ix.gen + 1
	ix.mu.RUnlock()

	name := fmt.Sprintf("%s-g%d", ix.cfg.Collection, nextGen)
	col, err := ix.db.CreateCollection(name, nil, ix.embed)
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	if len(docs) > 0 {
		if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			// leave the previous generation in place
			if delErr := ix.db.DeleteCollection(name); delErr != nil {
				logx.Error().Err(delErr).Str("collection", name).Msg("failed to drop partial collection")
			}
			return fmt.Errorf("add documents: %w", err)
		}
	}

	ix.mu.Lock()
	oldGen := ix.gen
	hadOld := ix.col != nil
	ix.col = col
	ix.gen = nextGen
	ix.mu.Unlock()

	if hadOld {
		oldName := fmt.Sprintf("%s-g%d", ix.cfg.Collection, oldGen)
		if err := ix.db.DeleteCollection(oldName); err != nil {
			logx.Warn().Err(err).Str("collection", oldName).Msg("failed to drop previous index generation")
		}
	}

	logx.Info().Int("files", len(files)).Int("chunks", len(docs)).Int("generation", nextGen).Msg("vector index rebuilt")
	return nil
}
