package sqlite

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyeonsoft/document-qa/internal/core/domain"
	"github.com/hyeonsoft/document-qa/internal/core/ports"
)

// hashEmbedder maps token multisets onto a fixed 16-dim vector so identical
// text always embeds identically.
type hashEmbedder struct{}

func vectorFor(text string) []float32 {
	vec := make([]float32, 16)
	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%16]++
	}
	return vec
}

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = vectorFor(text)
	}
	return out, nil
}

func (hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return vectorFor(text), nil
}

func testFactory(string) (ports.Embedder, error) { return hashEmbedder{}, nil }

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := OpenCatalog(t.TempDir(), testFactory)
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(catalog.Close)
	return catalog
}

func buildVersion(t *testing.T, catalog *Catalog, versionID string, texts map[string][]string) {
	t.Helper()
	ctx := context.Background()
	builder, err := catalog.NewBuilder(ctx, versionID)
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	if err := builder.PutArtifact("embedder.json", []byte(`{}`)); err != nil {
		t.Fatalf("put artifact: %v", err)
	}
	embedder := hashEmbedder{}
	for docID, pages := range texts {
		doc := domain.StoredDocument{ID: docID, Filename: docID + ".pdf", Category: "manual"}
		var chunks []domain.Chunk
		for page, text := range pages {
			chunks = append(chunks, domain.Chunk{DocumentID: docID, Page: page + 1, ChunkIndex: 0, Text: text})
		}
		vectors := make([][]float32, len(chunks))
		for i, chunk := range chunks {
			vec, _ := embedder.Embed(ctx, []string{chunk.Text})
			vectors[i] = vec[0]
		}
		if err := builder.AddDocument(ctx, doc, chunks, vectors); err != nil {
			t.Fatalf("add document %s: %v", docID, err)
		}
	}
	if _, err := builder.Commit(ctx, len(texts)); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestAcquireWithoutActiveVersion(t *testing.T) {
	catalog := openTestCatalog(t)

	if _, err := catalog.Acquire(); !domain.IsKind(err, domain.ErrNoActiveIndex) {
		t.Fatalf("expected no-active-index, got %v", err)
	}
	if _, ok := catalog.ActiveInfo(); ok {
		t.Fatalf("fresh catalog must report no active version")
	}
}

func TestBuildSwapAndSearch(t *testing.T) {
	catalog := openTestCatalog(t)
	buildVersion(t, catalog, "v-1", map[string][]string{
		"doc-nvr": {"nvr storage capacity up to 80tb", "installation requirements"},
		"doc-cam": {"camera lens and sensor details"},
	})
	if err := catalog.Swap(context.Background(), "v-1"); err != nil {
		t.Fatalf("swap: %v", err)
	}

	handle, err := catalog.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer handle.Release()

	if info := handle.Info(); info.VersionID != "v-1" || info.DocCount != 2 {
		t.Fatalf("unexpected version info %+v", info)
	}

	lexical, err := handle.SearchLexical(context.Background(), "storage capacity", 5)
	if err != nil {
		t.Fatalf("lexical search: %v", err)
	}
	if len(lexical) == 0 || lexical[0].DocumentID != "doc-nvr" || lexical[0].Page != 1 {
		t.Fatalf("expected doc-nvr p1 ranked first, got %+v", lexical)
	}
	if lexical[0].Metadata["category"] != "manual" {
		t.Fatalf("expected category metadata, got %+v", lexical[0].Metadata)
	}

	semantic, err := handle.SearchSemantic(context.Background(), "nvr storage capacity up to 80tb", 5)
	if err != nil {
		t.Fatalf("semantic search: %v", err)
	}
	if len(semantic) == 0 || semantic[0].DocumentID != "doc-nvr" {
		t.Fatalf("expected doc-nvr ranked first semantically, got %+v", semantic)
	}
	// Exact text match embeds identically, so cosine is 1 up to rounding.
	if semantic[0].Score < 0.999 {
		t.Fatalf("expected near-perfect cosine for identical text, got %f", semantic[0].Score)
	}
}

func TestSwapKeepsInFlightReadersOnOldVersion(t *testing.T) {
	catalog := openTestCatalog(t)
	buildVersion(t, catalog, "v-1", map[string][]string{"doc-old": {"legacy warranty terms"}})
	buildVersion(t, catalog, "v-2", map[string][]string{"doc-new": {"updated warranty terms"}})

	if err := catalog.Swap(context.Background(), "v-1"); err != nil {
		t.Fatalf("swap v-1: %v", err)
	}
	pinned, err := catalog.Acquire()
	if err != nil {
		t.Fatalf("acquire v-1: %v", err)
	}

	if err := catalog.Swap(context.Background(), "v-2"); err != nil {
		t.Fatalf("swap v-2: %v", err)
	}

	// The pinned handle still serves v-1 in full.
	if pinned.Info().VersionID != "v-1" {
		t.Fatalf("in-flight reader moved to %s", pinned.Info().VersionID)
	}
	hits, err := pinned.SearchLexical(context.Background(), "warranty", 5)
	if err != nil {
		t.Fatalf("pinned lexical search: %v", err)
	}
	if len(hits) != 1 || hits[0].DocumentID != "doc-old" {
		t.Fatalf("pinned reader saw wrong corpus: %+v", hits)
	}
	pinned.Release()

	fresh, err := catalog.Acquire()
	if err != nil {
		t.Fatalf("acquire v-2: %v", err)
	}
	defer fresh.Release()
	if fresh.Info().VersionID != "v-2" {
		t.Fatalf("new reader expected v-2, got %s", fresh.Info().VersionID)
	}
	hits, err = fresh.SearchLexical(context.Background(), "warranty", 5)
	if err != nil {
		t.Fatalf("fresh lexical search: %v", err)
	}
	if len(hits) != 1 || hits[0].DocumentID != "doc-new" {
		t.Fatalf("fresh reader saw wrong corpus: %+v", hits)
	}
}

func TestReloadAdoptsPointerFromAnotherProcess(t *testing.T) {
	root := t.TempDir()
	writer, err := OpenCatalog(root, testFactory)
	if err != nil {
		t.Fatalf("open writer catalog: %v", err)
	}
	defer writer.Close()
	reader, err := OpenCatalog(root, testFactory)
	if err != nil {
		t.Fatalf("open reader catalog: %v", err)
	}
	defer reader.Close()

	buildVersion(t, writer, "v-7", map[string][]string{"doc-a": {"rack mounting guide"}})
	if err := writer.Swap(context.Background(), "v-7"); err != nil {
		t.Fatalf("swap: %v", err)
	}

	if err := reader.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	info, ok := reader.ActiveInfo()
	if !ok || info.VersionID != "v-7" {
		t.Fatalf("reader did not adopt v-7: %+v ok=%v", info, ok)
	}
}

func TestCommitMovesArtifactsIntoVersionDir(t *testing.T) {
	catalog := openTestCatalog(t)
	buildVersion(t, catalog, "v-art", map[string][]string{"doc-a": {"contents"}})

	artifact := filepath.Join(catalog.Root(), versionsDirName, "v-art", "embedder.json")
	if _, err := os.Stat(artifact); err != nil {
		t.Fatalf("expected artifact in committed version dir: %v", err)
	}
	staging := filepath.Join(catalog.Root(), stagingDirName, "v-art")
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Fatalf("staging dir must be gone after commit")
	}
}

func TestDiscardRemovesStagingDir(t *testing.T) {
	catalog := openTestCatalog(t)
	builder, err := catalog.NewBuilder(context.Background(), "v-drop")
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	builder.Discard()

	staging := filepath.Join(catalog.Root(), stagingDirName, "v-drop")
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Fatalf("staging dir must be removed on discard")
	}
	if _, err := catalog.Acquire(); !domain.IsKind(err, domain.ErrNoActiveIndex) {
		t.Fatalf("discard must not activate anything, got %v", err)
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0, 1, -2.5, 3.25, 1e-7}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Fatalf("component %d mismatch: %f vs %f", i, in[i], out[i])
		}
	}
}

func TestPruneKeepsActiveAndRecent(t *testing.T) {
	catalog := openTestCatalog(t)
	for _, id := range []string{"v-1", "v-2", "v-3"} {
		buildVersion(t, catalog, id, map[string][]string{"doc": {"text for " + id}})
	}
	if err := catalog.Swap(context.Background(), "v-3"); err != nil {
		t.Fatalf("swap: %v", err)
	}

	if err := catalog.Prune(0); err != nil {
		t.Fatalf("prune: %v", err)
	}
	entries, err := os.ReadDir(filepath.Join(catalog.Root(), versionsDirName))
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "v-3" {
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Fatalf("expected only the active version to survive, got %v", names)
	}
}
