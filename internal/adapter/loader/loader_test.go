package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
	"docrag/internal/testutil"
)

func TestFallbackLoader_PrimarySucceeds(t *testing.T) {
	primary := &testutil.FakeLoader{LoaderName: "rich", Docs: testutil.Pages("a.pdf", "page one")}
	fallback := &testutil.FakeLoader{LoaderName: "plain", Docs: testutil.Pages("a.pdf", "whole")}

	docs, err := NewFallbackLoader(primary, fallback, nil).Load(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "page one", docs[0].Text)
	assert.Equal(t, 0, fallback.Calls())
}

func TestFallbackLoader_FallsBackOnError(t *testing.T) {
	primary := &testutil.FakeLoader{LoaderName: "rich", Err: errors.New("unsupported structure")}
	fallback := &testutil.FakeLoader{LoaderName: "plain", Docs: testutil.Pages("a.pdf", "whole")}

	docs, err := NewFallbackLoader(primary, fallback, nil).Load(context.Background(), "a.pdf")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "whole", docs[0].Text)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, fallback.Calls())
}

func TestFallbackLoader_FallsBackOnPanicAndEmpty(t *testing.T) {
	fallback := &testutil.FakeLoader{Docs: testutil.Pages("a.pdf", "whole")}

	_, err := NewFallbackLoader(&testutil.FakeLoader{Panic: true}, fallback, nil).Load(context.Background(), "a.pdf")
	require.NoError(t, err)

	_, err = NewFallbackLoader(&testutil.FakeLoader{}, fallback, nil).Load(context.Background(), "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, 2, fallback.Calls())
}

func TestFallbackLoader_BothFail(t *testing.T) {
	primary := &testutil.FakeLoader{Err: errors.New("bad xref")}
	fallback := &testutil.FakeLoader{Panic: true}

	_, err := NewFallbackLoader(primary, fallback, nil).Load(context.Background(), "broken.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLoadFailed)
	assert.Contains(t, err.Error(), "broken.pdf")
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, fallback.Calls())
}

func TestTextPageLoader_SplitsFormFeeds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("first page\fsecond page\f  \fthird"), 0644))

	docs, err := TextPageLoader{}.Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "second page", docs[1].Text)
	assert.Equal(t, "notes.txt", docs[0].Metadata[domain.MetaSource])
	assert.Equal(t, "1", docs[0].Metadata[domain.MetaPage])
	assert.Equal(t, "4", docs[2].Metadata[domain.MetaPage])
	assert.Equal(t, "text-pages", docs[2].Metadata[domain.MetaLoader])
}

func TestDefault_TextFallbackOnInvalidUTF8(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latin1.txt")
	require.NoError(t, os.WriteFile(path, []byte("caf\xe9 au lait"), 0644))

	docs, err := NewDefault(nil).Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "text", docs[0].Metadata[domain.MetaLoader])
	assert.Contains(t, docs[0].Text, "au lait")
}

func TestDefault_EmptyTextFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.md")
	require.NoError(t, os.WriteFile(path, []byte("  \n\n "), 0644))

	_, err := NewDefault(nil).Load(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrLoadFailed)
}

func TestDefault_CorruptPDFFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf at all"), 0644))

	_, err := NewDefault(nil).Load(context.Background(), path)
	assert.ErrorIs(t, err, domain.ErrLoadFailed)
}

func TestDefault_MissingFile(t *testing.T) {
	_, err := NewDefault(nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.ErrorIs(t, err, domain.ErrLoadFailed)
}

func TestPDFRowLoader_OneDocumentPerPage(t *testing.T) {
	docs, err := PDFRowLoader{}.Load(context.Background(), filepath.Join("testdata", "two_pages.pdf"))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Contains(t, docs[0].Text, "Breakfast is served at six")
	assert.Equal(t, "1", docs[0].Metadata[domain.MetaPage])
	assert.Contains(t, docs[1].Text, "Checkout is at noon")
	assert.Equal(t, "2", docs[1].Metadata[domain.MetaPage])

	for _, d := range docs {
		assert.Equal(t, "two_pages.pdf", d.Metadata[domain.MetaSource])
		assert.Equal(t, "pdf-rows", d.Metadata[domain.MetaLoader])
	}
}

func TestPDFPlainLoader_SingleDocument(t *testing.T) {
	docs, err := PDFPlainLoader{}.Load(context.Background(), filepath.Join("testdata", "two_pages.pdf"))
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Contains(t, docs[0].Text, "Breakfast is served at six")
	assert.Contains(t, docs[0].Text, "Checkout is at noon")
	assert.NotContains(t, docs[0].Metadata, domain.MetaPage)
	assert.Equal(t, "pdf-plain", docs[0].Metadata[domain.MetaLoader])
}

func TestDefault_PDFUsesRowLoader(t *testing.T) {
	docs, err := NewDefault(nil).Load(context.Background(), filepath.Join("testdata", "two_pages.pdf"))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "pdf-rows", docs[0].Metadata[domain.MetaLoader])
}
