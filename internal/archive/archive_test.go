package archive_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/archive"
	"folio/internal/testsupport"
)

func TestDetectType(t *testing.T) {
	dir := t.TempDir()
	cbz := filepath.Join(dir, "a.cbr") // extension lies; magic wins
	testsupport.WriteComic(t, cbz, 1)
	typ, err := archive.DetectType(cbz)
	require.NoError(t, err)
	assert.Equal(t, archive.TypeCBZ, typ)

	for head, want := range map[string]archive.Type{
		"Rar!\x1a\x07\x01\x00": archive.TypeCBR,
		"7z\xbc\xaf\x27\x1c\x00": archive.TypeCB7,
	} {
		got, err := archive.DetectBytes([]byte(head))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err = archive.DetectBytes([]byte("plain text"))
	assert.ErrorIs(t, err, archive.ErrUnknownFormat)
}

func TestParseType(t *testing.T) {
	typ, err := archive.ParseType(".CBZ")
	require.NoError(t, err)
	assert.Equal(t, archive.TypeCBZ, typ)
	assert.Equal(t, ".cbz", typ.Extension())
	_, err = archive.ParseType("pdf")
	assert.ErrorIs(t, err, archive.ErrUnknownFormat)
}

func TestSortNatural(t *testing.T) {
	names := []string{"page10.png", "page2.png", "Page1.png", "page02.png", "cover.jpg"}
	archive.SortNatural(names)
	assert.Equal(t, []string{"cover.jpg", "Page1.png", "page2.png", "page02.png", "page10.png"}, names)
}

func TestCBZLoadOrdersPagesAndParsesMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saga.cbz")
	info, err := (&archive.ComicInfo{Series: "Saga", Number: "1", Year: 2012}).Marshal()
	require.NoError(t, err)
	testsupport.WriteCBZ(t, path,
		testsupport.Entry{Name: "p10.png", Data: testsupport.PNG(t, 3, 3, 1)},
		testsupport.Entry{Name: "ComicInfo.xml", Data: info},
		testsupport.Entry{Name: "p2.png", Data: testsupport.PNG(t, 5, 7, 2)},
		testsupport.Entry{Name: "notes.txt", Data: []byte("hi")},
		testsupport.Entry{Name: "__MACOSX/._p2.png", Data: []byte("junk")},
	)

	reg := archive.NewRegistry()
	adapter, err := reg.ForFile(path)
	require.NoError(t, err)

	contents, err := adapter.Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, contents.Pages, 2)
	assert.Equal(t, "p2.png", contents.Pages[0].Name)
	require.NotNil(t, contents.Metadata)
	assert.Equal(t, "Saga", contents.Metadata.Series)
	assert.Equal(t, 2012, contents.Metadata.Year)
	assert.Len(t, contents.Extra, 2)

	first, err := adapter.FirstImageEntryName(path)
	require.NoError(t, err)
	assert.Equal(t, "p2.png", first)

	data, err := adapter.LoadSingleEntry(path, "p2.png")
	require.NoError(t, err)
	w, h, err := archive.ImageDimensions(data)
	require.NoError(t, err)
	assert.Equal(t, 5, w)
	assert.Equal(t, 7, h)

	_, err = adapter.LoadSingleEntry(path, "missing.png")
	assert.ErrorIs(t, err, archive.ErrEntryNotFound)
}

func TestCBZSaveRenamesPagesAndWritesMetadata(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.cbz")
	testsupport.WriteComic(t, src, 3)

	adapter, err := archive.NewRegistry().For(archive.TypeCBZ)
	require.NoError(t, err)
	contents, err := adapter.Load(context.Background(), src)
	require.NoError(t, err)

	contents = contents.Without(map[string]bool{"002.png": true})
	contents.Metadata = &archive.ComicInfo{Title: "Renamed", PageCount: len(contents.Pages)}
	for i := range contents.Pages {
		contents.Pages[i].Name = "scan_" + contents.Pages[i].Name
	}

	dst := filepath.Join(dir, "dst.cbz")
	require.NoError(t, adapter.Save(context.Background(), dst, contents, archive.SaveOptions{RenamePages: true}))

	saved, err := adapter.Load(context.Background(), dst)
	require.NoError(t, err)
	require.Len(t, saved.Pages, 2)
	assert.Equal(t, "001.png", saved.Pages[0].Name)
	assert.Equal(t, "002.png", saved.Pages[1].Name)
	require.NotNil(t, saved.Metadata)
	assert.Equal(t, "Renamed", saved.Metadata.Title)
	assert.Equal(t, 2, saved.Metadata.PageCount)
}

func TestReadOnlyAdaptersRejectSave(t *testing.T) {
	reg := archive.NewRegistry()
	for _, typ := range []archive.Type{archive.TypeCBR, archive.TypeCB7} {
		adapter, err := reg.For(typ)
		require.NoError(t, err)
		err = adapter.Save(context.Background(), filepath.Join(t.TempDir(), "x"), &archive.Contents{}, archive.SaveOptions{})
		assert.ErrorIs(t, err, archive.ErrReadOnlyFormat)
	}
}

func TestLoadMissingFile(t *testing.T) {
	adapter := archive.NewCBZ()
	_, err := adapter.Load(context.Background(), filepath.Join(t.TempDir(), "gone.cbz"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestImageDimensionsRejectsGarbage(t *testing.T) {
	_, _, err := archive.ImageDimensions([]byte("not an image"))
	assert.Error(t, err)
}
