package catalog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"folio/internal/catalog"
)

func TestParseFilename(t *testing.T) {
	cases := []struct {
		name string
		want catalog.FilenameMetadata
	}{
		{"/lib/Saga v02 #013 (2013) - The Will.cbz", catalog.FilenameMetadata{Series: "Saga", Number: "13", Volume: 2, Year: 2013, Title: "The Will"}},
		{"the walking dead 100 (2012) (digital) [zone].cbr", catalog.FilenameMetadata{Series: "The Walking Dead", Number: "100", Year: 2012}},
		{"2000AD_123.cb7", catalog.FilenameMetadata{Series: "2000AD", Number: "123"}},
		{"Batman 000.cbz", catalog.FilenameMetadata{Series: "Batman", Number: "0"}},
		{"One-Shot.cbz", catalog.FilenameMetadata{Series: "One-Shot"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, catalog.ParseFilename(tc.name))
		})
	}
}

func TestNormalizeFilenameComposesUnicode(t *testing.T) {
	decomposed := "/lib/Amélie.cbz"
	composed := "/lib/Amélie.cbz"
	assert.Equal(t, composed, catalog.NormalizeFilename(decomposed))
	assert.Equal(t, "/lib/a.cbz", catalog.NormalizeFilename("/lib/./x/../a.cbz"))
	assert.Equal(t, "", catalog.NormalizeFilename(""))
}
