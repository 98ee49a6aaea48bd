package pdfgraph_test

import (
	"image"
	"strconv"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/infrastructure/pdfgraph"
	"pdfshrink/internal/testutil/pdffixture"
)

type fixture struct {
	data   []byte
	jpeg   int
	flate  int
	shared int
	form   int
}

// buildFixture документ из четырех страниц: изображения, форма, шрифт,
// общий ресурс, страница с пустыми ресурсами и страница с унаследованными ресурсами
func buildFixture(t *testing.T) fixture {
	t.Helper()
	b := pdffixture.New()
	f := fixture{}
	f.jpeg = b.AddJPEG(pdffixture.Photo(64, 48), 90)
	f.flate = b.AddFlateRGB(pdffixture.Photo(20, 10))
	f.form = b.AddForm()
	font := b.AddFont()
	f.shared = b.AddJPEG(image.NewGray(image.Rect(0, 0, 16, 16)), 90)

	b.AddPage(pdffixture.Page{
		XObjects: map[string]int{"Im1": f.jpeg, "Fm0": f.form},
		Fonts:    map[string]int{"F1": font},
	})
	b.AddPage(pdffixture.Page{
		XObjects: map[string]int{"Im1": f.jpeg, "Im0": f.flate},
	})
	b.AddPage(pdffixture.Page{EmptyResources: true})
	b.SetRootResources(map[string]int{"Shared": f.shared})
	b.AddPage(pdffixture.Page{Inherit: true})
	f.data = b.Bytes()
	return f
}

func collect(t *testing.T, doc *pdfgraph.Document) []entities.ImageStream {
	t.Helper()
	w := pdfgraph.NewWalker(doc)
	var images []entities.ImageStream
	for w.Next() {
		images = append(images, w.Image())
	}
	require.NoError(t, w.Err())
	return images
}

func TestOpen_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("this is not a pdf at all")},
		{"truncated", pdffixture.SimpleDocument(8, 8)[:40]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := pdfgraph.Open(tt.data)
			assert.Nil(t, doc)
			assert.ErrorIs(t, err, entities.ErrUnparsableDocument)
		})
	}
}

func TestOpen_PageCount(t *testing.T) {
	f := buildFixture(t)
	doc, err := pdfgraph.Open(f.data)
	require.NoError(t, err)
	assert.Equal(t, 4, doc.PageCount())
}

func TestWalker_VisitsImagesInDocumentOrder(t *testing.T) {
	f := buildFixture(t)
	doc, err := pdfgraph.Open(f.data)
	require.NoError(t, err)

	images := collect(t, doc)
	require.Len(t, images, 3)

	assert.Equal(t, f.jpeg, images[0].ID.Number)
	assert.Equal(t, 1, images[0].Page)
	assert.Equal(t, "Im1", images[0].ResourceName)

	// На второй странице Im1 уже выдан, поэтому только Im0
	assert.Equal(t, f.flate, images[1].ID.Number)
	assert.Equal(t, 2, images[1].Page)
	assert.Equal(t, "Im0", images[1].ResourceName)

	// Пустой словарь Resources третьей страницы перекрывает ресурсы корня
	assert.Equal(t, f.shared, images[2].ID.Number)
	assert.Equal(t, 4, images[2].Page)
}

func TestWalker_InheritsResourcesFromPageTree(t *testing.T) {
	b := pdffixture.New()
	shared := b.AddJPEG(pdffixture.Photo(16, 16), 90)
	own := b.AddJPEG(pdffixture.Photo(8, 8), 90)
	b.SetRootResources(map[string]int{"Shared": shared})
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Own": own}})
	b.AddPage(pdffixture.Page{NoResources: true})

	doc, err := pdfgraph.Open(b.Bytes())
	require.NoError(t, err)

	images := collect(t, doc)
	require.Len(t, images, 2)
	assert.Equal(t, own, images[0].ID.Number)
	assert.Equal(t, 1, images[0].Page)

	// Страница без собственного ключа Resources получает ресурсы корня
	assert.Equal(t, shared, images[1].ID.Number)
	assert.Equal(t, 2, images[1].Page)
	assert.Equal(t, "Shared", images[1].ResourceName)
}

func TestWalker_IndexedPaletteFromStringLiteral(t *testing.T) {
	b := pdffixture.New()
	img := b.AddStream(
		`/Type /XObject /Subtype /Image /Width 2 /Height 1 /BitsPerComponent 8 `+
			`/ColorSpace [/Indexed /DeviceRGB 1 (\377\000\000\000\000\377)] /Filter /FlateDecode`,
		pdffixture.Deflate([]byte{0, 1}),
	)
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Im0": img}})

	doc, err := pdfgraph.Open(b.Bytes())
	require.NoError(t, err)

	images := collect(t, doc)
	require.Len(t, images, 1)
	assert.Equal(t, entities.ColorSpaceIndexed, images[0].ColorSpace)
	require.NotNil(t, images[0].Palette)
	assert.Equal(t, entities.ColorSpaceRGB, images[0].Palette.Base)
	assert.Equal(t, 1, images[0].Palette.HiVal)
	assert.Equal(t, []byte{0xff, 0, 0, 0, 0, 0xff}, images[0].Palette.Lookup)
}

func TestWalker_DescribesImage(t *testing.T) {
	f := buildFixture(t)
	doc, err := pdfgraph.Open(f.data)
	require.NoError(t, err)

	images := collect(t, doc)
	require.Len(t, images, 3)

	jpeg := images[0]
	assert.Equal(t, 64, jpeg.Width)
	assert.Equal(t, 48, jpeg.Height)
	assert.Equal(t, 8, jpeg.BitsPerComponent)
	assert.Equal(t, entities.ColorSpaceRGB, jpeg.ColorSpace)
	assert.Equal(t, "DCTDecode", jpeg.Filter())
	assert.NotEmpty(t, jpeg.Data)

	flate := images[1]
	assert.Equal(t, "FlateDecode", flate.Filter())
	assert.Equal(t, 20, flate.Width)

	gray := images[2]
	assert.Equal(t, entities.ColorSpaceGray, gray.ColorSpace)
}

func TestWalker_IsNotRestartable(t *testing.T) {
	f := buildFixture(t)
	doc, err := pdfgraph.Open(f.data)
	require.NoError(t, err)

	w := pdfgraph.NewWalker(doc)
	for w.Next() {
	}
	assert.False(t, w.Next())
	assert.Equal(t, entities.ImageStream{}, w.Image())
}

func TestWalker_SkipsPagesWithoutImages(t *testing.T) {
	b := pdffixture.New()
	form := b.AddForm()
	b.AddPage(pdffixture.Page{NoResources: true})
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Fm0": form}})

	doc, err := pdfgraph.Open(b.Bytes())
	require.NoError(t, err)
	assert.Empty(t, collect(t, doc))
}

func TestSubstitute_PreservesIdentity(t *testing.T) {
	f := buildFixture(t)
	doc, err := pdfgraph.Open(f.data)
	require.NoError(t, err)

	before := doc.Identities()
	images := collect(t, doc)
	require.NotEmpty(t, images)

	replacement := &entities.TranscodedImage{
		Data:             pdffixture.JPEG(image.NewGray(image.Rect(0, 0, 32, 24)), 50),
		Filter:           "DCTDecode",
		Width:            32,
		Height:           24,
		ColorSpace:       entities.ColorSpaceGray,
		BitsPerComponent: 8,
		Channels:         1,
	}
	require.NoError(t, doc.Substitute(images[0].ID, replacement))

	out, err := doc.Serialize()
	require.NoError(t, err)

	reopened, err := pdfgraph.Open(out)
	require.NoError(t, err)
	assert.Equal(t, doc.PageCount(), reopened.PageCount())

	after := make(map[entities.ObjectID]bool)
	for _, id := range reopened.Identities() {
		after[id] = true
	}
	for _, id := range before {
		assert.True(t, after[id], "identity %s lost", id)
	}

	reimages := collect(t, reopened)
	require.Len(t, reimages, len(images))
	for i := range images {
		assert.Equal(t, images[i].ID, reimages[i].ID)
		assert.Equal(t, images[i].ResourceName, reimages[i].ResourceName)
	}
	assert.Equal(t, 32, reimages[0].Width)
	assert.Equal(t, 24, reimages[0].Height)
	assert.Equal(t, entities.ColorSpaceGray, reimages[0].ColorSpace)
	assert.Equal(t, replacement.Data, reimages[0].Data)
	assert.Empty(t, reimages[0].Decode)
}

func TestSubstitute_KeepsSoftMask(t *testing.T) {
	b := pdffixture.New()
	mask := b.AddRawImage(4, 4, "/DeviceGray", 8, make([]byte, 16))
	img := b.AddJPEGWithDict(pdffixture.Photo(8, 8), 90, "/SMask "+strconv.Itoa(mask)+" 0 R /Interpolate true")
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Im0": img}})

	doc, err := pdfgraph.Open(b.Bytes())
	require.NoError(t, err)

	id := entities.ObjectID{Number: img}
	require.NoError(t, doc.Substitute(id, &entities.TranscodedImage{
		Data:             pdffixture.JPEG(pdffixture.Photo(8, 8), 40),
		Filter:           "DCTDecode",
		Width:            8,
		Height:           8,
		ColorSpace:       entities.ColorSpaceRGB,
		BitsPerComponent: 8,
	}))

	out, err := doc.Serialize()
	require.NoError(t, err)
	reopened, err := pdfgraph.Open(out)
	require.NoError(t, err)

	images := collect(t, reopened)
	require.Len(t, images, 1)
	assert.True(t, images[0].HasSMask)
}

func TestSubstitute_MatteFollowsColorSpace(t *testing.T) {
	tests := []struct {
		name       string
		colorSpace entities.ColorSpace
		keepMatte  bool
	}{
		{"gray drops three component matte", entities.ColorSpaceGray, false},
		{"rgb keeps matte", entities.ColorSpaceRGB, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := pdffixture.New()
			mask := b.AddStream(
				"/Type /XObject /Subtype /Image /Width 4 /Height 4 /ColorSpace /DeviceGray /BitsPerComponent 8 /Matte [0.5 0.5 0.5] /Filter /FlateDecode",
				pdffixture.Deflate(make([]byte, 16)),
			)
			img := b.AddJPEGWithDict(pdffixture.Photo(8, 8), 90, "/SMask "+strconv.Itoa(mask)+" 0 R")
			b.AddPage(pdffixture.Page{XObjects: map[string]int{"Im0": img}})

			doc, err := pdfgraph.Open(b.Bytes())
			require.NoError(t, err)

			var data []byte
			if tt.colorSpace == entities.ColorSpaceGray {
				data = pdffixture.JPEG(image.NewGray(image.Rect(0, 0, 8, 8)), 40)
			} else {
				data = pdffixture.JPEG(pdffixture.Photo(8, 8), 40)
			}
			require.NoError(t, doc.Substitute(entities.ObjectID{Number: img}, &entities.TranscodedImage{
				Data:             data,
				Filter:           "DCTDecode",
				Width:            8,
				Height:           8,
				ColorSpace:       tt.colorSpace,
				BitsPerComponent: 8,
				Channels:         tt.colorSpace.Channels(),
			}))

			out, err := doc.Serialize()
			require.NoError(t, err)
			reopened, err := pdfgraph.Open(out)
			require.NoError(t, err)

			obj, err := reopened.Resolve(entities.ObjectID{Number: mask})
			require.NoError(t, err)
			sd, ok := obj.(types.StreamDict)
			require.True(t, ok)
			_, hasMatte := sd.Dict["Matte"]
			assert.Equal(t, tt.keepMatte, hasMatte)
		})
	}
}

func TestSubstitute_Errors(t *testing.T) {
	f := buildFixture(t)
	doc, err := pdfgraph.Open(f.data)
	require.NoError(t, err)

	img := &entities.TranscodedImage{Data: []byte{1}, Filter: "DCTDecode", Width: 1, Height: 1, ColorSpace: entities.ColorSpaceGray, BitsPerComponent: 8}

	err = doc.Substitute(entities.ObjectID{Number: 9999}, img)
	assert.ErrorIs(t, err, entities.ErrObjectNotFound)

	err = doc.Substitute(entities.ObjectID{Number: f.jpeg, Generation: 3}, img)
	assert.ErrorIs(t, err, entities.ErrObjectNotFound)

	err = doc.Substitute(entities.ObjectID{Number: f.form}, img)
	assert.ErrorIs(t, err, entities.ErrNotImageStream)

	err = doc.Substitute(entities.ObjectID{Number: f.jpeg}, &entities.TranscodedImage{})
	assert.ErrorIs(t, err, entities.ErrTranscodeFailure)
}

func TestSerialize_OnlyOnce(t *testing.T) {
	doc, err := pdfgraph.Open(pdffixture.SimpleDocument(8, 8))
	require.NoError(t, err)

	_, err = doc.Serialize()
	require.NoError(t, err)

	_, err = doc.Serialize()
	assert.ErrorIs(t, err, entities.ErrSerializationFailure)
}

func TestResolve(t *testing.T) {
	f := buildFixture(t)
	doc, err := pdfgraph.Open(f.data)
	require.NoError(t, err)

	obj, err := doc.Resolve(entities.ObjectID{Number: f.jpeg})
	require.NoError(t, err)
	assert.NotNil(t, obj)

	_, err = doc.Resolve(entities.ObjectID{Number: f.jpeg, Generation: 1})
	assert.ErrorIs(t, err, entities.ErrObjectNotFound)
}
