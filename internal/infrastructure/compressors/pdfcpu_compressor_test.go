package compressors_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/infrastructure/compressors"
	"pdfshrink/internal/infrastructure/logging"
	"pdfshrink/internal/infrastructure/pdfgraph"
	"pdfshrink/internal/testutil/pdffixture"
)

type mockTranscoder struct {
	mock.Mock
}

func (m *mockTranscoder) Transcode(img entities.ImageStream, spec entities.CompressionSpec) (*entities.TranscodedImage, error) {
	args := m.Called(img, spec)
	out, _ := args.Get(0).(*entities.TranscodedImage)
	return out, args.Error(1)
}

func newCompressor(t *testing.T, workers int) *compressors.PDFCPUCompressor {
	logger := logging.NewLogger(zaptest.NewLogger(t))
	return compressors.NewPDFCPUCompressor(compressors.NewImageCompressor(), workers, logger)
}

func TestCompress_ReplacesLargeImage(t *testing.T) {
	input := pdffixture.SimpleDocument(1600, 1200)
	c := newCompressor(t, 2)

	report, err := c.Compress(context.Background(), input, entities.NewCompressionSpec(30, 1000, false))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Pages)
	assert.Equal(t, 1, report.Replaced())
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, entities.ImageReplaced, report.Outcomes[0].Status)
	assert.Less(t, len(report.Output), len(input))

	doc, err := pdfgraph.Open(report.Output)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.PageCount())

	w := pdfgraph.NewWalker(doc)
	require.True(t, w.Next())
	assert.Equal(t, 1000, w.Image().Width)
	assert.Equal(t, 750, w.Image().Height)
}

func TestCompress_PreservesStructure(t *testing.T) {
	b := pdffixture.New()
	big := b.AddJPEG(pdffixture.Photo(900, 600), 95)
	flate := b.AddFlateRGB(pdffixture.Photo(300, 200))
	form := b.AddForm()
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Im0": big, "Fm0": form}})
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Im0": big, "Im1": flate}})
	b.AddPage(pdffixture.Page{NoResources: true})
	input := b.Bytes()

	before, err := pdfgraph.Open(input)
	require.NoError(t, err)
	ids := before.Identities()

	report, err := newCompressor(t, 4).Compress(context.Background(), input, entities.NewCompressionSpec(20, 400, true))
	require.NoError(t, err)
	assert.Equal(t, 3, report.Pages)
	assert.Equal(t, 2, report.Replaced())

	after, err := pdfgraph.Open(report.Output)
	require.NoError(t, err)
	assert.Equal(t, 3, after.PageCount())

	present := make(map[entities.ObjectID]bool)
	for _, id := range after.Identities() {
		present[id] = true
	}
	for _, id := range ids {
		assert.True(t, present[id], "identity %s lost", id)
	}

	w := pdfgraph.NewWalker(after)
	for w.Next() {
		img := w.Image()
		assert.LessOrEqual(t, img.Width, 400)
		assert.Equal(t, entities.ColorSpaceGray, img.ColorSpace)
		assert.Equal(t, "DCTDecode", img.Filter())
	}
	require.NoError(t, w.Err())
}

func TestCompress_OnlyIfSmaller(t *testing.T) {
	b := pdffixture.New()
	img := b.AddJPEG(pdffixture.Photo(32, 32), 5)
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Im0": img}})
	input := b.Bytes()

	c := newCompressor(t, 1)

	report, err := c.Compress(context.Background(), input, entities.NewCompressionSpec(100, 1000, false))
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, entities.ImageSkipped, report.Outcomes[0].Status)
	assert.ErrorIs(t, report.Outcomes[0].Reason, entities.ErrNoSizeGain)
	assert.NotEmpty(t, report.Output)

	spec := entities.NewCompressionSpec(100, 1000, false)
	spec.OnlyIfSmaller = false
	report, err = c.Compress(context.Background(), input, spec)
	require.NoError(t, err)
	assert.Equal(t, entities.ImageReplaced, report.Outcomes[0].Status)
}

func TestCompress_SkipsUnsupportedImages(t *testing.T) {
	b := pdffixture.New()
	jpx := b.AddStream("/Type /XObject /Subtype /Image /Width 4 /Height 4 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /JPXDecode", []byte{0, 0, 0, 12, 'j', 'P'})
	mask := b.AddStream("/Type /XObject /Subtype /Image /Width 8 /Height 1 /ImageMask true", []byte{0xff})
	photo := b.AddJPEG(pdffixture.Photo(800, 400), 95)
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Im0": jpx, "Im1": mask, "Im2": photo}})

	report, err := newCompressor(t, 2).Compress(context.Background(), b.Bytes(), entities.NewCompressionSpec(30, 200, false))
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)

	assert.Equal(t, entities.ImageSkipped, report.Outcomes[0].Status)
	assert.ErrorIs(t, report.Outcomes[0].Reason, entities.ErrUnsupportedImageFormat)
	assert.Equal(t, entities.ImageSkipped, report.Outcomes[1].Status)
	assert.ErrorIs(t, report.Outcomes[1].Reason, entities.ErrUnsupportedImageFormat)
	assert.Equal(t, entities.ImageReplaced, report.Outcomes[2].Status)
}

func TestCompress_NoImages(t *testing.T) {
	b := pdffixture.New()
	b.AddPage(pdffixture.Page{NoResources: true})
	b.AddPage(pdffixture.Page{NoResources: true})

	report, err := newCompressor(t, 1).Compress(context.Background(), b.Bytes(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Pages)
	assert.Empty(t, report.Outcomes)
	assert.NotEmpty(t, report.Output)
}

func TestCompress_UnparsableDocument(t *testing.T) {
	report, err := newCompressor(t, 1).Compress(context.Background(), []byte("%PDF-1.4 broken"), nil)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, entities.ErrUnparsableDocument)
}

func TestCompress_InvalidSpec(t *testing.T) {
	report, err := newCompressor(t, 1).Compress(context.Background(), pdffixture.SimpleDocument(8, 8),
		&entities.CompressionSpec{Quality: 30, MaxWidth: 0})
	assert.Nil(t, report)
	assert.ErrorIs(t, err, entities.ErrInvalidMaxWidth)
}

func TestCompress_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newCompressor(t, 2).Compress(ctx, pdffixture.SimpleDocument(64, 64), nil)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCompress_TranscoderFailuresAreIsolated(t *testing.T) {
	b := pdffixture.New()
	first := b.AddJPEG(pdffixture.Photo(40, 40), 95)
	second := b.AddJPEG(pdffixture.Photo(50, 50), 95)
	third := b.AddJPEG(pdffixture.Photo(60, 60), 95)
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Im0": first, "Im1": second, "Im2": third}})

	replacement := &entities.TranscodedImage{
		Data:             []byte{0xff, 0xd8, 0xff, 0xd9},
		Filter:           "DCTDecode",
		Width:            1,
		Height:           1,
		ColorSpace:       entities.ColorSpaceGray,
		BitsPerComponent: 8,
		Channels:         1,
	}

	transcoder := &mockTranscoder{}
	transcoder.On("Transcode", mock.MatchedBy(func(img entities.ImageStream) bool { return img.ID.Number == first }), mock.Anything).
		Run(func(mock.Arguments) { panic("сбой декодера") })
	transcoder.On("Transcode", mock.MatchedBy(func(img entities.ImageStream) bool { return img.ID.Number == second }), mock.Anything).
		Return(nil, entities.ErrTranscodeFailure)
	transcoder.On("Transcode", mock.MatchedBy(func(img entities.ImageStream) bool { return img.ID.Number == third }), mock.Anything).
		Return(replacement, nil)

	c := compressors.NewPDFCPUCompressor(transcoder, 3, logging.NewNopLogger())
	report, err := c.Compress(context.Background(), b.Bytes(), entities.NewCompressionSpec(30, 1000, false))
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)

	assert.Equal(t, entities.ImageSkipped, report.Outcomes[0].Status)
	assert.ErrorIs(t, report.Outcomes[0].Reason, entities.ErrTranscodeFailure)
	assert.Equal(t, entities.ImageSkipped, report.Outcomes[1].Status)
	assert.ErrorIs(t, report.Outcomes[1].Reason, entities.ErrTranscodeFailure)
	assert.Equal(t, entities.ImageReplaced, report.Outcomes[2].Status)
	assert.Equal(t, 4, report.Outcomes[2].NewBytes)

	transcoder.AssertNumberOfCalls(t, "Transcode", 3)
}

func TestCompress_EmptyTranscodeResultIsSkipped(t *testing.T) {
	transcoder := &mockTranscoder{}
	transcoder.On("Transcode", mock.Anything, mock.Anything).Return(&entities.TranscodedImage{}, nil)

	c := compressors.NewPDFCPUCompressor(transcoder, 1, nil)
	report, err := c.Compress(context.Background(), pdffixture.SimpleDocument(16, 16), nil)
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.ErrorIs(t, report.Outcomes[0].Reason, entities.ErrTranscodeFailure)
}

func TestInspect(t *testing.T) {
	b := pdffixture.New()
	img := b.AddJPEG(pdffixture.Photo(10, 10), 90)
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Im0": img}})
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Im0": img}})

	pages, images, err := newCompressor(t, 1).Inspect(b.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, pages)
	require.Len(t, images, 1)
	assert.Equal(t, img, images[0].ID.Number)

	_, _, err = newCompressor(t, 1).Inspect(nil)
	assert.ErrorIs(t, err, entities.ErrUnparsableDocument)
}
