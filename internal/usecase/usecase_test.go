package usecases

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/domain/repositories"
	"pdfshrink/internal/infrastructure/archive"
	"pdfshrink/internal/infrastructure/compressors"
	"pdfshrink/internal/infrastructure/logging"
	fsrepo "pdfshrink/internal/infrastructure/repositories"
	"pdfshrink/internal/testutil/pdffixture"
)

// MockCompressor is a mock implementation of PDFCompressor
type MockCompressor struct {
	mock.Mock
}

var _ repositories.PDFCompressor = (*MockCompressor)(nil)

func (m *MockCompressor) Compress(ctx context.Context, data []byte, spec *entities.CompressionSpec) (*entities.DocumentReport, error) {
	args := m.Called(ctx, data, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DocumentReport), args.Error(1)
}

// MockConverter is a mock implementation of SlideConverter
type MockConverter struct {
	mock.Mock
}

var _ repositories.SlideConverter = (*MockConverter)(nil)

func (m *MockConverter) Convert(ctx context.Context, name string, data []byte) ([]byte, error) {
	args := m.Called(ctx, name, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockJournal is a mock implementation of ResultJournal
type MockJournal struct {
	mock.Mock
}

var _ repositories.ResultJournal = (*MockJournal)(nil)

func (m *MockJournal) StartRun(ctx context.Context, spec *entities.CompressionSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockJournal) Record(ctx context.Context, runID string, result *entities.BatchResult) error {
	args := m.Called(ctx, runID, result)
	return args.Error(0)
}

func (m *MockJournal) FinishRun(ctx context.Context, runID string, summary *entities.BatchSummary) error {
	args := m.Called(ctx, runID, summary)
	return args.Error(0)
}

func (m *MockJournal) RecentRuns(ctx context.Context, limit int) ([]entities.RunRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entities.RunRecord), args.Error(1)
}

func (m *MockJournal) Close() error {
	return m.Called().Error(0)
}

func testLogger(t *testing.T) repositories.Logger {
	return logging.NewLogger(zaptest.NewLogger(t))
}

func realDocumentUseCase(t *testing.T, converter repositories.SlideConverter) *CompressPDFUseCase {
	engine := compressors.NewPDFCPUCompressor(compressors.NewImageCompressor(), 2, testLogger(t))
	return NewCompressPDFUseCase(engine, converter, testLogger(t))
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestCompressPDF_Success(t *testing.T) {
	uc := realDocumentUseCase(t, nil)
	input := &entities.InputFile{Name: "a.pdf", Data: pdffixture.SimpleDocument(1200, 800), Kind: entities.InputPDF}

	result := uc.Execute(context.Background(), input, entities.NewCompressionSpec(30, 1000, false))

	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, "compressed_a.pdf", result.OutputName)
	assert.Equal(t, int64(len(input.Data)), result.OriginalSize)
	assert.Equal(t, int64(len(result.Output)), result.OutputSize)
	assert.Equal(t, 1, result.Pages)
	assert.Equal(t, 1, result.ImagesFound)
	assert.Equal(t, 1, result.ImagesReplaced)
	assert.Greater(t, result.ReductionPercent, 0.0)
	assert.True(t, result.IsEffective())
}

func TestCompressPDF_SlideDeck(t *testing.T) {
	converter := &MockConverter{}
	converter.On("Convert", mock.Anything, "deck.pptx", []byte("PK deck")).
		Return(pdffixture.SimpleDocument(64, 64), nil)

	uc := realDocumentUseCase(t, converter)
	input := &entities.InputFile{Name: "deck.pptx", Data: []byte("PK deck"), Kind: entities.InputSlideDeck}

	result := uc.Execute(context.Background(), input, entities.NewCompressionSpec(30, 1000, false))
	require.True(t, result.Success, "%v", result.Error)
	assert.Equal(t, "deck.pdf", result.OutputName)
	assert.Equal(t, int64(7), result.OriginalSize)
	converter.AssertExpectations(t)
}

func TestCompressPDF_ConversionErrors(t *testing.T) {
	input := &entities.InputFile{Name: "deck.ppt", Data: []byte("deck"), Kind: entities.InputSlideDeck}

	result := realDocumentUseCase(t, nil).Execute(context.Background(), input, entities.NewCompressionSpec(30, 1000, false))
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Error, entities.ErrConversionUnavailable)

	converter := &MockConverter{}
	converter.On("Convert", mock.Anything, mock.Anything, mock.Anything).Return(nil, entities.ErrConversionTimeout)
	result = realDocumentUseCase(t, converter).Execute(context.Background(), input, entities.NewCompressionSpec(30, 1000, false))
	assert.False(t, result.Success)
	assert.Equal(t, "ConversionTimeout", entities.ErrorKind(result.Error))
	assert.Nil(t, result.Output)
}

func TestCompressPDF_RecoversFromPanic(t *testing.T) {
	compressor := &MockCompressor{}
	compressor.On("Compress", mock.Anything, mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		panic("повреждено")
	})

	uc := NewCompressPDFUseCase(compressor, nil, nil)
	result := uc.Execute(context.Background(), &entities.InputFile{Name: "a.pdf", Data: []byte("x")}, entities.NewCompressionSpec(30, 1000, false))
	assert.False(t, result.Success)
	assert.Error(t, result.Error)
}

func TestProcessBatch_IsolatesFailures(t *testing.T) {
	batch := NewProcessBatchUseCase(realDocumentUseCase(t, nil), nil, 3, testLogger(t))

	var statuses []entities.ProcessingStatus
	var mu sync.Mutex
	batch.SetProgressReporter(func(s entities.ProcessingStatus) {
		mu.Lock()
		statuses = append(statuses, s)
		mu.Unlock()
	})

	inputs := []*entities.InputFile{
		{Name: "validA.pdf", Data: pdffixture.SimpleDocument(800, 600)},
		{Name: "corrupt.pdf", Data: []byte("%PDF-1.4\n garbage")},
		{Name: "validB.pdf", Data: pdffixture.SimpleDocument(300, 200)},
	}

	results, err := batch.Execute(context.Background(), inputs, entities.NewCompressionSpec(30, 500, false))
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "validA.pdf", results[0].FileName)
	assert.True(t, results[0].Success)
	assert.Equal(t, "corrupt.pdf", results[1].FileName)
	assert.False(t, results[1].Success)
	assert.Equal(t, "UnparsableDocument", entities.ErrorKind(results[1].Error))
	assert.Equal(t, "validB.pdf", results[2].FileName)
	assert.True(t, results[2].Success)

	require.NotEmpty(t, statuses)
	last := statuses[len(statuses)-1]
	assert.True(t, last.IsComplete)
	assert.Equal(t, 3, last.ProcessedFiles)
	assert.Equal(t, 2, last.SuccessfulFiles)
	assert.Equal(t, 1, last.FailedFiles)
}

func TestProcessBatch_ReadsLazily(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.pdf")
	writeFile(t, path, pdffixture.SimpleDocument(64, 64))

	batch := NewProcessBatchUseCase(realDocumentUseCase(t, nil), fsrepo.NewFileSystemRepository(), 1, nil)
	results, err := batch.Execute(context.Background(), []*entities.InputFile{
		{Name: "a.pdf", Path: path},
		{Name: "missing.pdf", Path: filepath.Join(dir, "missing.pdf")},
	}, entities.NewCompressionSpec(30, 1000, false))
	require.NoError(t, err)

	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.ErrorIs(t, results[1].Error, entities.ErrFileNotFound)
}

func TestProcessBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch := NewProcessBatchUseCase(realDocumentUseCase(t, nil), nil, 2, nil)
	inputs := []*entities.InputFile{
		{Name: "a.pdf", Data: pdffixture.SimpleDocument(32, 32)},
		{Name: "b.pdf", Data: pdffixture.SimpleDocument(32, 32)},
		{Name: "c.pdf", Data: pdffixture.SimpleDocument(32, 32)},
	}

	results, err := batch.Execute(ctx, inputs, entities.NewCompressionSpec(30, 1000, false))
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, inputs[i].Name, r.FileName)
		assert.False(t, r.Success)
		assert.Equal(t, "Cancelled", entities.ErrorKind(r.Error))
		assert.Nil(t, r.Output)
	}
}

func TestProcessBatch_InvalidSpec(t *testing.T) {
	batch := NewProcessBatchUseCase(realDocumentUseCase(t, nil), nil, 1, nil)
	_, err := batch.Execute(context.Background(), nil, &entities.CompressionSpec{Quality: 500, MaxWidth: 10})
	assert.ErrorIs(t, err, entities.ErrInvalidQuality)

	results, err := batch.Execute(context.Background(), nil, entities.NewCompressionSpec(30, 1000, false))
	require.NoError(t, err)
	assert.Empty(t, results)
}

func newProcessPDFs(t *testing.T, journal repositories.ResultJournal) *ProcessPDFsUseCase {
	fileRepo := fsrepo.NewFileSystemRepository()
	batch := NewProcessBatchUseCase(realDocumentUseCase(t, nil), fileRepo, 2, testLogger(t))
	return NewProcessPDFsUseCase(batch, fileRepo, archive.NewZipArchiver(), journal, testLogger(t))
}

func TestProcessPDFs_Directory(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "out")
	writeFile(t, filepath.Join(src, "a.pdf"), pdffixture.SimpleDocument(1200, 900))
	writeFile(t, filepath.Join(src, "sub", "b.pdf"), pdffixture.SimpleDocument(400, 300))
	writeFile(t, filepath.Join(src, "broken.pdf"), []byte("not a pdf"))
	writeFile(t, filepath.Join(src, "deck.pptx"), []byte("ignored without slides"))

	journal := &MockJournal{}
	journal.On("StartRun", mock.Anything, mock.Anything).Return("run-1", nil)
	journal.On("Record", mock.Anything, "run-1", mock.Anything).Return(nil)
	journal.On("FinishRun", mock.Anything, "run-1", mock.Anything).Return(nil)

	config := entities.NewDefaultConfig()
	config.Scanner.SourceDirectory = src
	config.Scanner.TargetDirectory = dst
	config.Output.ArchivePath = filepath.Join(dst, archive.DefaultArchiveName)

	uc := newProcessPDFs(t, journal)
	var final entities.ProcessingStatus
	uc.SetProgressReporter(func(s entities.ProcessingStatus) { final = s })

	summary, err := uc.Execute(context.Background(), config)
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 3, summary.TotalFiles)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, config.Output.ArchivePath, summary.ArchivePath)
	assert.Greater(t, summary.ReductionPercent(), 0.0)
	assert.True(t, final.IsComplete)

	assert.FileExists(t, filepath.Join(dst, "compressed_a.pdf"))
	assert.FileExists(t, filepath.Join(dst, "sub", "compressed_b.pdf"))
	assert.NoFileExists(t, filepath.Join(dst, "compressed_broken.pdf"))
	assert.FileExists(t, config.Output.ArchivePath)

	for _, r := range summary.Results {
		assert.Nil(t, r.Output)
	}

	journal.AssertNumberOfCalls(t, "Record", 3)
	journal.AssertNumberOfCalls(t, "FinishRun", 1)
}

func TestProcessPDFs_ReplaceOriginal(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "a.pdf")
	original := pdffixture.SimpleDocument(1000, 800)
	writeFile(t, path, original)

	config := entities.NewDefaultConfig()
	config.Scanner.SourceDirectory = src
	config.Scanner.ReplaceOriginal = true

	summary, err := newProcessPDFs(t, nil).Execute(context.Background(), config)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Less(t, len(data), len(original))
	assert.NoFileExists(t, path+".backup")
}

func TestProcessPDFs_Errors(t *testing.T) {
	config := entities.NewDefaultConfig()
	config.Scanner.SourceDirectory = filepath.Join(t.TempDir(), "missing")
	config.Scanner.TargetDirectory = t.TempDir()

	_, err := newProcessPDFs(t, nil).Execute(context.Background(), config)
	assert.ErrorIs(t, err, entities.ErrDirectoryNotFound)

	config.Scanner.SourceDirectory = t.TempDir()
	summary, err := newProcessPDFs(t, nil).Execute(context.Background(), config)
	require.NoError(t, err)
	assert.Zero(t, summary.TotalFiles)

	config.Compression.Quality = 0
	_, err = newProcessPDFs(t, nil).Execute(context.Background(), config)
	assert.ErrorIs(t, err, entities.ErrInvalidQuality)
}

func TestProcessPDFs_ExecuteFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	a := filepath.Join(src, "a.pdf")
	writeFile(t, a, pdffixture.SimpleDocument(200, 100))

	config := entities.NewDefaultConfig()
	config.Scanner.TargetDirectory = dst

	uc := newProcessPDFs(t, nil)
	summary, err := uc.ExecuteFiles(context.Background(), config, []string{a})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.FileExists(t, filepath.Join(dst, "compressed_a.pdf"))

	_, err = uc.ExecuteFiles(context.Background(), config, []string{filepath.Join(src, "notes.txt")})
	assert.ErrorIs(t, err, entities.ErrUnsupportedInput)

	_, err = uc.ExecuteFiles(context.Background(), config, nil)
	assert.ErrorIs(t, err, entities.ErrNoFilesFound)
}

func TestInspectPDF(t *testing.T) {
	dir := t.TempDir()
	b := pdffixture.New()
	img := b.AddJPEG(pdffixture.Photo(30, 20), 90)
	jpx := b.AddStream("/Type /XObject /Subtype /Image /Width 4 /Height 4 /ColorSpace /DeviceRGB /BitsPerComponent 8 /Filter /JPXDecode", []byte{0, 0, 0, 12})
	b.AddPage(pdffixture.Page{XObjects: map[string]int{"Im0": img, "Im1": jpx}})
	path := filepath.Join(dir, "a.pdf")
	writeFile(t, path, b.Bytes())

	uc := NewInspectPDFUseCase(compressors.NewPDFCPUCompressor(nil, 1, nil), fsrepo.NewFileSystemRepository())
	report, err := uc.Execute(path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pages)
	assert.Len(t, report.Images, 2)
	assert.Equal(t, 1, report.Supported())
	assert.Greater(t, report.ImageBytes, int64(0))

	_, err = uc.Execute(filepath.Join(dir, "missing.pdf"))
	assert.ErrorIs(t, err, entities.ErrFileNotFound)
}
