package repositories

import (
	"context"
	"io"

	"pdfshrink/internal/domain/entities"
)

// PDFCompressor интерфейс движка перекомпрессии изображений одного документа
type PDFCompressor interface {
	Compress(ctx context.Context, data []byte, spec *entities.CompressionSpec) (*entities.DocumentReport, error)
}

// ImageInspector перечисляет изображения документа без изменений
type ImageInspector interface {
	Inspect(data []byte) (pages int, images []entities.ImageStream, err error)
}

// ImageTranscoder интерфейс перекодирования одного изображения
type ImageTranscoder interface {
	Transcode(img entities.ImageStream, spec entities.CompressionSpec) (*entities.TranscodedImage, error)
}

// SlideConverter конвертирует презентацию в PDF
type SlideConverter interface {
	Convert(ctx context.Context, name string, data []byte) ([]byte, error)
}

// FileRepository интерфейс для работы с файловой системой
type FileRepository interface {
	FileExists(path string) bool
	CreateDirectory(path string) error
	ListInputFiles(directory string, includeSlides bool) ([]string, error)
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	ReplaceOriginal(path string, data []byte) error
}

// Archiver упаковывает успешные результаты в один архив
type Archiver interface {
	Write(w io.Writer, entries []entities.ArchiveEntry) error
	WriteFile(path string, entries []entities.ArchiveEntry) error
}

// ResultJournal журнал запусков
type ResultJournal interface {
	StartRun(ctx context.Context, spec *entities.CompressionSpec) (string, error)
	Record(ctx context.Context, runID string, result *entities.BatchResult) error
	FinishRun(ctx context.Context, runID string, summary *entities.BatchSummary) error
	RecentRuns(ctx context.Context, limit int) ([]entities.RunRecord, error)
	Close() error
}

// ConfigRepository интерфейс для работы с предустановками сжатия
type ConfigRepository interface {
	GetCompressionSpec(preset string) (*entities.CompressionSpec, error)
	ValidateSpec(spec *entities.CompressionSpec) error
	Presets() []string
}
