package entities

import "time"

// Config представляет конфигурацию приложения
type Config struct {
	Scanner     ScannerConfig        `yaml:"scanner"`
	Compression AppCompressionConfig `yaml:"compression"`
	Processing  ProcessingConfig     `yaml:"processing"`
	Output      OutputConfig         `yaml:"output"`
}

// ScannerConfig настройки сканирования директорий
type ScannerConfig struct {
	SourceDirectory string `yaml:"source_directory"`
	TargetDirectory string `yaml:"target_directory"`
	ReplaceOriginal bool   `yaml:"replace_original"`
	IncludeSlides   bool   `yaml:"include_slides"`
}

// AppCompressionConfig настройки сжатия приложения
type AppCompressionConfig struct {
	Quality       int    `yaml:"quality"`   // Качество JPEG (1-100)
	MaxWidth      int    `yaml:"max_width"` // Максимальная ширина изображений в пикселях
	Grayscale     bool   `yaml:"grayscale"`
	Resampler     string `yaml:"resampler"`
	OnlyIfSmaller bool   `yaml:"only_if_smaller"`
	AutoStart     bool   `yaml:"auto_start"`
}

// ProcessingConfig настройки обработки
type ProcessingConfig struct {
	ParallelWorkers          int    `yaml:"parallel_workers"`
	ImageWorkers             int    `yaml:"image_workers"`
	ConversionTimeoutSeconds int    `yaml:"conversion_timeout_seconds"`
	RetryAttempts            int    `yaml:"retry_attempts"`
	ConverterBinary          string `yaml:"converter_binary"`
}

// OutputConfig настройки вывода
type OutputConfig struct {
	LogLevel     string `yaml:"log_level"`
	ProgressBar  bool   `yaml:"progress_bar"`
	LogToFile    bool   `yaml:"log_to_file"`
	LogFileName  string `yaml:"log_file_name"`
	LogMaxSizeMB int    `yaml:"log_max_size_mb"`
	ArchivePath  string `yaml:"archive_path"`
	JournalPath  string `yaml:"journal_path"`
}

// NewDefaultConfig создает конфигурацию по умолчанию
func NewDefaultConfig() *Config {
	return &Config{
		Scanner: ScannerConfig{
			SourceDirectory: "./pdfs",
			TargetDirectory: "./compressed",
			ReplaceOriginal: false,
			IncludeSlides:   false,
		},
		Compression: AppCompressionConfig{
			Quality:       DefaultQuality,
			MaxWidth:      DefaultMaxWidth,
			Grayscale:     false,
			Resampler:     ResamplerLanczos3,
			OnlyIfSmaller: true,
			AutoStart:     false,
		},
		Processing: ProcessingConfig{
			ParallelWorkers:          2,
			ImageWorkers:             4,
			ConversionTimeoutSeconds: 120,
			RetryAttempts:            2,
			ConverterBinary:          "soffice",
		},
		Output: OutputConfig{
			LogLevel:     "info",
			ProgressBar:  true,
			LogToFile:    true,
			LogFileName:  "pdfshrink.log",
			LogMaxSizeMB: 10,
			ArchivePath:  "",
			JournalPath:  "",
		},
	}
}

// CompressionSpec возвращает параметры перекодирования для запуска
func (c *Config) CompressionSpec() *CompressionSpec {
	spec := NewCompressionSpec(c.Compression.Quality, c.Compression.MaxWidth, c.Compression.Grayscale)
	if c.Compression.Resampler != "" {
		spec.Resampler = c.Compression.Resampler
	}
	spec.OnlyIfSmaller = c.Compression.OnlyIfSmaller
	return spec
}

// ConversionTimeout возвращает таймаут внешнего конвертера
func (c *Config) ConversionTimeout() time.Duration {
	return time.Duration(c.Processing.ConversionTimeoutSeconds) * time.Second
}

// Validate проверяет корректность конфигурации приложения
func (c *Config) Validate() error {
	if c.Compression.Quality < MinQuality || c.Compression.Quality > MaxQuality {
		return ErrInvalidQuality
	}
	if c.Compression.MaxWidth <= 0 {
		return ErrInvalidMaxWidth
	}
	if c.Processing.ParallelWorkers <= 0 || c.Processing.ImageWorkers <= 0 {
		return ErrInvalidWorkers
	}
	if c.Scanner.IncludeSlides && c.Processing.ConversionTimeoutSeconds <= 0 {
		return ErrInvalidTimeout
	}
	return c.CompressionSpec().Validate()
}

// GetSupportedInputTypes возвращает список поддерживаемых типов входных файлов
func (c *Config) GetSupportedInputTypes() []string {
	types := []string{"PDF"}
	if c.Scanner.IncludeSlides {
		types = append(types, "PPT", "PPTX", "ODP")
	}
	return types
}

// ProcessingStatus статус обработки
type ProcessingStatus struct {
	// Текущая фаза обработки
	Phase ProcessingPhase

	// Информация о текущем файле
	CurrentFile     string
	CurrentFileSize int64

	// Общая статистика
	TotalFiles      int
	ProcessedFiles  int
	SuccessfulFiles int
	FailedFiles     int
	SkippedFiles    int

	// Статистика изображений
	TotalImages    int
	ReplacedImages int

	// Прогресс
	Progress float64

	// Статистика сжатия
	TotalOriginalSize   int64
	TotalCompressedSize int64
	TotalSavedSpace     int64
	AverageCompression  float64

	// Текущий результат
	LastResult *BatchResult

	// Время выполнения
	StartTime     time.Time
	ElapsedTime   time.Duration
	EstimatedTime time.Duration

	// Состояние
	IsComplete bool
	Error      error

	// Сообщение для UI
	Message string
}

// ProcessingPhase фаза обработки
type ProcessingPhase int

const (
	PhaseInitializing ProcessingPhase = iota
	PhaseScanning
	PhaseConverting
	PhaseCompressing
	PhaseWriting
	PhaseCompleted
	PhaseFailed
)

// UIScreen типы экранов UI
type UIScreen int

const (
	UIScreenMenu UIScreen = iota
	UIScreenConfig
	UIScreenProcessing
	UIScreenHistory
)

// NewProcessingStatus создает новый статус обработки
func NewProcessingStatus(totalFiles int) *ProcessingStatus {
	return &ProcessingStatus{
		Phase:      PhaseInitializing,
		TotalFiles: totalFiles,
		StartTime:  time.Now(),
	}
}

// UpdateProgress обновляет прогресс обработки
func (ps *ProcessingStatus) UpdateProgress() {
	if ps.TotalFiles > 0 {
		ps.Progress = float64(ps.ProcessedFiles) / float64(ps.TotalFiles) * 100
	}

	ps.ElapsedTime = time.Since(ps.StartTime)

	// Оценка оставшегося времени
	if ps.ProcessedFiles > 0 && ps.ProcessedFiles < ps.TotalFiles {
		avgTimePerFile := ps.ElapsedTime / time.Duration(ps.ProcessedFiles)
		remainingFiles := ps.TotalFiles - ps.ProcessedFiles
		ps.EstimatedTime = avgTimePerFile * time.Duration(remainingFiles)
	}
}

// AddResult добавляет результат обработки файла
func (ps *ProcessingStatus) AddResult(result *BatchResult) {
	ps.ProcessedFiles++
	ps.LastResult = result
	ps.TotalImages += result.ImagesFound
	ps.ReplacedImages += result.ImagesReplaced

	if result.Success && result.Error == nil {
		ps.SuccessfulFiles++
		ps.TotalOriginalSize += result.OriginalSize
		ps.TotalCompressedSize += result.OutputSize
		ps.TotalSavedSpace += result.SavedSpace

		// Пересчитываем среднее сжатие
		if ps.TotalOriginalSize > 0 {
			ps.AverageCompression = ((float64(ps.TotalOriginalSize) - float64(ps.TotalCompressedSize)) / float64(ps.TotalOriginalSize)) * 100
		}
	} else {
		ps.FailedFiles++
	}

	ps.UpdateProgress()
}

// SetPhase устанавливает фазу обработки
func (ps *ProcessingStatus) SetPhase(phase ProcessingPhase, message string) {
	ps.Phase = phase
	ps.Message = message
}

// SetCurrentFile устанавливает текущий обрабатываемый файл
func (ps *ProcessingStatus) SetCurrentFile(filePath string, size int64) {
	ps.CurrentFile = filePath
	ps.CurrentFileSize = size
}

// Complete завершает обработку
func (ps *ProcessingStatus) Complete() {
	ps.IsComplete = true
	ps.Phase = PhaseCompleted
	ps.Progress = 100
	ps.ElapsedTime = time.Since(ps.StartTime)
	ps.EstimatedTime = 0
}

// Fail отмечает обработку как неудачную
func (ps *ProcessingStatus) Fail(err error) {
	ps.IsComplete = true
	ps.Phase = PhaseFailed
	ps.Error = err
	ps.ElapsedTime = time.Since(ps.StartTime)
}

func (phase ProcessingPhase) String() string {
	switch phase {
	case PhaseInitializing:
		return "Инициализация"
	case PhaseScanning:
		return "Сканирование файлов"
	case PhaseConverting:
		return "Конвертация презентаций"
	case PhaseCompressing:
		return "Сжатие изображений"
	case PhaseWriting:
		return "Запись результатов"
	case PhaseCompleted:
		return "Завершено"
	case PhaseFailed:
		return "Ошибка"
	default:
		return "Неизвестно"
	}
}

// FormatElapsedTime форматирует время выполнения
func (ps *ProcessingStatus) FormatElapsedTime() string {
	return formatDuration(ps.ElapsedTime)
}

// FormatEstimatedTime форматирует оставшееся время
func (ps *ProcessingStatus) FormatEstimatedTime() string {
	if ps.EstimatedTime == 0 {
		return "N/A"
	}
	return formatDuration(ps.EstimatedTime)
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "< 1 сек"
	}
	return d.Round(time.Second).String()
}
