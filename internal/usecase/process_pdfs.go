package usecases

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/domain/repositories"
)

// ProcessPDFsUseCase сценарий автоматической обработки директории:
// сканирование, пакетное сжатие, запись результатов, архив и журнал
type ProcessPDFsUseCase struct {
	batch            *ProcessBatchUseCase
	fileRepo         repositories.FileRepository
	archiver         repositories.Archiver
	journal          repositories.ResultJournal
	logger           repositories.Logger
	progressReporter func(entities.ProcessingStatus)
}

// NewProcessPDFsUseCase создает новый сценарий обработки PDF.
// archiver и journal необязательны.
func NewProcessPDFsUseCase(
	batch *ProcessBatchUseCase,
	fileRepo repositories.FileRepository,
	archiver repositories.Archiver,
	journal repositories.ResultJournal,
	logger repositories.Logger,
) *ProcessPDFsUseCase {
	return &ProcessPDFsUseCase{
		batch:    batch,
		fileRepo: fileRepo,
		archiver: archiver,
		journal:  journal,
		logger:   logger,
	}
}

// SetProgressReporter устанавливает функцию для отчета о прогрессе
func (uc *ProcessPDFsUseCase) SetProgressReporter(reporter func(entities.ProcessingStatus)) {
	uc.progressReporter = reporter
}

// reportProgress отправляет обновление прогресса
func (uc *ProcessPDFsUseCase) reportProgress(status *entities.ProcessingStatus) {
	if uc.progressReporter != nil {
		uc.progressReporter(*status)
	}
}

// Execute выполняет автоматическую обработку файлов согласно конфигурации
func (uc *ProcessPDFsUseCase) Execute(ctx context.Context, config *entities.Config) (*entities.BatchSummary, error) {
	// Фаза 1: Инициализация
	status := entities.NewProcessingStatus(0)
	status.SetPhase(entities.PhaseInitializing, "Инициализация обработки...")
	uc.reportProgress(status)

	spec := config.CompressionSpec()

	uc.logInfo("╔════════════════════════════════════════════════════════════")
	uc.logInfo("║ Начало обработки файлов")
	uc.logInfo("╠════════════════════════════════════════════════════════════")
	uc.logInfo("║ Исходная директория: %s", config.Scanner.SourceDirectory)

	if config.Scanner.ReplaceOriginal {
		uc.logInfo("║ Режим: Замена оригинальных файлов")
	} else {
		uc.logInfo("║ Целевая директория: %s", config.Scanner.TargetDirectory)
	}

	uc.logInfo("║ Качество JPEG: %d", spec.Quality)
	uc.logInfo("║ Максимальная ширина: %d px", spec.MaxWidth)
	if spec.Grayscale {
		uc.logInfo("║ Оттенки серого: да")
	}
	uc.logInfo("║ Типы файлов: %v", config.GetSupportedInputTypes())
	uc.logInfo("║ Параллельных воркеров: %d", config.Processing.ParallelWorkers)
	uc.logInfo("╚════════════════════════════════════════════════════════════")

	if err := config.Validate(); err != nil {
		err = fmt.Errorf("ошибка валидации конфигурации: %w", err)
		uc.fail(status, err)
		return nil, err
	}

	// Проверяем существование исходной директории
	if !uc.fileRepo.FileExists(config.Scanner.SourceDirectory) {
		err := fmt.Errorf("%w: %s", entities.ErrDirectoryNotFound, config.Scanner.SourceDirectory)
		uc.fail(status, err)
		return nil, err
	}

	// Создаем целевую директорию, если нужно
	if !config.Scanner.ReplaceOriginal {
		if err := uc.fileRepo.CreateDirectory(config.Scanner.TargetDirectory); err != nil {
			err = fmt.Errorf("ошибка создания целевой директории: %w", err)
			uc.fail(status, err)
			return nil, err
		}
	}

	// Фаза 2: Сканирование файлов
	status.SetPhase(entities.PhaseScanning, "Сканирование файлов...")
	uc.reportProgress(status)
	uc.logInfo("🔍 Сканирование директории...")

	files, err := uc.fileRepo.ListInputFiles(config.Scanner.SourceDirectory, config.Scanner.IncludeSlides)
	if err != nil {
		err = fmt.Errorf("ошибка получения списка файлов: %w", err)
		uc.fail(status, err)
		return nil, err
	}

	if len(files) == 0 {
		uc.logWarning("⚠️  Файлы не найдены в директории: %s", config.Scanner.SourceDirectory)
		status.Complete()
		uc.reportProgress(status)
		return entities.NewBatchSummary(nil, status.StartTime), nil
	}

	uc.logSuccess("✓ Найдено файлов для обработки: %d", len(files))

	inputs := make([]*entities.InputFile, 0, len(files))
	for _, path := range files {
		kind, err := entities.DetectInputKind(path)
		if err != nil {
			continue
		}
		name, err := filepath.Rel(config.Scanner.SourceDirectory, path)
		if err != nil {
			name = filepath.Base(path)
		}
		inputs = append(inputs, &entities.InputFile{Name: name, Path: path, Kind: kind})
	}

	return uc.run(ctx, config, spec, inputs, status)
}

// ExecuteFiles обрабатывает явно заданный список файлов.
// Результаты пишутся в целевую директорию или на место оригиналов.
func (uc *ProcessPDFsUseCase) ExecuteFiles(ctx context.Context, config *entities.Config, paths []string) (*entities.BatchSummary, error) {
	status := entities.NewProcessingStatus(len(paths))
	spec := config.CompressionSpec()
	if err := config.Validate(); err != nil {
		uc.fail(status, err)
		return nil, err
	}
	if len(paths) == 0 {
		return nil, entities.ErrNoFilesFound
	}
	if !config.Scanner.ReplaceOriginal {
		if err := uc.fileRepo.CreateDirectory(config.Scanner.TargetDirectory); err != nil {
			err = fmt.Errorf("ошибка создания целевой директории: %w", err)
			uc.fail(status, err)
			return nil, err
		}
	}

	inputs := make([]*entities.InputFile, 0, len(paths))
	for _, path := range paths {
		kind, err := entities.DetectInputKind(path)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, &entities.InputFile{Name: filepath.Base(path), Path: path, Kind: kind})
	}

	return uc.run(ctx, config, spec, inputs, status)
}

func (uc *ProcessPDFsUseCase) run(
	ctx context.Context,
	config *entities.Config,
	spec *entities.CompressionSpec,
	inputs []*entities.InputFile,
	status *entities.ProcessingStatus,
) (*entities.BatchSummary, error) {
	startedAt := time.Now()
	runID := uc.startRun(ctx, spec)
	keepOutput := config.Output.ArchivePath != "" && uc.archiver != nil

	// Фаза 3: Сжатие файлов
	uc.logInfo("")
	uc.logInfo("🔄 Начало сжатия файлов...")
	uc.logInfo("─────────────────────────────────────────────────────────────")

	counter := 0
	uc.batch.SetProgressReporter(uc.progressReporter)
	uc.batch.SetResultHandler(func(result *entities.BatchResult) {
		counter++
		if result.Success {
			uc.writeResult(config, result)
		}
		uc.logResult(counter, len(inputs), result)
		uc.record(ctx, runID, result)
		if !keepOutput {
			result.Output = nil
		}
	})

	results, err := uc.batch.Execute(ctx, inputs, spec)
	if err != nil {
		uc.fail(status, err)
		return nil, err
	}

	summary := entities.NewBatchSummary(results, startedAt)
	summary.RunID = runID

	if keepOutput {
		uc.writeArchive(config.Output.ArchivePath, summary)
	}
	for _, r := range results {
		r.Output = nil
	}

	uc.finishRun(runID, summary)
	uc.logSummary(summary)

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("обработка прервана: %w", err)
	}
	return summary, nil
}

// writeResult сохраняет результат на диск. Ошибка записи переводит
// результат в неудачные.
func (uc *ProcessPDFsUseCase) writeResult(config *entities.Config, result *entities.BatchResult) {
	var err error
	switch {
	case config.Scanner.ReplaceOriginal && result.Kind == entities.InputPDF:
		// Оригинал заменяется только более компактной версией
		if result.OutputSize >= result.OriginalSize {
			uc.logWarning("    └─ %s: результат не меньше оригинала, файл не заменен", result.FileName)
			return
		}
		err = uc.fileRepo.ReplaceOriginal(result.Path, result.Output)
	case config.Scanner.ReplaceOriginal:
		// PDF из презентации кладется рядом с ней
		err = uc.fileRepo.WriteFile(filepath.Join(filepath.Dir(result.Path), result.OutputName), result.Output)
	default:
		dir := filepath.Join(config.Scanner.TargetDirectory, filepath.Dir(result.FileName))
		err = uc.fileRepo.WriteFile(filepath.Join(dir, result.OutputName), result.Output)
	}

	if err != nil {
		result.Fail(fmt.Errorf("ошибка записи результата: %w", err))
	}
}

func (uc *ProcessPDFsUseCase) writeArchive(path string, summary *entities.BatchSummary) {
	entries := summary.ArchiveEntries()
	if len(entries) == 0 {
		uc.logWarning("⚠️  Архив не создан: %v", entities.ErrNothingToArchive)
		return
	}
	if err := uc.archiver.WriteFile(path, entries); err != nil {
		uc.logError("Ошибка создания архива %s: %v", path, err)
		return
	}
	summary.ArchivePath = path
	uc.logSuccess("📦 Архив создан: %s (%d файлов)", path, len(entries))
}

func (uc *ProcessPDFsUseCase) startRun(ctx context.Context, spec *entities.CompressionSpec) string {
	if uc.journal == nil {
		return ""
	}
	id, err := uc.journal.StartRun(ctx, spec)
	if err != nil {
		uc.logWarning("Журнал запусков недоступен: %v", err)
		return ""
	}
	return id
}

func (uc *ProcessPDFsUseCase) record(ctx context.Context, runID string, result *entities.BatchResult) {
	if uc.journal == nil || runID == "" {
		return
	}
	// Запись в журнал не зависит от отмены обработки
	if err := uc.journal.Record(context.WithoutCancel(ctx), runID, result); err != nil {
		uc.logWarning("Ошибка записи в журнал: %v", err)
	}
}

func (uc *ProcessPDFsUseCase) finishRun(runID string, summary *entities.BatchSummary) {
	if uc.journal == nil || runID == "" {
		return
	}
	if err := uc.journal.FinishRun(context.Background(), runID, summary); err != nil {
		uc.logWarning("Ошибка завершения записи журнала: %v", err)
	}
}

func (uc *ProcessPDFsUseCase) fail(status *entities.ProcessingStatus, err error) {
	status.Fail(err)
	uc.reportProgress(status)
	uc.logError("✗ %v", err)
}

func (uc *ProcessPDFsUseCase) logResult(n, total int, result *entities.BatchResult) {
	if result.Success && result.Error == nil {
		uc.logSuccess("[%d/%d] ✓ %s", n, total, result.FileName)
		uc.logInfo("    └─ Размер: %.2f MB → %.2f MB",
			float64(result.OriginalSize)/1024/1024,
			float64(result.OutputSize)/1024/1024)
		uc.logInfo("    └─ Сжатие: %.2f%% | Изображений: %d из %d",
			result.ReductionPercent, result.ImagesReplaced, result.ImagesFound)
		return
	}

	uc.logError("[%d/%d] ✗ %s", n, total, result.FileName)
	if errors.Is(result.Error, context.Canceled) || errors.Is(result.Error, context.DeadlineExceeded) {
		uc.logError("    └─ Обработка прервана")
		return
	}
	uc.logError("    └─ Ошибка (%s): %v", entities.ErrorKind(result.Error), result.Error)
}

func (uc *ProcessPDFsUseCase) logSummary(summary *entities.BatchSummary) {
	uc.logInfo("")
	uc.logInfo("╔════════════════════════════════════════════════════════════")
	uc.logInfo("║ Обработка завершена")
	uc.logInfo("╠════════════════════════════════════════════════════════════")
	uc.logInfo("║ Время выполнения: %s", summary.Duration.Round(time.Millisecond))
	uc.logInfo("╠════════════════════════════════════════════════════════════")
	uc.logInfo("║ Статистика файлов:")
	uc.logInfo("║   • Всего: %d", summary.TotalFiles)
	uc.logSuccess("║   • Успешно: %d", summary.Successful)

	if summary.Failed > 0 {
		uc.logError("║   • Ошибок: %d", summary.Failed)
	}

	if summary.OriginalBytes > 0 {
		uc.logInfo("╠════════════════════════════════════════════════════════════")
		uc.logInfo("║ Статистика сжатия:")
		uc.logInfo("║   • Исходный размер: %.2f MB", float64(summary.OriginalBytes)/1024/1024)
		uc.logInfo("║   • Итоговый размер: %.2f MB", float64(summary.OutputBytes)/1024/1024)
		uc.logSuccess("║   • Среднее сжатие: %.2f%%", summary.ReductionPercent())
		uc.logSuccess("║   • Заменено изображений: %d", summary.ImagesReplaced)
	}

	uc.logInfo("╚════════════════════════════════════════════════════════════")
}

// Методы для логирования
func (uc *ProcessPDFsUseCase) logInfo(format string, args ...interface{}) {
	if uc.logger != nil {
		uc.logger.Info(format, args...)
	}
}

func (uc *ProcessPDFsUseCase) logSuccess(format string, args ...interface{}) {
	if uc.logger != nil {
		uc.logger.Success(format, args...)
	}
}

func (uc *ProcessPDFsUseCase) logWarning(format string, args ...interface{}) {
	if uc.logger != nil {
		uc.logger.Warning(format, args...)
	}
}

func (uc *ProcessPDFsUseCase) logError(format string, args ...interface{}) {
	if uc.logger != nil {
		uc.logger.Error(format, args...)
	}
}
