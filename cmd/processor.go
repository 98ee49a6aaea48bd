package main

import (
	"context"
	"sync"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/domain/repositories"
	"pdfshrink/internal/infrastructure/archive"
	"pdfshrink/internal/infrastructure/compressors"
	"pdfshrink/internal/infrastructure/config"
	"pdfshrink/internal/infrastructure/converters"
	"pdfshrink/internal/infrastructure/journal"
	"pdfshrink/internal/infrastructure/logging"
	infraRepos "pdfshrink/internal/infrastructure/repositories"
	"pdfshrink/internal/presentation/tui"
	usecases "pdfshrink/internal/usecase"
)

// ApplicationProcessor собирает компоненты под конфигурацию запуска
// и выполняет команды контроллера
type ApplicationProcessor struct {
	fileRepo *infraRepos.FileSystemRepository

	// Graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApplicationProcessor создает новый процессор приложения
func NewApplicationProcessor(ctx context.Context) *ApplicationProcessor {
	ctx, cancel := context.WithCancel(ctx)
	return &ApplicationProcessor{
		fileRepo: infraRepos.NewFileSystemRepository(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// pipeline собранный сценарий обработки и ресурсы, которые нужно закрыть
type pipeline struct {
	process *usecases.ProcessPDFsUseCase
	journal *journal.SQLiteJournal
}

func (pl *pipeline) Close() {
	if pl.journal != nil {
		_ = pl.journal.Close()
	}
}

// buildPipeline собирает движок, конвертер, пул файлов, архиватор и журнал
func (p *ApplicationProcessor) buildPipeline(cfg *entities.Config, logger repositories.Logger) (*pipeline, error) {
	compressor := compressors.NewPDFCPUCompressor(compressors.NewImageCompressor(), cfg.Processing.ImageWorkers, logger)

	var converter repositories.SlideConverter
	if cfg.Scanner.IncludeSlides {
		converter = converters.NewOfficeConverter(
			cfg.Processing.ConverterBinary,
			cfg.ConversionTimeout(),
			cfg.Processing.RetryAttempts,
			logger,
		)
	}

	document := usecases.NewCompressPDFUseCase(compressor, converter, logger)
	batch := usecases.NewProcessBatchUseCase(document, p.fileRepo, cfg.Processing.ParallelWorkers, logger)

	pl := &pipeline{}
	var resultJournal repositories.ResultJournal
	if cfg.Output.JournalPath != "" {
		j, err := journal.Open(cfg.Output.JournalPath)
		if err != nil {
			return nil, err
		}
		pl.journal = j
		resultJournal = j
	}

	pl.process = usecases.NewProcessPDFsUseCase(batch, p.fileRepo, archive.NewZipArchiver(), resultJournal, logger)
	return pl, nil
}

// cliLogger логгер для режима без TUI: в файл, если включено, иначе в stderr
func cliLogger(cfg *entities.Config) (repositories.Logger, error) {
	if cfg.Output.LogToFile {
		return logging.NewFileLogger(cfg.Output.LogFileName, cfg.Output.LogLevel, cfg.Output.LogMaxSizeMB, true)
	}
	return logging.NewConsoleLogger(cfg.Output.LogLevel)
}

// ProcessDirectory обрабатывает исходную директорию
func (p *ApplicationProcessor) ProcessDirectory(ctx context.Context, cfg *entities.Config) (*entities.BatchSummary, error) {
	return p.runBatch(ctx, cfg, func(uc *usecases.ProcessPDFsUseCase) (*entities.BatchSummary, error) {
		return uc.Execute(ctx, cfg)
	})
}

// ProcessFiles обрабатывает явно перечисленные файлы
func (p *ApplicationProcessor) ProcessFiles(ctx context.Context, cfg *entities.Config, paths []string) (*entities.BatchSummary, error) {
	return p.runBatch(ctx, cfg, func(uc *usecases.ProcessPDFsUseCase) (*entities.BatchSummary, error) {
		return uc.ExecuteFiles(ctx, cfg, paths)
	})
}

func (p *ApplicationProcessor) runBatch(
	ctx context.Context,
	cfg *entities.Config,
	execute func(*usecases.ProcessPDFsUseCase) (*entities.BatchSummary, error),
) (*entities.BatchSummary, error) {
	p.wg.Add(1)
	defer p.wg.Done()

	logger, err := cliLogger(cfg)
	if err != nil {
		return nil, err
	}
	defer logger.Close()

	pl, err := p.buildPipeline(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer pl.Close()

	return execute(pl.process)
}

// Inspect перечисляет изображения документа
func (p *ApplicationProcessor) Inspect(path string) (*usecases.InspectionReport, error) {
	inspector := compressors.NewPDFCPUCompressor(compressors.NewImageCompressor(), 1, logging.NewNopLogger())
	return usecases.NewInspectPDFUseCase(inspector, p.fileRepo).Execute(path)
}

// History читает последние запуски. Отсутствующий журнал означает пустую историю.
func (p *ApplicationProcessor) History(ctx context.Context, cfg *entities.Config, limit int) ([]entities.RunRecord, error) {
	path := cfg.Output.JournalPath
	if path == "" {
		path = journal.DefaultJournalName
	}
	if !p.fileRepo.FileExists(path) {
		return nil, nil
	}

	j, err := journal.Open(path)
	if err != nil {
		return nil, err
	}
	defer j.Close()
	return j.RecentRuns(ctx, limit)
}

// RunTUI запускает интерактивный режим
func (p *ApplicationProcessor) RunTUI(configPath string, cfg *entities.Config) error {
	// Базовый логгер пишет в файл, в TUI логи дублируются адаптером
	fileLogger, err := logging.NewFileLogger(
		cfg.Output.LogFileName,
		cfg.Output.LogLevel,
		cfg.Output.LogMaxSizeMB,
		cfg.Output.LogToFile,
	)
	if err != nil {
		return err
	}

	tuiManager := tui.NewManager(config.NewRepository(), configPath, cfg)
	tuiManager.Initialize()
	defer tuiManager.Cleanup()

	logger := tui.NewUILogger(fileLogger, tuiManager)
	defer logger.Close()
	// Обработка должна завершиться до закрытия логгера
	defer p.Shutdown()

	tuiManager.SetHistoryProvider(func() ([]entities.RunRecord, error) {
		return p.History(p.ctx, tuiManager.GetConfig(), tui.HistoryLimit)
	})

	// Менеджер вызывает callback в отдельной горутине с актуальной конфигурацией
	tuiManager.SetOnStartProcessing(func() {
		p.StartProcessing(tuiManager.GetConfig(), logger, tuiManager)
	})

	if cfg.Compression.AutoStart {
		tuiManager.StartProcessing()
	}

	return tuiManager.Run()
}

// StartProcessing запускает обработку директории из TUI
func (p *ApplicationProcessor) StartProcessing(cfg *entities.Config, logger repositories.Logger, tuiManager *tui.Manager) {
	p.wg.Add(1)
	defer p.wg.Done()

	failed := func(err error) {
		logger.Error("Ошибка обработки: %v", err)
		status := entities.NewProcessingStatus(0)
		status.Fail(err)
		tuiManager.SendStatusUpdate(*status)
	}

	pl, err := p.buildPipeline(cfg, logger)
	if err != nil {
		failed(err)
		return
	}
	defer pl.Close()

	pl.process.SetProgressReporter(tuiManager.SendStatusUpdate)

	logger.Info("Запуск обработки. Поддерживаемые типы: %v", cfg.GetSupportedInputTypes())
	summary, err := pl.process.Execute(p.ctx, cfg)
	if err != nil {
		failed(err)
		return
	}
	if summary.Failed > 0 {
		logger.Warning("Обработка завершена, ошибок: %d из %d", summary.Failed, summary.TotalFiles)
		return
	}
	logger.Success("Обработка файлов завершена успешно")
}

// Shutdown корректно завершает работу процессора
func (p *ApplicationProcessor) Shutdown() {
	p.cancel()
	p.wg.Wait()
}
