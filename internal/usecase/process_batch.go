package usecases

import (
	"context"
	"fmt"
	"sync"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/domain/repositories"
)

// ProcessBatchUseCase обрабатывает набор файлов пулом воркеров.
// Результаты возвращаются в порядке входа, сбой одного файла
// отражается только в его результате.
type ProcessBatchUseCase struct {
	document         *CompressPDFUseCase
	fileRepo         repositories.FileRepository
	workers          int
	logger           repositories.Logger
	progressReporter func(entities.ProcessingStatus)
	resultHandler    func(*entities.BatchResult)
}

// NewProcessBatchUseCase создает сценарий пакетной обработки.
// fileRepo нужен для входов без загруженных данных.
func NewProcessBatchUseCase(
	document *CompressPDFUseCase,
	fileRepo repositories.FileRepository,
	workers int,
	logger repositories.Logger,
) *ProcessBatchUseCase {
	if workers <= 0 {
		workers = 1
	}
	return &ProcessBatchUseCase{
		document: document,
		fileRepo: fileRepo,
		workers:  workers,
		logger:   logger,
	}
}

// SetProgressReporter устанавливает функцию для отчета о прогрессе
func (uc *ProcessBatchUseCase) SetProgressReporter(reporter func(entities.ProcessingStatus)) {
	uc.progressReporter = reporter
}

// SetResultHandler устанавливает обработчик готовых результатов.
// Вызывается последовательно, в порядке завершения файлов.
func (uc *ProcessBatchUseCase) SetResultHandler(handler func(*entities.BatchResult)) {
	uc.resultHandler = handler
}

// reportProgress отправляет обновление прогресса
func (uc *ProcessBatchUseCase) reportProgress(status *entities.ProcessingStatus) {
	if uc.progressReporter != nil {
		uc.progressReporter(*status)
	}
}

type batchResult struct {
	index  int
	result *entities.BatchResult
}

// Execute обрабатывает входы. Ошибка возвращается только для
// некорректной конфигурации, ошибки файлов остаются в результатах.
func (uc *ProcessBatchUseCase) Execute(ctx context.Context, inputs []*entities.InputFile, spec *entities.CompressionSpec) ([]*entities.BatchResult, error) {
	if spec == nil {
		return nil, entities.ErrInvalidQuality
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	status := entities.NewProcessingStatus(len(inputs))
	status.SetPhase(entities.PhaseCompressing, "Сжатие файлов...")
	uc.reportProgress(status)

	ordered := make([]*entities.BatchResult, len(inputs))
	if len(inputs) == 0 {
		status.Complete()
		uc.reportProgress(status)
		return ordered, nil
	}

	workers := uc.workers
	if workers > len(inputs) {
		workers = len(inputs)
	}

	jobs := make(chan int)
	results := make(chan batchResult, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go uc.worker(ctx, inputs, spec, jobs, results, &wg)
	}

	// Раздача задач прекращается при отмене контекста
	dispatched := make([]bool, len(inputs))
	go func() {
		defer close(jobs)
		for i := range inputs {
			select {
			case jobs <- i:
				dispatched[i] = true
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for r := range results {
		ordered[r.index] = r.result
		uc.handle(status, r.result)
	}

	// Файлы, не попавшие к воркерам из-за отмены
	for i, input := range inputs {
		if dispatched[i] && ordered[i] != nil {
			continue
		}
		result := &entities.BatchResult{
			FileName:   input.Name,
			Path:       input.Path,
			OutputName: input.OutputName(),
			Kind:       input.Kind,
		}
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("файл не был обработан")
		}
		result.Fail(err)
		ordered[i] = result
		uc.handle(status, result)
	}

	status.Complete()
	uc.reportProgress(status)
	return ordered, nil
}

func (uc *ProcessBatchUseCase) handle(status *entities.ProcessingStatus, result *entities.BatchResult) {
	if uc.resultHandler != nil {
		uc.resultHandler(result)
	}
	status.AddResult(result)
	status.SetCurrentFile(result.FileName, result.OriginalSize)
	uc.reportProgress(status)
}

// worker обрабатывает файлы в отдельной горутине
func (uc *ProcessBatchUseCase) worker(
	ctx context.Context,
	inputs []*entities.InputFile,
	spec *entities.CompressionSpec,
	jobs <-chan int,
	results chan<- batchResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for index := range jobs {
		input := inputs[index]
		results <- batchResult{index: index, result: uc.process(ctx, input, spec)}
	}
}

func (uc *ProcessBatchUseCase) process(ctx context.Context, input *entities.InputFile, spec *entities.CompressionSpec) *entities.BatchResult {
	file := *input
	if file.Data == nil && file.Path != "" && uc.fileRepo != nil {
		data, err := uc.fileRepo.ReadFile(file.Path)
		if err != nil {
			result := &entities.BatchResult{
				FileName:   file.Name,
				Path:       file.Path,
				OutputName: file.OutputName(),
				Kind:       file.Kind,
			}
			result.Fail(fmt.Errorf("ошибка чтения файла: %w", err))
			return result
		}
		file.Data = data
	}
	return uc.document.Execute(ctx, &file, spec)
}
