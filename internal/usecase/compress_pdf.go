package usecases

import (
	"context"
	"fmt"
	"time"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/domain/repositories"
)

// CompressPDFUseCase сценарий обработки одного входного файла:
// конвертация презентации при необходимости и перекомпрессия изображений
type CompressPDFUseCase struct {
	compressor repositories.PDFCompressor
	converter  repositories.SlideConverter
	logger     repositories.Logger
}

// NewCompressPDFUseCase создает новый сценарий сжатия PDF.
// converter может быть nil, тогда презентации завершаются ошибкой.
func NewCompressPDFUseCase(
	compressor repositories.PDFCompressor,
	converter repositories.SlideConverter,
	logger repositories.Logger,
) *CompressPDFUseCase {
	return &CompressPDFUseCase{
		compressor: compressor,
		converter:  converter,
		logger:     logger,
	}
}

// Execute обрабатывает файл. Ошибка всегда возвращается внутри результата,
// чтобы сбой одного файла не влиял на остальные.
func (uc *CompressPDFUseCase) Execute(ctx context.Context, input *entities.InputFile, spec *entities.CompressionSpec) (result *entities.BatchResult) {
	start := time.Now()
	result = &entities.BatchResult{
		FileName:     input.Name,
		Path:         input.Path,
		OutputName:   input.OutputName(),
		Kind:         input.Kind,
		OriginalSize: int64(len(input.Data)),
	}

	defer func() {
		if r := recover(); r != nil {
			result.Fail(fmt.Errorf("внутренняя ошибка обработки: %v", r))
		}
		result.Duration = time.Since(start)
	}()

	if err := ctx.Err(); err != nil {
		result.Fail(err)
		return result
	}

	data := input.Data
	if input.Kind == entities.InputSlideDeck {
		if uc.converter == nil {
			result.Fail(entities.ErrConversionUnavailable)
			return result
		}
		uc.logDebug("Конвертация презентации %s", input.Name)
		converted, err := uc.converter.Convert(ctx, input.Name, data)
		if err != nil {
			result.Fail(err)
			return result
		}
		data = converted
	}

	report, err := uc.compressor.Compress(ctx, data, spec)
	if err != nil {
		result.Fail(err)
		return result
	}

	result.ApplyReport(report)
	result.Success = true
	return result
}

func (uc *CompressPDFUseCase) logDebug(format string, args ...interface{}) {
	if uc.logger != nil {
		uc.logger.Debug(format, args...)
	}
}
