package compressors

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/domain/repositories"
	"pdfshrink/internal/infrastructure/logging"
	"pdfshrink/internal/infrastructure/pdfgraph"
)

// PDFCPUCompressor движок перекомпрессии изображений одного документа
// поверх графа объектов pdfcpu
type PDFCPUCompressor struct {
	transcoder   repositories.ImageTranscoder
	imageWorkers int
	logger       repositories.Logger
}

type imageJob struct {
	index int
	image entities.ImageStream
}

type imageResult struct {
	index int
	image entities.ImageStream
	out   *entities.TranscodedImage
	err   error
}

// NewPDFCPUCompressor создает движок документа
func NewPDFCPUCompressor(transcoder repositories.ImageTranscoder, imageWorkers int, logger repositories.Logger) *PDFCPUCompressor {
	if transcoder == nil {
		transcoder = NewImageCompressor()
	}
	if imageWorkers <= 0 {
		imageWorkers = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &PDFCPUCompressor{
		transcoder:   transcoder,
		imageWorkers: imageWorkers,
		logger:       logger,
	}
}

// Compress перекодирует изображения документа и записывает его заново.
// Ошибки отдельных изображений становятся пропусками. При отмене
// контекста документ не выдается даже частично.
func (p *PDFCPUCompressor) Compress(ctx context.Context, data []byte, spec *entities.CompressionSpec) (*entities.DocumentReport, error) {
	if spec == nil {
		spec = entities.NewCompressionSpec(entities.DefaultQuality, entities.DefaultMaxWidth, false)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	doc, err := pdfgraph.Open(data)
	if err != nil {
		return nil, err
	}

	results, err := p.transcodeAll(ctx, doc, *spec)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("обработка документа прервана: %w", err)
	}

	// Подстановки выполняются последовательно владельцем документа
	outcomes := make([]entities.ImageOutcome, 0, len(results))
	for _, r := range results {
		outcome := entities.ImageOutcome{
			ID:            r.image.ID,
			Page:          r.image.Page,
			ResourceName:  r.image.ResourceName,
			Status:        entities.ImageSkipped,
			OriginalBytes: len(r.image.Data),
		}

		switch {
		case r.err != nil:
			outcome.Reason = r.err
		case spec.OnlyIfSmaller && len(r.out.Data) >= len(r.image.Data):
			outcome.Reason = entities.ErrNoSizeGain
			outcome.NewBytes = len(r.out.Data)
		default:
			if err := doc.Substitute(r.image.ID, r.out); err != nil {
				outcome.Reason = err
			} else {
				outcome.Status = entities.ImageReplaced
				outcome.NewBytes = len(r.out.Data)
			}
		}

		p.logOutcome(outcome)
		outcomes = append(outcomes, outcome)
	}

	out, err := doc.Serialize()
	if err != nil {
		return nil, err
	}

	return &entities.DocumentReport{
		Output:   out,
		Pages:    doc.PageCount(),
		Outcomes: outcomes,
	}, nil
}

// Inspect перечисляет изображения документа без изменений
func (p *PDFCPUCompressor) Inspect(data []byte) (int, []entities.ImageStream, error) {
	doc, err := pdfgraph.Open(data)
	if err != nil {
		return 0, nil, err
	}
	walker := pdfgraph.NewWalker(doc)
	var images []entities.ImageStream
	for walker.Next() {
		images = append(images, walker.Image())
	}
	if err := walker.Err(); err != nil {
		return 0, nil, err
	}
	return doc.PageCount(), images, nil
}

// transcodeAll раздает изображения ограниченному пулу воркеров.
// Документ в это время только читается обходчиком.
func (p *PDFCPUCompressor) transcodeAll(ctx context.Context, doc *pdfgraph.Document, spec entities.CompressionSpec) ([]imageResult, error) {
	jobs := make(chan imageJob)
	results := make(chan imageResult)

	var wg sync.WaitGroup
	for w := 0; w < p.imageWorkers; w++ {
		wg.Add(1)
		go p.worker(ctx, spec, jobs, results, &wg)
	}

	var walkErr error
	go func() {
		defer close(jobs)
		walker := pdfgraph.NewWalker(doc)
		index := 0
		for walker.Next() {
			select {
			case jobs <- imageJob{index: index, image: walker.Image()}:
				index++
			case <-ctx.Done():
				return
			}
		}
		walkErr = walker.Err()
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var collected []imageResult
	for r := range results {
		collected = append(collected, r)
	}
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })
	return collected, nil
}

func (p *PDFCPUCompressor) worker(
	ctx context.Context,
	spec entities.CompressionSpec,
	jobs <-chan imageJob,
	results chan<- imageResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	for job := range jobs {
		result := imageResult{index: job.index, image: job.image}
		if err := ctx.Err(); err != nil {
			result.err = err
		} else {
			result.out, result.err = p.transcode(job.image, spec)
		}
		results <- result
	}
}

// transcode вызывает перекодировщик, паника одного изображения не выходит за его пределы
func (p *PDFCPUCompressor) transcode(img entities.ImageStream, spec entities.CompressionSpec) (out *entities.TranscodedImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", entities.ErrTranscodeFailure, r)
		}
	}()

	out, err = p.transcoder.Transcode(img, spec)
	if err == nil && (out == nil || len(out.Data) == 0) {
		return nil, fmt.Errorf("%w: пустой результат", entities.ErrTranscodeFailure)
	}
	return out, err
}

func (p *PDFCPUCompressor) logOutcome(o entities.ImageOutcome) {
	if o.Status == entities.ImageReplaced {
		p.logger.Debug("Изображение %s (стр. %d, %s): %d → %d байт",
			o.ID, o.Page, o.ResourceName, o.OriginalBytes, o.NewBytes)
		return
	}
	p.logger.Debug("Изображение %s (стр. %d, %s) оставлено без изменений: %s (%v)",
		o.ID, o.Page, o.ResourceName, entities.ErrorKind(o.Reason), o.Reason)
}
