package usecases

import (
	"fmt"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/domain/repositories"
)

// InspectionReport описание изображений документа
type InspectionReport struct {
	Path       string
	Size       int64
	Pages      int
	Images     []entities.ImageStream
	ImageBytes int64
}

// Supported возвращает число изображений, которые можно перекодировать
func (r *InspectionReport) Supported() int {
	n := 0
	for _, img := range r.Images {
		if IsRecompressible(img) {
			n++
		}
	}
	return n
}

// IsRecompressible грубо оценивает, сможет ли перекодировщик
// обработать изображение, без его декодирования
func IsRecompressible(img entities.ImageStream) bool {
	if img.ImageMask || img.ColorSpace == entities.ColorSpaceUnknown {
		return false
	}
	for _, f := range img.Filters {
		switch f.Name {
		case "JPXDecode", "JBIG2Decode", "CCITTFaxDecode", "Crypt":
			return false
		}
	}
	return true
}

// InspectPDFUseCase сценарий просмотра изображений документа без изменений
type InspectPDFUseCase struct {
	inspector repositories.ImageInspector
	fileRepo  repositories.FileRepository
}

// NewInspectPDFUseCase создает сценарий просмотра
func NewInspectPDFUseCase(inspector repositories.ImageInspector, fileRepo repositories.FileRepository) *InspectPDFUseCase {
	return &InspectPDFUseCase{inspector: inspector, fileRepo: fileRepo}
}

// Execute читает документ и перечисляет его изображения
func (uc *InspectPDFUseCase) Execute(path string) (*InspectionReport, error) {
	if !uc.fileRepo.FileExists(path) {
		return nil, fmt.Errorf("%w: %s", entities.ErrFileNotFound, path)
	}

	data, err := uc.fileRepo.ReadFile(path)
	if err != nil {
		return nil, err
	}

	pages, images, err := uc.inspector.Inspect(data)
	if err != nil {
		return nil, err
	}

	report := &InspectionReport{
		Path:   path,
		Size:   int64(len(data)),
		Pages:  pages,
		Images: images,
	}
	for _, img := range images {
		report.ImageBytes += int64(len(img.Data))
	}
	return report, nil
}
