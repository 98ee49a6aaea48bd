package entities

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ObjectID идентичность косвенного объекта PDF (номер, поколение)
type ObjectID struct {
	Number     int
	Generation int
}

func (id ObjectID) String() string {
	return fmt.Sprintf("%d %d R", id.Number, id.Generation)
}

// ColorSpace цветовое пространство изображения
type ColorSpace int

const (
	ColorSpaceUnknown ColorSpace = iota
	ColorSpaceGray
	ColorSpaceRGB
	ColorSpaceCMYK
	ColorSpaceIndexed
)

// Channels возвращает количество компонент на пиксель
func (cs ColorSpace) Channels() int {
	switch cs {
	case ColorSpaceGray, ColorSpaceIndexed:
		return 1
	case ColorSpaceRGB:
		return 3
	case ColorSpaceCMYK:
		return 4
	default:
		return 0
	}
}

func (cs ColorSpace) String() string {
	switch cs {
	case ColorSpaceGray:
		return "DeviceGray"
	case ColorSpaceRGB:
		return "DeviceRGB"
	case ColorSpaceCMYK:
		return "DeviceCMYK"
	case ColorSpaceIndexed:
		return "Indexed"
	default:
		return "Unknown"
	}
}

// StreamFilter фильтр потока с параметрами декодирования
type StreamFilter struct {
	Name   string
	Params map[string]int
}

// Palette палитра Indexed изображения
type Palette struct {
	Base   ColorSpace
	HiVal  int
	Lookup []byte
}

// ImageStream описание потока изображения, найденного обходчиком
type ImageStream struct {
	ID               ObjectID
	Page             int
	ResourceName     string
	Width            int
	Height           int
	BitsPerComponent int
	ColorSpace       ColorSpace
	Palette          *Palette
	Decode           []float64
	Filters          []StreamFilter
	Data             []byte
	ImageMask        bool
	HasSMask         bool
}

// Filter возвращает последний фильтр конвейера (кодек изображения)
func (img *ImageStream) Filter() string {
	if len(img.Filters) == 0 {
		return ""
	}
	return img.Filters[len(img.Filters)-1].Name
}

// TranscodedImage результат перекодирования
type TranscodedImage struct {
	Data             []byte
	Filter           string
	Width            int
	Height           int
	ColorSpace       ColorSpace
	BitsPerComponent int
	Channels         int
}

// ImageStatus итог обработки одного изображения
type ImageStatus int

const (
	ImageReplaced ImageStatus = iota
	ImageSkipped
)

func (s ImageStatus) String() string {
	if s == ImageReplaced {
		return "replaced"
	}
	return "skipped"
}

// ImageOutcome явный результат обработки изображения
type ImageOutcome struct {
	ID            ObjectID
	Page          int
	ResourceName  string
	Status        ImageStatus
	Reason        error
	OriginalBytes int
	NewBytes      int
}

// DocumentReport результат обработки одного документа движком
type DocumentReport struct {
	Output   []byte
	Pages    int
	Outcomes []ImageOutcome
}

// Replaced возвращает количество замененных изображений
func (r *DocumentReport) Replaced() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == ImageReplaced {
			n++
		}
	}
	return n
}

// InputKind тип входного файла
type InputKind int

const (
	InputPDF InputKind = iota
	InputSlideDeck
)

func (k InputKind) String() string {
	if k == InputSlideDeck {
		return "slides"
	}
	return "pdf"
}

// Расширения презентаций, которые принимает конвертер
var slideExtensions = map[string]bool{
	".ppt":  true,
	".pptx": true,
	".odp":  true,
}

// DetectInputKind определяет тип входного файла по расширению
func DetectInputKind(name string) (InputKind, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == ".pdf" {
		return InputPDF, nil
	}
	if slideExtensions[ext] {
		return InputSlideDeck, nil
	}
	return InputPDF, fmt.Errorf("%w: %s", ErrUnsupportedInput, name)
}

// InputFile входной документ пакета
type InputFile struct {
	Name string
	Path string
	Data []byte
	Kind InputKind
}

// OutputName возвращает имя выходного файла:
// compressed_<имя> для PDF и <имя>.pdf для презентаций
func (f *InputFile) OutputName() string {
	base := filepath.Base(f.Name)
	if f.Kind == InputSlideDeck {
		return strings.TrimSuffix(base, filepath.Ext(base)) + ".pdf"
	}
	return "compressed_" + base
}

// BatchResult результат обработки одного файла пакета
type BatchResult struct {
	FileName         string
	Path             string
	OutputName       string
	Kind             InputKind
	OriginalSize     int64
	OutputSize       int64
	ReductionPercent float64
	SavedSpace       int64
	Pages            int
	ImagesFound      int
	ImagesReplaced   int
	ImagesSkipped    int
	Outcomes         []ImageOutcome
	Output           []byte
	Success          bool
	Error            error
	Duration         time.Duration
}

// CalculateReduction вычисляет процент уменьшения.
// Для пустого исходного файла процент равен 0.
func (r *BatchResult) CalculateReduction() {
	r.SavedSpace = r.OriginalSize - r.OutputSize
	if r.OriginalSize <= 0 {
		r.ReductionPercent = 0
		return
	}
	r.ReductionPercent = (float64(r.OriginalSize) - float64(r.OutputSize)) / float64(r.OriginalSize) * 100
}

// ApplyReport переносит статистику документа в результат
func (r *BatchResult) ApplyReport(report *DocumentReport) {
	r.Output = report.Output
	r.OutputSize = int64(len(report.Output))
	r.Pages = report.Pages
	r.Outcomes = report.Outcomes
	r.ImagesFound = len(report.Outcomes)
	r.ImagesReplaced = report.Replaced()
	r.ImagesSkipped = r.ImagesFound - r.ImagesReplaced
	r.CalculateReduction()
}

// Fail отмечает результат как неудачный, выходные данные не выдаются
func (r *BatchResult) Fail(err error) {
	r.Success = false
	r.Error = err
	r.Output = nil
	r.OutputSize = 0
	r.ReductionPercent = 0
	r.SavedSpace = 0
}

// IsEffective проверяет, было ли сжатие эффективным
func (r *BatchResult) IsEffective() bool {
	return r.Success && r.ReductionPercent > 0
}
