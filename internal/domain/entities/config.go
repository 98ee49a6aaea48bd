package entities

// Фильтры ресемплинга
const (
	ResamplerLanczos3 = "lanczos3"
	ResamplerLanczos2 = "lanczos2"
	ResamplerMitchell = "mitchell"
)

// Значения по умолчанию для CompressionSpec
const (
	DefaultQuality  = 30
	DefaultMaxWidth = 1000
	MinQuality      = 1
	MaxQuality      = 100
)

// CompressionSpec представляет параметры перекодирования изображений.
// Одинаково применяется ко всем изображениям запуска и не меняется во время обработки.
type CompressionSpec struct {
	Quality       int    // Качество JPEG (1-100), меньше - сильнее сжатие
	MaxWidth      int    // Максимальная ширина в пикселях, более узкие не масштабируются
	Grayscale     bool   // Переводить изображения в оттенки серого
	Resampler     string // Фильтр ресемплинга
	OnlyIfSmaller bool   // Оставлять оригинал, если результат не меньше
}

// NewCompressionSpec создает конфигурацию сжатия, приводя значения к допустимому диапазону
func NewCompressionSpec(quality, maxWidth int, grayscale bool) *CompressionSpec {
	if quality < MinQuality {
		quality = MinQuality
	}
	if quality > MaxQuality {
		quality = MaxQuality
	}
	if maxWidth <= 0 {
		maxWidth = DefaultMaxWidth
	}

	return &CompressionSpec{
		Quality:       quality,
		MaxWidth:      maxWidth,
		Grayscale:     grayscale,
		Resampler:     ResamplerLanczos3,
		OnlyIfSmaller: true,
	}
}

// Validate проверяет корректность конфигурации
func (s *CompressionSpec) Validate() error {
	if s.Quality < MinQuality || s.Quality > MaxQuality {
		return ErrInvalidQuality
	}
	if s.MaxWidth <= 0 {
		return ErrInvalidMaxWidth
	}
	switch s.Resampler {
	case "", ResamplerLanczos3, ResamplerLanczos2, ResamplerMitchell:
	default:
		return ErrInvalidResampler
	}
	return nil
}

// EncoderQuality возвращает качество для JPEG кодировщика.
// Отображение тождественное, поэтому монотонное.
func (s *CompressionSpec) EncoderQuality() int {
	q := s.Quality
	if q < MinQuality {
		q = MinQuality
	}
	if q > MaxQuality {
		q = MaxQuality
	}
	return q
}

// TargetSize возвращает размеры после масштабирования. Изображения не увеличиваются.
func (s *CompressionSpec) TargetSize(width, height int) (int, int) {
	if s.MaxWidth <= 0 || width <= s.MaxWidth {
		return width, height
	}
	newHeight := int(float64(height)*float64(s.MaxWidth)/float64(width) + 0.5)
	if newHeight < 1 {
		newHeight = 1
	}
	return s.MaxWidth, newHeight
}
