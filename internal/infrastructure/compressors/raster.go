package compressors

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/filter"

	"pdfshrink/internal/domain/entities"
)

// Ограничения на заявленные размеры, чтобы некорректный заголовок
// не привел к огромному выделению памяти
const (
	maxImageSide    = 32768
	maxImagePixels  = 1 << 26
	maxDecodedBytes = 1 << 28
)

// decodedLimit предел результата одного фильтра конвейера
var decodedLimit int64 = maxDecodedBytes

// Имена фильтров PDF
const (
	filterDCT      = "DCTDecode"
	filterJPX      = "JPXDecode"
	filterJBIG2    = "JBIG2Decode"
	filterCCITTFax = "CCITTFaxDecode"
	filterCrypt    = "Crypt"
)

// Raster декодированный пиксельный буфер изображения
type Raster struct {
	Image    image.Image
	Channels int
}

// DecodeRaster декодирует поток изображения в пиксельный буфер
func DecodeRaster(img entities.ImageStream) (*Raster, error) {
	if img.ImageMask {
		return nil, fmt.Errorf("%w: маска изображения", entities.ErrUnsupportedImageFormat)
	}
	if img.Width <= 0 || img.Height <= 0 {
		return nil, fmt.Errorf("%w: некорректные размеры %dx%d", entities.ErrTranscodeFailure, img.Width, img.Height)
	}
	if img.Width > maxImageSide || img.Height > maxImageSide || img.Width*img.Height > maxImagePixels {
		return nil, fmt.Errorf("%w: слишком большое изображение %dx%d", entities.ErrTranscodeFailure, img.Width, img.Height)
	}

	data, codec, err := undoFilters(img.Filters, img.Data)
	if err != nil {
		return nil, err
	}

	switch codec {
	case filterDCT:
		return decodeDCT(data, img)
	case "":
		return decodeSamples(data, img)
	default:
		return nil, fmt.Errorf("%w: %s", entities.ErrUnsupportedImageFormat, codec)
	}
}

// undoFilters снимает обобщенные фильтры конвейера и возвращает
// оставшиеся данные и имя кодека изображения, если он есть
func undoFilters(filters []entities.StreamFilter, data []byte) ([]byte, string, error) {
	for i, f := range filters {
		switch f.Name {
		case filterDCT, filterJPX, filterJBIG2, filterCCITTFax:
			if i != len(filters)-1 {
				return nil, "", fmt.Errorf("%w: кодек %s не в конце конвейера", entities.ErrUnsupportedImageFormat, f.Name)
			}
			return data, f.Name, nil
		case filterCrypt:
			return nil, "", fmt.Errorf("%w: %s", entities.ErrUnsupportedImageFormat, f.Name)
		}

		fl, err := filter.NewFilter(f.Name, f.Params)
		if err != nil {
			return nil, "", fmt.Errorf("%w: фильтр %s: %v", entities.ErrUnsupportedImageFormat, f.Name, err)
		}
		r, err := fl.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("%w: фильтр %s: %v", entities.ErrTranscodeFailure, f.Name, err)
		}
		decoded, err := io.ReadAll(io.LimitReader(r, decodedLimit+1))
		if err != nil {
			return nil, "", fmt.Errorf("%w: фильтр %s: %v", entities.ErrTranscodeFailure, f.Name, err)
		}
		if int64(len(decoded)) > decodedLimit {
			return nil, "", fmt.Errorf("%w: фильтр %s: декодированные данные больше %d байт",
				entities.ErrTranscodeFailure, f.Name, decodedLimit)
		}
		data = decoded
	}
	return data, "", nil
}

func decodeDCT(data []byte, img entities.ImageStream) (*Raster, error) {
	decoded, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: JPEG: %v", entities.ErrTranscodeFailure, err)
	}

	switch src := decoded.(type) {
	case *image.Gray:
		if invertingDecode(img.Decode, 1) {
			invertGray(src)
		}
		return &Raster{Image: src, Channels: 1}, nil
	case *image.CMYK:
		// Массив Decode для CMYK JPEG не применяется: инверсия Adobe уже учтена декодером
		return &Raster{Image: src, Channels: 4}, nil
	default:
		if invertingDecode(img.Decode, 3) {
			rgba := toRGBA(decoded)
			invertRGBA(rgba)
			return &Raster{Image: rgba, Channels: 3}, nil
		}
		return &Raster{Image: decoded, Channels: 3}, nil
	}
}

// sampleReader читает отсчеты произвольной разрядности построчно
type sampleReader struct {
	data     []byte
	bpc      int
	rowBytes int
}

func (s *sampleReader) at(row, index int) int {
	base := row * s.rowBytes
	switch s.bpc {
	case 8:
		return int(s.data[base+index])
	case 16:
		off := base + index*2
		return int(s.data[off])<<8 | int(s.data[off+1])
	default:
		bit := index * s.bpc
		b := s.data[base+bit/8]
		shift := 8 - s.bpc - bit%8
		return int(b>>uint(shift)) & (1<<uint(s.bpc) - 1)
	}
}

// decodeSamples распаковывает несжатые отсчеты Gray/RGB/CMYK/Indexed
func decodeSamples(data []byte, img entities.ImageStream) (*Raster, error) {
	cs := img.ColorSpace
	comps := cs.Channels()
	if comps == 0 {
		return nil, fmt.Errorf("%w: цветовое пространство %s", entities.ErrUnsupportedImageFormat, cs)
	}
	bpc := img.BitsPerComponent
	switch bpc {
	case 1, 2, 4, 8:
	case 16:
		if cs == entities.ColorSpaceIndexed {
			return nil, fmt.Errorf("%w: Indexed с 16 бит", entities.ErrUnsupportedImageFormat)
		}
	default:
		return nil, fmt.Errorf("%w: %d бит на компоненту", entities.ErrUnsupportedImageFormat, bpc)
	}
	if cs == entities.ColorSpaceIndexed && img.Palette == nil {
		return nil, fmt.Errorf("%w: отсутствует палитра", entities.ErrTranscodeFailure)
	}

	w, h := img.Width, img.Height
	rowBytes := (w*comps*bpc + 7) / 8
	if len(data) < rowBytes*h {
		return nil, fmt.Errorf("%w: недостаточно данных: %d из %d байт", entities.ErrTranscodeFailure, len(data), rowBytes*h)
	}

	reader := &sampleReader{data: data, bpc: bpc, rowBytes: rowBytes}
	maxVal := float64(int(1)<<uint(bpc) - 1)
	decode := decodeRanges(img, comps, maxVal)

	scale := func(v, c int) uint8 {
		lo, hi := decode[2*c], decode[2*c+1]
		f := lo + float64(v)*(hi-lo)/maxVal
		return clampByte(f * 255)
	}

	bounds := image.Rect(0, 0, w, h)
	switch cs {
	case entities.ColorSpaceGray:
		out := image.NewGray(bounds)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pix[y*out.Stride+x] = scale(reader.at(y, x), 0)
			}
		}
		return &Raster{Image: out, Channels: 1}, nil

	case entities.ColorSpaceRGB:
		out := image.NewRGBA(bounds)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*out.Stride + x*4
				for c := 0; c < 3; c++ {
					out.Pix[i+c] = scale(reader.at(y, x*3+c), c)
				}
				out.Pix[i+3] = 0xff
			}
		}
		return &Raster{Image: out, Channels: 3}, nil

	case entities.ColorSpaceCMYK:
		out := image.NewCMYK(bounds)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*out.Stride + x*4
				for c := 0; c < 4; c++ {
					out.Pix[i+c] = scale(reader.at(y, x*4+c), c)
				}
			}
		}
		return &Raster{Image: out, Channels: 4}, nil

	case entities.ColorSpaceIndexed:
		return decodeIndexed(reader, img, decode, maxVal)
	}

	return nil, fmt.Errorf("%w: цветовое пространство %s", entities.ErrUnsupportedImageFormat, cs)
}

func decodeIndexed(reader *sampleReader, img entities.ImageStream, decode []float64, maxVal float64) (*Raster, error) {
	pal := img.Palette
	baseComps := pal.Base.Channels()
	if baseComps == 0 {
		return nil, fmt.Errorf("%w: базовое пространство палитры", entities.ErrUnsupportedImageFormat)
	}

	entry := func(index, c int) uint8 {
		if index < 0 {
			index = 0
		}
		if index > pal.HiVal {
			index = pal.HiVal
		}
		off := index*baseComps + c
		if off >= len(pal.Lookup) {
			return 0
		}
		return pal.Lookup[off]
	}
	lookupIndex := func(v int) int {
		lo, hi := decode[0], decode[1]
		return int(lo + float64(v)*(hi-lo)/maxVal + 0.5)
	}

	w, h := img.Width, img.Height
	bounds := image.Rect(0, 0, w, h)
	switch pal.Base {
	case entities.ColorSpaceGray:
		out := image.NewGray(bounds)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Pix[y*out.Stride+x] = entry(lookupIndex(reader.at(y, x)), 0)
			}
		}
		return &Raster{Image: out, Channels: 1}, nil
	case entities.ColorSpaceRGB:
		out := image.NewRGBA(bounds)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				idx := lookupIndex(reader.at(y, x))
				i := y*out.Stride + x*4
				out.Pix[i] = entry(idx, 0)
				out.Pix[i+1] = entry(idx, 1)
				out.Pix[i+2] = entry(idx, 2)
				out.Pix[i+3] = 0xff
			}
		}
		return &Raster{Image: out, Channels: 3}, nil
	default:
		out := image.NewCMYK(bounds)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				idx := lookupIndex(reader.at(y, x))
				i := y*out.Stride + x*4
				for c := 0; c < 4; c++ {
					out.Pix[i+c] = entry(idx, c)
				}
			}
		}
		return &Raster{Image: out, Channels: 4}, nil
	}
}

// decodeRanges возвращает массив Decode или значения по умолчанию
func decodeRanges(img entities.ImageStream, comps int, maxVal float64) []float64 {
	if len(img.Decode) >= 2*comps {
		return img.Decode[:2*comps]
	}
	out := make([]float64, 2*comps)
	for c := 0; c < comps; c++ {
		if img.ColorSpace == entities.ColorSpaceIndexed {
			out[2*c+1] = maxVal
		} else {
			out[2*c+1] = 1
		}
	}
	return out
}

// invertingDecode проверяет, что массив Decode имеет вид [1 0 1 0 ...]
func invertingDecode(decode []float64, comps int) bool {
	if len(decode) < 2*comps {
		return false
	}
	for c := 0; c < comps; c++ {
		if decode[2*c] != 1 || decode[2*c+1] != 0 {
			return false
		}
	}
	return true
}

func invertGray(img *image.Gray) {
	for i := range img.Pix {
		img.Pix[i] = 255 - img.Pix[i]
	}
}

func invertRGBA(img *image.RGBA) {
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255 - img.Pix[i]
		img.Pix[i+1] = 255 - img.Pix[i+1]
		img.Pix[i+2] = 255 - img.Pix[i+2]
	}
}

func clampByte(f float64) uint8 {
	if f <= 0 {
		return 0
	}
	if f >= 255 {
		return 255
	}
	return uint8(f + 0.5)
}
