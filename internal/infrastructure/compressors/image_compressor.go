package compressors

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"pdfshrink/internal/domain/entities"
)

// ImageCompressor перекодирует изображения PDF в JPEG.
// Не хранит состояния и безопасен для одновременного использования.
type ImageCompressor struct{}

// NewImageCompressor создает новый компрессор изображений
func NewImageCompressor() *ImageCompressor {
	return &ImageCompressor{}
}

// Transcode декодирует изображение, при необходимости уменьшает и
// переводит в оттенки серого, затем кодирует в JPEG
func (c *ImageCompressor) Transcode(img entities.ImageStream, spec entities.CompressionSpec) (out *entities.TranscodedImage, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = fmt.Errorf("%w: %v", entities.ErrTranscodeFailure, r)
		}
	}()

	if err := spec.Validate(); err != nil {
		return nil, err
	}

	raster, err := DecodeRaster(img)
	if err != nil {
		return nil, err
	}

	src := raster.Image
	// JPEG на выходе только Gray или RGB
	if raster.Channels == 4 {
		src = toRGBA(src)
	}

	bounds := src.Bounds()
	width, height := spec.TargetSize(bounds.Dx(), bounds.Dy())
	if width != bounds.Dx() || height != bounds.Dy() {
		src = resize.Resize(uint(width), uint(height), src, interpolation(spec.Resampler))
	}

	if spec.Grayscale {
		src = toGray(src)
	}

	colorSpace := entities.ColorSpaceRGB
	channels := 3
	if _, ok := src.(*image.Gray); ok {
		colorSpace = entities.ColorSpaceGray
		channels = 1
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: spec.EncoderQuality()}); err != nil {
		return nil, fmt.Errorf("%w: кодирование JPEG: %v", entities.ErrTranscodeFailure, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: пустой результат кодирования", entities.ErrTranscodeFailure)
	}

	final := src.Bounds()
	return &entities.TranscodedImage{
		Data:             buf.Bytes(),
		Filter:           filterDCT,
		Width:            final.Dx(),
		Height:           final.Dy(),
		ColorSpace:       colorSpace,
		BitsPerComponent: 8,
		Channels:         channels,
	}, nil
}

// interpolation возвращает фильтр ресемплинга
func interpolation(name string) resize.InterpolationFunction {
	switch name {
	case entities.ResamplerLanczos2:
		return resize.Lanczos2
	case entities.ResamplerMitchell:
		return resize.MitchellNetravali
	default:
		return resize.Lanczos3
	}
}

// toGray переводит изображение в одноканальную яркость
func toGray(src image.Image) *image.Gray {
	if g, ok := src.(*image.Gray); ok {
		return g
	}
	b := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	return out
}

// toRGBA приводит изображение к RGBA
func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), src, b.Min, draw.Src)
	return out
}
