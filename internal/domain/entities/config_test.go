package entities_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"pdfshrink/internal/domain/entities"
)

func TestNewCompressionSpec(t *testing.T) {
	tests := []struct {
		name             string
		quality          int
		maxWidth         int
		expectedQuality  int
		expectedMaxWidth int
	}{
		{"Normal values", 50, 800, 50, 800},
		{"Too low quality", -5, 800, 1, 800},
		{"Too high quality", 150, 800, 100, 800},
		{"Zero width", 30, 0, 30, entities.DefaultMaxWidth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := entities.NewCompressionSpec(tt.quality, tt.maxWidth, false)
			if spec.Quality != tt.expectedQuality {
				t.Errorf("Expected quality %d, got %d", tt.expectedQuality, spec.Quality)
			}
			if spec.MaxWidth != tt.expectedMaxWidth {
				t.Errorf("Expected max width %d, got %d", tt.expectedMaxWidth, spec.MaxWidth)
			}
			if spec.Resampler != entities.ResamplerLanczos3 {
				t.Errorf("Expected resampler %s, got %s", entities.ResamplerLanczos3, spec.Resampler)
			}
			if !spec.OnlyIfSmaller {
				t.Error("Expected OnlyIfSmaller by default")
			}
		})
	}
}

func TestCompressionSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    *entities.CompressionSpec
		wantErr error
	}{
		{"Valid spec", &entities.CompressionSpec{Quality: 30, MaxWidth: 1000}, nil},
		{"Quality too low", &entities.CompressionSpec{Quality: 0, MaxWidth: 1000}, entities.ErrInvalidQuality},
		{"Quality too high", &entities.CompressionSpec{Quality: 101, MaxWidth: 1000}, entities.ErrInvalidQuality},
		{"Zero width", &entities.CompressionSpec{Quality: 30, MaxWidth: 0}, entities.ErrInvalidMaxWidth},
		{"Unknown resampler", &entities.CompressionSpec{Quality: 30, MaxWidth: 10, Resampler: "bicubic"}, entities.ErrInvalidResampler},
		{"Mitchell resampler", &entities.CompressionSpec{Quality: 30, MaxWidth: 10, Resampler: entities.ResamplerMitchell}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCompressionSpec_EncoderQualityIsMonotonic(t *testing.T) {
	prev := 0
	for q := 1; q <= 100; q++ {
		spec := entities.CompressionSpec{Quality: q, MaxWidth: 10}
		got := spec.EncoderQuality()
		assert.GreaterOrEqual(t, got, prev, fmt.Sprintf("quality %d", q))
		prev = got
	}
}

func TestCompressionSpec_TargetSize(t *testing.T) {
	tests := []struct {
		width, height   int
		maxWidth        int
		expectedW, expH int
	}{
		{800, 600, 1000, 800, 600},
		{1000, 600, 1000, 1000, 600},
		{2000, 1000, 1000, 1000, 500},
		{3000, 1001, 1000, 1000, 334},
		{5000, 1, 100, 100, 1},
		{1001, 3, 1000, 1000, 3},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%dx%d->%d", tt.width, tt.height, tt.maxWidth), func(t *testing.T) {
			spec := entities.NewCompressionSpec(30, tt.maxWidth, false)
			w, h := spec.TargetSize(tt.width, tt.height)
			assert.Equal(t, tt.expectedW, w)
			assert.Equal(t, tt.expH, h)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := entities.NewDefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Processing.ImageWorkers = 0
	assert.ErrorIs(t, cfg.Validate(), entities.ErrInvalidWorkers)

	cfg = entities.NewDefaultConfig()
	cfg.Compression.Resampler = "nearest"
	assert.ErrorIs(t, cfg.Validate(), entities.ErrInvalidResampler)

	cfg = entities.NewDefaultConfig()
	cfg.Scanner.IncludeSlides = true
	cfg.Processing.ConversionTimeoutSeconds = 0
	assert.ErrorIs(t, cfg.Validate(), entities.ErrInvalidTimeout)
}

func TestConfig_CompressionSpec(t *testing.T) {
	cfg := entities.NewDefaultConfig()
	cfg.Compression.Quality = 55
	cfg.Compression.MaxWidth = 640
	cfg.Compression.Grayscale = true
	cfg.Compression.Resampler = entities.ResamplerLanczos2
	cfg.Compression.OnlyIfSmaller = false

	spec := cfg.CompressionSpec()

	assert.Equal(t, &entities.CompressionSpec{
		Quality:       55,
		MaxWidth:      640,
		Grayscale:     true,
		Resampler:     entities.ResamplerLanczos2,
		OnlyIfSmaller: false,
	}, spec)
}

func TestProcessingStatus_AddResult(t *testing.T) {
	status := entities.NewProcessingStatus(2)

	ok := &entities.BatchResult{OriginalSize: 1000, OutputSize: 400, Success: true, ImagesFound: 2, ImagesReplaced: 2}
	ok.CalculateReduction()
	status.AddResult(ok)
	status.AddResult(&entities.BatchResult{Error: entities.ErrUnparsableDocument})

	assert.Equal(t, 2, status.ProcessedFiles)
	assert.Equal(t, 1, status.SuccessfulFiles)
	assert.Equal(t, 1, status.FailedFiles)
	assert.Equal(t, int64(600), status.TotalSavedSpace)
	assert.InDelta(t, 60.0, status.AverageCompression, 1e-9)
	assert.InDelta(t, 100.0, status.Progress, 1e-9)
}
