package repositories

import (
	"fmt"
	"sort"
	"strings"

	"pdfshrink/internal/domain/entities"
)

// Имена предустановок сжатия
const (
	PresetAggressive = "aggressive"
	PresetDefault    = "default"
	PresetBalanced   = "balanced"
	PresetQuality    = "quality"
)

type preset struct {
	quality  int
	maxWidth int
}

var presets = map[string]preset{
	PresetAggressive: {quality: 10, maxWidth: 800},
	PresetDefault:    {quality: entities.DefaultQuality, maxWidth: entities.DefaultMaxWidth},
	PresetBalanced:   {quality: 50, maxWidth: 1000},
	PresetQuality:    {quality: 90, maxWidth: 2000},
}

// ConfigRepository реализация репозитория предустановок сжатия
type ConfigRepository struct{}

// NewConfigRepository создает новый репозиторий конфигурации
func NewConfigRepository() *ConfigRepository {
	return &ConfigRepository{}
}

// GetCompressionSpec получает конфигурацию сжатия по имени предустановки
func (r *ConfigRepository) GetCompressionSpec(name string) (*entities.CompressionSpec, error) {
	if name == "" {
		name = PresetDefault
	}
	p, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("неизвестная предустановка %q, доступны: %s", name, strings.Join(r.Presets(), ", "))
	}
	return entities.NewCompressionSpec(p.quality, p.maxWidth, false), nil
}

// ValidateSpec валидирует конфигурацию
func (r *ConfigRepository) ValidateSpec(spec *entities.CompressionSpec) error {
	if spec == nil {
		return entities.ErrInvalidQuality
	}
	return spec.Validate()
}

// Presets возвращает имена предустановок
func (r *ConfigRepository) Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
