package entities

import (
	"context"
	"errors"
)

// Доменные ошибки
var (
	ErrInvalidQuality   = errors.New("качество должно быть от 1 до 100")
	ErrInvalidMaxWidth  = errors.New("максимальная ширина должна быть положительной")
	ErrInvalidWorkers   = errors.New("количество воркеров должно быть положительным")
	ErrInvalidResampler = errors.New("неизвестный фильтр ресемплинга")
	ErrInvalidTimeout   = errors.New("таймаут конвертации должен быть положительным")

	ErrFileNotFound       = errors.New("файл не найден")
	ErrDirectoryNotFound  = errors.New("директория не найдена")
	ErrNoFilesFound       = errors.New("файлы для обработки не найдены")
	ErrUnsupportedInput   = errors.New("неподдерживаемый тип входного файла")
	ErrNothingToArchive   = errors.New("нет успешных результатов для архива")
	ErrJournalUnavailable = errors.New("журнал запусков не настроен")
)

// Ошибки уровня документа и изображения
var (
	// ErrUnparsableDocument вход не является корректным PDF. Фатально только для этого файла.
	ErrUnparsableDocument = errors.New("документ не удалось разобрать")
	// ErrUnsupportedImageFormat кодировка изображения не поддерживается, изображение остается как есть.
	ErrUnsupportedImageFormat = errors.New("неподдерживаемый формат изображения")
	// ErrTranscodeFailure перекодирование дало некорректный результат, изображение остается как есть.
	ErrTranscodeFailure = errors.New("ошибка перекодирования изображения")
	// ErrNoSizeGain перекодированное изображение не меньше исходного.
	ErrNoSizeGain = errors.New("перекодирование не уменьшило размер")

	ErrConversionUnavailable = errors.New("конвертер презентаций недоступен")
	ErrConversionTimeout     = errors.New("превышено время ожидания конвертера")
	ErrConversionFailed      = errors.New("ошибка конвертации презентации")

	// ErrSerializationFailure запись документа не удалась, частичный результат не выдается.
	ErrSerializationFailure = errors.New("ошибка сериализации документа")

	ErrObjectNotFound = errors.New("объект не найден")
	ErrNotImageStream = errors.New("объект не является потоком изображения")
)

// ErrorKind возвращает имя класса ошибки для отчетов и журнала.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnparsableDocument):
		return "UnparsableDocument"
	case errors.Is(err, ErrUnsupportedImageFormat):
		return "UnsupportedImageFormat"
	case errors.Is(err, ErrTranscodeFailure):
		return "TranscodeFailure"
	case errors.Is(err, ErrNoSizeGain):
		return "NoSizeGain"
	case errors.Is(err, ErrConversionUnavailable):
		return "ConversionUnavailable"
	case errors.Is(err, ErrConversionTimeout):
		return "ConversionTimeout"
	case errors.Is(err, ErrConversionFailed):
		return "ConversionFailed"
	case errors.Is(err, ErrSerializationFailure):
		return "SerializationFailure"
	case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrNotImageStream):
		return "SubstitutionFailure"
	case errors.Is(err, ErrUnsupportedInput):
		return "UnsupportedInput"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	default:
		return "Unknown"
	}
}
