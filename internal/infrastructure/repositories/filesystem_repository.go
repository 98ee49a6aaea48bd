package repositories

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pdfshrink/internal/domain/entities"
)

// FileSystemRepository реализация репозитория для работы с файловой системой
type FileSystemRepository struct{}

// NewFileSystemRepository создает новый репозиторий файловой системы
func NewFileSystemRepository() *FileSystemRepository {
	return &FileSystemRepository{}
}

// FileExists проверяет существование файла
func (r *FileSystemRepository) FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// CreateDirectory создает директорию
func (r *FileSystemRepository) CreateDirectory(path string) error {
	return os.MkdirAll(path, 0755)
}

// ListInputFiles возвращает список входных файлов в директории и всех подпапках.
// Презентации включаются только при includeSlides.
func (r *FileSystemRepository) ListInputFiles(directory string, includeSlides bool) ([]string, error) {
	info, err := os.Stat(directory)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", entities.ErrDirectoryNotFound, directory)
	}

	var files []string
	err = filepath.WalkDir(directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != directory && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		kind, err := entities.DetectInputKind(d.Name())
		if err != nil {
			return nil
		}
		if kind == entities.InputSlideDeck && !includeSlides {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// ReadFile читает файл целиком
func (r *FileSystemRepository) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", entities.ErrFileNotFound, path)
	}
	return data, err
}

// WriteFile записывает файл через временный файл, чтобы читатель
// никогда не увидел частично записанный результат
func (r *FileSystemRepository) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("ошибка создания директории: %w", err)
	}

	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("ошибка записи временного файла: %w", err)
	}
	if err := os.Rename(tmpFile, path); err != nil {
		_ = os.Remove(tmpFile)
		return fmt.Errorf("ошибка переименования файла: %w", err)
	}
	return nil
}

// ReplaceOriginal заменяет оригинальный файл новыми данными.
// Оригинал сохраняется в .backup до успешной замены.
func (r *FileSystemRepository) ReplaceOriginal(originalFile string, data []byte) error {
	if _, err := os.Stat(originalFile); err != nil {
		return fmt.Errorf("%w: %s", entities.ErrFileNotFound, originalFile)
	}

	tempFile := originalFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("ошибка записи временного файла: %w", err)
	}

	backupFile := originalFile + ".backup"

	// Создаем резервную копию оригинала
	if err := os.Rename(originalFile, backupFile); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("ошибка создания резервной копии: %w", err)
	}

	// Переименовываем временный файл в оригинальный
	if err := os.Rename(tempFile, originalFile); err != nil {
		// Восстанавливаем оригинальный файл из резервной копии
		_ = os.Rename(backupFile, originalFile)
		_ = os.Remove(tempFile)
		return fmt.Errorf("ошибка замены файла: %w", err)
	}

	// Резервная копия больше не нужна
	_ = os.Remove(backupFile)
	return nil
}
