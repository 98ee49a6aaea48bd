package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pdfshrink/internal/domain/entities"
)

// DefaultArchiveName имя архива по умолчанию
const DefaultArchiveName = "compressed_files.zip"

// ZipArchiver упаковывает результаты в ZIP архив
type ZipArchiver struct {
	modified time.Time
}

// NewZipArchiver создает архиватор
func NewZipArchiver() *ZipArchiver {
	return &ZipArchiver{modified: time.Now()}
}

// Write пишет архив в w. Одинаковые имена получают суффикс " (N)".
func (a *ZipArchiver) Write(w io.Writer, entries []entities.ArchiveEntry) error {
	if len(entries) == 0 {
		return entities.ErrNothingToArchive
	}

	zw := zip.NewWriter(w)
	used := make(map[string]int, len(entries))
	for _, e := range entries {
		name := uniqueName(used, archiveName(e.Name))
		header := &zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: a.modified,
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			_ = zw.Close()
			return fmt.Errorf("ошибка добавления %s в архив: %w", name, err)
		}
		if _, err := fw.Write(e.Data); err != nil {
			_ = zw.Close()
			return fmt.Errorf("ошибка записи %s в архив: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("ошибка завершения архива: %w", err)
	}
	return nil
}

// WriteFile атомарно пишет архив в файл
func (a *ZipArchiver) WriteFile(path string, entries []entities.ArchiveEntry) error {
	if len(entries) == 0 {
		return entities.ErrNothingToArchive
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ошибка создания директории архива: %w", err)
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("ошибка создания архива: %w", err)
	}

	if err := a.Write(f, entries); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка закрытия архива: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ошибка переименования архива: %w", err)
	}
	return nil
}

// archiveName оставляет только имя файла без каталогов
func archiveName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return "document.pdf"
	}
	return name
}

func uniqueName(used map[string]int, name string) string {
	key := strings.ToLower(name)
	n := used[key]
	used[key] = n + 1
	if n == 0 {
		return name
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for {
		n++
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		ckey := strings.ToLower(candidate)
		if used[ckey] == 0 {
			used[ckey] = 1
			used[key] = n
			return candidate
		}
	}
}
