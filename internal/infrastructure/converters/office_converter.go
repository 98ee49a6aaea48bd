package converters

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/domain/repositories"
	"pdfshrink/internal/infrastructure/logging"
)

const (
	// DefaultBinary исполняемый файл LibreOffice
	DefaultBinary = "soffice"
	// DefaultTimeout ограничение на одну конвертацию
	DefaultTimeout = 120 * time.Second

	retryBackoff = 500 * time.Millisecond
	pdfMagic     = "%PDF-"
)

// OfficeConverter конвертирует презентации в PDF внешним процессом
// LibreOffice в режиме без интерфейса
type OfficeConverter struct {
	binary  string
	timeout time.Duration
	retries int
	logger  repositories.Logger
}

// NewOfficeConverter создает конвертер презентаций
func NewOfficeConverter(binary string, timeout time.Duration, retries int, logger repositories.Logger) *OfficeConverter {
	if binary == "" {
		binary = DefaultBinary
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if retries < 0 {
		retries = 0
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &OfficeConverter{
		binary:  binary,
		timeout: timeout,
		retries: retries,
		logger:  logger,
	}
}

// Available проверяет наличие конвертера
func (c *OfficeConverter) Available() bool {
	_, err := exec.LookPath(c.binary)
	return err == nil
}

// Convert возвращает PDF, полученный из презентации name.
// Повторяет попытку только при ошибке самой конвертации.
func (c *OfficeConverter) Convert(ctx context.Context, name string, data []byte) ([]byte, error) {
	binary, err := exec.LookPath(c.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", entities.ErrConversionUnavailable, c.binary, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: пустой файл %s", entities.ErrConversionFailed, name)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warning("Повторная конвертация %s (попытка %d/%d): %v", name, attempt+1, c.retries+1, lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}

		out, err := c.convertOnce(ctx, binary, name, data)
		if err == nil {
			c.logger.Debug("Презентация %s сконвертирована: %d байт", name, len(out))
			return out, nil
		}
		if !errors.Is(err, entities.ErrConversionFailed) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *OfficeConverter) convertOnce(ctx context.Context, binary, name string, data []byte) ([]byte, error) {
	workDir, err := os.MkdirTemp("", "pdfshrink-convert-*")
	if err != nil {
		return nil, fmt.Errorf("%w: временная директория: %v", entities.ErrConversionFailed, err)
	}
	defer os.RemoveAll(workDir)

	base := safeBaseName(name)
	inputPath := filepath.Join(workDir, base)
	if err := os.WriteFile(inputPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("%w: запись входного файла: %v", entities.ErrConversionFailed, err)
	}
	outDir := filepath.Join(workDir, "out")
	if err := os.Mkdir(outDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: директория результата: %v", entities.ErrConversionFailed, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary,
		"--headless",
		"-env:UserInstallation=file://"+filepath.ToSlash(filepath.Join(workDir, "profile")),
		"--convert-to", "pdf",
		"--outdir", outDir,
		inputPath,
	)
	cmd.Dir = workDir
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w: %s за %s", entities.ErrConversionTimeout, name, c.timeout)
	}
	if runErr != nil {
		return nil, fmt.Errorf("%w: %s: %v: %s", entities.ErrConversionFailed, name, runErr, strings.TrimSpace(stderr.String()))
	}

	outPath := filepath.Join(outDir, strings.TrimSuffix(base, filepath.Ext(base))+".pdf")
	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: результат не найден", entities.ErrConversionFailed, name)
	}
	if !bytes.HasPrefix(out, []byte(pdfMagic)) {
		return nil, fmt.Errorf("%w: %s: результат не является PDF", entities.ErrConversionFailed, name)
	}
	return out, nil
}

// safeBaseName оставляет от имени только последний элемент пути
func safeBaseName(name string) string {
	base := filepath.Base(filepath.Clean("/" + filepath.ToSlash(name)))
	if base == "/" || base == "." || base == "" {
		return "input.pptx"
	}
	return base
}
