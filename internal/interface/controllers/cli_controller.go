package controllers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/domain/repositories"
	"pdfshrink/internal/infrastructure/config"
	usecases "pdfshrink/internal/usecase"
)

// Version версия приложения
const Version = "1.0.0"

// Коды завершения
const (
	ExitFilesFailed  = 1
	ExitInvalidUsage = 2
)

// Runner выполняет команды, собранные контроллером
type Runner interface {
	RunTUI(configPath string, cfg *entities.Config) error
	ProcessDirectory(ctx context.Context, cfg *entities.Config) (*entities.BatchSummary, error)
	ProcessFiles(ctx context.Context, cfg *entities.Config, paths []string) (*entities.BatchSummary, error)
	Inspect(path string) (*usecases.InspectionReport, error)
	History(ctx context.Context, cfg *entities.Config, limit int) ([]entities.RunRecord, error)
}

// CLIController контроллер командной строки.
// Без подкоманды запускается TUI.
type CLIController struct {
	configRepo repositories.AppConfigRepository
	presets    repositories.ConfigRepository
	runner     Runner
	out        io.Writer
}

// NewCLIController создает новый CLI контроллер
func NewCLIController(
	configRepo repositories.AppConfigRepository,
	presets repositories.ConfigRepository,
	runner Runner,
	out io.Writer,
) *CLIController {
	if out == nil {
		out = os.Stdout
	}
	return &CLIController{
		configRepo: configRepo,
		presets:    presets,
		runner:     runner,
		out:        out,
	}
}

// App собирает приложение urfave/cli
func (c *CLIController) App() *cli.App {
	return &cli.App{
		Name:    "pdfshrink",
		Usage:   "уменьшает PDF документы перекодированием встроенных изображений",
		Version: Version,
		Writer:  c.out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.DefaultConfigPath,
				Usage:   "путь к файлу конфигурации",
				EnvVars: []string{"PDFSHRINK_CONFIG"},
			},
		},
		Action: c.tuiAction,
		Commands: []*cli.Command{
			{
				Name:   "tui",
				Usage:  "интерактивный режим",
				Flags:  compressionFlags(),
				Action: c.tuiAction,
			},
			{
				Name:   "run",
				Usage:  "обработать все документы исходной директории",
				Flags:  append(compressionFlags(), outputFlags(true)...),
				Action: c.runAction,
			},
			{
				Name:      "compress",
				Usage:     "обработать указанные файлы",
				ArgsUsage: "FILE...",
				Flags:     append(compressionFlags(), outputFlags(false)...),
				Action:    c.compressAction,
			},
			{
				Name:      "inspect",
				Usage:     "показать изображения документа без изменений",
				ArgsUsage: "FILE",
				Action:    c.inspectAction,
			},
			{
				Name:  "history",
				Usage: "последние запуски из журнала",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 10, Usage: "количество запусков"},
					&cli.StringFlag{Name: "journal", Usage: "путь к журналу SQLite", EnvVars: []string{"PDFSHRINK_JOURNAL"}},
				},
				Action: c.historyAction,
			},
			{
				Name:   "presets",
				Usage:  "список предустановок сжатия",
				Action: c.presetsAction,
			},
		},
	}
}

func compressionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "preset", Aliases: []string{"p"}, Usage: "предустановка качества и ширины", EnvVars: []string{"PDFSHRINK_PRESET"}},
		&cli.IntFlag{Name: "quality", Aliases: []string{"q"}, Usage: "качество JPEG (1-100)", EnvVars: []string{"PDFSHRINK_QUALITY"}},
		&cli.IntFlag{Name: "max-width", Aliases: []string{"w"}, Usage: "максимальная ширина изображения в пикселях", EnvVars: []string{"PDFSHRINK_MAX_WIDTH"}},
		&cli.BoolFlag{Name: "grayscale", Aliases: []string{"g"}, Usage: "перевести изображения в оттенки серого", EnvVars: []string{"PDFSHRINK_GRAYSCALE"}},
		&cli.StringFlag{Name: "resampler", Usage: "фильтр ресемплинга: lanczos3, lanczos2, mitchell", EnvVars: []string{"PDFSHRINK_RESAMPLER"}},
		&cli.IntFlag{Name: "workers", Usage: "количество параллельно обрабатываемых файлов", EnvVars: []string{"PDFSHRINK_WORKERS"}},
		&cli.IntFlag{Name: "image-workers", Usage: "количество параллельно перекодируемых изображений", EnvVars: []string{"PDFSHRINK_IMAGE_WORKERS"}},
		&cli.StringFlag{Name: "log-level", Usage: "уровень логирования", EnvVars: []string{"PDFSHRINK_LOG_LEVEL"}},
	}
}

func outputFlags(withSource bool) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "target", Aliases: []string{"o"}, Usage: "целевая директория", EnvVars: []string{"PDFSHRINK_TARGET"}},
		&cli.BoolFlag{Name: "replace", Usage: "заменять оригиналы", EnvVars: []string{"PDFSHRINK_REPLACE"}},
		&cli.BoolFlag{Name: "slides", Usage: "конвертировать презентации", EnvVars: []string{"PDFSHRINK_SLIDES"}},
		&cli.StringFlag{Name: "archive", Usage: "собрать результаты в ZIP архив", EnvVars: []string{"PDFSHRINK_ARCHIVE"}},
		&cli.StringFlag{Name: "journal", Usage: "путь к журналу SQLite", EnvVars: []string{"PDFSHRINK_JOURNAL"}},
	}
	if withSource {
		flags = append(flags, &cli.StringFlag{Name: "source", Aliases: []string{"i"}, Usage: "исходная директория", EnvVars: []string{"PDFSHRINK_SOURCE"}})
	}
	return flags
}

// loadConfig читает файл конфигурации и накладывает флаги
func (c *CLIController) loadConfig(ctx *cli.Context) (*entities.Config, error) {
	cfg, err := c.configRepo.Load(ctx.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), ExitInvalidUsage)
	}
	if err := c.applyFlags(ctx, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, cli.Exit(fmt.Sprintf("некорректная конфигурация: %v", err), ExitInvalidUsage)
	}
	return cfg, nil
}

// applyFlags сначала применяет предустановку, затем явно заданные флаги
func (c *CLIController) applyFlags(ctx *cli.Context, cfg *entities.Config) error {
	if ctx.IsSet("preset") {
		spec, err := c.presets.GetCompressionSpec(ctx.String("preset"))
		if err != nil {
			return cli.Exit(err.Error(), ExitInvalidUsage)
		}
		cfg.Compression.Quality = spec.Quality
		cfg.Compression.MaxWidth = spec.MaxWidth
	}

	if ctx.IsSet("quality") {
		cfg.Compression.Quality = ctx.Int("quality")
	}
	if ctx.IsSet("max-width") {
		cfg.Compression.MaxWidth = ctx.Int("max-width")
	}
	if ctx.IsSet("grayscale") {
		cfg.Compression.Grayscale = ctx.Bool("grayscale")
	}
	if ctx.IsSet("resampler") {
		cfg.Compression.Resampler = ctx.String("resampler")
	}
	if ctx.IsSet("workers") {
		cfg.Processing.ParallelWorkers = ctx.Int("workers")
	}
	if ctx.IsSet("image-workers") {
		cfg.Processing.ImageWorkers = ctx.Int("image-workers")
	}
	if ctx.IsSet("log-level") {
		cfg.Output.LogLevel = ctx.String("log-level")
	}
	if ctx.IsSet("source") {
		cfg.Scanner.SourceDirectory = ctx.String("source")
	}
	if ctx.IsSet("target") {
		cfg.Scanner.TargetDirectory = ctx.String("target")
	}
	if ctx.IsSet("replace") {
		cfg.Scanner.ReplaceOriginal = ctx.Bool("replace")
	}
	if ctx.IsSet("slides") {
		cfg.Scanner.IncludeSlides = ctx.Bool("slides")
	}
	if ctx.IsSet("archive") {
		cfg.Output.ArchivePath = ctx.String("archive")
	}
	if ctx.IsSet("journal") {
		cfg.Output.JournalPath = ctx.String("journal")
	}
	return nil
}

func (c *CLIController) tuiAction(ctx *cli.Context) error {
	if ctx.Args().Present() {
		return cli.Exit(fmt.Sprintf("неизвестная команда: %s", ctx.Args().First()), ExitInvalidUsage)
	}
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return err
	}
	return c.runner.RunTUI(ctx.String("config"), cfg)
}

func (c *CLIController) runAction(ctx *cli.Context) error {
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return err
	}
	summary, err := c.runner.ProcessDirectory(ctx.Context, cfg)
	return c.finish(summary, err)
}

func (c *CLIController) compressAction(ctx *cli.Context) error {
	paths := ctx.Args().Slice()
	if len(paths) == 0 {
		return cli.Exit("укажите хотя бы один файл", ExitInvalidUsage)
	}
	cfg, err := c.loadConfig(ctx)
	if err != nil {
		return err
	}
	summary, err := c.runner.ProcessFiles(ctx.Context, cfg, paths)
	return c.finish(summary, err)
}

// finish печатает итог и переводит неудачные файлы в код завершения
func (c *CLIController) finish(summary *entities.BatchSummary, err error) error {
	if summary != nil {
		c.printSummary(summary)
	}
	if err != nil {
		return err
	}
	if summary != nil && summary.Failed > 0 {
		return cli.Exit(fmt.Sprintf("не удалось обработать файлов: %d из %d", summary.Failed, summary.TotalFiles), ExitFilesFailed)
	}
	return nil
}

func (c *CLIController) inspectAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.Exit("укажите один PDF файл", ExitInvalidUsage)
	}
	report, err := c.runner.Inspect(ctx.Args().First())
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Файл: %s (%s), страниц: %d, изображений: %d, можно перекодировать: %d\n",
		report.Path, formatSize(report.Size), report.Pages, len(report.Images), report.Supported())
	if len(report.Images) == 0 {
		return nil
	}

	fmt.Fprintf(c.out, "%-10s %-5s %-8s %-11s %-11s %-4s %-15s %10s %-6s\n",
		"Объект", "Стр.", "Имя", "Размер", "Цвет", "BPC", "Фильтр", "Байт", "Сжать")
	fmt.Fprintln(c.out, strings.Repeat("-", 90))
	for _, img := range report.Images {
		filter := img.Filter()
		if filter == "" {
			filter = "-"
		}
		recompress := "нет"
		if usecases.IsRecompressible(img) {
			recompress = "да"
		}
		fmt.Fprintf(c.out, "%-10s %-5d %-8s %-11s %-11s %-4d %-15s %10d %-6s\n",
			img.ID.String(), img.Page, img.ResourceName,
			fmt.Sprintf("%dx%d", img.Width, img.Height),
			img.ColorSpace.String(), img.BitsPerComponent, filter, len(img.Data), recompress)
	}
	fmt.Fprintf(c.out, "\nВсего байт изображений: %s\n", formatSize(report.ImageBytes))
	return nil
}

func (c *CLIController) historyAction(ctx *cli.Context) error {
	cfg, err := c.configRepo.Load(ctx.String("config"))
	if err != nil {
		return cli.Exit(err.Error(), ExitInvalidUsage)
	}
	if ctx.IsSet("journal") {
		cfg.Output.JournalPath = ctx.String("journal")
	}

	runs, err := c.runner.History(ctx.Context, cfg, ctx.Int("limit"))
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "Запусков пока не было")
		return nil
	}

	fmt.Fprintf(c.out, "%-36s %-19s %-8s %-7s %-6s %-7s %-6s %10s %10s %8s\n",
		"ID", "Начало", "Качество", "Ширина", "Файлы", "Успешно", "Ошибки", "Было", "Стало", "Сжатие")
	fmt.Fprintln(c.out, strings.Repeat("-", 126))
	for _, r := range runs {
		fmt.Fprintf(c.out, "%-36s %-19s %-8d %-7d %-6d %-7d %-6d %10s %10s %7.2f%%\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Quality, r.MaxWidth, r.TotalFiles, r.Successful, r.Failed,
			formatSize(r.OriginalBytes), formatSize(r.OutputBytes), r.ReductionPercent)
	}
	return nil
}

func (c *CLIController) presetsAction(ctx *cli.Context) error {
	fmt.Fprintf(c.out, "%-12s %-8s %-8s\n", "Имя", "Качество", "Ширина")
	fmt.Fprintln(c.out, strings.Repeat("-", 30))
	for _, name := range c.presets.Presets() {
		spec, err := c.presets.GetCompressionSpec(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "%-12s %-8d %-8d\n", name, spec.Quality, spec.MaxWidth)
	}
	return nil
}

func (c *CLIController) printSummary(summary *entities.BatchSummary) {
	if len(summary.Results) == 0 {
		fmt.Fprintln(c.out, "Файлы для обработки не найдены")
		return
	}

	fmt.Fprintf(c.out, "%-40s %-7s %10s %10s %8s %9s\n", "Файл", "Статус", "Было", "Стало", "Сжатие", "Изобр.")
	fmt.Fprintln(c.out, strings.Repeat("-", 89))
	for _, r := range summary.Results {
		name := filepath.ToSlash(r.FileName)
		if runes := []rune(name); len(runes) > 40 {
			name = "..." + string(runes[len(runes)-37:])
		}
		if !r.Success {
			fmt.Fprintf(c.out, "%-40s %-7s %v\n", name, "ОШИБКА", r.Error)
			continue
		}
		fmt.Fprintf(c.out, "%-40s %-7s %10s %10s %7.2f%% %4d/%-4d\n",
			name, "OK", formatSize(r.OriginalSize), formatSize(r.OutputSize),
			r.ReductionPercent, r.ImagesReplaced, r.ImagesFound)
	}
	fmt.Fprintln(c.out, strings.Repeat("-", 89))
	fmt.Fprintf(c.out, "Файлов: %d, успешно: %d, ошибок: %d, изображений заменено: %d\n",
		summary.TotalFiles, summary.Successful, summary.Failed, summary.ImagesReplaced)
	fmt.Fprintf(c.out, "Размер: %s → %s (%.2f%%), время: %s\n",
		formatSize(summary.OriginalBytes), formatSize(summary.OutputBytes),
		summary.ReductionPercent(), summary.Duration.Round(time.Millisecond))
	if summary.ArchivePath != "" {
		fmt.Fprintf(c.out, "Архив: %s\n", summary.ArchivePath)
	}
	if summary.RunID != "" {
		fmt.Fprintf(c.out, "Запуск: %s\n", summary.RunID)
	}
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
