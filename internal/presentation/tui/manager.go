package tui

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"pdfshrink/internal/domain/entities"
	"pdfshrink/internal/domain/repositories"
)

// UI Configuration constants
const (
	MaxLogBufferSize   = 1000
	LogFlushInterval   = 50 * time.Millisecond
	ProgressBarWidth   = 40
	MaxFileNameLength  = 60
	MaxFileNameDisplay = 57
	ProgressViewHeight = 11
	HistoryLimit       = 20
)

// Порядок полей формы конфигурации
const (
	formSource = iota
	formTarget
	formReplace
	formSlides
	formQuality
	formMaxWidth
	formGrayscale
	formResampler
	formOnlyIfSmaller
	formWorkers
	formArchive
	formAutoStart
)

var resamplers = []string{entities.ResamplerLanczos3, entities.ResamplerLanczos2, entities.ResamplerMitchell}

// Manager управляет TUI интерфейсом
type Manager struct {
	app           *tview.Application
	pages         *tview.Pages
	currentScreen entities.UIScreen

	// UI компоненты
	mainMenu     *tview.List
	configForm   *tview.Form
	progressView *tview.TextView
	logView      *tview.TextView
	historyView  *tview.TextView

	// Callbacks
	onStartProcessing func()
	historyProvider   func() ([]entities.RunRecord, error)

	// Конфигурация
	configRepo repositories.AppConfigRepository
	configPath string
	config     *entities.Config
	configErr  string

	// Состояние
	logBuffer    []string
	statusMutex  sync.RWMutex
	isProcessing bool

	// Батчинг логов через канал
	logChan  chan string
	logDone  chan struct{}
	logMutex sync.Mutex
}

// NewManager создает новый менеджер TUI
func NewManager(configRepo repositories.AppConfigRepository, configPath string, config *entities.Config) *Manager {
	if config == nil {
		config = entities.NewDefaultConfig()
	}
	m := &Manager{
		app:        tview.NewApplication(),
		pages:      tview.NewPages(),
		configRepo: configRepo,
		configPath: configPath,
		config:     config,
		logBuffer:  make([]string, 0, MaxLogBufferSize),
		logChan:    make(chan string, 100),
		logDone:    make(chan struct{}),
	}
	go m.logProcessor()
	return m
}

// Initialize инициализирует TUI
func (m *Manager) Initialize() {
	m.createUI()
	m.setupKeyBindings()
}

// Run запускает TUI
func (m *Manager) Run() error {
	return m.app.SetRoot(m.pages, true).EnableMouse(true).Run()
}

// Stop останавливает TUI
func (m *Manager) Stop() {
	m.app.Stop()
}

// SetOnStartProcessing устанавливает callback для начала обработки
func (m *Manager) SetOnStartProcessing(callback func()) {
	m.onStartProcessing = callback
}

// SetHistoryProvider устанавливает источник истории запусков
func (m *Manager) SetHistoryProvider(provider func() ([]entities.RunRecord, error)) {
	m.historyProvider = provider
}

// SendStatusUpdate отправляет обновление статуса
func (m *Manager) SendStatusUpdate(status entities.ProcessingStatus) {
	if m.progressView == nil {
		return
	}
	if status.IsComplete || status.Phase == entities.PhaseFailed {
		m.statusMutex.Lock()
		m.isProcessing = false
		m.statusMutex.Unlock()
	}

	text := FormatProgress(status)
	m.app.QueueUpdateDraw(func() {
		m.progressView.SetText(text)
	})
}

// GetConfig возвращает копию текущей конфигурации
func (m *Manager) GetConfig() *entities.Config {
	m.statusMutex.RLock()
	defer m.statusMutex.RUnlock()
	cfg := *m.config
	return &cfg
}

// reloadConfig перечитывает конфигурацию из файла
func (m *Manager) reloadConfig() {
	if m.configRepo == nil {
		return
	}
	cfg, err := m.configRepo.Load(m.configPath)
	if err != nil {
		m.AddLog("WARNING", fmt.Sprintf("Не удалось загрузить конфигурацию: %v", err))
		return
	}
	m.config = cfg
}

// saveConfig сохраняет конфигурацию
func (m *Manager) saveConfig() error {
	if err := m.config.Validate(); err != nil {
		return err
	}
	if m.configRepo == nil {
		return nil
	}
	return m.configRepo.Save(m.configPath, m.config)
}

// createUI создает пользовательский интерфейс
func (m *Manager) createUI() {
	m.createMainMenu()
	m.createConfigScreen()
	m.createProcessingScreen()
	m.createHistoryScreen()

	m.pages.AddPage("menu", m.mainMenu, true, true)
	m.pages.AddPage("config", m.configForm, true, false)
	m.pages.AddPage("processing", m.createProcessingLayout(), true, false)
	m.pages.AddPage("history", m.historyView, true, false)

	m.currentScreen = entities.UIScreenMenu
}

// createMainMenu создает главное меню
func (m *Manager) createMainMenu() {
	m.mainMenu = tview.NewList().
		AddItem("🚀 Запуск сжатия", "Перекодировать изображения во всех документах директории", '1', func() {
			m.StartProcessing()
		}).
		AddItem("⚙️ Конфигурация", "Качество, ширина, оттенки серого и директории", '2', func() {
			m.switchToScreen(entities.UIScreenConfig)
		}).
		AddItem("📜 История запусков", "Последние запуски из журнала", '3', func() {
			m.switchToScreen(entities.UIScreenHistory)
		}).
		AddItem("❌ Выход", "Закрыть приложение", 'q', func() {
			m.Cleanup()
			m.app.Stop()
		})

	m.mainMenu.SetBorder(true).
		SetTitle("🗜 PDF Shrink - Главное меню").
		SetTitleAlign(tview.AlignCenter)

	m.mainMenu.SetSelectedBackgroundColor(tcell.ColorDarkBlue).
		SetSelectedTextColor(tcell.ColorWhite).
		SetMainTextColor(tcell.ColorWhite).
		SetSecondaryTextColor(tcell.ColorGray)
}

// createConfigScreen создает экран конфигурации
func (m *Manager) createConfigScreen() {
	cfg := m.config
	m.configForm = tview.NewForm().
		AddInputField("Исходная директория", cfg.Scanner.SourceDirectory, 60, nil, func(text string) {
			m.config.Scanner.SourceDirectory = text
		}).
		AddInputField("Целевая директория", cfg.Scanner.TargetDirectory, 60, nil, func(text string) {
			m.config.Scanner.TargetDirectory = text
		}).
		AddCheckbox("Заменить оригинал", cfg.Scanner.ReplaceOriginal, func(checked bool) {
			m.config.Scanner.ReplaceOriginal = checked
		}).
		AddCheckbox("Конвертировать презентации", cfg.Scanner.IncludeSlides, func(checked bool) {
			m.config.Scanner.IncludeSlides = checked
		}).
		AddInputField("Качество JPEG (1-100)", strconv.Itoa(cfg.Compression.Quality), 10, tview.InputFieldInteger, func(text string) {
			if q, err := strconv.Atoi(text); err == nil && q >= entities.MinQuality && q <= entities.MaxQuality {
				m.config.Compression.Quality = q
			}
		}).
		AddInputField("Максимальная ширина (px)", strconv.Itoa(cfg.Compression.MaxWidth), 10, tview.InputFieldInteger, func(text string) {
			if w, err := strconv.Atoi(text); err == nil && w > 0 {
				m.config.Compression.MaxWidth = w
			}
		}).
		AddCheckbox("Оттенки серого", cfg.Compression.Grayscale, func(checked bool) {
			m.config.Compression.Grayscale = checked
		}).
		AddDropDown("Ресемплинг", resamplers, resamplerIndex(cfg.Compression.Resampler), func(option string, _ int) {
			m.config.Compression.Resampler = option
		}).
		AddCheckbox("Только если меньше", cfg.Compression.OnlyIfSmaller, func(checked bool) {
			m.config.Compression.OnlyIfSmaller = checked
		}).
		AddInputField("Параллельных файлов", strconv.Itoa(cfg.Processing.ParallelWorkers), 10, tview.InputFieldInteger, func(text string) {
			if n, err := strconv.Atoi(text); err == nil && n > 0 {
				m.config.Processing.ParallelWorkers = n
			}
		}).
		AddInputField("ZIP архив (пусто - без архива)", cfg.Output.ArchivePath, 60, nil, func(text string) {
			m.config.Output.ArchivePath = strings.TrimSpace(text)
		}).
		AddCheckbox("Автостарт", cfg.Compression.AutoStart, func(checked bool) {
			m.config.Compression.AutoStart = checked
		}).
		AddButton("Сохранить", func() {
			if err := m.saveConfig(); err != nil {
				m.configForm.SetTitle(fmt.Sprintf("⚠️ Ошибка: %v", err))
				return
			}
			m.configForm.SetTitle(configTitle)
			m.switchToScreen(entities.UIScreenMenu)
			m.mainMenu.SetCurrentItem(1)
		})

	m.configForm.SetBorder(true).
		SetTitle(configTitle).
		SetTitleAlign(tview.AlignCenter)

	// ESC отменяет несохраненные изменения
	m.configForm.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEscape {
			m.reloadConfig()
			m.switchToScreen(entities.UIScreenMenu)
			return nil
		}
		return event
	})
}

const configTitle = "🗜 PDF Shrink - Конфигурация (ESC - выйти без сохранения)"

// createProcessingScreen создает экран обработки
func (m *Manager) createProcessingScreen() {
	m.progressView = tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetScrollable(true)

	m.progressView.SetBorder(true).
		SetTitle("📊 Прогресс обработки").
		SetTitleAlign(tview.AlignCenter)

	m.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetMaxLines(MaxLogBufferSize)

	m.logView.SetBorder(true).
		SetTitle("📋 Журнал событий").
		SetTitleAlign(tview.AlignCenter)
}

func (m *Manager) createHistoryScreen() {
	m.historyView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)

	m.historyView.SetBorder(true).
		SetTitle("📜 История запусков (ESC - меню)").
		SetTitleAlign(tview.AlignCenter)
}

// createProcessingLayout создает layout для экрана обработки
func (m *Manager) createProcessingLayout() *tview.Flex {
	return tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(m.logView, 0, 1, false).
		AddItem(m.progressView, ProgressViewHeight, 0, false)
}

// setupKeyBindings настраивает горячие клавиши
func (m *Manager) setupKeyBindings() {
	m.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF1:
			m.switchToScreen(entities.UIScreenMenu)
			return nil
		case tcell.KeyF2:
			m.switchToScreen(entities.UIScreenConfig)
			return nil
		case tcell.KeyF3:
			if m.processing() {
				m.switchToScreen(entities.UIScreenProcessing)
			}
			return nil
		case tcell.KeyEscape:
			if m.currentScreen == entities.UIScreenConfig {
				// В конфигурации ESC обрабатывается формой
				return event
			} else if m.currentScreen != entities.UIScreenMenu {
				m.switchToScreen(entities.UIScreenMenu)
				return nil
			}
		}

		if m.currentScreen == entities.UIScreenMenu {
			switch event.Rune() {
			case '1':
				m.StartProcessing()
				return nil
			case '2':
				m.switchToScreen(entities.UIScreenConfig)
				return nil
			case '3':
				m.switchToScreen(entities.UIScreenHistory)
				return nil
			case 'q', 'Q':
				m.Cleanup()
				m.app.Stop()
				return nil
			}
		}

		return event
	})
}

// switchToScreen переключает на указанный экран
func (m *Manager) switchToScreen(screen entities.UIScreen) {
	// История читается до блокировки: провайдер обращается к GetConfig
	var history string
	if screen == entities.UIScreenHistory {
		history = m.historyText()
	}

	m.statusMutex.Lock()
	defer m.statusMutex.Unlock()

	m.currentScreen = screen

	switch screen {
	case entities.UIScreenMenu:
		m.pages.SwitchToPage("menu")
	case entities.UIScreenConfig:
		m.refreshConfigForm()
		m.pages.SwitchToPage("config")
	case entities.UIScreenProcessing:
		m.pages.SwitchToPage("processing")
	case entities.UIScreenHistory:
		m.historyView.SetText(history)
		m.pages.SwitchToPage("history")
	}
}

func (m *Manager) historyText() string {
	if m.historyProvider == nil {
		return "[yellow]Журнал запусков не настроен (output.journal_path)[white]"
	}
	runs, err := m.historyProvider()
	if err != nil {
		return fmt.Sprintf("[red]Ошибка чтения журнала: %v[white]", err)
	}
	return FormatHistory(runs)
}

func (m *Manager) processing() bool {
	m.statusMutex.RLock()
	defer m.statusMutex.RUnlock()
	return m.isProcessing
}

// StartProcessing начинает обработку
func (m *Manager) StartProcessing() {
	if m.processing() {
		m.switchToScreen(entities.UIScreenProcessing)
		return
	}
	if err := m.saveConfig(); err != nil {
		m.AddLog("ERROR", fmt.Sprintf("Некорректная конфигурация: %v", err))
		m.switchToScreen(entities.UIScreenConfig)
		return
	}

	m.statusMutex.Lock()
	m.isProcessing = true
	m.statusMutex.Unlock()
	m.switchToScreen(entities.UIScreenProcessing)

	if m.onStartProcessing != nil {
		go m.onStartProcessing()
	}
}

// FormatProgress формирует текст панели прогресса
func FormatProgress(status entities.ProcessingStatus) string {
	progressBar := createProgressBar(status.Progress, ProgressBarWidth)
	displayFile := truncateFileName(status.CurrentFile, MaxFileNameLength, MaxFileNameDisplay)

	phaseText := status.Phase.String()
	if status.Message != "" && !status.IsComplete {
		phaseText = status.Message
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]⚙️  Фаза:[white] %s\n", phaseText)
	if displayFile != "" {
		fmt.Fprintf(&b, "[yellow]📁 Текущий файл:[white] %s", filepath.Base(displayFile))
		if status.CurrentFileSize > 0 {
			fmt.Fprintf(&b, " [::d](%.2f MB)[::-]", float64(status.CurrentFileSize)/1024/1024)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "[cyan]📊 Прогресс:[white] %s [cyan]%.1f%%[white]\n", progressBar, status.Progress)

	fmt.Fprintf(&b, "[green]📈 Файлы:[white] всего [cyan]%d[white], обработано [cyan]%d[white], успешно [green]%d[white]",
		status.TotalFiles, status.ProcessedFiles, status.SuccessfulFiles)
	if status.FailedFiles > 0 {
		fmt.Fprintf(&b, ", ошибок [red]%d[white]", status.FailedFiles)
	}
	b.WriteString("\n")

	if status.TotalImages > 0 {
		fmt.Fprintf(&b, "[green]🖼  Изображения:[white] заменено [green]%d[white] из [cyan]%d[white]\n",
			status.ReplacedImages, status.TotalImages)
	}

	if status.TotalOriginalSize > 0 {
		fmt.Fprintf(&b, "[green]💾 Размер:[white] %.2f MB → %.2f MB, сжатие [green]%.2f%%[white]\n",
			float64(status.TotalOriginalSize)/1024/1024,
			float64(status.TotalCompressedSize)/1024/1024,
			status.AverageCompression)
	}

	fmt.Fprintf(&b, "[yellow]⏱️  Прошло:[white] %s", status.FormatElapsedTime())
	if !status.IsComplete && status.EstimatedTime > 0 {
		fmt.Fprintf(&b, ", осталось ~%s", status.FormatEstimatedTime())
	}
	b.WriteString("\n")

	switch {
	case status.Error != nil:
		fmt.Fprintf(&b, "[red]❌ Ошибка: %v[white]\n", status.Error)
	case status.IsComplete:
		b.WriteString("[green]✅ Обработка завершена![white]\n")
	}
	b.WriteString("[yellow]F1/ESC[white] - Главное меню")
	return b.String()
}

// FormatHistory формирует таблицу последних запусков
func FormatHistory(runs []entities.RunRecord) string {
	if len(runs) == 0 {
		return "Запусков пока не было"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]%-19s %-8s %-7s %-6s %-8s %-7s %-10s[white]\n",
		"Начало", "Качество", "Ширина", "Файлы", "Успешно", "Ошибки", "Сжатие")
	for _, r := range runs {
		fmt.Fprintf(&b, "%-19s %-8d %-7d %-6d %-8d %-7d %.2f%%\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Quality, r.MaxWidth, r.TotalFiles, r.Successful, r.Failed, r.ReductionPercent)
	}
	return b.String()
}

// truncateFileName усекает имя файла с учетом UTF-8
func truncateFileName(fileName string, maxLength, truncateAt int) string {
	runes := []rune(fileName)
	if len(runes) <= maxLength {
		return fileName
	}
	return string(runes[:truncateAt]) + "..."
}

// createProgressBar создает цветной прогресс-бар
func createProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	} else if progress > 100 {
		progress = 100
	}

	filled := int(math.Round(progress * float64(width) / 100))
	if filled > width {
		filled = width
	}

	const filledChar = "█"
	const emptyChar = "░"

	var color string
	switch {
	case progress < 25:
		color = "red"
	case progress < 50:
		color = "yellow"
	case progress < 75:
		color = "blue"
	default:
		color = "green"
	}

	return fmt.Sprintf("[%s]%s[gray]%s", color, strings.Repeat(filledChar, filled), strings.Repeat(emptyChar, width-filled))
}

// AddLog добавляет запись в лог через канал (неблокирующе)
func (m *Manager) AddLog(level, message string) {
	select {
	case m.logChan <- formatLogLine(level, message):
	default:
		// Канал переполнен, запись теряется
	}
}

func formatLogLine(level, message string) string {
	var color string
	switch strings.ToLower(level) {
	case "error":
		color = "red"
	case "warning":
		color = "yellow"
	case "success":
		color = "green"
	case "debug":
		color = "gray"
	default:
		color = "white"
	}
	return fmt.Sprintf("[%s]%s:[white] %s", color, strings.ToUpper(level), tview.Escape(message))
}

// logProcessor обрабатывает логи в отдельной горутине с батчингом
func (m *Manager) logProcessor() {
	ticker := time.NewTicker(LogFlushInterval)
	defer ticker.Stop()

	batch := make([]string, 0, 50)

	for {
		select {
		case logLine := <-m.logChan:
			batch = append(batch, logLine)
			if len(batch) >= 20 {
				m.flushLogBatch(batch)
				batch = make([]string, 0, 50)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				m.flushLogBatch(batch)
				batch = make([]string, 0, 50)
			}

		case <-m.logDone:
			if len(batch) > 0 {
				m.flushLogBatch(batch)
			}
			return
		}
	}
}

// flushLogBatch сбрасывает батч логов в UI
func (m *Manager) flushLogBatch(batch []string) {
	m.statusMutex.Lock()
	m.logBuffer = append(m.logBuffer, batch...)
	if len(m.logBuffer) > MaxLogBufferSize {
		m.logBuffer = m.logBuffer[len(m.logBuffer)-MaxLogBufferSize:]
	}
	logText := strings.Join(m.logBuffer, "\n")
	m.statusMutex.Unlock()

	if m.logView != nil {
		m.app.QueueUpdateDraw(func() {
			m.logView.SetText(logText)
			m.logView.ScrollToEnd()
		})
	}
}

// Cleanup освобождает ресурсы менеджера (идемпотентный)
func (m *Manager) Cleanup() {
	m.logMutex.Lock()
	defer m.logMutex.Unlock()

	select {
	case <-m.logDone:
		return
	default:
		close(m.logDone)
	}
}

// refreshConfigForm синхронизирует значения формы с текущей конфигурацией
func (m *Manager) refreshConfigForm() {
	if m.configForm == nil {
		return
	}
	cfg := m.config

	setText := func(index int, text string) {
		if item, ok := m.configForm.GetFormItem(index).(*tview.InputField); ok {
			item.SetText(text)
		}
	}
	setChecked := func(index int, checked bool) {
		if item, ok := m.configForm.GetFormItem(index).(*tview.Checkbox); ok {
			item.SetChecked(checked)
		}
	}

	setText(formSource, cfg.Scanner.SourceDirectory)
	setText(formTarget, cfg.Scanner.TargetDirectory)
	setChecked(formReplace, cfg.Scanner.ReplaceOriginal)
	setChecked(formSlides, cfg.Scanner.IncludeSlides)
	setText(formQuality, strconv.Itoa(cfg.Compression.Quality))
	setText(formMaxWidth, strconv.Itoa(cfg.Compression.MaxWidth))
	setChecked(formGrayscale, cfg.Compression.Grayscale)
	if dd, ok := m.configForm.GetFormItem(formResampler).(*tview.DropDown); ok {
		dd.SetCurrentOption(resamplerIndex(cfg.Compression.Resampler))
	}
	setChecked(formOnlyIfSmaller, cfg.Compression.OnlyIfSmaller)
	setText(formWorkers, strconv.Itoa(cfg.Processing.ParallelWorkers))
	setText(formArchive, cfg.Output.ArchivePath)
	setChecked(formAutoStart, cfg.Compression.AutoStart)
}

func resamplerIndex(name string) int {
	for i, r := range resamplers {
		if r == name {
			return i
		}
	}
	return 0
}
