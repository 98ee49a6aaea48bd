package entities

import "time"

// ArchiveEntry файл внутри итогового архива
type ArchiveEntry struct {
	Name string
	Data []byte
}

// BatchSummary итог запуска пакетной обработки
type BatchSummary struct {
	RunID          string
	Results        []*BatchResult
	TotalFiles     int
	Successful     int
	Failed         int
	OriginalBytes  int64
	OutputBytes    int64
	ImagesReplaced int
	ArchivePath    string
	StartedAt      time.Time
	Duration       time.Duration
}

// NewBatchSummary собирает итог по результатам файлов
func NewBatchSummary(results []*BatchResult, startedAt time.Time) *BatchSummary {
	s := &BatchSummary{
		Results:    results,
		TotalFiles: len(results),
		StartedAt:  startedAt,
		Duration:   time.Since(startedAt),
	}
	for _, r := range results {
		if r == nil {
			continue
		}
		if !r.Success {
			s.Failed++
			continue
		}
		s.Successful++
		s.OriginalBytes += r.OriginalSize
		s.OutputBytes += r.OutputSize
		s.ImagesReplaced += r.ImagesReplaced
	}
	return s
}

// ReductionPercent общий процент уменьшения успешных файлов
func (s *BatchSummary) ReductionPercent() float64 {
	if s.OriginalBytes <= 0 {
		return 0
	}
	return (float64(s.OriginalBytes) - float64(s.OutputBytes)) / float64(s.OriginalBytes) * 100
}

// ArchiveEntries возвращает успешные результаты в порядке входа
func (s *BatchSummary) ArchiveEntries() []ArchiveEntry {
	var entries []ArchiveEntry
	for _, r := range s.Results {
		if r != nil && r.Success && r.Output != nil {
			entries = append(entries, ArchiveEntry{Name: r.OutputName, Data: r.Output})
		}
	}
	return entries
}

// RunRecord запись журнала о завершенном запуске
type RunRecord struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       time.Time
	Quality          int
	MaxWidth         int
	Grayscale        bool
	TotalFiles       int
	Successful       int
	Failed           int
	OriginalBytes    int64
	OutputBytes      int64
	ReductionPercent float64
}
