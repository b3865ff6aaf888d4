// Package jobs запускает периодические задачи по cron-расписанию
// на основе github.com/robfig/cron/v3 (формат с секундами).
package jobs
