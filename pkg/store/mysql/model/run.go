package model

import "time"

// Run represents one analysis of a staged batch run
type Run struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunID        string    `gorm:"column:run_id;type:varchar(36);not null;uniqueIndex" json:"run_id"`
	TimingFile   string    `gorm:"column:timing_file;type:varchar(512);not null" json:"timing_file"`
	SubmittedAt  time.Time `gorm:"column:submitted_at;not null;index" json:"submitted_at"`
	FinishedAt   time.Time `gorm:"column:finished_at;not null" json:"finished_at"`
	TotalSeconds int64     `gorm:"column:total_seconds;not null" json:"total_seconds"`
	RunSeconds   int64     `gorm:"column:run_seconds;not null" json:"run_seconds"`
	QueueSeconds int64     `gorm:"column:queue_seconds;not null" json:"queue_seconds"`
	TaskCount    int       `gorm:"column:task_count;not null;default:0" json:"task_count"`
	SkippedLines int       `gorm:"column:skipped_lines;not null;default:0" json:"skipped_lines"`
	TotalCost    string    `gorm:"column:total_cost;type:varchar(40);not null;default:''" json:"total_cost"`
	Currency     string    `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	CostError    string    `gorm:"column:cost_error;type:text" json:"cost_error"`
	AnalyzedAt   time.Time `gorm:"column:analyzed_at;not null;index" json:"analyzed_at"`

	Stages []Stage `gorm:"foreignKey:RunID;references:RunID;constraint:OnDelete:CASCADE" json:"stages"`
}

// TableName returns the table name for Run
func (Run) TableName() string {
	return "analysis_runs"
}

// Stage represents one stage row of an analyzed run
type Stage struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	RunID          string    `gorm:"column:run_id;type:varchar(36);not null;uniqueIndex:uk_run_seq" json:"run_id"`
	Seq            int       `gorm:"column:seq;not null;uniqueIndex:uk_run_seq" json:"seq"`
	Stage          string    `gorm:"column:stage;type:varchar(255);not null" json:"stage"`
	JobID          string    `gorm:"column:job_id;type:varchar(64);not null;index" json:"job_id"`
	StartAt        time.Time `gorm:"column:start_at;not null" json:"start_at"`
	FinishAt       time.Time `gorm:"column:finish_at;not null" json:"finish_at"`
	TaskCount      int       `gorm:"column:task_count;not null" json:"task_count"`
	ElapsedSeconds int64     `gorm:"column:elapsed_seconds;not null" json:"elapsed_seconds"`
	QueueSeconds   int64     `gorm:"column:queue_seconds;not null" json:"queue_seconds"`
	MeanSeconds    int64     `gorm:"column:mean_seconds;not null" json:"mean_seconds"`
	StdSeconds     int64     `gorm:"column:std_seconds;not null" json:"std_seconds"`

	// Cost
	CPUs  int    `gorm:"column:cpus;not null;default:0" json:"cpus"`
	GPUs  int    `gorm:"column:gpus;not null;default:0" json:"gpus"`
	Units string `gorm:"column:units;type:varchar(40);not null;default:''" json:"units"`
	Cost  string `gorm:"column:cost;type:varchar(40);not null;default:''" json:"cost"`

	// Max memory usage
	MaxRSSTask string `gorm:"column:max_rss_task;type:varchar(64)" json:"max_rss_task"`
	MaxRSS     string `gorm:"column:max_rss;type:varchar(16)" json:"max_rss"`
	ReqMem     string `gorm:"column:req_mem;type:varchar(16)" json:"req_mem"`
	UsageError string `gorm:"column:usage_error;type:text" json:"usage_error"`
}

// TableName returns the table name for Stage
func (Stage) TableName() string {
	return "analysis_stages"
}
