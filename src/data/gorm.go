package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stake-plus/osintops/src/shared/osint"
	"github.com/stake-plus/osintops/src/tracing"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InvestigationRow is the stored form of an investigation.
type InvestigationRow struct {
	ID               string           `gorm:"primaryKey;size:64"`
	TargetType       string           `gorm:"size:16;not null"`
	TargetValue      string           `gorm:"size:255;not null"`
	Scope            []osint.Category `gorm:"serializer:json;type:text"`
	Status           string           `gorm:"size:16;not null;index"`
	CreatedAt        time.Time        `gorm:"not null;index"`
	Deadline         time.Time        `gorm:"not null"`
	StartedAt        *time.Time
	CompletedAt      *time.Time
	DeadlineExceeded bool   `gorm:"not null"`
	Error            string `gorm:"type:text"`
	RequestedBy      string `gorm:"size:128"`
	Notes            string `gorm:"type:text"`
}

func (InvestigationRow) TableName() string { return "osint_investigations" }

// TaskRow is the stored form of a task.
type TaskRow struct {
	ID                   string `gorm:"primaryKey;size:64"`
	InvestigationID      string `gorm:"size:64;not null;index"`
	Adapter              string `gorm:"size:64;not null"`
	Category             string `gorm:"size:32;not null"`
	State                string `gorm:"size:16;not null"`
	Attempts             int    `gorm:"not null"`
	MaxAttempts          int    `gorm:"not null"`
	CreatedAt            time.Time
	LastAttemptStartedAt *time.Time
	LastAttemptEndedAt   *time.Time
	CompletedAt          *time.Time
	Error                string `gorm:"type:text"`
	ErrorKind            string `gorm:"size:32"`
}

func (TaskRow) TableName() string { return "osint_tasks" }

// FindingRow is the stored form of a finding, keyed by investigation and fingerprint.
type FindingRow struct {
	InvestigationID string            `gorm:"primaryKey;size:64"`
	Fingerprint     string            `gorm:"primaryKey;size:32"`
	Category        string            `gorm:"size:32;not null"`
	Value           string            `gorm:"type:text;not null"`
	Sources         []string          `gorm:"serializer:json;type:text"`
	Confidence      float64           `gorm:"not null"`
	FirstSeen       time.Time         `gorm:"not null"`
	LastSeen        time.Time         `gorm:"not null"`
	Attributes      map[string]string `gorm:"serializer:json;type:text"`
}

func (FindingRow) TableName() string { return "osint_findings" }

// ReportRow keeps each generated report as a JSON document.
type ReportRow struct {
	ID              string       `gorm:"primaryKey;size:64"`
	InvestigationID string       `gorm:"size:64;not null;index"`
	GeneratedAt     time.Time    `gorm:"not null"`
	Digest          string       `gorm:"size:32"`
	Body            osint.Report `gorm:"serializer:json;type:longtext"`
}

func (ReportRow) TableName() string { return "osint_reports" }

// TraceRow is one audit event, keyed by investigation and sequence number.
type TraceRow struct {
	InvestigationID string          `gorm:"primaryKey;size:64"`
	Seq             uint64          `gorm:"primaryKey;autoIncrement:false"`
	Kind            string          `gorm:"size:32;not null"`
	Detail          json.RawMessage `gorm:"type:text"`
	At              time.Time       `gorm:"not null"`
}

func (TraceRow) TableName() string { return "osint_traces" }

// GormRepository stores state in a SQL database through gorm.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository wraps db. Call Migrate before first use.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// Migrate creates or updates the tables.
func (r *GormRepository) Migrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&InvestigationRow{}, &TaskRow{}, &FindingRow{}, &ReportRow{}, &TraceRow{}, &Setting{}); err != nil {
		return fmt.Errorf("data: migrate: %w", err)
	}
	return nil
}

func upsert(ctx context.Context, db *gorm.DB, row interface{}) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error
}

func (r *GormRepository) SaveInvestigation(ctx context.Context, inv osint.Investigation) error {
	row := InvestigationRow{
		ID:               inv.ID,
		TargetType:       string(inv.Target.Type),
		TargetValue:      inv.Target.Value,
		Scope:            inv.Scope,
		Status:           string(inv.Status),
		CreatedAt:        inv.CreatedAt,
		Deadline:         inv.Deadline,
		StartedAt:        timePtr(inv.StartedAt),
		CompletedAt:      timePtr(inv.CompletedAt),
		DeadlineExceeded: inv.DeadlineExceeded,
		Error:            inv.Error,
		RequestedBy:      inv.RequestedBy,
		Notes:            inv.Notes,
	}
	if err := upsert(ctx, r.db, &row); err != nil {
		return fmt.Errorf("data: save investigation %s: %w", inv.ID, err)
	}
	return nil
}

func (r *GormRepository) GetInvestigation(ctx context.Context, id string) (osint.Investigation, error) {
	var row InvestigationRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return osint.Investigation{}, fmt.Errorf("%w: investigation %s", osint.ErrNotFound, id)
	}
	if err != nil {
		return osint.Investigation{}, fmt.Errorf("data: get investigation %s: %w", id, err)
	}
	return row.toInvestigation(), nil
}

func (r *GormRepository) ListInvestigations(ctx context.Context, limit int) ([]osint.Investigation, error) {
	var rows []InvestigationRow
	q := r.db.WithContext(ctx).Order("created_at desc").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("data: list investigations: %w", err)
	}
	out := make([]osint.Investigation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toInvestigation())
	}
	return out, nil
}

func (r *GormRepository) DeleteInvestigation(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []interface{}{&TraceRow{}, &ReportRow{}, &FindingRow{}, &TaskRow{}} {
			if err := tx.Where("investigation_id = ?", id).Delete(model).Error; err != nil {
				return fmt.Errorf("data: delete investigation %s: %w", id, err)
			}
		}
		if err := tx.Where("id = ?", id).Delete(&InvestigationRow{}).Error; err != nil {
			return fmt.Errorf("data: delete investigation %s: %w", id, err)
		}
		return nil
	})
}

func (r *GormRepository) SaveTask(ctx context.Context, task osint.Task) error {
	row := TaskRow{
		ID:                   task.ID,
		InvestigationID:      task.InvestigationID,
		Adapter:              task.Adapter,
		Category:             string(task.Category),
		State:                string(task.State),
		Attempts:             task.Attempts,
		MaxAttempts:          task.MaxAttempts,
		CreatedAt:            task.CreatedAt,
		LastAttemptStartedAt: timePtr(task.LastAttemptStartedAt),
		LastAttemptEndedAt:   timePtr(task.LastAttemptEndedAt),
		CompletedAt:          timePtr(task.CompletedAt),
		Error:                task.Error,
		ErrorKind:            task.ErrorKind,
	}
	if err := upsert(ctx, r.db, &row); err != nil {
		return fmt.Errorf("data: save task %s: %w", task.ID, err)
	}
	return nil
}

func (r *GormRepository) ListTasks(ctx context.Context, investigationID string) ([]osint.Task, error) {
	var rows []TaskRow
	if err := r.db.WithContext(ctx).Where("investigation_id = ?", investigationID).Order("adapter").Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("data: list tasks %s: %w", investigationID, err)
	}
	out := make([]osint.Task, 0, len(rows))
	for _, row := range rows {
		out = append(out, osint.Task{
			ID:                   row.ID,
			InvestigationID:      row.InvestigationID,
			Adapter:              row.Adapter,
			Category:             osint.Category(row.Category),
			State:                osint.TaskState(row.State),
			Attempts:             row.Attempts,
			MaxAttempts:          row.MaxAttempts,
			CreatedAt:            row.CreatedAt,
			LastAttemptStartedAt: timeVal(row.LastAttemptStartedAt),
			LastAttemptEndedAt:   timeVal(row.LastAttemptEndedAt),
			CompletedAt:          timeVal(row.CompletedAt),
			Error:                row.Error,
			ErrorKind:            row.ErrorKind,
		})
	}
	return out, nil
}

func (r *GormRepository) SaveFinding(ctx context.Context, finding osint.Finding) error {
	row := FindingRow{
		InvestigationID: finding.InvestigationID,
		Fingerprint:     finding.Fingerprint,
		Category:        string(finding.Category),
		Value:           finding.Value,
		Sources:         finding.Sources,
		Confidence:      finding.Confidence,
		FirstSeen:       finding.FirstSeen,
		LastSeen:        finding.LastSeen,
		Attributes:      finding.Attributes,
	}
	if err := upsert(ctx, r.db, &row); err != nil {
		return fmt.Errorf("data: save finding %s: %w", finding.Fingerprint, err)
	}
	return nil
}

func (r *GormRepository) ListFindings(ctx context.Context, investigationID string) ([]osint.Finding, error) {
	var rows []FindingRow
	if err := r.db.WithContext(ctx).Where("investigation_id = ?", investigationID).Order("fingerprint").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("data: list findings %s: %w", investigationID, err)
	}
	out := make([]osint.Finding, 0, len(rows))
	for _, row := range rows {
		out = append(out, osint.Finding{
			InvestigationID: row.InvestigationID,
			Fingerprint:     row.Fingerprint,
			Category:        osint.FindingCategory(row.Category),
			Value:           row.Value,
			Sources:         row.Sources,
			Confidence:      row.Confidence,
			FirstSeen:       row.FirstSeen,
			LastSeen:        row.LastSeen,
			Attributes:      row.Attributes,
		})
	}
	return out, nil
}

func (r *GormRepository) SaveReport(ctx context.Context, report osint.Report) error {
	row := ReportRow{
		ID:              report.ID,
		InvestigationID: report.InvestigationID,
		GeneratedAt:     report.GeneratedAt,
		Digest:          report.Digest,
		Body:            report,
	}
	if err := upsert(ctx, r.db, &row); err != nil {
		return fmt.Errorf("data: save report %s: %w", report.ID, err)
	}
	return nil
}

func (r *GormRepository) GetReport(ctx context.Context, investigationID string) (osint.Report, error) {
	var row ReportRow
	err := r.db.WithContext(ctx).
		Where("investigation_id = ?", investigationID).
		Order("generated_at desc").Order("id desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return osint.Report{}, fmt.Errorf("%w: report for %s", osint.ErrNotFound, investigationID)
	}
	if err != nil {
		return osint.Report{}, fmt.Errorf("data: get report %s: %w", investigationID, err)
	}
	return row.Body, nil
}

func (r *GormRepository) SaveTraceEvent(ctx context.Context, ev tracing.Event) error {
	row := TraceRow{
		InvestigationID: ev.InvestigationID,
		Seq:             ev.Seq,
		Kind:            string(ev.Kind),
		At:              ev.At,
	}
	if len(ev.Detail) > 0 {
		raw, err := json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("data: encode trace %s/%d: %w", ev.InvestigationID, ev.Seq, err)
		}
		row.Detail = raw
	}
	if err := upsert(ctx, r.db, &row); err != nil {
		return fmt.Errorf("data: save trace %s/%d: %w", ev.InvestigationID, ev.Seq, err)
	}
	return nil
}

func (r *GormRepository) ListTraceEvents(ctx context.Context, investigationID string, after uint64) ([]tracing.Event, error) {
	var rows []TraceRow
	err := r.db.WithContext(ctx).
		Where("investigation_id = ? AND seq > ?", investigationID, after).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("data: list traces %s: %w", investigationID, err)
	}
	out := make([]tracing.Event, 0, len(rows))
	for _, row := range rows {
		ev := tracing.Event{
			InvestigationID: row.InvestigationID,
			Seq:             row.Seq,
			Kind:            tracing.EventKind(row.Kind),
			At:              row.At,
		}
		if len(row.Detail) > 0 {
			if err := json.Unmarshal(row.Detail, &ev.Detail); err != nil {
				return nil, fmt.Errorf("data: decode trace %s/%d: %w", investigationID, row.Seq, err)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func (row InvestigationRow) toInvestigation() osint.Investigation {
	return osint.Investigation{
		ID:               row.ID,
		Target:           osint.Target{Type: osint.TargetType(row.TargetType), Value: row.TargetValue},
		Scope:            row.Scope,
		Status:           osint.InvestigationStatus(row.Status),
		CreatedAt:        row.CreatedAt,
		Deadline:         row.Deadline,
		StartedAt:        timeVal(row.StartedAt),
		CompletedAt:      timeVal(row.CompletedAt),
		DeadlineExceeded: row.DeadlineExceeded,
		Error:            row.Error,
		RequestedBy:      row.RequestedBy,
		Notes:            row.Notes,
	}
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeVal(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
