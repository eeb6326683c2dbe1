package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/triage-ai/backend/internal/models"
)

const (
	FormatParquet = "parquet"
	FormatCSV     = "csv"

	batchStamp        = "20060102_150405"
	actionLogName     = "triage_actions.log"
	assignmentLogName = "reassign_log.parquet"
)

// LocalStore keeps each batch as a timestamped file under DataDir, the
// action log as JSON lines under LogDir, and the fallback-assignment log as
// a single parquet file it rewrites on every append.
type LocalStore struct {
	DataDir string
	LogDir  string
	Format  string

	mu sync.Mutex
}

func NewLocal(dataDir, logDir, format string) (*LocalStore, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	if logDir == "" {
		logDir = "logs"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{DataDir: dataDir, LogDir: logDir, Format: format}, nil
}

func (s *LocalStore) Close() {}

func (s *LocalStore) SaveBatch(ctx context.Context, tickets []models.Ticket) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]ticketRow, 0, len(tickets))
	for _, t := range tickets {
		rows = append(rows, rowFromTicket(t))
	}

	path := filepath.Join(s.DataDir, fmt.Sprintf("tickets_%s.%s", time.Now().Format(batchStamp), s.format()))
	var err error
	if s.format() == FormatCSV {
		err = writeCSVFile(path, rows)
	} else {
		err = parquet.WriteFile(path, rows)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// LoadLatest picks the lexicographically greatest batch file, which is the
// newest because the filenames embed a sortable timestamp.
func (s *LocalStore) LoadLatest(ctx context.Context) ([]models.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches, err := filepath.Glob(filepath.Join(s.DataDir, "tickets_*."+s.format()))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, ErrNoBatches
	}
	sort.Strings(matches)
	latest := matches[len(matches)-1]

	var rows []ticketRow
	if s.format() == FormatCSV {
		rows, err = readCSVFile(latest)
	} else {
		rows, err = parquet.ReadFile[ticketRow](latest)
	}
	if err != nil {
		return nil, err
	}

	tickets := make([]models.Ticket, 0, len(rows))
	for _, row := range rows {
		tickets = append(tickets, row.ticket())
	}
	return tickets, nil
}

func (s *LocalStore) AppendActionLog(ctx context.Context, rec models.ActionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(s.LogDir, actionLogName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

func (s *LocalStore) AppendAssignmentLog(ctx context.Context, rec models.AssignmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.DataDir, assignmentLogName)
	var rows []assignmentRow
	if _, err := os.Stat(path); err == nil {
		existing, err := parquet.ReadFile[assignmentRow](path)
		if err != nil {
			return err
		}
		rows = existing
	}

	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	rows = append(rows, assignmentRow{
		Timestamp:        ts.Format(time.RFC3339),
		TicketID:         rec.TicketID,
		AssignedEngineer: rec.Engineer,
		IsFallback:       rec.Fallback,
		Reason:           rec.Reason,
	})
	return parquet.WriteFile(path, rows)
}

// RecentActions returns up to limit action-log entries, newest first.
// Unparseable lines are skipped rather than failing the whole read.
func (s *LocalStore) RecentActions(ctx context.Context, limit int) ([]models.ActionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	f, err := os.Open(filepath.Join(s.LogDir, actionLogName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var all []models.ActionRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec models.ActionRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		all = append(all, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}

func (s *LocalStore) format() string {
	if s.Format == FormatCSV {
		return FormatCSV
	}
	return FormatParquet
}

var csvHeader = []string{
	"source", "sys_id", "number", "short_description", "description",
	"priority", "state", "category", "created_on", "caller_id", "assigned_to",
	"id", "key", "summary", "status", "created", "issuetype", "reporter",
	"assignee", "ai_category", "ai_priority", "ai_skills", "ai_summary",
	"triage_method", "assigned_engineer",
}

func (r ticketRow) record() []string {
	return []string{
		r.Source, r.SysID, r.Number, r.ShortDescription, r.Description,
		r.Priority, r.State, r.Category, r.CreatedOn, r.CallerID, r.AssignedTo,
		r.JiraID, r.JiraKey, r.Summary, r.Status, r.Created, r.IssueType,
		r.Reporter, r.Assignee, r.AICategory, r.AIPriority, r.AISkills,
		r.AISummary, r.TriageMethod, r.AssignedEngineer,
	}
}

func writeCSVFile(path string, rows []ticketRow) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return err
	}
	for _, row := range rows {
		if err := w.Write(row.record()); err != nil {
			f.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readCSVFile(path string) ([]ticketRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	idx := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		idx[name] = i
	}
	field := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	rows := make([]ticketRow, 0, len(records)-1)
	for _, rec := range records[1:] {
		rows = append(rows, ticketRow{
			Source:           field(rec, "source"),
			SysID:            field(rec, "sys_id"),
			Number:           field(rec, "number"),
			ShortDescription: field(rec, "short_description"),
			Description:      field(rec, "description"),
			Priority:         field(rec, "priority"),
			State:            field(rec, "state"),
			Category:         field(rec, "category"),
			CreatedOn:        field(rec, "created_on"),
			CallerID:         field(rec, "caller_id"),
			AssignedTo:       field(rec, "assigned_to"),
			JiraID:           field(rec, "id"),
			JiraKey:          field(rec, "key"),
			Summary:          field(rec, "summary"),
			Status:           field(rec, "status"),
			Created:          field(rec, "created"),
			IssueType:        field(rec, "issuetype"),
			Reporter:         field(rec, "reporter"),
			Assignee:         field(rec, "assignee"),
			AICategory:       field(rec, "ai_category"),
			AIPriority:       field(rec, "ai_priority"),
			AISkills:         field(rec, "ai_skills"),
			AISummary:        field(rec, "ai_summary"),
			TriageMethod:     field(rec, "triage_method"),
			AssignedEngineer: field(rec, "assigned_engineer"),
		})
	}
	return rows, nil
}
