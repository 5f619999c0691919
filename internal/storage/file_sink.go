package storage

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/loginguard/internal/models"
)

const (
	JSONFileName = "security_events.jsonl"
	CSVFileName  = "security_events.csv"
)

var csvHeader = []string{
	"log_id", "session_id", "timestamp", "email", "user_id", "ip_address",
	"country", "region", "city", "user_agent_string", "browser_name_version",
	"os_name_version", "device_type", "login_successful", "failure_reason",
	"is_attack_ip", "is_attack", "attack_confidence", "attack_type",
	"classifier_used", "detected_anomalies",
}

// FileSink appends every event to a JSON lines stream and a flat CSV export
type FileSink struct {
	mu       sync.Mutex
	jsonPath string
	csvPath  string
	logger   *slog.Logger
}

// NewFileSink creates dir if needed and returns a sink writing into it
func NewFileSink(dir string, logger *slog.Logger) (*FileSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: log directory is empty", models.ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	return &FileSink{
		jsonPath: filepath.Join(dir, JSONFileName),
		csvPath:  filepath.Join(dir, CSVFileName),
		logger:   logger,
	}, nil
}

// Name implements EventSink
func (s *FileSink) Name() string {
	return "file"
}

// Write implements EventSink. Both files are attempted even if the first fails.
func (s *FileSink) Write(ctx context.Context, ev *models.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jsonErr := s.appendJSON(ev)
	csvErr := s.appendCSV(ev)

	if jsonErr != nil {
		return jsonErr
	}
	return csvErr
}

func (s *FileSink) appendJSON(ev *models.SecurityEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal security event: %w", err)
	}

	f, err := os.OpenFile(s.jsonPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write event log: %w", err)
	}
	return nil
}

func (s *FileSink) appendCSV(ev *models.SecurityEvent) error {
	f, err := os.OpenFile(s.csvPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open csv export: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat csv export: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
	}
	if err := w.Write(csvRow(ev)); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv export: %w", err)
	}
	return nil
}

func csvRow(ev *models.SecurityEvent) []string {
	failure := ""
	if ev.FailureReason != nil {
		failure = *ev.FailureReason
	}

	isAttack, confidence, attackType, classifierUsed := false, 0.0, models.AttackTypeNormal, false
	if ev.Detection != nil {
		isAttack = ev.Detection.IsAttack
		confidence = ev.Detection.Confidence
		attackType = ev.Detection.AttackType
		classifierUsed = ev.Detection.ClassifierUsed
	}

	return []string{
		ev.LogID,
		ev.SessionToken,
		ev.Timestamp.UTC().Format(time.RFC3339Nano),
		ev.Email,
		ev.AnonymizedUser,
		ev.IPAddress,
		ev.Country,
		ev.Region,
		ev.City,
		ev.UserAgent,
		ev.Browser,
		ev.OS,
		ev.DeviceType,
		strconv.FormatBool(ev.LoginSuccessful),
		failure,
		strconv.FormatBool(ev.IsAttack),
		strconv.FormatBool(isAttack),
		strconv.FormatFloat(confidence, 'f', 4, 64),
		string(attackType),
		strconv.FormatBool(classifierUsed),
		strings.Join(ev.Anomalies, ";"),
	}
}

// ReadSince loads events at or after since from the JSON lines stream.
// Malformed lines are skipped. A missing file yields no events.
func (s *FileSink) ReadSince(ctx context.Context, since time.Time) ([]models.SecurityEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.jsonPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.SecurityEvent{}, nil
		}
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	events := make([]models.SecurityEvent, 0)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	skipped := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev models.SecurityEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			skipped++
			continue
		}
		if !ev.Timestamp.Before(since) {
			events = append(events, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	if skipped > 0 {
		s.logger.Warn("skipped malformed event log lines", slog.Int("count", skipped))
	}
	return events, nil
}
