// Package export writes forwarding logs to JSON or CSV files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/parvesh-spec/messageforwarder/internal/channelid"
	"github.com/parvesh-spec/messageforwarder/internal/model"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

var logHeaders = []string{
	"id",
	"user_id",
	"config_id",
	"action",
	"source_channel_id",
	"source_message_id",
	"destination_channel_id",
	"destination_message_id",
	"created_at",
}

// WriteLogs writes logs to filename in the given format.
func WriteLogs(logs []model.ForwardingLog, filename, format string) error {
	switch format {
	case FormatJSON:
		return WriteJSON(logs, filename)
	case FormatCSV:
		w, err := NewCSVWriter(filename)
		if err != nil {
			return err
		}
		if err := WriteLogsCSV(w, logs); err != nil {
			w.Close()
			return err
		}
		return w.Close()
	default:
		return fmt.Errorf("unsupported export format %q (want json or csv)", format)
	}
}

func WriteJSON(data interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error creating JSON file: %w", err)
	}
	defer file.Close()

	return EncodeJSON(file, data)
}

func EncodeJSON(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("error encoding JSON: %w", err)
	}
	return nil
}

type CSVWriter struct {
	closer io.Closer
	writer *csv.Writer
}

func NewCSVWriter(filename string) (*CSVWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("error creating CSV file: %w", err)
	}

	return &CSVWriter{
		closer: file,
		writer: csv.NewWriter(file),
	}, nil
}

// NewCSVStream writes CSV to w, which is not closed.
func NewCSVStream(w io.Writer) *CSVWriter {
	return &CSVWriter{writer: csv.NewWriter(w)}
}

func (w *CSVWriter) WriteHeader(headers []string) error {
	if err := w.writer.Write(headers); err != nil {
		return fmt.Errorf("error writing CSV headers: %w", err)
	}
	return nil
}

func (w *CSVWriter) WriteRecord(record []string) error {
	if err := w.writer.Write(record); err != nil {
		return fmt.Errorf("error writing CSV record: %w", err)
	}
	return nil
}

func (w *CSVWriter) Close() error {
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		if w.closer != nil {
			w.closer.Close()
		}
		return fmt.Errorf("error flushing CSV: %w", err)
	}
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// WriteLogsCSV writes a header and one row per log entry.
func WriteLogsCSV(w *CSVWriter, logs []model.ForwardingLog) error {
	if err := w.WriteHeader(logHeaders); err != nil {
		return err
	}
	for _, l := range logs {
		if err := w.WriteRecord(logRecord(l)); err != nil {
			return err
		}
	}
	return nil
}

func logRecord(l model.ForwardingLog) []string {
	return []string{
		strconv.FormatUint(uint64(l.ID), 10),
		strconv.FormatUint(uint64(l.UserID), 10),
		strconv.FormatUint(uint64(l.ConfigID), 10),
		l.Action,
		channelid.Format(l.SourceChannelID),
		strconv.Itoa(l.SourceMessageID),
		channelid.Format(l.DestinationChannelID),
		strconv.Itoa(l.DestinationMessageID),
		l.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// FormatFilename names an export file, e.g. "user7_logs_20240101.csv".
func FormatFilename(userID uint, at time.Time, format string) string {
	return fmt.Sprintf("user%d_logs_%s.%s", userID, at.Format("20060102"), format)
}
