package pipeline

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSMirror publishes a copy of every pipeline event to NATS so
// external consumers (dashboards, the Snowflake exporter) can observe
// stage transitions without touching the store. Publishing is best
// effort: a NATS outage never stalls the pipeline.
type NATSMirror struct {
	conn    *nats.Conn
	subject string
}

// NewNATSMirror connects to the given NATS URL. Events are published on
// "<subjectPrefix>.<stage>" with the stage prefix lowercased.
func NewNATSMirror(url, subjectPrefix string) (*NATSMirror, error) {
	conn, err := nats.Connect(url,
		nats.Name("billflow-pipeline"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}
	return &NATSMirror{conn: conn, subject: subjectPrefix}, nil
}

// Publish implements Mirror.
func (m *NATSMirror) Publish(e ObjectCreated) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	stage := "unknown"
	if i := strings.IndexByte(e.Key, '/'); i > 0 {
		stage = strings.ToLower(e.Key[:i])
	}
	if err := m.conn.Publish(m.subject+"."+stage, data); err != nil {
		slog.Debug("NATS mirror publish failed", "error", err)
	}
}

// Close drains the connection.
func (m *NATSMirror) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}
