// Package entry defines the LogEntry value type shared by every stage of
// the merge pipeline, from per-file parsing through paginated reads.
package entry

// Level is one of the four severities the parser is able to infer.
type Level string

const (
	LevelDebug Level = "D"
	LevelInfo  Level = "I"
	LevelWarn  Level = "W"
	LevelError Level = "E"
)

// Parsed holds the fields the Parser extracted from a raw line, when a
// ParserRule matched. Any of the fields may be empty if the rule's
// extractor for it did not match.
type Parsed struct {
	Time    string `json:"time,omitempty"`
	Process string `json:"process,omitempty"`
	Pid     string `json:"pid,omitempty"`
	Message string `json:"message,omitempty"`
}

// Empty reports whether none of time/process/pid/message were extracted.
func (p *Parsed) Empty() bool {
	return p == nil || (p.Time == "" && p.Process == "" && p.Pid == "" && p.Message == "")
}

// GatePassed reports whether a line counts as successfully parsed: at
// least one of time/process/pid must be present.
func (p *Parsed) GatePassed() bool {
	return p != nil && (p.Time != "" || p.Process != "" || p.Pid != "")
}

// LogEntry is a single record in the merged stream.
type LogEntry struct {
	ID     int64   `json:"id"`
	Ts     int64   `json:"ts"`
	Level  Level   `json:"level"`
	Type   string  `json:"type"`
	Source string  `json:"source"`
	Text   string  `json:"text,omitempty"`
	Parsed *Parsed `json:"parsed,omitempty"`
}
