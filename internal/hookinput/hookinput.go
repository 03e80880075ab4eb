// Package hookinput parses and validates the JSON payload that editor and
// agent hooks feed to the checkpoint subcommand.
//
// Hooks are untrusted producers: the payload is validated against a
// schema before anything touches the working log. Unknown fields are
// preserved verbatim into the prompt blob; unknown type values are a
// usage error.
package hookinput

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"gitai/internal/authorship"
)

// Schema is the contract for checkpoint hook stdin.
const Schema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["type"],
  "properties": {
    "type": {"enum": ["human", "ai_agent", "ai_tab"]},
    "repo_working_dir": {"type": "string", "minLength": 1},
    "agent_name": {"type": "string"},
    "model": {"type": "string"},
    "conversation_id": {"type": "string"},
    "transcript": {
      "type": "object",
      "required": ["messages"],
      "properties": {
        "messages": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["type", "text"],
            "properties": {
              "type": {"enum": ["user", "assistant"]},
              "text": {"type": "string"},
              "timestamp": {"type": "string"}
            }
          }
        }
      }
    }
  }
}`

var compiled = jsonschema.MustCompileString("hookinput.schema.json", Schema)

// Message is one turn of a prompt transcript.
type Message struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Transcript is the conversation that produced an AI checkpoint.
type Transcript struct {
	Messages []Message `json:"messages"`
}

// Input is the decoded hook payload.
type Input struct {
	Type           string      `json:"type"`
	RepoWorkingDir string      `json:"repo_working_dir,omitempty"`
	AgentName      string      `json:"agent_name,omitempty"`
	Model          string      `json:"model,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Transcript     *Transcript `json:"transcript,omitempty"`

	// Raw is the original payload with unknown fields intact; this is
	// what gets archived as the prompt blob.
	Raw json.RawMessage `json:"-"`
}

// Parse validates and decodes a hook payload.
func Parse(data []byte) (*Input, error) {
	var instance interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&instance); err != nil {
		return nil, fmt.Errorf("parsing hook input: %w", err)
	}
	if err := compiled.Validate(instance); err != nil {
		return nil, fmt.Errorf("invalid hook input: %w", err)
	}

	in := &Input{}
	if err := json.Unmarshal(data, in); err != nil {
		return nil, fmt.Errorf("decoding hook input: %w", err)
	}
	in.Raw = json.RawMessage(append([]byte(nil), data...))
	return in, nil
}

// AuthorKind maps the hook type onto the note's author model.
// Tab completions are recorded as human by policy.
func (in *Input) AuthorKind() authorship.AuthorKind {
	if in.Type == "ai_agent" {
		return authorship.Agent
	}
	return authorship.Human
}

// AgentID derives the opaque agent identifier recorded in notes:
// "<agent_name>" or "<agent_name>/<model>" when a model is present.
func (in *Input) AgentID() string {
	if in.AuthorKind() != authorship.Agent {
		return ""
	}
	name := in.AgentName
	if name == "" {
		name = "agent"
	}
	if in.Model != "" {
		return name + "/" + in.Model
	}
	return name
}

// HasTranscript reports whether a non-empty transcript came along.
func (in *Input) HasTranscript() bool {
	return in.Transcript != nil && len(in.Transcript.Messages) > 0
}

// Summary renders a short description for debug logging.
func (in *Input) Summary() string {
	parts := []string{in.Type}
	if in.AgentName != "" {
		parts = append(parts, in.AgentName)
	}
	if in.Model != "" {
		parts = append(parts, in.Model)
	}
	return strings.Join(parts, " ")
}
