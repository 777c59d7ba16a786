package fraud

import (
	"encoding/json"
	"fmt"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DetectionLog is an append-only evidence record. It is written whenever
// a heuristic fires, whether or not the action was blocked.
type DetectionLog struct {
	CreatedAt   time.Time `json:"created_at"`
	ID          string    `json:"id"`
	MemberID    string    `json:"member_id"`
	ActionType  string    `json:"action_type"`
	Reason      string    `json:"reason"`
	Severity    Severity  `json:"severity"`
	Fingerprint string    `json:"fingerprint"`
	Evidence    Evidence  `json:"evidence"`
	Blocked     bool      `json:"blocked"`
}

// Evidence is a closed set of per-heuristic payload shapes. Unknown
// shapes read back from storage land in Opaque.
type Evidence interface {
	Kind() string
}

type VelocityEvidence struct {
	PointsLastHour int64 `json:"points_last_hour"`
	Ceiling        int64 `json:"ceiling"`
}

func (VelocityEvidence) Kind() string { return "velocity" }

type IPConcentrationEvidence struct {
	IPAddress string `json:"ip_address"`
	Requests  int    `json:"requests"`
	Ceiling   int    `json:"ceiling"`
}

func (IPConcentrationEvidence) Kind() string { return "ip_concentration" }

type TimingEvidence struct {
	Gap    time.Duration `json:"gap_ns"`
	MinGap time.Duration `json:"min_gap_ns"`
}

func (TimingEvidence) Kind() string { return "timing" }

type RecidivismEvidence struct {
	PriorLogs int `json:"prior_logs"`
}

func (RecidivismEvidence) Kind() string { return "recidivism" }

type QuizTimingEvidence struct {
	Completion time.Duration `json:"completion_ns"`
	Minimum    time.Duration `json:"minimum_ns"`
}

func (QuizTimingEvidence) Kind() string { return "quiz_timing" }

type Opaque struct {
	OpaqueKind string          `json:"kind"`
	Raw        json.RawMessage `json:"raw"`
}

func (o Opaque) Kind() string { return o.OpaqueKind }

type envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func MarshalEvidence(e Evidence) ([]byte, error) {
	if e == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evidence payload: %w", err)
	}
	raw, err := json.Marshal(envelope{Kind: e.Kind(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal evidence envelope: %w", err)
	}
	return raw, nil
}

func UnmarshalEvidence(raw []byte) (Evidence, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evidence envelope: %w", err)
	}

	decode := func(e Evidence) (Evidence, error) {
		if err := json.Unmarshal(env.Data, e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s evidence: %w", env.Kind, err)
		}
		return e, nil
	}

	switch env.Kind {
	case "velocity":
		e, err := decode(&VelocityEvidence{})
		if err != nil {
			return nil, err
		}
		return *e.(*VelocityEvidence), nil
	case "ip_concentration":
		e, err := decode(&IPConcentrationEvidence{})
		if err != nil {
			return nil, err
		}
		return *e.(*IPConcentrationEvidence), nil
	case "timing":
		e, err := decode(&TimingEvidence{})
		if err != nil {
			return nil, err
		}
		return *e.(*TimingEvidence), nil
	case "recidivism":
		e, err := decode(&RecidivismEvidence{})
		if err != nil {
			return nil, err
		}
		return *e.(*RecidivismEvidence), nil
	case "quiz_timing":
		e, err := decode(&QuizTimingEvidence{})
		if err != nil {
			return nil, err
		}
		return *e.(*QuizTimingEvidence), nil
	}

	return Opaque{OpaqueKind: env.Kind, Raw: env.Data}, nil
}
