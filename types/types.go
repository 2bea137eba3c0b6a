// Package types defines the shared data structures for the talecore engine.
// It contains only type definitions.
package types

// VarType is the declared type of a state variable.
type VarType string

const (
	VarNumber  VarType = "number"
	VarInteger VarType = "integer"
	VarBoolean VarType = "boolean"
	VarEnum    VarType = "enum"
	VarString  VarType = "string"
	VarList    VarType = "list"
	VarObject  VarType = "object"
)

// UpdatePolicy restricts which operations may target a variable.
type UpdatePolicy string

const (
	PolicyAny        UpdatePolicy = "any"
	PolicyIncDecOnly UpdatePolicy = "inc_dec_only"
	PolicySetOnly    UpdatePolicy = "set_only"
)

// Operation names as they appear on the wire.
const (
	OpSet    = "set"
	OpInc    = "inc"
	OpDec    = "dec"
	OpPush   = "push"
	OpRemove = "remove"
	OpToggle = "toggle"
)

// Choice risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// VariableRules constrains how a variable may be mutated.
type VariableRules struct {
	Clamp        bool
	Readonly     bool
	UpdatePolicy UpdatePolicy
}

// VariableCard holds presentation hints. The rules engine never reads it.
type VariableCard struct {
	Visible      bool
	Order        int
	Format       string
	Description  string
	PromptWeight string // "high", "medium", "low", "hidden"
}

// VariableDef is the immutable definition of a top-level state variable.
type VariableDef struct {
	ID         string
	Label      string
	Type       VarType
	Min        *float64
	Max        *float64
	EnumValues []string
	Default    any
	Rules      VariableRules
	Card       VariableCard
	Tags       []string
}

// UpdateOp is a single proposed state mutation.
type UpdateOp struct {
	Op     string `json:"op"`
	Path   string `json:"path"`
	Value  any    `json:"value"`
	Reason string `json:"reason"`
}

// Event is a typed notice produced by generation or by the rules engine.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EndState is the terminal verdict for a turn.
type EndState struct {
	IsGameOver bool   `json:"is_game_over"`
	EndingID   string `json:"ending_id"`
	Reason     string `json:"reason"`
}

// Choice is an action offered to the player.
type Choice struct {
	ID    string   `json:"id"`
	Label string   `json:"label"`
	Hint  string   `json:"hint"`
	Risk  string   `json:"risk"`
	Tags  []string `json:"tags"`
}

// GeneratedOutput is the validated shape of a generator response.
type GeneratedOutput struct {
	NarrativeMarkdown string     `json:"narrative_markdown"`
	Choices           []Choice   `json:"choices"`
	StateUpdates      []UpdateOp `json:"state_updates"`
	NewFacts          []string   `json:"new_facts"`
	Events            []Event    `json:"events"`
	End               EndState   `json:"end"`
}

// TurnRecord is one append-only history entry.
type TurnRecord struct {
	TurnIndex         int        `json:"turn_index"`
	PlayerInput       string     `json:"player_input"`
	NarrativeMarkdown string     `json:"narrative_markdown"`
	Choices           []Choice   `json:"choices"`
	AppliedUpdates    []UpdateOp `json:"applied_updates"`
	RejectedUpdates   []UpdateOp `json:"rejected_updates"`
	Events            []Event    `json:"events"`
	End               EndState   `json:"end"`
}

// Trigger is a scripted rule evaluated after every turn's updates.
type Trigger struct {
	ID          string
	Priority    int
	Once        bool
	When        string
	Effects     []UpdateOp
	Events      []Event
	SourceOrder int
}

// Message is one entry of a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StatusItem describes one entry of the status bar.
type StatusItem struct {
	VarID             string
	Style             string // "meter" or "text"
	Label             string
	ShowDelta         bool
	CriticalThreshold *float64
}

// LLMConfig holds the content author's generation hints.
type LLMConfig struct {
	RecommendedModel string
	Temperature      float64
	MaxOutputTokens  int
}

// PromptRules holds author-provided style and boundary notes.
type PromptRules struct {
	StyleNotes []string
	Boundaries []string
}

// GameDef holds game metadata.
type GameDef struct {
	ID            string
	Title         string
	Version       string
	Language      string
	Tone          string
	ContentRating string
	StatusBar     []StatusItem
	LLM           LLMConfig
	PromptRules   PromptRules
	World         string // world.md contents
	Intro         string // intro.md contents
}
