package catalog

// AnswerType is the input kind a question accepts.
type AnswerType string

const (
	TypeScale       AnswerType = "scale"
	TypeSingle      AnswerType = "single_select"
	TypeMulti       AnswerType = "multi_select"
	TypeBoolean     AnswerType = "boolean"
	TypeText        AnswerType = "text"
	TypeNumeric     AnswerType = "numeric"
	defaultTextSize            = 2000
)

var validAnswerTypes = map[AnswerType]bool{
	TypeScale: true, TypeSingle: true, TypeMulti: true,
	TypeBoolean: true, TypeText: true, TypeNumeric: true,
}

// Operator is a comparison used by a Rule.
type Operator string

const (
	OpGTE      Operator = ">="
	OpGT       Operator = ">"
	OpEQ       Operator = "="
	OpLTE      Operator = "<="
	OpLT       Operator = "<"
	OpIncludes Operator = "includes"
	OpExcludes Operator = "excludes"
)

var validOperators = map[Operator]bool{
	OpGTE: true, OpGT: true, OpEQ: true, OpLTE: true, OpLT: true,
	OpIncludes: true, OpExcludes: true,
}

// Rule compares the recorded answer of one question against a literal.
type Rule struct {
	QuestionID string   `yaml:"question" json:"question"`
	Operator   Operator `yaml:"op" json:"op"`
	Value      any      `yaml:"value" json:"value"`
}

// TriggerAction is what a firing trigger does to its target domain.
type TriggerAction string

const (
	ActionEnter      TriggerAction = "enter_domain"
	ActionPrioritize TriggerAction = "prioritize_domain"
	ActionSkip       TriggerAction = "skip_domain"
)

// Trigger activates, prioritizes or skips a domain once all of When hold.
// Domain defaults to the owning domain for domain entry triggers.
type Trigger struct {
	When   []Rule        `yaml:"when" json:"when"`
	Action TriggerAction `yaml:"action" json:"action"`
	Domain string        `yaml:"domain,omitempty" json:"domain,omitempty"`
}

// Option is one selectable answer of a select or boolean question.
type Option struct {
	Value           string  `yaml:"value" json:"value"`
	Label           string  `yaml:"label" json:"label"`
	RiskScore       float64 `yaml:"risk_score,omitempty" json:"-"`
	EmotionalImpact string  `yaml:"emotional_impact,omitempty" json:"emotional_impact,omitempty"`
}

// ClinicalMeta ties a question to a standardized instrument.
type ClinicalMeta struct {
	Instrument     string   `yaml:"instrument,omitempty" json:"instrument,omitempty"`
	Code           string   `yaml:"code,omitempty" json:"code,omitempty"`
	ValidationPair string   `yaml:"validation_pair,omitempty" json:"validation_pair,omitempty"`
	RiskThreshold  *float64 `yaml:"risk_threshold,omitempty" json:"risk_threshold,omitempty"`
}

// Question is a single catalog item. Scoring fields are never serialized to
// the patient-facing API.
type Question struct {
	ID              string        `yaml:"id" json:"id"`
	Text            string        `yaml:"text" json:"text"`
	Type            AnswerType    `yaml:"type" json:"type"`
	Domain          string        `yaml:"domain,omitempty" json:"domain"`
	Priority        int           `yaml:"priority,omitempty" json:"priority,omitempty"`
	RiskWeight      float64       `yaml:"risk_weight,omitempty" json:"-"`
	EmotionalWeight float64       `yaml:"emotional_weight,omitempty" json:"-"`
	ScoreScale      float64       `yaml:"score_scale,omitempty" json:"-"`
	Min             *float64      `yaml:"min,omitempty" json:"min,omitempty"`
	Max             *float64      `yaml:"max,omitempty" json:"max,omitempty"`
	MaxLength       int           `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	Options         []Option      `yaml:"options,omitempty" json:"options,omitempty"`
	Conditions      []Rule        `yaml:"conditions,omitempty" json:"-"`
	Clinical        *ClinicalMeta `yaml:"clinical,omitempty" json:"clinical,omitempty"`
}

// Option returns the option with the given value.
func (q *Question) Option(value string) (Option, bool) {
	for _, o := range q.Options {
		if o.Value == value {
			return o, true
		}
	}
	return Option{}, false
}

// TextLimit returns the maximum accepted length of a free-text answer.
func (q *Question) TextLimit() int {
	if q.MaxLength > 0 {
		return q.MaxLength
	}
	return defaultTextSize
}

// Layer is an ordered group of questions.
type Layer struct {
	ID           string     `yaml:"id" json:"id"`
	Questions    []Question `yaml:"questions" json:"questions"`
	CompleteWhen []Rule     `yaml:"complete_when,omitempty" json:"-"`
	NextDomains  []Trigger  `yaml:"next_domains,omitempty" json:"-"`
}

// Domain is a topic area of the questionnaire.
type Domain struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Priority  int       `yaml:"priority" json:"priority"`
	Terminal  bool      `yaml:"terminal,omitempty" json:"terminal,omitempty"`
	Emergency bool      `yaml:"emergency,omitempty" json:"emergency,omitempty"`
	Intro     string    `yaml:"intro,omitempty" json:"intro,omitempty"`
	Layers    []Layer   `yaml:"layers" json:"-"`
	Triggers  []Trigger `yaml:"triggers,omitempty" json:"-"`
}

// FlagLevel separates flags that force the critical tier from those that
// only raise the severity multiplier.
type FlagLevel string

const (
	FlagCritical FlagLevel = "critical"
	FlagModerate FlagLevel = "moderate"
)

// FlagRule sets a flag when all of When hold. Several rules may share an ID.
type FlagRule struct {
	ID    string    `yaml:"id"`
	Level FlagLevel `yaml:"level"`
	When  []Rule    `yaml:"when"`
}

// Contradiction is a rule over a validation pair of questions.
type Contradiction struct {
	ID         string   `yaml:"id"`
	Questions  []string `yaml:"questions"`
	When       []Rule   `yaml:"when"`
	FraudDelta float64  `yaml:"fraud_delta"`
	Message    string   `yaml:"message"`
}

// Timing of an escalation.
type Timing string

const (
	TimingImmediate Timing = "immediate"
	TimingDeferred  Timing = "deferred"
)

// WeightedRule is one condition of an escalation. Weight defaults to 1.
type WeightedRule struct {
	Rule   `yaml:",inline"`
	Weight float64 `yaml:"weight,omitempty"`
}

// Escalation raises an emergency or clinical-review event.
type Escalation struct {
	ID                 string         `yaml:"id"`
	Conditions         []WeightedRule `yaml:"conditions"`
	RequiredConfidence float64        `yaml:"required_confidence"`
	Persistence        int            `yaml:"persistence,omitempty"`
	Timing             Timing         `yaml:"timing"`
	Domain             string         `yaml:"domain,omitempty"`
	Pathway            string         `yaml:"pathway,omitempty"`
	Message            string         `yaml:"message"`
}

// PatternRule is a catalog-defined hidden-pattern detector.
type PatternRule struct {
	ID             string  `yaml:"id"`
	When           []Rule  `yaml:"when"`
	Confidence     float64 `yaml:"confidence"`
	Recommendation string  `yaml:"recommendation"`
}

// Catalog is an immutable, versioned questionnaire definition. It must not be
// mutated once returned by a Provider.
type Catalog struct {
	Version        string          `yaml:"version"`
	Triage         Domain          `yaml:"triage"`
	Domains        []Domain        `yaml:"domains"`
	Flags          []FlagRule      `yaml:"flags,omitempty"`
	Contradictions []Contradiction `yaml:"contradictions,omitempty"`
	Escalations    []Escalation    `yaml:"escalations,omitempty"`
	Patterns       []PatternRule   `yaml:"patterns,omitempty"`
	Workflows      []Workflow      `yaml:"workflows"`
	Thresholds     Thresholds      `yaml:"thresholds,omitempty"`

	questions map[string]*Question
	domains   map[string]*Domain
	owners    map[string]string
}

// Question looks up a question by id across all domains.
func (c *Catalog) Question(id string) (*Question, bool) {
	q, ok := c.questions[id]
	return q, ok
}

// Domain looks up a domain by id, including triage.
func (c *Catalog) Domain(id string) (*Domain, bool) {
	d, ok := c.domains[id]
	return d, ok
}

// OwnerDomain returns the id of the domain whose layers contain the question.
func (c *Catalog) OwnerDomain(questionID string) string {
	return c.owners[questionID]
}

// TerminalDomain returns the validation domain run last in every session.
func (c *Catalog) TerminalDomain() *Domain {
	for i := range c.Domains {
		if c.Domains[i].Terminal {
			return &c.Domains[i]
		}
	}
	return nil
}

// EmergencyDomain returns the domain used for immediate escalations.
func (c *Catalog) EmergencyDomain() *Domain {
	for i := range c.Domains {
		if c.Domains[i].Emergency {
			return &c.Domains[i]
		}
	}
	return nil
}

// Workflow looks up a workflow by id.
func (c *Catalog) Workflow(id string) (*Workflow, bool) {
	for i := range c.Workflows {
		if c.Workflows[i].ID == id {
			return &c.Workflows[i], true
		}
	}
	return nil, false
}

// QuestionCount returns the number of questions defined in a domain.
func (d *Domain) QuestionCount() int {
	n := 0
	for _, l := range d.Layers {
		n += len(l.Questions)
	}
	return n
}

// index builds lookup tables and normalizes rule literals.
func (c *Catalog) index() {
	c.questions = make(map[string]*Question)
	c.domains = make(map[string]*Domain)
	c.owners = make(map[string]string)
	if c.Triage.ID == "" {
		c.Triage.ID = "triage"
	}
	c.indexDomain(&c.Triage)
	for i := range c.Domains {
		c.indexDomain(&c.Domains[i])
	}
	for i := range c.Flags {
		normalizeRules(c.Flags[i].When)
	}
	for i := range c.Contradictions {
		normalizeRules(c.Contradictions[i].When)
	}
	for i := range c.Escalations {
		for j := range c.Escalations[i].Conditions {
			c.Escalations[i].Conditions[j].Value = normalizeLiteral(c.Escalations[i].Conditions[j].Value)
		}
	}
	for i := range c.Patterns {
		normalizeRules(c.Patterns[i].When)
	}
	for i := range c.Workflows {
		normalizeRules(c.Workflows[i].When)
		for j := range c.Workflows[i].Interventions {
			normalizeRules(c.Workflows[i].Interventions[j].When)
		}
	}
	c.Thresholds = c.Thresholds.withDefaults()
}

func (c *Catalog) indexDomain(d *Domain) {
	c.domains[d.ID] = d
	normalizeTriggers(d.Triggers)
	for li := range d.Layers {
		l := &d.Layers[li]
		normalizeRules(l.CompleteWhen)
		normalizeTriggers(l.NextDomains)
		for qi := range l.Questions {
			q := &l.Questions[qi]
			if q.Domain == "" {
				q.Domain = d.ID
			}
			normalizeRules(q.Conditions)
			if _, dup := c.questions[q.ID]; !dup {
				c.questions[q.ID] = q
				c.owners[q.ID] = d.ID
			}
		}
	}
}

func normalizeRules(rules []Rule) {
	for i := range rules {
		rules[i].Value = normalizeLiteral(rules[i].Value)
	}
}

func normalizeTriggers(triggers []Trigger) {
	for i := range triggers {
		normalizeRules(triggers[i].When)
	}
}

func normalizeLiteral(v any) any {
	if n, ok := Normalize(v); ok {
		return n
	}
	return v
}
