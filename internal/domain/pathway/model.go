package pathway

import "time"

// Profile is the read-only user profile used to match pathway segments. A
// nil category means the dimension is unknown for this user.
type Profile struct {
	UserID       string             `json:"user_id"`
	Demographics *Demographics      `json:"demographics,omitempty"`
	Behavioral   *Behavioral        `json:"behavioral,omitempty"`
	Clinical     *Clinical          `json:"clinical,omitempty"`
	Resources    map[string]float64 `json:"resources,omitempty"`
}

type Demographics struct {
	Age    int    `json:"age,omitempty"`
	Sex    string `json:"sex,omitempty"`
	Region string `json:"region,omitempty"`
}

type Behavioral struct {
	Engagement       float64 `json:"engagement"`
	CompletionRate   float64 `json:"completion_rate"`
	PreferredChannel string  `json:"preferred_channel,omitempty"`
}

type Clinical struct {
	Conditions []string `json:"conditions,omitempty"`
}

// Context describes when and how the session runs.
type Context struct {
	Now     time.Time
	Channel string
}
